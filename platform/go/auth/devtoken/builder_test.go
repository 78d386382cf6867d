package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/edupay-saas/platform/go/auth"
)

func TestBuildUnsignedFirebaseToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	token, err := BuildUnsignedFirebaseToken(Params{
		ProjectID:     "edupay-local",
		UserID:        "bursar-123",
		Email:         "bursar@school.test",
		Name:          "Dev Bursar",
		EmailVerified: true,
	}, now)
	require.NoError(t, err)

	header, payload := splitToken(t, token)
	require.Equal(t, "none", header["alg"])
	require.Equal(t, "https://securetoken.google.com/edupay-local", payload["iss"])
	require.Equal(t, "edupay-local", payload["aud"])
	require.Equal(t, "bursar-123", payload["sub"])
	require.Equal(t, float64(now.Add(time.Hour).Unix()), payload["exp"])
	require.Equal(t, "Dev Bursar", payload["name"])
}

func TestBuildUnsignedFirebaseTokenRequiredFields(t *testing.T) {
	_, err := BuildUnsignedFirebaseToken(Params{ProjectID: "p", Email: "a@b.c"}, time.Time{})
	require.ErrorContains(t, err, "userID")

	_, err = BuildUnsignedFirebaseToken(Params{UserID: "u", Email: "a@b.c"}, time.Time{})
	require.ErrorContains(t, err, "projectID")
}

func TestTokenRoundTripsThroughCredentialExtractor(t *testing.T) {
	token, err := BuildUnsignedFirebaseToken(Params{
		ProjectID: "edupay-local",
		UserID:    "admin-1",
		Email:     "Admin@School.test",
	}, time.Now())
	require.NoError(t, err)

	claims, err := auth.UnsignedTokenVerifier()(t.Context(), token)
	require.NoError(t, err)
	creds, err := auth.DefaultCredentialExtractor(claims)
	require.NoError(t, err)
	require.Equal(t, "admin-1", creds.Id)
	require.Equal(t, "admin@school.test", creds.Email)
}

func splitToken(t *testing.T, token string) (map[string]interface{}, map[string]interface{}) {
	t.Helper()
	parts := strings.Split(token, ".")
	require.GreaterOrEqual(t, len(parts), 2)
	return decodeSegment(t, parts[0]), decodeSegment(t, parts[1])
}

func decodeSegment(t *testing.T, segment string) map[string]interface{} {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}
