package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func unsignedToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
}

func TestDefaultCredentialExtractor(t *testing.T) {
	t.Parallel()

	creds, err := DefaultCredentialExtractor(map[string]interface{}{
		"user_id":        "fb-123",
		"email":          "Bursar@School.test",
		"email_verified": true,
		"name":           "Amina Bursar",
	})
	require.NoError(t, err)
	require.Equal(t, "fb-123", creds.Id)
	require.Equal(t, "bursar@school.test", creds.Email)
	require.True(t, creds.EmailVerified)
	require.Equal(t, "Amina Bursar", *creds.Name)
	require.Nil(t, creds.PictureURL)

	_, err = DefaultCredentialExtractor(map[string]interface{}{"email": "x@y.z"})
	require.Error(t, err)
}

func TestExtractJWTToken(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, found := ExtractJWTToken(req)
	require.False(t, found)

	req.Header.Set("Authorization", "bearer abc.def ")
	token, found := ExtractJWTToken(req)
	require.True(t, found)
	require.Equal(t, "abc.def", token)

	req.Header.Set("Authorization", "Basic abc")
	_, found = ExtractJWTToken(req)
	require.False(t, found)
}

type stubResolver struct {
	principal Principal
	err       error
}

func (s stubResolver) ResolvePrincipal(ctx context.Context, creds UserCredentials) (Principal, error) {
	if s.err != nil {
		return Principal{}, s.err
	}
	p := s.principal
	p.ExternalUID = creds.Id
	return p, nil
}

func newProtectedRouter(t *testing.T, resolver PrincipalResolver, roles ...PlatformRole) http.Handler {
	r := chi.NewRouter()
	r.Use(JWT(UnsignedTokenVerifier(), nil))
	r.Use(ResolvePrincipal(resolver, zaptest.NewLogger(t)))
	if len(roles) > 0 {
		r.Use(RequirePlatformRole(roles...))
	}
	r.Get("/me", func(w http.ResponseWriter, req *http.Request) {
		p, ok := PrincipalFromContext(req.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(p.ExternalUID))
	})
	return r
}

func TestResolvePrincipal(t *testing.T) {
	t.Parallel()

	active := Principal{UserID: uuid.New(), PlatformRole: PlatformRoleOther, IsActive: true}
	token := unsignedToken(t, map[string]interface{}{"sub": "fb-9", "email": "t@school.test"})

	t.Run("no token is unauthorized", func(t *testing.T) {
		t.Parallel()
		resp := httptest.NewRecorder()
		newProtectedRouter(t, stubResolver{principal: active}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/me", nil))
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("active principal passes", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		newProtectedRouter(t, stubResolver{principal: active}).ServeHTTP(resp, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "fb-9", resp.Body.String())
	})

	t.Run("inactive principal is forbidden", func(t *testing.T) {
		t.Parallel()
		inactive := active
		inactive.IsActive = false
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		newProtectedRouter(t, stubResolver{principal: inactive}).ServeHTTP(resp, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("unknown principal is forbidden", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		newProtectedRouter(t, stubResolver{err: ErrUnknownPrincipal}).ServeHTTP(resp, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("garbage token is unauthorized", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		resp := httptest.NewRecorder()
		newProtectedRouter(t, stubResolver{principal: active}).ServeHTTP(resp, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})
}

func TestRequirePlatformRole(t *testing.T) {
	t.Parallel()

	token := unsignedToken(t, map[string]interface{}{"sub": "fb-1"})

	admin := Principal{UserID: uuid.New(), PlatformRole: PlatformRoleSuperAdmin, IsActive: true}
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	newProtectedRouter(t, stubResolver{principal: admin}, PlatformRoleSuperAdmin).ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	schoolAdmin := Principal{UserID: uuid.New(), PlatformRole: PlatformRoleInstitutionAdmin, IsActive: true}
	resp = httptest.NewRecorder()
	newProtectedRouter(t, stubResolver{principal: schoolAdmin}, PlatformRoleSuperAdmin).ServeHTTP(resp, req)
	require.Equal(t, http.StatusForbidden, resp.Code)
	require.Contains(t, resp.Body.String(), "super_admin")
}

func TestParsePlatformRole(t *testing.T) {
	t.Parallel()

	role, err := ParsePlatformRole("institution_admin")
	require.NoError(t, err)
	require.Equal(t, PlatformRoleInstitutionAdmin, role)

	_, err = ParsePlatformRole("principal")
	require.Error(t, err)
}
