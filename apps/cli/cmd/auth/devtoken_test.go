package auth

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
)

func TestDevTokenRoundTripsThroughVerifier(t *testing.T) {
	cmd := Command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"devtoken", "--project-id", "edupay-dev", "--user-id", "uid-1", "--email", "Bursar@Hill.test", "--name", "Grace"})
	require.NoError(t, cmd.Execute())

	claims, err := platformauth.UnsignedTokenVerifier()(context.Background(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	creds, err := platformauth.DefaultCredentialExtractor(claims)
	require.NoError(t, err)
	require.Equal(t, "uid-1", creds.Id)
	require.Equal(t, "bursar@hill.test", creds.Email)
	require.True(t, creds.EmailVerified)
	require.Equal(t, "edupay-dev", claims["aud"])
}

func TestDevTokenRequiresEmail(t *testing.T) {
	cmd := Command()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"devtoken", "--project-id", "edupay-dev", "--user-id", "uid-1"})
	require.Error(t, cmd.Execute())
}
