package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/edupay-saas/platform/go/tenant"
)

func TestResolveObjectLocation(t *testing.T) {
	scope := tenant.Scope{InstitutionID: uuid.MustParse("12345678-0000-4000-8000-000000000000"), Slug: "hill-school"}

	uploadID := uuid.New()
	loc, err := ResolveObjectLocation(scope.BasePrefix("dev"), "edupay-dev-archive", "imports/students/"+uploadID.String()+"/students.csv")
	require.NoError(t, err)
	require.Equal(t, "edupay-dev-archive", loc.Bucket)
	require.Equal(t, "dev/hill-school-12345678/imports/students/"+uploadID.String()+"/students.csv", loc.FullPath)
}

func TestResolveObjectLocationTrimsSlashAndValidates(t *testing.T) {
	loc, err := ResolveObjectLocation("dev/hill-school-12345678", "bucket", "/imports/a.xlsx")
	require.NoError(t, err)
	require.Equal(t, "dev/hill-school-12345678/imports/a.xlsx", loc.FullPath)

	_, err = ResolveObjectLocation("dev/x/", "", "file")
	require.Error(t, err)

	_, err = ResolveObjectLocation("dev/x/", "bucket", " ")
	require.Error(t, err)

	_, err = ResolveObjectLocation("", "bucket", "file")
	require.Error(t, err)
}

func TestLocalArchiverWritesUnderPrefix(t *testing.T) {
	root := t.TempDir()
	archiver := NewLocalArchiver(root)

	loc, err := archiver.Archive(context.Background(), "test/hill-school-12345678/", "imports/students.csv", "text/csv", strings.NewReader("full_name\n"))
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(loc.FullPath)))
	require.NoError(t, err)
	require.Equal(t, "full_name\n", string(raw))
}
