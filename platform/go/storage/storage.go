package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

// ObjectLocation describes where a blob should live.
type ObjectLocation struct {
	Bucket   string
	FullPath string
}

// ResolveObjectLocation combines an institution base prefix and a logical key into a bucket/path pair.
//   - bucket comes from deployment configuration (one bucket per environment class).
//   - basePrefix is tenant.Scope.BasePrefix, e.g. "dev/hill-school-12345678/".
//   - logicalKey is institution-relative, e.g. "imports/students/<upload id>/students.csv".
func ResolveObjectLocation(basePrefix, bucket, logicalKey string) (ObjectLocation, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return ObjectLocation{}, fmt.Errorf("bucket is required")
	}
	key := strings.TrimPrefix(strings.TrimSpace(logicalKey), "/")
	if key == "" {
		return ObjectLocation{}, fmt.Errorf("logical key is required")
	}
	if basePrefix == "" {
		return ObjectLocation{}, fmt.Errorf("institution base prefix is missing")
	}
	if !strings.HasSuffix(basePrefix, "/") {
		basePrefix += "/"
	}
	return ObjectLocation{Bucket: bucket, FullPath: basePrefix + key}, nil
}

// Archiver keeps a copy of uploaded files.
type Archiver interface {
	Archive(ctx context.Context, basePrefix, logicalKey, contentType string, body io.Reader) (ObjectLocation, error)
}

// GCSArchiver writes to a Cloud Storage bucket.
type GCSArchiver struct {
	client *storage.Client
	bucket string
}

func NewGCSArchiver(client *storage.Client, bucket string) *GCSArchiver {
	if client == nil {
		panic("storage client is required")
	}
	return &GCSArchiver{client: client, bucket: bucket}
}

func (a *GCSArchiver) Archive(ctx context.Context, basePrefix, logicalKey, contentType string, body io.Reader) (ObjectLocation, error) {
	loc, err := ResolveObjectLocation(basePrefix, a.bucket, logicalKey)
	if err != nil {
		return ObjectLocation{}, err
	}

	w := a.client.Bucket(loc.Bucket).Object(loc.FullPath).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return ObjectLocation{}, fmt.Errorf("upload %s: %w", loc.FullPath, err)
	}
	if err := w.Close(); err != nil {
		return ObjectLocation{}, fmt.Errorf("finalize %s: %w", loc.FullPath, err)
	}
	return loc, nil
}

// LocalArchiver writes under a directory; the directory name stands in for the bucket.
type LocalArchiver struct {
	root string
}

func NewLocalArchiver(root string) *LocalArchiver {
	return &LocalArchiver{root: root}
}

func (a *LocalArchiver) Archive(_ context.Context, basePrefix, logicalKey, _ string, body io.Reader) (ObjectLocation, error) {
	loc, err := ResolveObjectLocation(basePrefix, a.root, logicalKey)
	if err != nil {
		return ObjectLocation{}, err
	}

	target := filepath.Join(a.root, filepath.FromSlash(loc.FullPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return ObjectLocation{}, fmt.Errorf("create archive dir: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return ObjectLocation{}, fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return ObjectLocation{}, fmt.Errorf("write archive file: %w", err)
	}
	return loc, nil
}
