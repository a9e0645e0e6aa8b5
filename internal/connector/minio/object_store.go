package minio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ObjectStore is the subset of S3 operations the sink and its callers use.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	PutObject(ctx context.Context, bucket, key, contentType string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error)
}

// LocalStore keeps buckets as directories under a root. It backs dry runs
// and tests; buckets must be created with MakeBucket first, as on the server.
type LocalStore struct {
	root string
}

// NewLocalStore roots a store at root, or at a temp directory when empty.
func NewLocalStore(root string) *LocalStore {
	if root == "" {
		root = filepath.Join(os.TempDir(), "etl-flows-store")
	}
	return &LocalStore{root: root}
}

// MakeBucket creates bucket if it does not exist.
func (s *LocalStore) MakeBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bucket == "" {
		return wrapError(CodeBucketNotFound, false, errors.New("bucket is required"))
	}
	if err := os.MkdirAll(s.bucketDir(bucket), 0o755); err != nil {
		return wrapError(CodePermissionDenied, false, err)
	}
	return nil
}

func (s *LocalStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if bucket == "" {
		return false, nil
	}
	info, err := os.Stat(s.bucketDir(bucket))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, wrapError(CodePermissionDenied, false, err)
	}
	return info.IsDir(), nil
}

// existing resolves bucket to its directory, failing when it is missing.
func (s *LocalStore) existing(ctx context.Context, bucket string) (string, error) {
	ok, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", wrapError(CodeBucketNotFound, false, fmt.Errorf("bucket %q", bucket))
	}
	return s.bucketDir(bucket), nil
}

// PutObject writes data under bucket/key. The content type is dropped.
func (s *LocalStore) PutObject(ctx context.Context, bucket, key, _ string, data []byte) error {
	dir, err := s.existing(ctx, bucket)
	if err != nil {
		return err
	}
	if key == "" {
		return wrapError(CodeUploadFailed, false, errors.New("object key is required"))
	}
	path := filepath.Join(dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrapError(CodePermissionDenied, false, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return wrapError(CodeUploadFailed, true, err).about(bucket, key)
	}
	return nil
}

func (s *LocalStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	dir, err := s.existing(ctx, bucket)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, wrapError(CodeObjectNotFound, false, err).about(bucket, key)
	}
	return data, err
}

// ListPrefix returns the sorted keys under prefix.
func (s *LocalStore) ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	dir, err := s.existing(ctx, bucket)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// bucketDir maps a bucket name onto one directory level under root.
func (s *LocalStore) bucketDir(bucket string) string {
	return filepath.Join(s.root, strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(bucket))
}
