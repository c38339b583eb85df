// Package storage persists run outputs (dataset snapshots and checkpoint
// manifests) in a blob bucket. Every write replaces the object whole: readers
// see either the previous version or the new one, never a partial file.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob" // mem:// driver
	"gocloud.dev/gcerrors"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = eris.New("storage: object not found")

// Store wraps one bucket.
type Store struct {
	bucket *blob.Bucket
	root   string
}

// New wraps an already-open bucket. root is used only for display.
func New(bucket *blob.Bucket, root string) *Store {
	return &Store{bucket: bucket, root: root}
}

// Open resolves an output location to a Store and the object key inside it.
// A location is either a local path ("out/enriched.csv") or a bucket URL
// whose last path segment is the key ("mem://enriched.csv",
// "file:///data/out/enriched.csv").
func Open(ctx context.Context, location string) (*Store, string, error) {
	if location == "" {
		return nil, "", eris.New("storage: empty output location")
	}

	if scheme, rest, ok := strings.Cut(location, "://"); ok {
		dir, key := splitKey(rest)
		if key == "" {
			return nil, "", eris.Errorf("storage: location %q has no object name", location)
		}
		bucketURL := scheme + "://" + dir
		bucket, err := blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, "", eris.Wrapf(err, "storage: open bucket %s", bucketURL)
		}
		return New(bucket, bucketURL), key, nil
	}

	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, "", eris.Wrapf(err, "storage: resolve %s", location)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", eris.Wrapf(err, "storage: create dir %s", dir)
	}
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{
		NoTempDir: true,
		Metadata:  fileblob.MetadataDontWrite,
	})
	if err != nil {
		return nil, "", eris.Wrapf(err, "storage: open dir %s", dir)
	}
	return New(bucket, dir), filepath.Base(abs), nil
}

func splitKey(rest string) (dir, key string) {
	i := strings.LastIndex(rest, "/")
	if i < 0 {
		return "", rest
	}
	return rest[:i], rest[i+1:]
}

// Root describes where objects land, for log output.
func (s *Store) Root() string { return s.root }

// WriteAll replaces key with data.
func (s *Store) WriteAll(ctx context.Context, key string, data []byte, contentType string) error {
	var opts *blob.WriterOptions
	if contentType != "" {
		opts = &blob.WriterOptions{ContentType: contentType}
	}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return eris.Wrapf(err, "storage: write %s", key)
	}
	return nil
}

// ReadAll returns the contents of key, or ErrNotFound.
func (s *Store) ReadAll(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, eris.Wrap(ErrNotFound, key)
		}
		return nil, eris.Wrapf(err, "storage: read %s", key)
	}
	return data, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, eris.Wrapf(err, "storage: stat %s", key)
	}
	return ok, nil
}

// Delete removes key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return eris.Wrapf(err, "storage: delete %s", key)
	}
	return nil
}

// Close releases the bucket.
func (s *Store) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
