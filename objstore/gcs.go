package objstore

import (
	"context"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"golang.org/x/xerrors"
	"google.golang.org/api/iterator"
)

// GCSStore serves a Cloud Storage bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
}

// NewGCSStore builds a Store for bucket using default credentials.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to build storage client for %s: %w", bucket, err)
	}

	return &GCSStore{bucket: c.Bucket(bucket), name: bucket}, nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}

	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, xerrors.Errorf("failed to list gs://%s/%s: %w", s.name, prefix, err)
		}
		if underPrefix(attrs.Name, prefix) {
			keys = append(keys, attrs.Name)
		}
	}

	sort.Strings(keys)

	return keys, nil
}

func (s *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to get reader of gs://%s/%s: %w", s.name, key, err)
	}

	return r, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader) error {
	w := s.bucket.Object(key).NewWriter(ctx)

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return xerrors.Errorf("failed to write gs://%s/%s: %w", s.name, key, err)
	}

	if err := w.Close(); err != nil {
		return xerrors.Errorf("failed to finalize gs://%s/%s: %w", s.name, key, err)
	}

	return nil
}
