// Package objstore gives uniform access to local directories and cloud buckets
// addressed by URIs such as "./data", "gs://bucket/prefix" or "s3://bucket/prefix".
package objstore

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
)

// Schemes supported by Open.
const (
	SchemeFile = "file"
	SchemeGCS  = "gs"
	SchemeS3   = "s3"
)

// ErrUnsupportedScheme is returned for URIs whose scheme has no Store.
var ErrUnsupportedScheme = errors.New("unsupported scheme")

// Store reads and writes objects within one bucket or directory.
type Store interface {
	// List returns all keys under prefix, recursively and sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader) error
}

// Location points at an object or a prefix.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseLocation parses uri. Strings without a scheme are local paths; their
// Bucket is the directory and Key the remaining path, which is empty when uri
// itself is the directory.
func ParseLocation(uri string) (Location, error) {
	if uri == "" {
		return Location{}, xerrors.New("empty location")
	}

	if !strings.Contains(uri, "://") {
		return Location{Scheme: SchemeFile, Bucket: filepath.Clean(uri)}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, xerrors.Errorf("failed to parse %s: %w", uri, err)
	}

	switch u.Scheme {
	case "s3a", "s3n":
		u.Scheme = SchemeS3
	case SchemeFile:
		return Location{Scheme: SchemeFile, Bucket: filepath.Clean(u.Path)}, nil
	}

	if u.Host == "" {
		return Location{}, xerrors.Errorf("missing bucket in %s", uri)
	}

	return Location{
		Scheme: u.Scheme,
		Bucket: u.Host,
		Key:    strings.TrimPrefix(u.Path, "/"),
	}, nil
}

// String formats l back into a URI.
func (l Location) String() string {
	if l.Scheme == SchemeFile || l.Scheme == "" {
		if l.Key == "" {
			return l.Bucket
		}
		return filepath.Join(l.Bucket, filepath.FromSlash(l.Key))
	}

	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// Join returns a location with elem appended to its key.
func (l Location) Join(elem ...string) Location {
	parts := append([]string{l.Key}, elem...)
	l.Key = strings.TrimPrefix(path.Join(parts...), "/")
	return l
}

// DefaultRegion is used for S3 when neither an option nor the AWS
// environment names a region.
const DefaultRegion = "us-west-2"

type options struct {
	region string
}

// Option configures stores built by Open.
type Option func(*options)

// WithRegion sets the region of S3 stores.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// Open returns a Store serving the bucket of loc.
func Open(ctx context.Context, loc Location, opts ...Option) (Store, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	switch loc.Scheme {
	case SchemeFile, "":
		return NewFileStore(loc.Bucket), nil
	case SchemeGCS:
		return NewGCSStore(ctx, loc.Bucket)
	case SchemeS3:
		return NewS3Store(ctx, loc.Bucket, o.region)
	default:
		return nil, xerrors.Errorf("%s: %w", loc.Scheme, ErrUnsupportedScheme)
	}
}

// ReadAll opens key on s and reads it fully.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	r, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", key, err)
	}

	return b, nil
}

// underPrefix reports whether key is prefix itself or lies below it as a
// directory. "sas_data" covers "sas_data/a" but not "sas_data_backup/a".
func underPrefix(key, prefix string) bool {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(key, prefix)
	}
	return key == prefix || strings.HasPrefix(key, prefix+"/")
}
