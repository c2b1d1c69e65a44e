package objstore

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/xerrors"
)

// FileStore serves a local directory.
type FileStore struct {
	root string
}

// NewFileStore builds a Store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// List walks the directory under prefix and returns slash-separated keys
// relative to the root.
func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}

	err := filepath.WalkDir(s.path(prefix), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to list %s: %w", s.path(prefix), err)
	}

	sort.Strings(keys)

	return keys, nil
}

// Open opens the file for key.
func (s *FileStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, xerrors.Errorf("failed to open %s: %w", s.path(key), err)
	}

	return f, nil
}

// Put writes r to key, creating parent directories.
func (s *FileStore) Put(_ context.Context, key string, r io.Reader) error {
	p := s.path(key)

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return xerrors.Errorf("failed to create directory for %s: %w", p, err)
	}

	f, err := os.Create(p)
	if err != nil {
		return xerrors.Errorf("failed to create %s: %w", p, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return xerrors.Errorf("failed to write %s: %w", p, err)
	}

	return f.Close()
}
