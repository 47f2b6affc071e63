package object

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// diskStorage keeps objects under a root directory on the local filesystem.
type diskStorage struct {
	root    string
	baseURL string
}

var _ Storage = (*diskStorage)(nil) // interface compliance check

func NewDiskStorage(root, baseURL string) (*diskStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating object storage root")
	}
	return &diskStorage{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// path keeps keys inside the root; a key that climbs out is rejected.
func (s *diskStorage) path(key string) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", errors.Errorf("invalid object key %q", key)
	}
	return path, nil
}

func (s *diskStorage) Upload(ctx context.Context, key string, r io.Reader) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "creating object directory")
	}

	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "creating object file")
	}
	defer func() { _ = f.Close() }()

	if _, err = io.Copy(f, r); err != nil {
		return "", errors.Wrap(err, "writing object file")
	}
	return s.baseURL + "/" + key, nil
}

func (s *diskStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "opening object file")
	}
	return f, nil
}

func (s *diskStorage) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting object file")
	}
	return nil
}
