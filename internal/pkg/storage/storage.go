// Package storage keeps uploaded dataset files on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

var ErrInvalidPath = errors.New("storage path escapes upload dir")

type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir failed: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir failed: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Save writes r to <user>/<dataset>/<uuid><ext> and returns that relative path.
func (s *LocalStore) Save(userID uint, dataset, ext string, r io.Reader) (string, int64, error) {
	name := slug.Make(dataset)
	if name == "" {
		name = "dataset"
	}
	rel := filepath.Join(strconv.FormatUint(uint64(userID), 10), name, uuid.NewString()+strings.ToLower(ext))
	full := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", 0, fmt.Errorf("create dataset dir failed: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create stored file failed: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return "", 0, fmt.Errorf("write stored file failed: %w", err)
	}
	return filepath.ToSlash(rel), n, nil
}

func (s *LocalStore) Open(rel string) (io.ReadCloser, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open stored file failed: %w", err)
	}
	return f, nil
}

// Remove deletes a stored file; a file that is already gone is not an error.
func (s *LocalStore) Remove(rel string) error {
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stored file failed: %w", err)
	}
	// drop the dataset dir once it is empty
	_ = os.Remove(filepath.Dir(full))
	return nil
}

func (s *LocalStore) resolve(rel string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}
