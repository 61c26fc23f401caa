package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStorage keeps files under a folder of the local disk
type LocalStorage struct {
	root string
}

// NewLocalStorage serves files under root, which is created on the first write
func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{root: root}
}

func (s *LocalStorage) path(name string) string {
	return filepath.Join(s.root, filepath.Clean(name))
}

// Read implements Storage
func (s *LocalStorage) Read(_ context.Context, name string) ([]byte, error) {
	full := s.path(name)
	data, e := os.ReadFile(full)
	switch {
	case errors.Is(e, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %w", full, ErrNotFound)
	case e != nil:
		return nil, fmt.Errorf("read %s: %w", full, e)
	}
	return data, nil
}

// Write implements Storage, readers see either the old or the new content
func (s *LocalStorage) Write(_ context.Context, name string, data []byte) error {
	full := s.path(name)
	if e := os.MkdirAll(filepath.Dir(full), 0o755); e != nil {
		return fmt.Errorf("write %s: %w", full, e)
	}

	tmp, e := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*")
	if e != nil {
		return fmt.Errorf("write %s: %w", full, e)
	}
	defer os.Remove(tmp.Name())

	if _, e := tmp.Write(data); e != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", full, e)
	}
	if e := tmp.Close(); e != nil {
		return fmt.Errorf("write %s: %w", full, e)
	}
	if e := os.Chmod(tmp.Name(), 0o644); e != nil {
		return fmt.Errorf("write %s: %w", full, e)
	}
	if e := os.Rename(tmp.Name(), full); e != nil {
		return fmt.Errorf("write %s: %w", full, e)
	}
	return nil
}

// Exists implements Storage
func (s *LocalStorage) Exists(_ context.Context, name string) (bool, error) {
	_, e := os.Stat(s.path(name))
	switch {
	case errors.Is(e, fs.ErrNotExist):
		return false, nil
	case e != nil:
		return false, fmt.Errorf("stat %s: %w", s.path(name), e)
	}
	return true, nil
}
