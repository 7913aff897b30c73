// Package file provides a directory-backed storage.Store that keeps one
// file per key, guarded by advisory file locks.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/jmcleod/oaclient/storage"
)

// ErrInvalidKey is returned for keys that cannot be used as a file name.
var ErrInvalidKey = errors.New("invalid key")

// Store is a file-system based storage.Store.
type Store struct {
	basedir string
}

var _ storage.Store = (*Store)(nil)

// mkdirAllFunc is the type of os.MkdirAll.
type mkdirAllFunc func(path string, perm fs.FileMode) error

// NewStore creates the base directory if needed and returns a Store rooted there.
func NewStore(basedir string) (*Store, error) {
	return newStore(basedir, os.MkdirAll)
}

func newStore(basedir string, mkdir mkdirAllFunc) (*Store, error) {
	if err := mkdir(basedir, 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &Store{basedir: basedir}, nil
}

func (s *Store) filename(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	return filepath.Join(s.basedir, key), nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	name, err := s.filename(key)
	if err != nil {
		return nil, err
	}
	data, err := lockedfile.Read(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	name, err := s.filename(key)
	if err != nil {
		return err
	}
	return lockedfile.Write(name, bytes.NewReader(value), 0o600)
}

func (s *Store) Delete(_ context.Context, key string) error {
	name, err := s.filename(key)
	if err != nil {
		return err
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
