// Package storage reads and writes whole files on the local disk or in S3
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage provides an abstraction over key-value style file storage.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Resolver maps a location to the storage holding it
type Resolver interface {
	Resolve(ctx context.Context, location string) (Storage, string, error)
}

// DefaultResolver serves "s3://bucket/key" locations from S3, and everything else from the local disk
type DefaultResolver struct {
	// S3Region is used for s3 locations, the AWS default chain decides if empty
	S3Region string
}

// Resolve implements Resolver
func (r DefaultResolver) Resolve(ctx context.Context, location string) (Storage, string, error) {
	if strings.HasPrefix(location, "s3://") {
		bucket, key, ok := strings.Cut(strings.TrimPrefix(location, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, "", fmt.Errorf("invalid s3 location %q, want s3://bucket/key", location)
		}
		s, e := NewS3Storage(ctx, bucket, "", r.S3Region)
		if e != nil {
			return nil, "", e
		}
		return s, key, nil
	}

	abs, e := filepath.Abs(location)
	if e != nil {
		return nil, "", fmt.Errorf("failed to resolve %s: %w", location, e)
	}
	return NewLocalStorage(filepath.Dir(abs)), filepath.Base(abs), nil
}

// ReadLocation reads a whole location
func ReadLocation(ctx context.Context, r Resolver, location string) ([]byte, error) {
	s, path, e := r.Resolve(ctx, location)
	if e != nil {
		return nil, e
	}
	return s.Read(ctx, path)
}

// WriteLocation replaces a whole location
func WriteLocation(ctx context.Context, r Resolver, location string, data []byte) error {
	s, path, e := r.Resolve(ctx, location)
	if e != nil {
		return e
	}
	return s.Write(ctx, path, data)
}

// LocationExists tells if a location holds a file
func LocationExists(ctx context.Context, r Resolver, location string) (bool, error) {
	s, path, e := r.Resolve(ctx, location)
	if e != nil {
		return false, e
	}
	return s.Exists(ctx, path)
}
