package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("object not found")

// Storage is an object store for backup snapshots.
type Storage interface {
	// Put stores the object at key, replacing any existing one.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get opens the object at key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Returns nil if it does not exist.
	Delete(ctx context.Context, key string) error

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures a backend
type Config struct {
	Driver string // local | s3

	LocalDir string

	S3Endpoint  string // empty for AWS, set for MinIO/R2-style endpoints
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

// New builds the backend named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "local":
		return NewLocalStorage(cfg.LocalDir)
	case "s3":
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
