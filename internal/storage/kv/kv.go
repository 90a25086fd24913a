// Package kv provides byte-level key/value backends used to persist cache
// entries across restarts.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/newthinker/candlescope/internal/core"
)

// ErrNotFound is returned by Read when a key does not exist.
var ErrNotFound = errors.New("key not found")

// Storage defines the interface for persistent cache backends.
type Storage interface {
	// Write stores data under key
	Write(ctx context.Context, key string, data []byte) error
	// Read retrieves data stored under key, or ErrNotFound
	Read(ctx context.Context, key string) ([]byte, error)
	// List returns all keys with the given prefix
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// Exists checks if key is present
	Exists(ctx context.Context, key string) (bool, error)
}

// Config selects and configures a backend.
type Config struct {
	Type  string // "none", "localfs", "s3" or "redis"
	Path  string
	S3    S3Config
	Redis RedisConfig
}

// New builds the backend named by cfg.Type. It returns (nil, nil) for "none".
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(cfg.S3)
	case "redis":
		return NewRedis(cfg.Redis)
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown storage type %q", cfg.Type))
	}
}

func storageErr(op, key string, err error) error {
	return core.WrapError(core.ErrStorageFailed, fmt.Errorf("%s %s: %w", op, key, err))
}
