package kv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalFS implements Storage for local filesystem
type LocalFS struct {
	basePath string
}

// NewLocalFS creates a new LocalFS storage
func NewLocalFS(basePath string) (*LocalFS, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, storageErr("creating base path", basePath, err)
	}
	return &LocalFS{basePath: basePath}, nil
}

func (l *LocalFS) fullPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return filepath.Join(l.basePath, clean), nil
}

func (l *LocalFS) Write(ctx context.Context, key string, data []byte) error {
	fullPath, err := l.fullPath(key)
	if err != nil {
		return storageErr("write", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return storageErr("write", key, err)
	}
	// Write to a sibling temp file first so readers never see partial data.
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return storageErr("write", key, err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		return storageErr("write", key, err)
	}
	return nil
}

func (l *LocalFS) Read(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := l.fullPath(key)
	if err != nil {
		return nil, storageErr("read", key, err)
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("read", key, err)
	}
	return data, nil
}

func (l *LocalFS) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(l.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			keys = append(keys, rel)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, storageErr("list", prefix, err)
	}
	return keys, nil
}

func (l *LocalFS) Delete(ctx context.Context, key string) error {
	fullPath, err := l.fullPath(key)
	if err != nil {
		return storageErr("delete", key, err)
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("delete", key, err)
	}
	return nil
}

func (l *LocalFS) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := l.fullPath(key)
	if err != nil {
		return false, storageErr("stat", key, err)
	}
	_, err = os.Stat(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("stat", key, err)
	}
	return true, nil
}
