package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalSink stores export documents as files under RootDir.
type LocalSink struct {
	RootDir string
}

// tempPattern names in-flight writes beside their destination.
const tempPattern = ".ltcatalog-*"

// NewLocalSink creates a LocalSink rooted at rootDir. Directories are
// created on the first Put.
func NewLocalSink(rootDir string) (*LocalSink, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	return &LocalSink{RootDir: rootDir}, nil
}

func (s *LocalSink) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid export key %q", key)
	}
	return filepath.Join(s.RootDir, clean), nil
}

// Put writes to a temp file in the destination directory, fsyncs it and
// renames it over key.
func (s *LocalSink) Put(ctx context.Context, key string, r io.Reader) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating parent directories for %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing export data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting export permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to %q: %w", key, err)
	}
	return nil
}

// Get opens the file stored under key.
func (s *LocalSink) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("opening export %q: %w", key, err)
	}
	return f, nil
}

// HealthCheck verifies the root directory exists and is a directory.
func (s *LocalSink) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.RootDir)
	if err != nil {
		return fmt.Errorf("export directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("export root %q is not a directory", s.RootDir)
	}
	return nil
}

var _ Sink = (*LocalSink)(nil)
