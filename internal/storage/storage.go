package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/iconidentify/dlab/internal/config"
	"github.com/iconidentify/dlab/internal/domain"
)

// Manager owns the download directories and every file operation the
// download pipeline performs on them.
type Manager struct {
	fs       afero.Fs
	basePath string
	tempPath string
	retry    RetryConfig
	logger   *slog.Logger
}

// NewManager creates a Manager backed by the OS filesystem and ensures the
// base and temp directories exist.
func NewManager(cfg config.StorageConfig, retry RetryConfig, logger *slog.Logger) (*Manager, error) {
	return NewManagerWithFs(afero.NewOsFs(), cfg, retry, logger)
}

// NewManagerWithFs creates a Manager on an explicit filesystem. Tests use
// this with an in-memory filesystem.
func NewManagerWithFs(fs afero.Fs, cfg config.StorageConfig, retry RetryConfig, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		fs:       fs,
		basePath: cfg.BasePath,
		tempPath: cfg.TempPath,
		retry:    retry,
		logger:   logger.With("component", "storage"),
	}

	for _, dir := range []string{m.basePath, m.tempPath} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return m, nil
}

// FinalPath returns the destination path for a completed download.
func (m *Manager) FinalPath(filename string) string {
	return filepath.Join(m.basePath, filename)
}

// TempVideoPath returns the temp path for a session's video-only stream.
func (m *Manager) TempVideoPath(id domain.SessionID) string {
	return filepath.Join(m.tempPath, fmt.Sprintf("video_%s.mp4", id))
}

// TempAudioPath returns the temp path for a session's audio-only stream.
func (m *Manager) TempAudioPath(id domain.SessionID) string {
	return filepath.Join(m.tempPath, fmt.Sprintf("audio_%s.m4a", id))
}

// Create opens a new file for writing, truncating any existing file.
func (m *Manager) Create(path string) (afero.File, error) {
	f, err := m.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file %s: %w", path, err)
	}
	return f, nil
}

// Open opens a file for reading.
func (m *Manager) Open(path string) (afero.File, error) {
	f, err := m.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", path, err)
	}
	return f, nil
}

// Size returns the size in bytes of the file at path.
func (m *Manager) Size(path string) (int64, error) {
	info, err := m.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat file %s: %w", path, err)
	}
	return info.Size(), nil
}

// Exists reports whether a file exists at path.
func (m *Manager) Exists(path string) bool {
	_, err := m.fs.Stat(path)
	return err == nil
}

// Remove deletes the file at path, retrying with backoff on failure. A
// missing file is not an error.
func (m *Manager) Remove(ctx context.Context, path string) error {
	_, err := Retry(ctx, m.retry, func() (struct{}, error) {
		if err := m.fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("remove file %s: %w", path, err)
	}
	return nil
}

// RemoveAll deletes every path, best effort. Failures are logged and the
// remaining paths are still attempted.
func (m *Manager) RemoveAll(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := m.Remove(ctx, p); err != nil {
			m.logger.Warn("failed to remove file", "path", p, "error", err)
		}
	}
}
