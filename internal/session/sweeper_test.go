package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/iconidentify/dlab/internal/config"
	"github.com/iconidentify/dlab/internal/domain"
	"github.com/iconidentify/dlab/internal/storage"
)

func newTestSweeper(t *testing.T, ttl time.Duration) (*Sweeper, *MemoryStore, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	files, err := storage.NewManagerWithFs(fs, config.StorageConfig{
		BasePath: "downloads",
		TempPath: "downloads/temp",
	}, storage.DefaultRetryConfig(), logger)
	if err != nil {
		t.Fatalf("NewManagerWithFs() error = %v", err)
	}

	store := NewMemoryStore()
	sweeper := NewSweeper(SweeperConfig{TTL: ttl, Interval: time.Hour}, store, files, logger)
	return sweeper, store, fs
}

func TestSweepRemovesExpiredTerminalSessions(t *testing.T) {
	sweeper, store, fs := newTestSweeper(t, time.Minute)
	ctx := context.Background()

	path := "downloads/old_clip.mp4"
	afero.WriteFile(fs, path, []byte("stale"), 0o644)

	store.Create(ctx, &domain.Session{
		ID:           "expired",
		Status:       domain.StatusCompleted,
		EndTime:      time.Now().Add(-2 * time.Minute),
		TrackedPaths: []string{path},
	})

	sweeper.Sweep(ctx)

	if _, err := store.Get(ctx, "expired"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expired session still present, err = %v", err)
	}
	if _, err := fs.Stat(path); err == nil {
		t.Error("expired session's file should be removed")
	}
}

func TestSweepKeepsActiveAndRecentSessions(t *testing.T) {
	sweeper, store, _ := newTestSweeper(t, time.Minute)
	ctx := context.Background()

	store.Create(ctx, &domain.Session{
		ID:     "active",
		Status: domain.StatusDownloading,
	})
	store.Create(ctx, &domain.Session{
		ID:      "recent",
		Status:  domain.StatusCompleted,
		EndTime: time.Now(),
	})
	store.Create(ctx, &domain.Session{
		ID:     "stopped-no-end",
		Status: domain.StatusStopped,
	})

	sweeper.Sweep(ctx)

	for _, id := range []domain.SessionID{"active", "recent", "stopped-no-end"} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Errorf("session %q was swept, err = %v", id, err)
		}
	}
}

func TestSweeperStartStop(t *testing.T) {
	sweeper, _, _ := newTestSweeper(t, time.Minute)

	sweeper.Start()
	if err := sweeper.Stop(time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
