// Package fetcher copies stream bodies to disk with progress, pause, and
// stop control.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/iconidentify/dlab/internal/domain"
	"github.com/iconidentify/dlab/internal/storage"
)

const defaultBufferSize = 64 * 1024

// Control supplies the per-session hooks the copy loop consults while
// writing.
type Control struct {
	// Progress is called with cumulative bytes written. May be nil.
	Progress func(written int64)

	// Stopped reports whether the session has been stopped. May be nil.
	Stopped func() bool

	// Paused reports whether the session is paused. While paused, bytes
	// keep flowing but Progress is not called. May be nil.
	Paused func() bool
}

// Fetcher writes stream bodies to files managed by a storage.Manager.
type Fetcher struct {
	store      *storage.Manager
	bufferSize int
	logger     *slog.Logger
}

// New creates a Fetcher.
func New(store *storage.Manager, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		store:      store,
		bufferSize: defaultBufferSize,
		logger:     logger.With("component", "fetcher"),
	}
}

// Fetch copies body to a new file at path, invoking ctl hooks between
// chunks. The body is always closed. On stop the partial file is removed
// and domain.ErrDownloadStopped is returned; on any other failure the
// partial file is removed and the error is returned.
func (f *Fetcher) Fetch(ctx context.Context, body io.ReadCloser, path string, ctl Control) (int64, error) {
	defer body.Close()

	dst, err := f.store.Create(path)
	if err != nil {
		return 0, err
	}

	written, err := f.copyLoop(ctx, dst, body, ctl)
	if err != nil {
		dst.Close()
		f.discard(path)
		return written, err
	}

	if err := dst.Sync(); err != nil {
		dst.Close()
		f.discard(path)
		return written, fmt.Errorf("sync file %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		f.discard(path)
		return written, fmt.Errorf("close file %s: %w", path, err)
	}

	return written, nil
}

func (f *Fetcher) copyLoop(ctx context.Context, dst io.Writer, src io.Reader, ctl Control) (int64, error) {
	buf := make([]byte, f.bufferSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if ctl.Stopped != nil && ctl.Stopped() {
			return written, domain.ErrDownloadStopped
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return written, fmt.Errorf("write chunk: %w", writeErr)
			}
			written += int64(n)

			// Pause is advisory: the stream keeps flowing, but progress
			// reporting freezes until the session resumes.
			if ctl.Progress != nil && (ctl.Paused == nil || !ctl.Paused()) {
				ctl.Progress(written)
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read stream: %w", readErr)
		}
	}
}

// discard removes a partial file, logging on failure.
func (f *Fetcher) discard(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.store.Remove(ctx, path); err != nil {
		f.logger.Warn("failed to remove partial file", "path", path, "error", err)
	}
}
