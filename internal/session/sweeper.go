package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/dlab/internal/storage"
)

// ErrShutdownTimeout is returned when the sweeper doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("sweeper shutdown timed out")

// Sweeper periodically removes terminal sessions that have outlived their
// retention window, along with any files they left behind.
type Sweeper struct {
	store    Store
	files    *storage.Manager
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// SweeperConfig holds sweeper configuration.
type SweeperConfig struct {
	TTL      time.Duration
	Interval time.Duration
}

// NewSweeper creates a new Sweeper.
func NewSweeper(cfg SweeperConfig, store Store, files *storage.Manager, logger *slog.Logger) *Sweeper {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		store:    store,
		files:    files,
		ttl:      cfg.TTL,
		interval: cfg.Interval,
		logger:   logger.With("component", "sweeper"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.logger.Info("starting session sweeper", "ttl", s.ttl, "interval", s.interval)

	s.wg.Add(1)
	go s.run()
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop(timeout time.Duration) error {
	s.logger.Info("stopping session sweeper")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("session sweeper stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.ctx)
		}
	}
}

// Sweep removes expired terminal sessions. It is exported so callers can
// trigger a pass outside the ticker.
func (s *Sweeper) Sweep(ctx context.Context) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		return
	}

	now := time.Now()
	for _, sess := range sessions {
		if !sess.Status.Terminal() || sess.EndTime.IsZero() {
			continue
		}
		if now.Sub(sess.EndTime) < s.ttl {
			continue
		}

		// Completed sessions that were never collected still hold files.
		s.files.RemoveAll(ctx, sess.TrackedPaths)

		if err := s.store.Delete(ctx, sess.ID); err != nil {
			s.logger.Error("failed to delete session", "session_id", sess.ID, "error", err)
			continue
		}
		s.logger.Info("expired session removed", "session_id", sess.ID, "status", sess.Status)
	}
}
