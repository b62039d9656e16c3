// Package service contains the download orchestration logic: stream
// selection, session state transitions, and artifact delivery.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/iconidentify/dlab/internal/config"
	"github.com/iconidentify/dlab/internal/domain"
	"github.com/iconidentify/dlab/internal/extractor"
	"github.com/iconidentify/dlab/internal/fetcher"
	"github.com/iconidentify/dlab/internal/session"
	"github.com/iconidentify/dlab/internal/storage"
)

// Progress bands for the dual-stream path. Video and audio fetches each
// occupy a fixed share, the merge takes the rest.
const (
	videoBandEnd = 40
	audioBandEnd = 80
)

// Muxer merges separate streams and converts audio.
type Muxer interface {
	Merge(ctx context.Context, videoPath, audioPath, outputPath string, progress func(float64)) error
	ExtractAudio(ctx context.Context, inputPath, outputPath string) error
}

// DownloadService orchestrates download sessions from URL resolution
// through artifact delivery.
type DownloadService struct {
	provider extractor.Provider
	store    session.Store
	files    *storage.Manager
	fetch    *fetcher.Fetcher
	mux      Muxer
	cfg      config.DownloadConfig
	logger   *slog.Logger
}

// NewDownloadService creates a new DownloadService.
func NewDownloadService(
	provider extractor.Provider,
	store session.Store,
	files *storage.Manager,
	fetch *fetcher.Fetcher,
	mux Muxer,
	cfg config.DownloadConfig,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		provider: provider,
		store:    store,
		files:    files,
		fetch:    fetch,
		mux:      mux,
		cfg:      cfg,
		logger:   logger.With("component", "download_service"),
	}
}

// Begin validates the URL, creates a session, and starts the download
// pipeline in the background. Callers poll Progress for updates.
func (s *DownloadService) Begin(ctx context.Context, url, quality, format string) (domain.SessionID, error) {
	if err := s.provider.Validate(url); err != nil {
		return "", err
	}

	id := domain.SessionID(uuid.NewString())
	sess := &domain.Session{
		ID:        id,
		Status:    domain.StatusStarting,
		StartTime: time.Now(),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return "", domain.NewSessionError(id, "create session", err)
	}

	go s.run(id, url, quality, format)

	return id, nil
}

// Progress returns a snapshot of the session.
func (s *DownloadService) Progress(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.store.Get(ctx, id)
}

// TogglePause flips the session's pause flag and returns the new value.
// The request is ignored once the session is stopped or terminal.
func (s *DownloadService) TogglePause(ctx context.Context, id domain.SessionID) (bool, error) {
	snap, err := s.store.Update(ctx, id, func(sess *domain.Session) {
		if sess.Stopped || sess.Status.Terminal() {
			return
		}
		sess.Paused = !sess.Paused
		switch {
		case sess.Paused && sess.Status == domain.StatusDownloading:
			sess.Status = domain.StatusPaused
		case !sess.Paused && sess.Status == domain.StatusPaused:
			sess.Status = domain.StatusDownloading
		}
	})
	if err != nil {
		return false, err
	}
	return snap.Paused, nil
}

// Stop marks the session stopped. The pipeline goroutine observes the flag
// at its next chunk or phase boundary and removes every tracked file.
// Stopping a terminal session is acknowledged without effect.
func (s *DownloadService) Stop(ctx context.Context, id domain.SessionID) error {
	snap, err := s.store.Update(ctx, id, func(sess *domain.Session) {
		if sess.Status.Terminal() {
			return
		}
		sess.Stopped = true
		sess.Paused = false
		sess.Status = domain.StatusStopped
		sess.EndTime = time.Now()
	})
	if err != nil {
		return err
	}

	s.logger.Info("session stop requested", "session_id", id, "status", snap.Status)
	return nil
}

// Artifact returns the session once its file is complete and present on
// disk.
func (s *DownloadService) Artifact(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.StatusCompleted || sess.FilePath == "" || !s.files.Exists(sess.FilePath) {
		return nil, domain.NewSessionError(id, "artifact", domain.ErrFileNotReady)
	}
	return sess, nil
}

// OpenFile opens an artifact for streaming to a client.
func (s *DownloadService) OpenFile(path string) (afero.File, error) {
	return s.files.Open(path)
}

// FileSize returns the artifact size in bytes.
func (s *DownloadService) FileSize(path string) (int64, error) {
	return s.files.Size(path)
}

// Finish removes a delivered session and all its files.
func (s *DownloadService) Finish(ctx context.Context, id domain.SessionID) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return
	}
	s.files.RemoveAll(ctx, sess.TrackedPaths)
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to delete session", "session_id", id, "error", err)
	}
}

// Discard removes a single artifact file, retrying on failure.
func (s *DownloadService) Discard(ctx context.Context, path string) {
	s.files.RemoveAll(ctx, []string{path})
}

// run drives one session through the full state machine. It owns all state
// transitions after starting.
func (s *DownloadService) run(id domain.SessionID, url, quality, format string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	logger := s.logger.With("session_id", id)
	logger.Info("download started", "url", url, "quality", quality, "format", format)

	// A stop can land before the pipeline's first transition; it must not be
	// overwritten.
	s.update(id, func(sess *domain.Session) {
		if !sess.Stopped {
			sess.Status = domain.StatusFetchingInfo
		}
	})

	infoCtx, infoCancel := context.WithTimeout(ctx, s.cfg.InfoTimeout)
	src, err := s.provider.Resolve(infoCtx, url)
	infoCancel()
	if err != nil {
		s.fail(id, err)
		return
	}

	if s.isStopped(id) {
		s.finishStopped(ctx, id)
		return
	}

	wantsAudio := format == "mp3"
	plan, err := SelectPlan(src.Catalog(), quality, wantsAudio)
	if err != nil {
		s.fail(id, err)
		return
	}

	filename := BuildFilename(src.Info().Title, plan, format)
	s.update(id, func(sess *domain.Session) { sess.Filename = filename })

	var finalPath string
	if plan.NeedsMux() {
		finalPath, err = s.runMerged(ctx, id, src, plan, filename)
	} else {
		finalPath, err = s.runSingle(ctx, id, src, plan, filename, format)
	}

	switch {
	case err == nil:
		s.complete(ctx, id, finalPath)
		logger.Info("download completed", "path", finalPath)
	case errors.Is(err, domain.ErrDownloadStopped):
		s.finishStopped(ctx, id)
		logger.Info("download stopped")
	default:
		s.fail(id, err)
		logger.Error("download failed", "error", err)
	}
}

// runSingle fetches one stream straight into the final artifact. For mp3
// requests the stream lands in a temp file first and is converted.
func (s *DownloadService) runSingle(ctx context.Context, id domain.SessionID, src extractor.Source, plan domain.Plan, filename, format string) (string, error) {
	s.update(id, func(sess *domain.Session) { sess.Status = domain.StatusDownloading })

	desc := plan.Combined
	if desc == nil {
		desc = plan.Audio
	}

	body, total, err := src.Open(ctx, desc.Itag)
	if err != nil {
		return "", err
	}

	// Record the total once. A later zero must not clobber a known size.
	if total > 0 {
		s.update(id, func(sess *domain.Session) {
			if sess.Total == 0 {
				sess.Total = total
			}
		})
	}

	finalPath := s.files.FinalPath(filename)

	fetchPath := finalPath
	if format == "mp3" {
		fetchPath = s.files.TempAudioPath(id)
	}
	s.track(id, fetchPath)

	ctl := fetcher.Control{
		Progress: func(written int64) {
			s.update(id, func(sess *domain.Session) {
				if written > sess.Downloaded {
					sess.Downloaded = written
				}
				if sess.Total <= 0 {
					return
				}
				pct := int(written * 100 / sess.Total)
				if pct > 99 {
					pct = 99
				}
				if pct > sess.Progress {
					sess.Progress = pct
				}
			})
		},
		Stopped: func() bool { return s.isStopped(id) },
		Paused:  func() bool { return s.isPaused(id) },
	}

	if _, err := s.fetch.Fetch(ctx, body, fetchPath, ctl); err != nil {
		return "", err
	}

	if format == "mp3" {
		s.track(id, finalPath)
		if err := s.mux.ExtractAudio(ctx, fetchPath, finalPath); err != nil {
			return "", err
		}
		if err := s.files.Remove(ctx, fetchPath); err != nil {
			s.logger.Warn("failed to remove temp audio", "session_id", id, "error", err)
		}
	}

	if s.isStopped(id) {
		return "", domain.ErrDownloadStopped
	}

	return finalPath, nil
}

// runMerged fetches video and audio separately and merges them. Progress
// maps the video fetch, audio fetch, and merge into fixed bands.
func (s *DownloadService) runMerged(ctx context.Context, id domain.SessionID, src extractor.Source, plan domain.Plan, filename string) (string, error) {
	s.update(id, func(sess *domain.Session) { sess.Status = domain.StatusDownloading })

	videoPath := s.files.TempVideoPath(id)
	audioPath := s.files.TempAudioPath(id)
	s.track(id, videoPath)
	s.track(id, audioPath)

	vBody, vTotal, err := src.Open(ctx, plan.Video.Itag)
	if err != nil {
		return "", err
	}
	if vTotal > 0 {
		s.update(id, func(sess *domain.Session) {
			if sess.Total == 0 {
				sess.Total = vTotal
			}
		})
	}

	vBytes, err := s.fetch.Fetch(ctx, vBody, videoPath, s.bandControl(id, 0, videoBandEnd, vTotal, 0))
	if err != nil {
		return "", err
	}
	s.floorProgress(id, videoBandEnd)

	aBody, aTotal, err := src.Open(ctx, plan.Audio.Itag)
	if err != nil {
		return "", err
	}
	// Both totals are known now: switch the counters to combined bytes.
	if vTotal > 0 && aTotal > 0 {
		s.update(id, func(sess *domain.Session) { sess.Total = vTotal + aTotal })
	}

	if _, err := s.fetch.Fetch(ctx, aBody, audioPath, s.bandControl(id, videoBandEnd, audioBandEnd, aTotal, vBytes)); err != nil {
		return "", err
	}
	s.floorProgress(id, audioBandEnd)

	// Stop is checked before the merge starts; a merge in flight runs to
	// completion.
	if s.isStopped(id) {
		return "", domain.ErrDownloadStopped
	}

	finalPath := s.files.FinalPath(filename)
	s.track(id, finalPath)
	s.update(id, func(sess *domain.Session) { sess.Status = domain.StatusMerging })

	err = s.mux.Merge(ctx, videoPath, audioPath, finalPath, func(ratio float64) {
		pct := audioBandEnd + int(ratio*float64(100-audioBandEnd))
		if pct > 99 {
			pct = 99
		}
		s.floorProgress(id, pct)
	})
	if err != nil {
		return "", domain.NewSessionError(id, "merge streams",
			fmt.Errorf("%w: %v", domain.ErrMuxFailure, err))
	}

	for _, p := range []string{videoPath, audioPath} {
		if err := s.files.Remove(ctx, p); err != nil {
			s.logger.Warn("failed to remove temp file", "session_id", id, "path", p, "error", err)
		}
	}

	if s.isStopped(id) {
		return "", domain.ErrDownloadStopped
	}

	return finalPath, nil
}

// bandControl builds fetch hooks that map a stream's byte ratio into the
// [from, to) progress band. base is added to written bytes so the audio
// phase reports combined counters.
func (s *DownloadService) bandControl(id domain.SessionID, from, to int, total, base int64) fetcher.Control {
	return fetcher.Control{
		Progress: func(written int64) {
			s.update(id, func(sess *domain.Session) {
				if base+written > sess.Downloaded {
					sess.Downloaded = base + written
				}
				if total <= 0 {
					return
				}
				pct := from + int(written*int64(to-from)/total)
				if pct >= to {
					pct = to - 1
				}
				if pct > sess.Progress {
					sess.Progress = pct
				}
			})
		},
		Stopped: func() bool { return s.isStopped(id) },
		Paused:  func() bool { return s.isPaused(id) },
	}
}

func (s *DownloadService) complete(ctx context.Context, id domain.SessionID, path string) {
	snap := s.update(id, func(sess *domain.Session) {
		if sess.Stopped {
			return
		}
		sess.Status = domain.StatusCompleted
		sess.Progress = 100
		sess.FilePath = path
		if sess.Total > 0 {
			sess.Downloaded = sess.Total
		}
		sess.EndTime = time.Now()
	})
	if snap != nil && snap.Stopped {
		s.finishStopped(ctx, id)
	}
}

// fail records a terminal error and removes every tracked file.
func (s *DownloadService) fail(id domain.SessionID, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, getErr := s.store.Get(ctx, id)
	if getErr == nil {
		s.files.RemoveAll(ctx, sess.TrackedPaths)
	}

	s.update(id, func(sess *domain.Session) {
		if sess.Status.Terminal() {
			return
		}
		sess.Status = domain.StatusError
		sess.Error = err.Error()
		sess.EndTime = time.Now()
	})
}

// finishStopped removes every tracked file and settles the session in the
// stopped state.
func (s *DownloadService) finishStopped(ctx context.Context, id domain.SessionID) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return
	}
	s.files.RemoveAll(ctx, sess.TrackedPaths)

	s.update(id, func(sess *domain.Session) {
		sess.Status = domain.StatusStopped
		sess.Stopped = true
		if sess.EndTime.IsZero() {
			sess.EndTime = time.Now()
		}
	})
}

func (s *DownloadService) update(id domain.SessionID, fn func(*domain.Session)) *domain.Session {
	snap, err := s.store.Update(context.Background(), id, fn)
	if err != nil {
		return nil
	}
	return snap
}

func (s *DownloadService) track(id domain.SessionID, path string) {
	s.update(id, func(sess *domain.Session) { sess.Track(path) })
}

func (s *DownloadService) floorProgress(id domain.SessionID, pct int) {
	s.update(id, func(sess *domain.Session) {
		if pct > sess.Progress {
			sess.Progress = pct
		}
	})
}

func (s *DownloadService) isStopped(id domain.SessionID) bool {
	sess, err := s.store.Get(context.Background(), id)
	if err != nil {
		return true
	}
	return sess.Stopped
}

func (s *DownloadService) isPaused(id domain.SessionID) bool {
	sess, err := s.store.Get(context.Background(), id)
	if err != nil {
		return false
	}
	return sess.Paused
}
