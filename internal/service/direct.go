package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/dlab/internal/domain"
	"github.com/iconidentify/dlab/internal/fetcher"
)

// VideoInfo resolves a URL and returns its metadata together with the
// qualities the catalog can satisfy.
func (s *DownloadService) VideoInfo(ctx context.Context, url string) (*domain.VideoInfo, []string, error) {
	if err := s.provider.Validate(url); err != nil {
		return nil, nil, err
	}

	infoCtx, cancel := context.WithTimeout(ctx, s.cfg.InfoTimeout)
	defer cancel()

	src, err := s.provider.Resolve(infoCtx, url)
	if err != nil {
		return nil, nil, err
	}

	info := src.Info()
	return &info, AvailableQualities(src.Catalog()), nil
}

// DirectResult describes an artifact produced by the synchronous download
// path. The caller streams the file and then discards it.
type DirectResult struct {
	Path     string
	Filename string
	Size     int64
}

// Direct downloads an artifact without creating a tracked session. The
// whole pipeline runs before returning so the caller can set response
// headers from the result.
func (s *DownloadService) Direct(ctx context.Context, url, quality, format string) (*DirectResult, error) {
	if err := s.provider.Validate(url); err != nil {
		return nil, err
	}

	infoCtx, cancel := context.WithTimeout(ctx, s.cfg.InfoTimeout)
	src, err := s.provider.Resolve(infoCtx, url)
	cancel()
	if err != nil {
		return nil, err
	}

	wantsAudio := format == "mp3"
	plan, err := SelectPlan(src.Catalog(), quality, wantsAudio)
	if err != nil {
		return nil, err
	}

	filename := BuildFilename(src.Info().Title, plan, format)
	finalPath := s.files.FinalPath(filename)

	// Temp files are namespaced by a throwaway id so concurrent direct
	// downloads cannot collide.
	id := domain.SessionID(uuid.NewString())
	var created []string
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.files.RemoveAll(cleanupCtx, created)
	}()

	if plan.NeedsMux() {
		videoPath := s.files.TempVideoPath(id)
		audioPath := s.files.TempAudioPath(id)
		created = append(created, videoPath, audioPath)

		vBody, _, err := src.Open(ctx, plan.Video.Itag)
		if err != nil {
			return nil, err
		}
		if _, err := s.fetch.Fetch(ctx, vBody, videoPath, fetcher.Control{}); err != nil {
			return nil, err
		}

		aBody, _, err := src.Open(ctx, plan.Audio.Itag)
		if err != nil {
			return nil, err
		}
		if _, err := s.fetch.Fetch(ctx, aBody, audioPath, fetcher.Control{}); err != nil {
			return nil, err
		}

		if err := s.mux.Merge(ctx, videoPath, audioPath, finalPath, nil); err != nil {
			s.Discard(ctx, finalPath)
			return nil, domain.NewSessionError(id, "merge streams",
				fmt.Errorf("%w: %v", domain.ErrMuxFailure, err))
		}
	} else {
		desc := plan.Combined
		if desc == nil {
			desc = plan.Audio
		}

		body, _, err := src.Open(ctx, desc.Itag)
		if err != nil {
			return nil, err
		}

		if format == "mp3" {
			tempPath := s.files.TempAudioPath(id)
			created = append(created, tempPath)
			if _, err := s.fetch.Fetch(ctx, body, tempPath, fetcher.Control{}); err != nil {
				return nil, err
			}
			if err := s.mux.ExtractAudio(ctx, tempPath, finalPath); err != nil {
				s.Discard(ctx, finalPath)
				return nil, err
			}
		} else {
			if _, err := s.fetch.Fetch(ctx, body, finalPath, fetcher.Control{}); err != nil {
				return nil, err
			}
		}
	}

	size, err := s.files.Size(finalPath)
	if err != nil {
		s.Discard(ctx, finalPath)
		return nil, err
	}

	return &DirectResult{
		Path:     finalPath,
		Filename: filename,
		Size:     size,
	}, nil
}
