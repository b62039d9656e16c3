// Package extractor resolves video URLs into stream catalogs and opens
// individual streams for download.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/iconidentify/dlab/internal/domain"
)

// Source is a resolved video: its metadata, the streams it offers, and a
// way to open any of them.
type Source interface {
	Info() domain.VideoInfo
	Catalog() domain.Catalog
	Open(ctx context.Context, itag int) (io.ReadCloser, int64, error)
}

// Provider validates video URLs and resolves them into Sources.
type Provider interface {
	Validate(rawURL string) error
	Resolve(ctx context.Context, rawURL string) (Source, error)
}

// YouTubeProvider resolves YouTube URLs using an upstream client.
type YouTubeProvider struct {
	client youtube.Client
	logger *slog.Logger
}

// NewYouTubeProvider creates a YouTubeProvider.
func NewYouTubeProvider(httpClient *http.Client, logger *slog.Logger) *YouTubeProvider {
	return &YouTubeProvider{
		client: youtube.Client{HTTPClient: httpClient},
		logger: logger.With("component", "extractor"),
	}
}

// Validate checks that rawURL contains an extractable video ID.
func (p *YouTubeProvider) Validate(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return domain.ErrInvalidURL
	}
	if _, err := youtube.ExtractVideoID(rawURL); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidURL, rawURL)
	}
	return nil
}

// Resolve fetches video metadata and the available stream formats.
func (p *YouTubeProvider) Resolve(ctx context.Context, rawURL string) (Source, error) {
	if err := p.Validate(rawURL); err != nil {
		return nil, err
	}

	video, err := p.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		p.logger.Warn("failed to resolve video", "url", rawURL, "error", err)
		return nil, mapError(err)
	}

	return &youtubeSource{
		client: &p.client,
		video:  video,
	}, nil
}

type youtubeSource struct {
	client *youtube.Client
	video  *youtube.Video
}

func (s *youtubeSource) Info() domain.VideoInfo {
	info := domain.VideoInfo{
		ID:          s.video.ID,
		Title:       s.video.Title,
		Author:      s.video.Author,
		DurationSec: int(s.video.Duration.Seconds()),
		Views:       s.video.Views,
	}
	if n := len(s.video.Thumbnails); n > 0 {
		info.Thumbnail = s.video.Thumbnails[n-1].URL
	}
	return info
}

func (s *youtubeSource) Catalog() domain.Catalog {
	var cat domain.Catalog
	for _, f := range s.video.Formats {
		desc := domain.StreamDescriptor{
			Itag:     f.ItagNo,
			Height:   f.Height,
			Bitrate:  f.Bitrate,
			MimeType: f.MimeType,
			Label:    f.QualityLabel,
		}
		switch {
		case strings.HasPrefix(f.MimeType, "audio/"):
			desc.Kind = domain.MediaAudioOnly
			cat.AudioOnly = append(cat.AudioOnly, desc)
		case f.AudioChannels > 0:
			desc.Kind = domain.MediaCombined
			cat.Combined = append(cat.Combined, desc)
		default:
			desc.Kind = domain.MediaVideoOnly
			cat.VideoOnly = append(cat.VideoOnly, desc)
		}
	}
	return cat
}

func (s *youtubeSource) Open(ctx context.Context, itag int) (io.ReadCloser, int64, error) {
	for i := range s.video.Formats {
		f := &s.video.Formats[i]
		if f.ItagNo != itag {
			continue
		}
		body, total, err := s.client.GetStreamContext(ctx, s.video, f)
		if err != nil {
			return nil, 0, mapError(err)
		}
		return body, total, nil
	}
	return nil, 0, fmt.Errorf("%w: itag %d", domain.ErrNoStreamsAvailable, itag)
}

// mapError translates upstream client errors into domain errors.
func mapError(err error) error {
	var playability *youtube.ErrPlayabiltyStatus
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrNotPlayableInEmbed),
		errors.As(err, &playability):
		return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	case errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength):
		return fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
}
