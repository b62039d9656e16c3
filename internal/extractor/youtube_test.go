package extractor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/iconidentify/dlab/internal/domain"
)

func testProvider() *YouTubeProvider {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewYouTubeProvider(&http.Client{}, logger)
}

func TestValidate(t *testing.T) {
	p := testProvider()

	valid := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"dQw4w9WgXcQ",
	}
	for _, u := range valid {
		if err := p.Validate(u); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", u, err)
		}
	}

	invalid := []string{
		"",
		"   ",
		"https://example.com/watch?v=x",
		"short",
	}
	for _, u := range invalid {
		if err := p.Validate(u); !errors.Is(err, domain.ErrInvalidURL) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidURL", u, err)
		}
	}
}

func TestCatalogClassifiesFormats(t *testing.T) {
	src := &youtubeSource{
		video: &youtube.Video{
			Formats: []youtube.Format{
				{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Height: 360, AudioChannels: 2, QualityLabel: "360p"},
				{ItagNo: 136, MimeType: `video/mp4; codecs="avc1.4d401f"`, Height: 720, QualityLabel: "720p"},
				{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 128000},
			},
		},
	}

	cat := src.Catalog()
	if len(cat.Combined) != 1 || cat.Combined[0].Itag != 18 {
		t.Errorf("Combined = %+v", cat.Combined)
	}
	if len(cat.VideoOnly) != 1 || cat.VideoOnly[0].Itag != 136 {
		t.Errorf("VideoOnly = %+v", cat.VideoOnly)
	}
	if len(cat.AudioOnly) != 1 || cat.AudioOnly[0].Itag != 140 {
		t.Errorf("AudioOnly = %+v", cat.AudioOnly)
	}
}

func TestInfoUsesLastThumbnail(t *testing.T) {
	src := &youtubeSource{
		video: &youtube.Video{
			ID:       "abc123def45",
			Title:    "A Title",
			Author:   "A Channel",
			Duration: 213 * time.Second,
			Views:    42,
			Thumbnails: []youtube.Thumbnail{
				{URL: "https://i.ytimg.com/vi/x/default.jpg"},
				{URL: "https://i.ytimg.com/vi/x/hq720.jpg"},
			},
		},
	}

	info := src.Info()
	if info.DurationSec != 213 {
		t.Errorf("DurationSec = %d, want 213", info.DurationSec)
	}
	if info.Thumbnail != "https://i.ytimg.com/vi/x/hq720.jpg" {
		t.Errorf("Thumbnail = %q", info.Thumbnail)
	}
}

func TestOpenUnknownItag(t *testing.T) {
	src := &youtubeSource{video: &youtube.Video{}}

	_, _, err := src.Open(context.Background(), 999)
	if !errors.Is(err, domain.ErrNoStreamsAvailable) {
		t.Errorf("Open() error = %v, want ErrNoStreamsAvailable", err)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"timeout", context.DeadlineExceeded, domain.ErrUpstreamTimeout},
		{"private", youtube.ErrVideoPrivate, domain.ErrSourceUnavailable},
		{"login", youtube.ErrLoginRequired, domain.ErrSourceUnavailable},
		{"bad id chars", youtube.ErrInvalidCharactersInVideoID, domain.ErrInvalidURL},
		{"short id", youtube.ErrVideoIDMinLength, domain.ErrInvalidURL},
		{"unknown", errors.New("some network thing"), domain.ErrSourceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.in); !errors.Is(got, tt.want) {
				t.Errorf("mapError(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
