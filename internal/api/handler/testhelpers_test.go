package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/iconidentify/dlab/internal/config"
	"github.com/iconidentify/dlab/internal/domain"
	"github.com/iconidentify/dlab/internal/extractor"
	"github.com/iconidentify/dlab/internal/fetcher"
	"github.com/iconidentify/dlab/internal/service"
	"github.com/iconidentify/dlab/internal/session"
	"github.com/iconidentify/dlab/internal/storage"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves in-memory stream payloads per itag.
type fakeSource struct {
	info    domain.VideoInfo
	catalog domain.Catalog
	streams map[int][]byte
}

func (s *fakeSource) Info() domain.VideoInfo  { return s.info }
func (s *fakeSource) Catalog() domain.Catalog { return s.catalog }

func (s *fakeSource) Open(_ context.Context, itag int) (io.ReadCloser, int64, error) {
	data, ok := s.streams[itag]
	if !ok {
		return nil, 0, domain.ErrNoStreamsAvailable
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// fakeProvider is a test implementation of extractor.Provider.
type fakeProvider struct {
	source     extractor.Source
	resolveErr error
}

func (p *fakeProvider) Validate(rawURL string) error {
	if rawURL == "" || rawURL == "not-a-url" {
		return domain.ErrInvalidURL
	}
	return nil
}

func (p *fakeProvider) Resolve(_ context.Context, rawURL string) (extractor.Source, error) {
	if p.resolveErr != nil {
		return nil, p.resolveErr
	}
	return p.source, nil
}

// fakeMuxer concatenates inputs on the test filesystem.
type fakeMuxer struct {
	fs afero.Fs
}

func (m *fakeMuxer) Merge(_ context.Context, videoPath, audioPath, outputPath string, progress func(float64)) error {
	video, err := afero.ReadFile(m.fs, videoPath)
	if err != nil {
		return fmt.Errorf("read video: %w", err)
	}
	audio, err := afero.ReadFile(m.fs, audioPath)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	out := append([]byte("MERGED:"), append(video, audio...)...)
	if err := afero.WriteFile(m.fs, outputPath, out, 0o644); err != nil {
		return err
	}
	if progress != nil {
		progress(1)
	}
	return nil
}

func (m *fakeMuxer) ExtractAudio(_ context.Context, inputPath, outputPath string) error {
	data, err := afero.ReadFile(m.fs, inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return afero.WriteFile(m.fs, outputPath, append([]byte("MP3:"), data...), 0o644)
}

// handlerEnv wires a DownloadHandler to a real service backed by fakes.
type handlerEnv struct {
	handler *DownloadHandler
	store   session.Store
	fs      afero.Fs
}

func newHandlerEnv(t *testing.T, provider extractor.Provider) *handlerEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	files, err := storage.NewManagerWithFs(fs, config.StorageConfig{
		BasePath: "downloads",
		TempPath: "downloads/temp",
	}, storage.DefaultRetryConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewManagerWithFs() error = %v", err)
	}

	store := session.NewMemoryStore()
	svc := service.NewDownloadService(
		provider,
		store,
		files,
		fetcher.New(files, testLogger()),
		&fakeMuxer{fs: fs},
		config.DownloadConfig{
			Timeout:     30 * time.Second,
			InfoTimeout: 5 * time.Second,
			MaxRetries:  3,
		},
		testLogger(),
	)

	return &handlerEnv{
		handler: NewDownloadHandler(svc, testLogger()),
		store:   store,
		fs:      fs,
	}
}

// combinedCatalog returns a catalog with a single 360p combined stream.
func combinedCatalog(itag, height int) domain.Catalog {
	return domain.Catalog{
		Combined: []domain.StreamDescriptor{{
			Itag:   itag,
			Kind:   domain.MediaCombined,
			Height: height,
			Label:  fmt.Sprintf("%dp", height),
		}},
	}
}

// waitForStatus polls until the session reaches the wanted status.
func waitForStatus(t *testing.T, store session.Store, id domain.SessionID, want domain.SessionStatus) *domain.Session {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if sess.Status == want {
			return sess
		}
		if sess.Status.Terminal() && sess.Status != want {
			t.Fatalf("session terminal with status %q while waiting for %q (error: %s)",
				sess.Status, want, sess.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached status %q", want)
	return nil
}
