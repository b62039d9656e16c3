package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/iconidentify/dlab/internal/config"
	"github.com/iconidentify/dlab/internal/domain"
	"github.com/iconidentify/dlab/internal/extractor"
	"github.com/iconidentify/dlab/internal/fetcher"
	"github.com/iconidentify/dlab/internal/session"
	"github.com/iconidentify/dlab/internal/storage"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource is a test implementation of extractor.Source serving in-memory
// payloads per itag.
type fakeSource struct {
	info    domain.VideoInfo
	catalog domain.Catalog
	streams map[int][]byte
	// readers overrides streams for an itag, for slow or endless bodies.
	readers map[int]io.ReadCloser
	sizes   map[int]int64
}

func (s *fakeSource) Info() domain.VideoInfo  { return s.info }
func (s *fakeSource) Catalog() domain.Catalog { return s.catalog }

func (s *fakeSource) Open(_ context.Context, itag int) (io.ReadCloser, int64, error) {
	if rc, ok := s.readers[itag]; ok {
		return rc, s.sizes[itag], nil
	}
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

// fakeMuxer is a test Muxer that concatenates inputs on the test
// filesystem.
type fakeMuxer struct {
	fs       afero.Fs
	mergeErr error
	mu       sync.Mutex
	merges   int
}

func (m *fakeMuxer) Merge(_ context.Context, videoPath, audioPath, outputPath string, progress func(float64)) error {
	if m.mergeErr != nil {
		return m.mergeErr
	}
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
		progress(0.5)
		progress(1)
	}
	m.mu.Lock()
	m.merges++
	m.mu.Unlock()
	return nil
}

func (m *fakeMuxer) ExtractAudio(_ context.Context, inputPath, outputPath string) error {
	data, err := afero.ReadFile(m.fs, inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return afero.WriteFile(m.fs, outputPath, append([]byte("MP3:"), data...), 0o644)
}

func (m *fakeMuxer) mergeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.merges
}

// slowReader yields chunk bytes per read with a small delay, up to
// remaining bytes in total.
type slowReader struct {
	remaining int
	chunk     int
	delay     time.Duration
}

func (r *slowReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	time.Sleep(r.delay)
	n := r.chunk
	if n > r.remaining {
		n = r.remaining
	}
	if n > len(p) {
		n = len(p)
	}
	for i := 0; i < n; i++ {
		p[i] = 'x'
	}
	r.remaining -= n
	return n, nil
}

func (r *slowReader) Close() error { return nil }

// endlessReader produces data forever, for stop tests.
type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	for i := range p {
		p[i] = 'x'
	}
	return len(p), nil
}

func (endlessReader) Close() error { return nil }

// testEnv bundles a service with its injected collaborators.
type testEnv struct {
	svc   *DownloadService
	store session.Store
	fs    afero.Fs
	mux   *fakeMuxer
}

func newTestEnv(t *testing.T, provider extractor.Provider) *testEnv {
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
	mux := &fakeMuxer{fs: fs}
	svc := NewDownloadService(
		provider,
		store,
		files,
		fetcher.New(files, testLogger()),
		mux,
		config.DownloadConfig{
			Timeout:     30 * time.Second,
			InfoTimeout: 5 * time.Second,
			MaxRetries:  3,
		},
		testLogger(),
	)

	return &testEnv{svc: svc, store: store, fs: fs, mux: mux}
}

// waitForTerminal polls until the session reaches a terminal status.
func waitForTerminal(t *testing.T, store session.Store, id domain.SessionID) *domain.Session {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if sess.Status.Terminal() {
			return sess
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session did not reach a terminal status")
	return nil
}

// waitFor polls until cond returns true.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// listFiles returns every regular file on the filesystem.
func listFiles(t *testing.T, fs afero.Fs) []string {
	t.Helper()

	var files []string
	err := afero.Walk(fs, "downloads", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	return files
}
