package ui

import (
	"strings"
	"testing"
)

// TestIndexHTMLEmbedded verifies that the index.html is embedded and contains
// the pieces the downloader page needs.
func TestIndexHTMLEmbedded(t *testing.T) {
	if len(IndexHTML) == 0 {
		t.Fatal("IndexHTML should not be empty")
	}

	html := string(IndexHTML)

	if !strings.HasPrefix(html, "<!DOCTYPE html>") {
		t.Error("IndexHTML should start with DOCTYPE declaration")
	}
	if !strings.Contains(html, "<title>") {
		t.Error("IndexHTML should have a title tag")
	}

	// The page drives the download API endpoints.
	for _, endpoint := range []string{
		"/api/video-info",
		"/api/download-with-progress",
		"/api/download-progress/",
		"/api/download-pause/",
		"/api/download-stop/",
		"/api/download-file/",
	} {
		if !strings.Contains(html, endpoint) {
			t.Errorf("IndexHTML should reference %s", endpoint)
		}
	}
}
