// Package ui provides the embedded web UI for the download server.
package ui

import (
	_ "embed"
)

// IndexHTML is the downloader page. It talks to the JSON API under /api
// and polls download sessions for progress.
//
//go:embed index.html
var IndexHTML []byte
