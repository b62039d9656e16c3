package domain

import (
	"time"
)

// SessionID is a unique identifier for a download session.
type SessionID string

// String returns the string representation of the SessionID.
func (id SessionID) String() string {
	return string(id)
}

// SessionStatus represents the current phase of a download session.
type SessionStatus string

const (
	StatusStarting     SessionStatus = "starting"
	StatusFetchingInfo SessionStatus = "fetching_info"
	StatusDownloading  SessionStatus = "downloading"
	StatusMerging      SessionStatus = "merging"
	StatusPaused       SessionStatus = "paused"
	StatusCompleted    SessionStatus = "completed"
	StatusError        SessionStatus = "error"
	StatusStopped      SessionStatus = "stopped"
)

// Terminal reports whether the status is a final state for the session.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusStopped
}

// Session is the server-side record of one download request. It is owned by
// the download service; API handlers only ever see snapshots.
type Session struct {
	ID       SessionID
	Status   SessionStatus
	Progress int

	// Downloaded/Total track the active stream phase. Single-stream
	// downloads show that stream's bytes; dual-stream downloads switch to
	// combined bytes once both stream totals are known.
	Downloaded int64
	Total      int64

	Filename string
	FilePath string

	// TrackedPaths holds every file path created for this session, so
	// cleanup can remove all of them on stop or failure.
	TrackedPaths []string

	Paused  bool
	Stopped bool
	Error   string

	StartTime time.Time
	// EndTime is set when the session reaches a terminal status.
	EndTime time.Time
}

// Clone returns a deep copy of the session, safe to hand to pollers.
func (s *Session) Clone() *Session {
	c := *s
	c.TrackedPaths = append([]string(nil), s.TrackedPaths...)
	return &c
}

// Track records a path created on behalf of this session. Duplicate paths
// are ignored.
func (s *Session) Track(path string) {
	for _, p := range s.TrackedPaths {
		if p == path {
			return
		}
	}
	s.TrackedPaths = append(s.TrackedPaths, path)
}
