package domain

import "errors"

// Domain errors.
var (
	// ErrInvalidURL is returned when a URL is not a recognizable video URL.
	ErrInvalidURL = errors.New("invalid video URL")

	// ErrSessionNotFound is returned when a session cannot be found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSourceUnavailable is returned when the upstream source refuses to
	// serve the video.
	ErrSourceUnavailable = errors.New("video source unavailable")

	// ErrUpstreamTimeout is returned when the upstream source times out.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrNoStreamsAvailable is returned when no usable stream variant exists.
	ErrNoStreamsAvailable = errors.New("no streams available")

	// ErrNoAudioAvailable is returned when an audio-only variant is required
	// but none exists.
	ErrNoAudioAvailable = errors.New("no audio stream available")

	// ErrDownloadStopped is returned when a download is aborted by a stop
	// request.
	ErrDownloadStopped = errors.New("download stopped")

	// ErrMuxFailure is returned when merging video and audio streams fails.
	ErrMuxFailure = errors.New("failed to merge streams")

	// ErrFileNotReady is returned when a session's file is requested before
	// the download has completed.
	ErrFileNotReady = errors.New("file not ready")
)

// SessionError wraps an error with session context.
type SessionError struct {
	SessionID SessionID
	Op        string
	Err       error
}

func (e *SessionError) Error() string {
	if e.SessionID != "" {
		return e.Op + " [" + e.SessionID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError creates a new SessionError.
func NewSessionError(id SessionID, op string, err error) *SessionError {
	return &SessionError{
		SessionID: id,
		Op:        op,
		Err:       err,
	}
}
