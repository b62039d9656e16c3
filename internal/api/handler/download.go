package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/dlab/internal/domain"
	"github.com/iconidentify/dlab/internal/service"
)

// DownloadHandler handles video info and download HTTP requests.
type DownloadHandler struct {
	downloadSvc *service.DownloadService
	logger      *slog.Logger
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(downloadSvc *service.DownloadService, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloadSvc: downloadSvc,
		logger:      logger,
	}
}

// DownloadRequest is the JSON request body for info and download requests.
type DownloadRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality,omitempty"`
	Format  string `json:"format,omitempty"`
}

// VideoInfoResponse is the JSON response for video metadata queries.
type VideoInfoResponse struct {
	Title              string   `json:"title"`
	Duration           string   `json:"duration"`
	Thumbnail          string   `json:"thumbnail"`
	VideoID            string   `json:"videoId"`
	Author             string   `json:"author"`
	ViewCount          string   `json:"viewCount"`
	AvailableQualities []string `json:"availableQualities"`
	QualityNote        string   `json:"qualityNote"`
}

// StartResponse is returned when a progress-tracked download begins.
type StartResponse struct {
	SessionID string `json:"sessionId"`
}

// ProgressResponse is the session snapshot returned to pollers.
type ProgressResponse struct {
	SessionID  string `json:"sessionId"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	Downloaded int64  `json:"downloaded"`
	Total      int64  `json:"total"`
	Filename   string `json:"filename"`
	Paused     bool   `json:"paused"`
	Stopped    bool   `json:"stopped"`
	Error      string `json:"error,omitempty"`
}

// PauseResponse is returned after a pause toggle.
type PauseResponse struct {
	SessionID string `json:"sessionId"`
	Paused    bool   `json:"paused"`
}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	SessionID string `json:"sessionId"`
	Stopped   bool   `json:"stopped"`
}

// VideoInfo handles POST /api/video-info
func (h *DownloadHandler) VideoInfo(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	info, qualities, err := h.downloadSvc.VideoInfo(r.Context(), req.URL)
	if err != nil {
		h.handleError(w, err, "video info failed")
		return
	}

	h.writeJSON(w, http.StatusOK, VideoInfoResponse{
		Title:              info.Title,
		Duration:           service.FormatDuration(info.DurationSec),
		Thumbnail:          info.Thumbnail,
		VideoID:            info.ID,
		Author:             info.Author,
		ViewCount:          strconv.Itoa(info.Views),
		AvailableQualities: qualities,
		QualityNote:        qualityNote(qualities),
	})
}

// Start handles POST /api/download-with-progress
func (h *DownloadHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.downloadSvc.Begin(r.Context(), req.URL, req.Quality, req.Format)
	if err != nil {
		h.handleError(w, err, "failed to start download")
		return
	}

	h.writeJSON(w, http.StatusOK, StartResponse{SessionID: id.String()})
}

// Progress handles GET /api/download-progress/{sessionID}
func (h *DownloadHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "sessionID"))

	sess, err := h.downloadSvc.Progress(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "progress lookup failed")
		return
	}

	h.writeJSON(w, http.StatusOK, ProgressResponse{
		SessionID:  sess.ID.String(),
		Status:     string(sess.Status),
		Progress:   sess.Progress,
		Downloaded: sess.Downloaded,
		Total:      sess.Total,
		Filename:   sess.Filename,
		Paused:     sess.Paused,
		Stopped:    sess.Stopped,
		Error:      sess.Error,
	})
}

// Pause handles POST /api/download-pause/{sessionID}
func (h *DownloadHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "sessionID"))

	paused, err := h.downloadSvc.TogglePause(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "pause toggle failed")
		return
	}

	h.writeJSON(w, http.StatusOK, PauseResponse{SessionID: id.String(), Paused: paused})
}

// Stop handles POST /api/download-stop/{sessionID}
func (h *DownloadHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "sessionID"))

	if err := h.downloadSvc.Stop(r.Context(), id); err != nil {
		h.handleError(w, err, "stop failed")
		return
	}

	h.writeJSON(w, http.StatusOK, StopResponse{SessionID: id.String(), Stopped: true})
}

// File handles GET /api/download-file/{sessionID}. The artifact is served
// once; the session and its files are removed after a successful transfer.
func (h *DownloadHandler) File(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "sessionID"))

	sess, err := h.downloadSvc.Artifact(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "file lookup failed")
		return
	}

	f, err := h.downloadSvc.OpenFile(sess.FilePath)
	if err != nil {
		h.logger.Error("failed to open artifact", "session_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to open file")
		return
	}
	defer f.Close()

	setDownloadHeaders(w, sess.Filename)
	if size, err := h.downloadSvc.FileSize(sess.FilePath); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}

	if _, err := io.Copy(w, f); err != nil {
		// Response already committed; the session stays for another attempt.
		h.logger.Warn("artifact stream interrupted", "session_id", id, "error", err)
		return
	}

	h.downloadSvc.Finish(r.Context(), id)
}

// Direct handles POST /api/download. The whole pipeline runs synchronously
// and the artifact is streamed back in the same response.
func (h *DownloadHandler) Direct(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.downloadSvc.Direct(r.Context(), req.URL, req.Quality, req.Format)
	if err != nil {
		h.handleError(w, err, "direct download failed")
		return
	}
	defer h.downloadSvc.Discard(r.Context(), result.Path)

	f, err := h.downloadSvc.OpenFile(result.Path)
	if err != nil {
		h.logger.Error("failed to open artifact", "path", result.Path, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to open file")
		return
	}
	defer f.Close()

	setDownloadHeaders(w, result.Filename)
	w.Header().Set("Content-Length", strconv.FormatInt(result.Size, 10))

	if _, err := io.Copy(w, f); err != nil {
		// Headers are already out; nothing left to report to the client.
		h.logger.Warn("direct stream interrupted", "error", err)
	}
}

func (h *DownloadHandler) handleError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		h.writeError(w, http.StatusBadRequest, "valid video URL is required")
	case errors.Is(err, domain.ErrNoStreamsAvailable):
		h.writeError(w, http.StatusBadRequest, "no streams available for this video")
	case errors.Is(err, domain.ErrNoAudioAvailable):
		h.writeError(w, http.StatusBadRequest, "no audio stream available for this video")
	case errors.Is(err, domain.ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, domain.ErrFileNotReady):
		h.writeError(w, http.StatusNotFound, "file not ready or not found")
	case errors.Is(err, domain.ErrUpstreamTimeout):
		h.writeError(w, http.StatusGatewayTimeout, "upstream request timed out")
	case errors.Is(err, domain.ErrSourceUnavailable):
		h.writeError(w, http.StatusBadGateway, "video source unavailable")
	default:
		h.logger.Error(msg, "error", err)
		h.writeError(w, http.StatusInternalServerError, msg)
	}
}

// qualityNote summarizes what the available qualities imply for the user.
func qualityNote(qualities []string) string {
	switch {
	case len(qualities) > 1:
		return "Higher qualities (720p, 1080p) will be merged with audio for best quality!"
	case contains(qualities, "360p"):
		return "Only 360p with audio is available for this video"
	default:
		return "Limited quality options available"
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// setDownloadHeaders sets attachment headers, escaping the filename for
// both plain and RFC 5987 forms.
func setDownloadHeaders(w http.ResponseWriter, filename string) {
	encoded := url.PathEscape(filename)
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+filename+`"; filename*=UTF-8''`+encoded)

	contentType := "video/mp4"
	if strings.HasSuffix(filename, ".mp3") {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
}

func (h *DownloadHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *DownloadHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
