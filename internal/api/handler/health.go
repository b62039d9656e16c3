package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/dlab/internal/domain"
	"github.com/iconidentify/dlab/internal/session"
	"github.com/iconidentify/dlab/pkg/ffmpeg"
)

var startTime = time.Now()

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store         session.Store
	storagePath   string
	ffmpegOK      bool
	ffmpegVersion string
}

// NewHealthHandler creates a new health handler. The ffmpeg version is
// resolved once at startup.
func NewHealthHandler(store session.Store, storagePath string, ffmpegOK bool) *HealthHandler {
	version := "unavailable"
	if v, err := ffmpeg.GetVersion(); err == nil {
		version = v
	}
	return &HealthHandler{
		store:         store,
		storagePath:   storagePath,
		ffmpegOK:      ffmpegOK,
		ffmpegVersion: version,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Sessions  *SessionStats `json:"sessions,omitempty"`
}

// SessionStats summarizes the session tracker by status.
type SessionStats struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Stopped   int `json:"stopped"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.List(r.Context())
	if err != nil || !h.ffmpegOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	stats := &SessionStats{}
	for _, s := range sessions {
		switch s.Status {
		case domain.StatusCompleted:
			stats.Completed++
		case domain.StatusError:
			stats.Failed++
		case domain.StatusStopped:
			stats.Stopped++
		default:
			stats.Active++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Sessions:  stats,
	})
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime         int64   `json:"uptime_seconds"`
	UptimeHuman    string  `json:"uptime_human"`
	MemAllocMB     int64   `json:"mem_alloc_mb"`
	MemSysMB       int64   `json:"mem_sys_mb"`
	MemHeapMB      int64   `json:"mem_heap_mb"`
	NumGoroutines  int     `json:"num_goroutines"`
	NumCPU         int     `json:"num_cpu"`
	DiskUsedBytes  int64   `json:"disk_used_bytes"`
	DiskFreeBytes  int64   `json:"disk_free_bytes"`
	DiskTotalBytes int64   `json:"disk_total_bytes"`
	DiskUsedPct    float64 `json:"disk_used_pct"`
	StoragePath    string  `json:"storage_path"`
	FFmpegVersion  string  `json:"ffmpeg_version"`
}

// Stats handles GET /api/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		StoragePath:   h.storagePath,
		FFmpegVersion: h.ffmpegVersion,
	}

	total, free, used, usedPct := getDiskStats(h.storagePath)
	stats.DiskTotalBytes = total
	stats.DiskFreeBytes = free
	stats.DiskUsedBytes = used
	stats.DiskUsedPct = usedPct

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
