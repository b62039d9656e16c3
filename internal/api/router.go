// Package api wires HTTP routes to handlers.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/dlab/internal/api/handler"
	mw "github.com/iconidentify/dlab/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	downloadHandler *handler.DownloadHandler,
	healthHandler *handler.HealthHandler,
	uiHandler *handler.UIHandler,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	// Long enough for a full direct download to stream back.
	r.Use(middleware.Timeout(30 * time.Minute))
	r.Use(mw.CORS)

	// Health endpoints
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	// Web UI
	r.Get("/", uiHandler.Index)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Live)
		r.Get("/stats", healthHandler.Stats)

		r.Post("/video-info", downloadHandler.VideoInfo)

		r.Post("/download", downloadHandler.Direct)
		r.Post("/download-with-progress", downloadHandler.Start)
		r.Get("/download-progress/{sessionID}", downloadHandler.Progress)
		r.Post("/download-pause/{sessionID}", downloadHandler.Pause)
		r.Post("/download-stop/{sessionID}", downloadHandler.Stop)
		r.Get("/download-file/{sessionID}", downloadHandler.File)
	})

	return r
}
