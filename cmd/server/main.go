package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iconidentify/dlab/internal/api"
	"github.com/iconidentify/dlab/internal/api/handler"
	"github.com/iconidentify/dlab/internal/config"
	"github.com/iconidentify/dlab/internal/extractor"
	"github.com/iconidentify/dlab/internal/fetcher"
	"github.com/iconidentify/dlab/internal/service"
	"github.com/iconidentify/dlab/internal/session"
	"github.com/iconidentify/dlab/internal/storage"
	"github.com/iconidentify/dlab/pkg/ffmpeg"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dlab %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Local .env overrides are optional
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting dlab",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	files, err := storage.NewManager(cfg.Storage, storage.RetryFromConfig(cfg.Download), logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize ffmpeg
	processor, err := ffmpeg.NewProcessor(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, cfg.FFmpeg.MuxTimeout)
	if err != nil {
		logger.Error("ffmpeg is required for merged downloads", "error", err)
		os.Exit(1)
	}

	// Initialize dependencies
	store := session.NewMemoryStore()
	provider := extractor.NewYouTubeProvider(&http.Client{}, logger)
	fetch := fetcher.New(files, logger)

	downloadSvc := service.NewDownloadService(
		provider,
		store,
		files,
		fetch,
		processor,
		cfg.Download,
		logger,
	)

	// Initialize handlers
	downloadHandler := handler.NewDownloadHandler(downloadSvc, logger)
	healthHandler := handler.NewHealthHandler(store, cfg.Storage.BasePath, ffmpeg.IsAvailable())
	uiHandler := handler.NewUIHandler()

	// Setup router
	router := api.NewRouter(downloadHandler, healthHandler, uiHandler)

	// Start the session sweeper
	sweeper := session.NewSweeper(
		session.SweeperConfig{
			TTL:      cfg.Session.TTL,
			Interval: cfg.Session.SweepInterval,
		},
		store,
		files,
		logger,
	)
	sweeper.Start()

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := sweeper.Stop(10 * time.Second); err != nil {
		logger.Error("sweeper shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
