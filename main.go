package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/config"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/handlers"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/middleware"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Float64("min_relevance_score", cfg.DrawingSet.MinRelevanceScore),
		zap.Int("max_pages", cfg.DrawingSet.MaxPages),
		zap.String("vision_provider", cfg.Vision.Provider),
		zap.Int("vision_max_concurrent", cfg.Vision.MaxConcurrent),
		zap.Int("export_dpi", cfg.Export.DPI))

	parser, err := services.NewDrawingSetParserFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create drawing set parser", zap.Error(err))
	}

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, parser.VisionEnabled, logger).RegisterRoutes(mux)
	handlers.NewDrawingSetsHandler(parser, handlers.DrawingSetsConfig{
		MaxUploadBytes: cfg.Export.MaxUploadMB << 20,
		MaxPages:       cfg.DrawingSet.MaxPages,
	}, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-roofscan",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""),
			zap.Bool("vision_enabled", parser.VisionEnabled()))
		if cfg.TLSCertPath != "" {
			serveErr <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
	}
}

func newLogger(env string) (*zap.Logger, error) {
	switch env {
	case "local", "dev", "test":
		return zap.NewDevelopment()
	default:
		return zap.NewProduction()
	}
}
