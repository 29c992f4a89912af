package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media_gateway/internal/config"
	"media_gateway/internal/httpapi"
	"media_gateway/internal/logging"
	"media_gateway/internal/utils"
)

func main() {
	logger := utils.NewLogger("main")
	defer logging.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logging.SetLogLevel(cfg.LogLevel)

	if len(cfg.JWTSecret) == 0 {
		logger.Warn("JWT_SECRET is empty, every authenticated route will reject requests")
	}
	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET is empty, the cleanup endpoint is unauthenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wire every dependency
	srv, err := httpapi.NewServer(ctx, cfg)
	if err != nil {
		logger.Error("Failed to build server", "error", err)
		os.Exit(1)
	}
	srv.Start(ctx)

	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // query may migrate media inline
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Media gateway listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to release resources", "error", err)
	}

	logger.Info("Server exited")
}
