package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortezalberto/coderunner1/internal/api"
	"github.com/cortezalberto/coderunner1/internal/app"
	"github.com/cortezalberto/coderunner1/internal/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := app.NewLogger(os.Stdout, cfg.Log.Level)
	slog.SetDefault(logger)

	slog.Info("starting playground",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"api_base_url", cfg.Client.BaseURL,
		"storage", cfg.Storage.Driver,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to initialize playground", "error", err)
		os.Exit(1)
	}
	a.Session.Init()

	// Setup HTTP server
	server := api.NewServer(cfg.Server, a.Session, a.Store)
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Stops polling, closes event streams and the draft store
	a.Close()

	slog.Info("playground stopped")
}
