package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/config"
	"github.com/dgnsrekt/outingsync/internal/fakeapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	// FAKEAPI_* settings may come from a local .env file
	_ = godotenv.Load()

	// Setup logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	// Load config
	cfg, err := config.LoadFakeAPIConfig()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.Int("users", len(cfg.Users)),
		zap.Int64("activityID", cfg.ActivityID),
		zap.Float64("failRate", cfg.FailRate),
		zap.Duration("latency", cfg.Latency),
		zap.Bool("gzip", cfg.Gzip),
	)

	srv := fakeapi.NewServer(fakeapi.NewStore(nil), cfg, logger)
	seeded := srv.Seed()
	logger.Info("activity seeded", zap.Int64("id", seeded.ID), zap.String("title", seeded.Title))

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      fakeapi.NewRouter(srv, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}
