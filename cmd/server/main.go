package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/partsflow/storefront/backend/internal/config"
	"github.com/partsflow/storefront/backend/internal/errorreporting"
	"github.com/partsflow/storefront/backend/internal/logger"
	"github.com/partsflow/storefront/backend/internal/server"
	"github.com/partsflow/storefront/backend/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file found, falling back to system env")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	log := logger.Get()

	if err := errorreporting.Init(); err != nil {
		log.Warn("sentry init failed", "error", err)
	}

	shutdownTracing, err := tracing.Init("storefront-cache")
	if err != nil {
		log.Warn("tracing init failed", "error", err)
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Error("server init failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.Start(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", "error", err)
	}
	srv.Shutdown(shutdownCtx)
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}
}
