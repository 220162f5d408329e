// VeoBridge exposes an OpenAI-compatible API that dispatches image and video
// generation tasks to browser-resident workers over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	vbhttp "github.com/hanwei-dev/VeoBridge/internal/adapter/http"
	vbotel "github.com/hanwei-dev/VeoBridge/internal/adapter/otel"
	"github.com/hanwei-dev/VeoBridge/internal/adapter/ristretto"
	"github.com/hanwei-dev/VeoBridge/internal/adapter/ws"
	"github.com/hanwei-dev/VeoBridge/internal/config"
	"github.com/hanwei-dev/VeoBridge/internal/imaging"
	"github.com/hanwei-dev/VeoBridge/internal/logger"
	"github.com/hanwei-dev/VeoBridge/internal/service"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"output_dir", cfg.Output.Dir,
		"cooldown", cfg.Dispatch.Cooldown,
		"task_timeout", cfg.Dispatch.TaskTimeout,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	otelShutdown, err := vbotel.InitMeter(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()
	metrics, err := vbotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	if err := os.MkdirAll(cfg.Output.Dir, 0o750); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}

	previews, err := ristretto.New(cfg.Cache.PreviewMB << 20)
	if err != nil {
		return fmt.Errorf("preview cache: %w", err)
	}
	defer previews.Close()

	// --- Services ---
	images := imaging.NewProcessor()
	store := service.NewStore()
	pool := service.NewPool(cfg.Dispatch.Cooldown)
	artifacts := service.NewArtifacts(store, pool, cfg.Output.Dir, images, previews, metrics)
	dispatcher := service.NewDispatcher(ctx, store, pool, artifacts, images, cfg.Dispatch, metrics)

	// --- HTTP ---
	workerSocket := ws.NewHandler(pool, store, artifacts, dispatcher, metrics)
	handlers := vbhttp.NewHandlers(store, pool, dispatcher, artifacts, metrics, cfg.Dispatch, version)
	router := vbhttp.NewRouter(handlers, workerSocket, *cfg)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: vbotel.HTTPMiddleware(cfg.Logging.Service)(router),
		// Blocking completions and SSE streams stay open for the full task
		// budget, so no write/idle deadlines here.
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		dispatcher.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
