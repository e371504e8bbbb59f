package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/app"
	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/datastore"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/worker"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	outboxworker "github.com/jwalitptl/clinic-api/pkg/worker"
)

// serveOps exposes health and metrics for the worker process.
func serveOps(addr string, store *repository.Store, reg *prometheus.Registry, l zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("Health check server failed")
		}
	}()
	return srv
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	opsPort := flag.Int("ops-port", 8081, "port for health and metrics")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	l := logger.Setup(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty}).
		With().Str("process", "outbox-worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := datastore.Open(ctx, cfg.Database, l)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to open datastore")
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(cfg.Metrics.Namespace, reg)

	processor, err := outboxworker.NewOutboxProcessor(store.Outbox, app.Deliveries(cfg, l), outboxworker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
		RetryInterval: cfg.Outbox.RetryInterval,
		MaxRetryDelay: cfg.Outbox.MaxRetryDelay,
	}, l, m)
	if err != nil {
		l.Fatal().Err(err).Msg("Invalid outbox configuration")
	}

	ops := serveOps(fmt.Sprintf(":%d", *opsPort), store, reg, l)

	go worker.NewOutboxCleanupWorker(store.Outbox, cfg.Outbox.Retention, time.Hour, l).Start(ctx)

	// Start blocks until the signal context is cancelled.
	processor.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Ops server forced to shutdown")
	}
	l.Info().Msg("Worker stopped")
}
