package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/app"
	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/datastore"
	"github.com/jwalitptl/clinic-api/internal/outbound"
	"github.com/jwalitptl/clinic-api/internal/worker"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
	"github.com/jwalitptl/clinic-api/pkg/messaging/redis"
	outboxworker "github.com/jwalitptl/clinic-api/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	l := logger.Setup(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize datastore
	store, err := datastore.Open(ctx, cfg.Database, l)
	if err != nil {
		l.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to open datastore")
	}
	defer store.Close()

	// Initialize Redis message broker for cross-instance live pushes
	var broker messaging.Broker
	if cfg.Redis.Enabled {
		broker, err = redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, l)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(app.Deps{
		Config:   cfg,
		Store:    store,
		Broker:   broker,
		Messages: outbound.NewOutboxSender(store.Outbox),
		Registry: reg,
		Logger:   l,
	})
	if err != nil {
		l.Fatal().Err(err).Msg("failed to assemble application")
	}

	go func() {
		if err := a.Relay.Run(ctx); err != nil {
			l.Error().Err(err).Msg("live push relay stopped")
		}
	}()

	if cfg.Outbox.Inline {
		processor, err := outboxworker.NewOutboxProcessor(store.Outbox, app.Deliveries(cfg, l), outboxworker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			MaxAttempts:   cfg.Outbox.MaxAttempts,
			RetryInterval: cfg.Outbox.RetryInterval,
			MaxRetryDelay: cfg.Outbox.MaxRetryDelay,
		}, l, a.Metrics)
		if err != nil {
			l.Fatal().Err(err).Msg("invalid outbox configuration")
		}
		go processor.Start(ctx)
		go worker.NewOutboxCleanupWorker(store.Outbox, cfg.Outbox.Retention, time.Hour, l).Start(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.Router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		l.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	l.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	l.Info().Msg("server exited properly")
}
