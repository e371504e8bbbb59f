package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/outbound"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxAttempts counts the first delivery; the event is marked failed after the last one.
	MaxAttempts   int
	RetryInterval time.Duration
	MaxRetryDelay time.Duration
}

type OutboxProcessor struct {
	repo    repository.OutboxRepository
	sender  outbound.Sender
	config  OutboxProcessorConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	sender outbound.Sender,
	config OutboxProcessorConfig,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("PollInterval must be greater than 0")
	}
	if config.MaxAttempts <= 0 {
		return nil, fmt.Errorf("MaxAttempts must be greater than 0")
	}
	if config.RetryInterval <= 0 {
		return nil, fmt.Errorf("RetryInterval must be greater than 0")
	}
	if config.MaxRetryDelay < config.RetryInterval {
		config.MaxRetryDelay = config.RetryInterval
	}

	return &OutboxProcessor{
		repo:    repo,
		sender:  sender,
		config:  config,
		logger:  logger.With().Str("component", "outbox-processor").Logger(),
		metrics: metrics,
		now:     time.Now,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info().Msg("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error().Err(err).Msg("Failed to process events")
			}
		}
	}
}

// ProcessOnce claims one batch and attempts each event. It returns how many were delivered.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}

	delivered := 0
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Warn().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Int("attempt", event.RetryCount+1).
				Msg("Failed to deliver event")
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	var msg outbound.Message
	err := json.Unmarshal(event.Payload, &msg)
	if err == nil {
		err = p.sender.Send(ctx, msg)
	}

	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		retryAt := p.nextAttempt(event.RetryCount + 1)
		if retryAt != nil {
			p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		}
		if updateErr := p.repo.MarkFailed(ctx, event.ID, err.Error(), retryAt); updateErr != nil {
			p.logger.Error().Err(updateErr).Str("event_id", event.ID.String()).Msg("Failed to update event status")
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.Error().Err(err).Str("event_id", event.ID.String()).Msg("Failed to update event status")
		return err
	}
	return nil
}

// nextAttempt returns when to retry after the given failed attempt, or nil once attempts are exhausted.
func (p *OutboxProcessor) nextAttempt(failedAttempts int) *time.Time {
	if failedAttempts >= p.config.MaxAttempts {
		return nil
	}
	at := p.now().Add(retryDelay(p.config.RetryInterval, p.config.MaxRetryDelay, failedAttempts))
	return &at
}

// retryDelay walks an exponential schedule: initial, 2x initial, 4x initial, capped at max.
func retryDelay(initial, max time.Duration, failedAttempts int) time.Duration {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(max),
		backoff.WithMaxElapsedTime(0),
	)
	b.Reset()

	delay := initial
	for i := 0; i < failedAttempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
