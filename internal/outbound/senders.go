package outbound

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/circuitbreaker"
)

// OutboxSender queues messages for the delivery worker instead of sending them.
type OutboxSender struct {
	repo repository.OutboxRepository
}

func NewOutboxSender(repo repository.OutboxRepository) *OutboxSender {
	return &OutboxSender{repo: repo}
}

func (s *OutboxSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	event := &model.OutboxEvent{
		EventType: string(msg.Channel),
		Payload:   payload,
	}
	return s.repo.Create(ctx, event)
}

// LogSender writes messages to the log; used when a channel has no gateway configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "outbound-log").Logger()}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info().
		Str("channel", string(msg.Channel)).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("Outbound message not delivered: channel disabled")
	return nil
}

type breakerSender struct {
	next Sender
	cb   *circuitbreaker.CircuitBreaker
}

// WithBreaker stops calling next while its gateway keeps failing.
func WithBreaker(next Sender, cb *circuitbreaker.CircuitBreaker) Sender {
	return &breakerSender{next: next, cb: cb}
}

func (s *breakerSender) Send(ctx context.Context, msg Message) error {
	return s.cb.Execute(func() error {
		return s.next.Send(ctx, msg)
	})
}
