package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/outbound"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type flakySender struct {
	mu       sync.Mutex
	failures int
	sent     []outbound.Message
}

func (s *flakySender) Send(_ context.Context, msg outbound.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("gateway unavailable")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newProcessor(t *testing.T, store *repository.Store, sender outbound.Sender, maxAttempts int) (*OutboxProcessor, *metrics.Metrics) {
	t.Helper()
	m := metrics.New("test", prometheus.NewRegistry())
	p, err := NewOutboxProcessor(store.Outbox, sender, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		MaxAttempts:   maxAttempts,
		RetryInterval: time.Second,
		MaxRetryDelay: time.Minute,
	}, zerolog.Nop(), m)
	require.NoError(t, err)
	return p, m
}

func queue(t *testing.T, store *repository.Store, msg outbound.Message) *model.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	event := &model.OutboxEvent{EventType: string(msg.Channel), Payload: payload}
	require.NoError(t, store.Outbox.Create(context.Background(), event))
	return event
}

func TestProcessOnceDelivers(t *testing.T) {
	store := memory.NewStore()
	sender := &flakySender{}
	p, m := newProcessor(t, store, sender, 3)
	queue(t, store, outbound.Message{Channel: outbound.ChannelEmail, To: "a@example.com", Body: "hi"})

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "a@example.com", sender.sent[0].To)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEventsProcessed))

	n, err = p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessOnceRetriesThenGivesUp(t *testing.T) {
	store := memory.NewStore()
	sender := &flakySender{failures: 10}
	p, m := newProcessor(t, store, sender, 2)
	// A clock an hour behind makes every scheduled retry immediately due.
	p.now = func() time.Time { return time.Now().Add(-time.Hour) }
	queue(t, store, outbound.Message{Channel: outbound.ChannelSMS, To: "+1", Body: "hi"})

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxRetries.WithLabelValues("sms")))

	n, err = p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxEventsFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxRetries.WithLabelValues("sms")))

	events, err := store.Outbox.ClaimPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events, "event exhausted its attempts")
}

func TestProcessOnceWaitsForRetryTime(t *testing.T) {
	store := memory.NewStore()
	sender := &flakySender{failures: 1}
	p, _ := newProcessor(t, store, sender, 5)
	queue(t, store, outbound.Message{Channel: outbound.ChannelEmail, To: "a@example.com"})

	_, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sender.sent)
}

func TestRetryDelaySchedule(t *testing.T) {
	assert.Equal(t, time.Second, retryDelay(time.Second, time.Minute, 1))
	assert.Equal(t, 2*time.Second, retryDelay(time.Second, time.Minute, 2))
	assert.Equal(t, 4*time.Second, retryDelay(time.Second, time.Minute, 3))
	assert.Equal(t, 5*time.Second, retryDelay(time.Second, 5*time.Second, 6))
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	_, err := NewOutboxProcessor(nil, nil, OutboxProcessorConfig{}, zerolog.Nop(), nil)
	assert.Error(t, err)
}
