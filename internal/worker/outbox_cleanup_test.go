package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
)

func TestCleanupRemovesOnlyProcessedEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	done := &model.OutboxEvent{EventType: "email", Payload: json.RawMessage(`{}`)}
	pending := &model.OutboxEvent{EventType: "email", Payload: json.RawMessage(`{}`)}
	require.NoError(t, store.Outbox.Create(ctx, done))
	require.NoError(t, store.Outbox.MarkProcessed(ctx, done.ID))
	require.NoError(t, store.Outbox.Create(ctx, pending))

	w := NewOutboxCleanupWorker(store.Outbox, -time.Minute, time.Hour, zerolog.Nop())
	rows, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	claimed, err := store.Outbox.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, pending.ID, claimed[0].ID)
}
