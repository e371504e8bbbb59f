package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackBroker delivers every publish to every subscriber, like a shared redis channel.
type loopbackBroker struct {
	mu   sync.Mutex
	subs []chan []byte
}

func (b *loopbackBroker) Publish(_ context.Context, _ string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		ch <- payload
	}
	return nil
}

func (b *loopbackBroker) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-ch:
				out <- msg
			}
		}
	}()
	return out, nil
}

func (b *loopbackBroker) Close() error { return nil }

func (b *loopbackBroker) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func TestRelayReachesOtherInstanceOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := &loopbackBroker{}
	local := NewRegistry(nil)
	remote := NewRegistry(nil)
	localRelay := NewRelay(local, broker, "a", zerolog.Nop())
	remoteRelay := NewRelay(remote, broker, "b", zerolog.Nop())

	go localRelay.Run(ctx)
	go remoteRelay.Run(ctx)
	require.Eventually(t, func() bool { return broker.subscribers() == 2 }, time.Second, 5*time.Millisecond)

	recipient := uuid.New()
	here, there := NewConnection(4), NewConnection(4)
	local.Register(recipient, here)
	remote.Register(recipient, there)

	delivered := localRelay.Push(ctx, recipient, []byte(`{"type":"notification"}`))
	assert.Equal(t, 1, delivered)

	select {
	case msg := <-there.Send:
		assert.JSONEq(t, `{"type":"notification"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("remote connection did not receive relayed frame")
	}

	assert.Equal(t, []byte(`{"type":"notification"}`), <-here.Send)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, here.Send, 0, "origin instance must not deliver twice")
}

func TestRelayWithoutBroker(t *testing.T) {
	registry := NewRegistry(nil)
	relay := NewRelay(registry, nil, "", zerolog.Nop())
	recipient := uuid.New()
	registry.Register(recipient, NewConnection(1))

	assert.Equal(t, 1, relay.Push(context.Background(), recipient, []byte("x")))
	assert.Zero(t, relay.Push(context.Background(), uuid.New(), []byte("x")))
}
