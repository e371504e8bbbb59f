package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterMultipleConnections(t *testing.T) {
	r := NewRegistry(nil)
	alice := uuid.New()
	tab1, tab2 := NewConnection(1), NewConnection(1)

	r.Register(alice, tab1)
	r.Register(alice, tab2)
	r.Register(alice, tab2)

	assert.ElementsMatch(t, []*Connection{tab1, tab2}, r.Lookup(alice))
	assert.Equal(t, 2, r.Count())
}

func TestUnregisterByHandleOnly(t *testing.T) {
	r := NewRegistry(nil)
	alice, bob := uuid.New(), uuid.New()
	a, b := NewConnection(1), NewConnection(1)
	r.Register(alice, a)
	r.Register(bob, b)

	assert.True(t, r.Unregister(a))
	assert.False(t, r.Unregister(a))

	assert.Empty(t, r.Lookup(alice))
	assert.Equal(t, []*Connection{b}, r.Lookup(bob))
}

func TestRegisterMovesHandleBetweenPrincipals(t *testing.T) {
	r := NewRegistry(nil)
	alice, bob := uuid.New(), uuid.New()
	conn := NewConnection(1)

	r.Register(alice, conn)
	r.Register(bob, conn)

	assert.Empty(t, r.Lookup(alice))
	assert.Equal(t, []*Connection{conn}, r.Lookup(bob))
	assert.Equal(t, 1, r.Count())
}

func TestLookupReturnsSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	alice := uuid.New()
	conn := NewConnection(1)
	r.Register(alice, conn)

	snapshot := r.Lookup(alice)
	r.Unregister(conn)

	assert.Len(t, snapshot, 1)
	assert.Empty(t, r.Lookup(alice))
}

func TestPushCountsAcceptedDeliveries(t *testing.T) {
	r := NewRegistry(nil)
	alice := uuid.New()
	open, full, closed := NewConnection(1), NewConnection(1), NewConnection(1)
	require.True(t, full.Deliver([]byte("filler")))
	closed.Close()

	r.Register(alice, open)
	r.Register(alice, full)
	r.Register(alice, closed)

	assert.Equal(t, 1, r.Push(alice, []byte("hello")))
	assert.Equal(t, []byte("hello"), <-open.Send)
	assert.Zero(t, r.Push(uuid.New(), []byte("nobody")))
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	conn := NewConnection(1)
	conn.Close()
	assert.NotPanics(t, conn.Close)
	assert.False(t, conn.Deliver([]byte("late")))
}

func TestGaugeTracksConnections(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "presence_connections"})
	r := NewRegistry(gauge)
	a, b := NewConnection(1), NewConnection(1)

	r.Register(uuid.New(), a)
	r.Register(uuid.New(), b)
	assert.Equal(t, 2.0, testutil.ToFloat64(gauge))

	r.Unregister(a)
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
}

// After any interleaving of register/unregister pairs plus concurrent pushes,
// the registry is empty and both indexes agree.
func TestConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry(nil)
	principals := make([]uuid.UUID, 8)
	for i := range principals {
		principals[i] = uuid.New()
	}

	const workers = 64
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			owner := principals[w%len(principals)]
			for i := 0; i < rounds; i++ {
				conn := NewConnection(4)
				r.Register(owner, conn)
				r.Push(owner, []byte("ping"))
				_ = r.Lookup(principals[(w+i)%len(principals)])
				assert.True(t, r.Unregister(conn))
				conn.Close()
			}
		}(w)
	}

	kept := make([]*Connection, len(principals))
	for i, p := range principals {
		kept[i] = NewConnection(1)
		r.Register(p, kept[i])
	}

	wg.Wait()

	assert.Equal(t, len(principals), r.Count())
	for i, p := range principals {
		assert.Equal(t, []*Connection{kept[i]}, r.Lookup(p))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for p, set := range r.byPrincipal {
		for conn := range set {
			assert.Equal(t, p, r.byHandle[conn])
			total++
		}
	}
	assert.Equal(t, len(r.byHandle), total)
}
