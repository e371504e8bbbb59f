// Package realtime tracks live connections per principal and pushes frames to them.
package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Connection is one live client. Send is drained by the connection's writer.
type Connection struct {
	ID   string
	Send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewConnection(buffer int) *Connection {
	return &Connection{
		ID:   uuid.NewString(),
		Send: make(chan []byte, buffer),
	}
}

// Deliver queues data without blocking. It reports false when the buffer is full or the connection is closed.
func (c *Connection) Deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Close closes Send once; later calls are no-ops.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Registry maps principal ids to their live connections. All methods are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	byPrincipal map[uuid.UUID]map[*Connection]struct{}
	// byHandle is the reverse index that makes Unregister independent of the principal.
	byHandle map[*Connection]uuid.UUID
	gauge    prometheus.Gauge
}

// NewRegistry creates an empty registry. gauge may be nil.
func NewRegistry(gauge prometheus.Gauge) *Registry {
	return &Registry{
		byPrincipal: make(map[uuid.UUID]map[*Connection]struct{}),
		byHandle:    make(map[*Connection]uuid.UUID),
		gauge:       gauge,
	}
}

// Register adds conn under principalID. A handle already held by another principal is moved.
func (r *Registry) Register(principalID uuid.UUID, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byHandle[conn]; ok {
		if owner == principalID {
			return
		}
		r.removeLocked(owner, conn)
	}

	set, ok := r.byPrincipal[principalID]
	if !ok {
		set = make(map[*Connection]struct{})
		r.byPrincipal[principalID] = set
	}
	set[conn] = struct{}{}
	r.byHandle[conn] = principalID
	r.updateGaugeLocked()
}

// Unregister removes conn whichever principal holds it. It reports whether conn was registered.
func (r *Registry) Unregister(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.byHandle[conn]
	if !ok {
		return false
	}
	r.removeLocked(owner, conn)
	r.updateGaugeLocked()
	return true
}

func (r *Registry) removeLocked(owner uuid.UUID, conn *Connection) {
	delete(r.byHandle, conn)
	if set, ok := r.byPrincipal[owner]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.byPrincipal, owner)
		}
	}
}

func (r *Registry) updateGaugeLocked() {
	if r.gauge != nil {
		r.gauge.Set(float64(len(r.byHandle)))
	}
}

// Lookup returns a snapshot of the principal's connections, possibly empty.
func (r *Registry) Lookup(principalID uuid.UUID) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byPrincipal[principalID]
	out := make([]*Connection, 0, len(set))
	for conn := range set {
		out = append(out, conn)
	}
	return out
}

// Push delivers payload to every connection of principalID and returns how many accepted it.
func (r *Registry) Push(principalID uuid.UUID, payload []byte) int {
	delivered := 0
	for _, conn := range r.Lookup(principalID) {
		if conn.Deliver(payload) {
			delivered++
		}
	}
	return delivered
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHandle)
}
