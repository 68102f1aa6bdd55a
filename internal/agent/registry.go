// ABOUTME: Tracks currently connected agents and notifies observers on membership changes.
// ABOUTME: Central registry for connection lookup, snapshots, and disconnect cleanup.

package agent

import (
	"errors"
	"log/slog"
	"maps"
	"sync"
)

// ErrAgentNotFound indicates the specified agent was not found.
var ErrAgentNotFound = errors.New("agent not found")

// Registry coordinates all connected agents. It is safe for concurrent use;
// the lock is never held across a network send or a database call.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client

	// prev is the last snapshot handed to observers, used to suppress
	// refresh notifications when nothing visible changed.
	prev map[string]Endpoint

	subs    map[int]chan struct{}
	nextSub int

	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		prev:    make(map[string]Endpoint),
		subs:    make(map[int]chan struct{}),
		logger:  logger,
	}
}

// Register inserts or replaces the entry for clientID. Re-registration from
// the same client ID replaces the previous entry, so a reconnecting agent
// does not leave a stale connection behind.
func (r *Registry) Register(clientID, hostname, ip string, conn Conn) {
	r.mu.Lock()
	r.clients[clientID] = &Client{ID: clientID, Hostname: hostname, IP: ip, Conn: conn}
	total := len(r.clients)
	changed := r.refreshLocked()
	r.mu.Unlock()

	r.logger.Info("agent registered",
		"client_id", clientID,
		"hostname", hostname,
		"ip", ip,
		"total_agents", total,
	)

	if changed {
		r.notify()
	}
}

// UnregisterConn removes every entry referencing conn (normally exactly one).
// Called exactly once when the underlying connection terminates.
func (r *Registry) UnregisterConn(conn Conn) {
	r.mu.Lock()
	var removed []string
	for id, c := range r.clients {
		if c.Conn == conn {
			removed = append(removed, id)
			delete(r.clients, id)
		}
	}
	total := len(r.clients)
	changed := r.refreshLocked()
	r.mu.Unlock()

	for _, id := range removed {
		r.logger.Info("agent disconnected", "client_id", id, "total_agents", total)
	}

	if changed {
		r.notify()
	}
}

// Remove evicts the entry for clientID, used when a send discovers the
// connection is already dead.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	_, existed := r.clients[clientID]
	delete(r.clients, clientID)
	changed := r.refreshLocked()
	r.mu.Unlock()

	if existed {
		r.logger.Info("stale agent evicted", "client_id", clientID)
	}

	if changed {
		r.notify()
	}
}

// Lookup retrieves a specific agent by client ID.
func (r *Registry) Lookup(clientID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	return c, ok
}

// All returns all currently connected agents.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Snapshot returns the current client_id -> endpoint view.
func (r *Registry) Snapshot() map[string]Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshotLocked()
}

// Subscribe registers an observer for refresh notifications. The returned
// channel has a one-slot buffer; pending notifications coalesce. The cancel
// function must be called to release the subscription.
func (r *Registry) Subscribe() (<-chan struct{}, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan struct{}, 1)
	r.subs[id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (r *Registry) snapshotLocked() map[string]Endpoint {
	snap := make(map[string]Endpoint, len(r.clients))
	for id, c := range r.clients {
		snap[id] = Endpoint{Hostname: c.Hostname, IP: c.IP}
	}
	return snap
}

// refreshLocked compares the current snapshot against the retained one and
// reports whether observers should be notified. Caller holds the lock.
func (r *Registry) refreshLocked() bool {
	snap := r.snapshotLocked()
	if maps.Equal(snap, r.prev) {
		return false
	}
	r.prev = snap
	return true
}

// notify wakes all observers. Sends are non-blocking; a subscriber that has
// not drained its previous notification gets the two coalesced.
func (r *Registry) notify() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
