// Package registry tracks the gateway's live connections. It owns the
// canonical record for each connection, addressed by conn_id;
// connections themselves hold no back-pointers into the registry.
package registry

import (
	"sync"
	"time"
)

// Sender is the outbound handle a connection registers alongside its
// record. TrySend enqueues a frame without blocking and reports
// whether it was accepted; Kick force-closes the connection with a
// reason.
type Sender interface {
	TrySend(frame []byte) bool
	Kick(reason string)
}

// ClientRecord is the registry's public view of one connection.
type ClientRecord struct {
	ConnID      string    `json:"conn_id"`
	Role        string    `json:"role"`
	Scopes      []string  `json:"scopes,omitempty"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// HealthSnapshot is a point-in-time summary of the registry.
type HealthSnapshot struct {
	TotalConnections int            `json:"total_connections"`
	ByRole           map[string]int `json:"by_role"`
}

type entry struct {
	rec  ClientRecord
	send Sender
}

// Registry is a concurrency-safe store of live connections keyed by
// conn_id.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// OnConnect inserts the record for a freshly handshaken connection.
func (r *Registry) OnConnect(rec ClientRecord, send Sender) {
	r.mu.Lock()
	r.entries[rec.ConnID] = &entry{rec: rec, send: send}
	r.mu.Unlock()
}

// OnDisconnect removes the record. Removing an unknown id is a no-op.
func (r *Registry) OnDisconnect(connID string) {
	r.mu.Lock()
	delete(r.entries, connID)
	r.mu.Unlock()
}

// Get returns the record for connID, if present.
func (r *Registry) Get(connID string) (ClientRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	if !ok {
		return ClientRecord{}, false
	}
	return e.rec, true
}

// List returns a consistent snapshot of all current records.
func (r *Registry) List() []ClientRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]ClientRecord, 0, len(r.entries))
	for _, e := range r.entries {
		res = append(res, e.rec)
	}
	return res
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Health aggregates connection counts by role.
func (r *Registry) Health() HealthSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := HealthSnapshot{
		TotalConnections: len(r.entries),
		ByRole:           make(map[string]int),
	}
	for _, e := range r.entries {
		snap.ByRole[e.rec.Role]++
	}
	return snap
}

// Each calls fn for a snapshot of the current entries. The lock is not
// held during fn, so a slow consumer never serializes the registry.
func (r *Registry) Each(fn func(ClientRecord, Sender)) {
	r.mu.RLock()
	snapshot := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, e)
	}
	r.mu.RUnlock()
	for _, e := range snapshot {
		fn(e.rec, e.send)
	}
}

// Send enqueues a frame to one connection. It reports false when the
// connection is gone or its queue is full.
func (r *Registry) Send(connID string, frame []byte) bool {
	r.mu.RLock()
	e, ok := r.entries[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return e.send.TrySend(frame)
}

// CloseAll kicks every live connection with the given reason. Used on
// gateway teardown.
func (r *Registry) CloseAll(reason string) {
	r.Each(func(_ ClientRecord, s Sender) {
		s.Kick(reason)
	})
}
