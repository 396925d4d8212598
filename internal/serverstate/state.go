// Package serverstate tracks gateway readiness and draining. Draining
// gateways refuse new connections while existing ones finish.
package serverstate

import "sync/atomic"

// State holds the gateway status and draining flag. Both fields are
// updated together so callers always observe a consistent snapshot.
type State struct {
	Status   string
	Draining bool
}

// Store defines how the gateway state is persisted.
type Store interface {
	Load() State
	Store(State)
}

// active is the currently configured Store. It defaults to an
// in-memory implementation but can be swapped for other strategies.
var active Store = NewMemoryStore()

// UseStore replaces the active Store.
func UseStore(s Store) {
	if s != nil {
		active = s
	}
}

// memoryStore implements Store using an atomic.Value.
type memoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a memory-backed Store initialized to "starting".
func NewMemoryStore() *memoryStore {
	ms := &memoryStore{}
	ms.v.Store(State{Status: "starting"})
	return ms
}

func (m *memoryStore) Load() State {
	if st, ok := m.v.Load().(State); ok {
		return st
	}
	return State{Status: "unknown"}
}

func (m *memoryStore) Store(s State) {
	m.v.Store(s)
}

// SetState updates the gateway status string.
func SetState(status string) {
	st := active.Load()
	st.Status = status
	active.Store(st)
}

// GetState returns the current gateway status.
func GetState() string {
	return active.Load().Status
}

// StartDrain marks the gateway as draining.
func StartDrain() {
	st := active.Load()
	st.Draining = true
	st.Status = "draining"
	active.Store(st)
}

// IsDraining reports whether the gateway is draining.
func IsDraining() bool {
	return active.Load().Draining
}

// Reset restores the default in-memory store. Test helper.
func Reset() {
	active = NewMemoryStore()
}
