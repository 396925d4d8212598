package pairing

import (
	"context"
	"sync"
)

// TokenStore persists device tokens. Implementations may keep them in
// memory or in an external service such as Redis.
type TokenStore interface {
	// Save inserts or replaces the token for its device.
	Save(ctx context.Context, tok DeviceToken) error
	// BySecret looks a token up by its secret.
	BySecret(ctx context.Context, secret string) (DeviceToken, bool, error)
	// ByDevice looks a token up by device id.
	ByDevice(ctx context.Context, deviceID string) (DeviceToken, bool, error)
	// Revoke marks the device's token revoked, reporting whether one
	// existed. Revocation is permanent.
	Revoke(ctx context.Context, deviceID string) (bool, error)
}

// memoryStore is the default in-process TokenStore.
type memoryStore struct {
	mu       sync.RWMutex
	byDevice map[string]DeviceToken
	bySecret map[string]string // secret -> device id
}

// NewMemoryStore returns an empty in-memory TokenStore.
func NewMemoryStore() TokenStore {
	return &memoryStore{
		byDevice: make(map[string]DeviceToken),
		bySecret: make(map[string]string),
	}
}

func (m *memoryStore) Save(_ context.Context, tok DeviceToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byDevice[tok.DeviceID]; ok {
		delete(m.bySecret, old.Secret)
	}
	m.byDevice[tok.DeviceID] = tok
	m.bySecret[tok.Secret] = tok.DeviceID
	return nil
}

func (m *memoryStore) BySecret(_ context.Context, secret string) (DeviceToken, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySecret[secret]
	if !ok {
		return DeviceToken{}, false, nil
	}
	tok, ok := m.byDevice[id]
	return tok, ok, nil
}

func (m *memoryStore) ByDevice(_ context.Context, deviceID string) (DeviceToken, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.byDevice[deviceID]
	return tok, ok, nil
}

func (m *memoryStore) Revoke(_ context.Context, deviceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.byDevice[deviceID]
	if !ok {
		return false, nil
	}
	tok.Revoked = true
	m.byDevice[deviceID] = tok
	return true, nil
}
