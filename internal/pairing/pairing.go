// Package pairing implements the device pairing flow: a short-lived
// 6-digit code binds a device to a long-lived token that later
// authenticates its connections.
package pairing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aisopod/aisopod/internal/auth"
	"github.com/aisopod/aisopod/internal/logx"
	"github.com/aisopod/aisopod/internal/secret"
)

// DefaultTTL is how long a pairing code stays confirmable.
const DefaultTTL = 5 * time.Minute

// DeviceRole is the role attached to connections authenticated with a
// device token.
const DeviceRole = "node"

// ErrCodeInvalid rejects a confirm whose code is unknown, already
// consumed, or past its expiry.
var ErrCodeInvalid = errors.New("pairing code invalid or expired")

// Pending is one in-flight pairing attempt.
type Pending struct {
	Code          string
	DeviceID      string
	DeviceName    string
	DeviceType    string
	ClientVersion string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// DeviceToken is the long-lived credential minted on confirm.
type DeviceToken struct {
	DeviceID string    `json:"device_id"`
	Secret   string    `json:"secret"`
	IssuedAt time.Time `json:"issued_at"`
	Revoked  bool      `json:"revoked"`
}

// Service owns the pending-code table and the token store. Pending
// entries live in memory; tokens persist through the TokenStore.
type Service struct {
	mu      sync.Mutex
	pending map[string]Pending
	ttl     time.Duration
	store   TokenStore

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewService returns a Service with the given token store and code TTL.
// A non-positive ttl falls back to DefaultTTL.
func NewService(store TokenStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		pending: make(map[string]Pending),
		ttl:     ttl,
		store:   store,
		now:     time.Now,
	}
}

// Request opens a pairing attempt and returns a 6-digit code unique
// among the currently pending entries, with its expiry.
func (s *Service) Request(deviceName, deviceType, clientVersion, deviceID string) (Pending, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	code, err := s.uniqueCodeLocked()
	if err != nil {
		return Pending{}, err
	}
	now := s.now()
	p := Pending{
		Code:          code,
		DeviceID:      deviceID,
		DeviceName:    deviceName,
		DeviceType:    deviceType,
		ClientVersion: clientVersion,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	s.pending[code] = p
	return p, nil
}

// Confirm consumes a pending entry and mints the device token. The
// lookup, validation, and removal happen as one step under the table
// lock, so a code is consumed only by a successful confirm (or by
// expiry) and a concurrent sweep cannot race a confirm that observed
// the entry first. A confirm with the wrong device id leaves the
// entry pending for the rightful device.
func (s *Service) Confirm(ctx context.Context, code, deviceID string) (DeviceToken, error) {
	s.mu.Lock()
	p, ok := s.pending[code]
	if ok && s.now().After(p.ExpiresAt) {
		delete(s.pending, code)
		ok = false
	}
	if ok && deviceID != "" && deviceID != p.DeviceID {
		s.mu.Unlock()
		return DeviceToken{}, ErrCodeInvalid
	}
	if ok {
		delete(s.pending, code)
	}
	s.mu.Unlock()
	if !ok {
		return DeviceToken{}, ErrCodeInvalid
	}
	tok := DeviceToken{
		DeviceID: p.DeviceID,
		Secret:   uuid.NewString(),
		IssuedAt: s.now(),
	}
	if err := s.store.Save(ctx, tok); err != nil {
		return DeviceToken{}, fmt.Errorf("persist device token: %w", err)
	}
	logx.Log.Info().
		Str("device_id", tok.DeviceID).
		Str("device_name", p.DeviceName).
		Str("token", secret.Mask(tok.Secret)).
		Msg("device paired")
	return tok, nil
}

// Revoke permanently invalidates the device's token. It reports
// whether a token was found.
func (s *Service) Revoke(ctx context.Context, deviceID string) (bool, error) {
	ok, err := s.store.Revoke(ctx, deviceID)
	if err != nil {
		return false, fmt.Errorf("revoke device token: %w", err)
	}
	if ok {
		logx.Log.Info().Str("device_id", deviceID).Msg("device token revoked")
	}
	return ok, nil
}

// ValidateDeviceToken implements auth.DeviceValidator. Revoked tokens
// never validate again.
func (s *Service) ValidateDeviceToken(ctx context.Context, tokenSecret string) (auth.Identity, bool) {
	tok, ok, err := s.store.BySecret(ctx, tokenSecret)
	if err != nil {
		logx.Log.Error().Err(err).Msg("device token lookup")
		return auth.Identity{}, false
	}
	if !ok || tok.Revoked {
		return auth.Identity{}, false
	}
	return auth.Identity{Role: DeviceRole, Scopes: []string{"node"}}, true
}

// PendingCount returns the number of unconsumed pairing codes.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Sweep removes expired pending entries and returns how many were
// dropped.
func (s *Service) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for code, p := range s.pending {
		if now.After(p.ExpiresAt) {
			delete(s.pending, code)
			n++
		}
	}
	return n
}

// Run sweeps expired entries at the given interval until ctx ends.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logx.Log.Debug().Int("expired", n).Msg("swept pairing codes")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) uniqueCodeLocked() (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(1000000))
		if err != nil {
			return "", fmt.Errorf("generate pairing code: %w", err)
		}
		code := fmt.Sprintf("%06d", n.Int64())
		if _, taken := s.pending[code]; !taken {
			return code, nil
		}
	}
	return "", errors.New("pairing code space exhausted")
}
