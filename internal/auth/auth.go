// Package auth gates the connection handshake: a presented credential
// must resolve to a role and scope set before any RPC traffic flows.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// DeviceTokenHeader carries a paired device's long-lived credential.
const DeviceTokenHeader = "X-Aisopod-Device-Token"

// ErrUnauthorized rejects a handshake whose credential did not
// validate. The connection never reaches the active state.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the result of a successful credential check, attached to
// the connection for its lifetime.
type Identity struct {
	Role   string
	Scopes []string
}

// CredentialSource validates bearer tokens and passwords. Implemented
// by the deployment (static config, external IdP, ...).
type CredentialSource interface {
	ValidateToken(ctx context.Context, token string) (Identity, bool)
	ValidatePassword(ctx context.Context, password string) (Identity, bool)
}

// DeviceValidator validates long-lived device tokens issued through
// pairing. Revoked tokens never validate again.
type DeviceValidator interface {
	ValidateDeviceToken(ctx context.Context, secret string) (Identity, bool)
}

// Gate authenticates upgrade requests before they become connections.
type Gate struct {
	source  CredentialSource
	devices DeviceValidator
	// noAuth accepts every credential with defaultRole.
	noAuth      bool
	defaultRole string
}

// NewGate builds a Gate backed by source and devices. Either may be
// nil, disabling that credential kind.
func NewGate(source CredentialSource, devices DeviceValidator) *Gate {
	return &Gate{source: source, devices: devices}
}

// NewOpenGate builds a Gate in no-auth mode: every request is accepted
// with defaultRole and no scopes.
func NewOpenGate(defaultRole string) *Gate {
	return &Gate{noAuth: true, defaultRole: defaultRole}
}

// Authenticate resolves the request's credential to an Identity.
// Accepted credentials, in order: bearer token (Authorization header
// or token query param), device token (header or device_token query
// param), password (password query param).
func (g *Gate) Authenticate(r *http.Request) (Identity, error) {
	if g.noAuth {
		return Identity{Role: g.defaultRole}, nil
	}
	ctx := r.Context()
	if tok := BearerToken(r); tok != "" && g.source != nil {
		if id, ok := g.source.ValidateToken(ctx, tok); ok {
			return id, nil
		}
		return Identity{}, ErrUnauthorized
	}
	dev := r.Header.Get(DeviceTokenHeader)
	if dev == "" {
		dev = r.URL.Query().Get("device_token")
	}
	if dev != "" && g.devices != nil {
		if id, ok := g.devices.ValidateDeviceToken(ctx, dev); ok {
			return id, nil
		}
		return Identity{}, ErrUnauthorized
	}
	if pw := r.URL.Query().Get("password"); pw != "" && g.source != nil {
		if id, ok := g.source.ValidatePassword(ctx, pw); ok {
			return id, nil
		}
		return Identity{}, ErrUnauthorized
	}
	return Identity{}, ErrUnauthorized
}

// BearerToken extracts the bearer credential from the Authorization
// header, falling back to the token query param.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return r.URL.Query().Get("token")
}

// StaticSource validates credentials against values fixed at startup.
// An empty token or password disables that credential kind.
type StaticSource struct {
	Token    string
	Password string
	Role     string
	Scopes   []string
}

func (s StaticSource) identity() (Identity, bool) {
	return Identity{Role: s.Role, Scopes: s.Scopes}, true
}

// ValidateToken implements CredentialSource.
func (s StaticSource) ValidateToken(_ context.Context, token string) (Identity, bool) {
	if s.Token == "" || token != s.Token {
		return Identity{}, false
	}
	return s.identity()
}

// ValidatePassword implements CredentialSource.
func (s StaticSource) ValidatePassword(_ context.Context, password string) (Identity, bool) {
	if s.Password == "" || password != s.Password {
		return Identity{}, false
	}
	return s.identity()
}
