package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSetDefaults(t *testing.T) {
	var c ServerConfig
	c.SetDefaults()
	if c.Port != 8080 || c.MetricsAddr != ":8080" || c.WSPath != "/ws" {
		t.Fatalf("defaults = %+v", c)
	}
	if c.HandshakeTimeout != 5*time.Second || c.PingInterval != 30*time.Second || c.PongTimeout != 10*time.Second {
		t.Fatalf("timeout defaults = %+v", c)
	}
	if c.PairingTTL != 5*time.Minute {
		t.Fatalf("pairing ttl = %v", c.PairingTTL)
	}
	if !c.NoAuth() {
		t.Fatalf("empty credentials should mean no-auth mode")
	}
}

func TestDefaultsDoNotOverrideExisting(t *testing.T) {
	c := ServerConfig{Port: 9000, WSPath: "/gateway"}
	c.SetDefaults()
	if c.Port != 9000 || c.WSPath != "/gateway" {
		t.Fatalf("explicit values overridden: %+v", c)
	}
	if c.MetricsAddr != ":9000" {
		t.Fatalf("metrics addr = %q; want %q", c.MetricsAddr, ":9000")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	data := []byte("port: 9090\nauth_token: s3cret\npairing_ttl: 2m\nallowed_origins:\n  - https://example.com\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	var c ServerConfig
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Port != 9090 || c.AuthToken != "s3cret" || c.PairingTTL != 2*time.Minute {
		t.Fatalf("loaded = %+v", c)
	}
	if len(c.AllowedOrigins) != 1 || c.AllowedOrigins[0] != "https://example.com" {
		t.Fatalf("origins = %v", c.AllowedOrigins)
	}
	if c.NoAuth() {
		t.Fatalf("token configured but NoAuth() = true")
	}
}

// Layering order is defaults, then file, then env; each later layer
// overrides the one before and leaves everything else untouched.
func TestLayeringPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	data := []byte("port: 9090\nauth_token: filetoken\nws_path: /gateway\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AUTH_TOKEN", "envtoken")

	var c ServerConfig
	c.SetDefaults()
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	c.ApplyEnv()

	if c.AuthToken != "envtoken" {
		t.Fatalf("auth token = %q; env must override the file", c.AuthToken)
	}
	if c.Port != 9090 || c.WSPath != "/gateway" {
		t.Fatalf("file values lost: %+v", c)
	}
	if c.PingInterval != 30*time.Second {
		t.Fatalf("untouched default changed: %v", c.PingInterval)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("METRICS_PORT", "9091")
	t.Setenv("AUTH_TOKEN", "envtoken")
	t.Setenv("PING_INTERVAL", "15s")
	t.Setenv("RATE_LIMIT_PER_SEC", "2.5")
	t.Setenv("ALLOWED_ORIGINS", "a.example.com, b.example.com")

	var c ServerConfig
	c.SetDefaults()
	c.ApplyEnv()
	if c.Port != 7070 {
		t.Fatalf("port = %d", c.Port)
	}
	if c.MetricsAddr != ":9091" {
		t.Fatalf("metrics addr = %q", c.MetricsAddr)
	}
	if c.AuthToken != "envtoken" {
		t.Fatalf("auth token = %q", c.AuthToken)
	}
	if c.PingInterval != 15*time.Second {
		t.Fatalf("ping interval = %v", c.PingInterval)
	}
	if c.RateLimitPerSec != 2.5 {
		t.Fatalf("rate = %v", c.RateLimitPerSec)
	}
	if len(c.AllowedOrigins) != 2 || c.AllowedOrigins[1] != "b.example.com" {
		t.Fatalf("origins = %v", c.AllowedOrigins)
	}
}
