// Package config carries gateway configuration resolved from
// defaults, an optional YAML file, environment variables, and flags,
// in that order.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the aisopod gateway.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsAddr string `yaml:"metrics_addr"`
	WSPath      string `yaml:"ws_path"`
	LogLevel    string `yaml:"log_level"`
	ConfigFile  string `yaml:"-"`

	// AuthToken and Password gate the handshake; both empty means
	// no-auth mode, accepting every client with DefaultRole.
	AuthToken   string `yaml:"auth_token"`
	Password    string `yaml:"password"`
	DefaultRole string `yaml:"default_role"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongTimeout      time.Duration `yaml:"pong_timeout"`
	SendQueueSize    int           `yaml:"send_queue_size"`

	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`

	PairingTTL   time.Duration `yaml:"pairing_ttl"`
	PairingSweep time.Duration `yaml:"pairing_sweep"`

	RedisAddr      string        `yaml:"redis_addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if c.WSPath == "" {
		c.WSPath = "/ws"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DefaultRole == "" {
		c.DefaultRole = "operator"
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 10 * time.Second
	}
	if c.SendQueueSize == 0 {
		c.SendQueueSize = 64
	}
	if c.RateLimitPerSec == 0 {
		c.RateLimitPerSec = 50
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 100
	}
	if c.PairingTTL == 0 {
		c.PairingTTL = 5 * time.Minute
	}
	if c.PairingSweep == 0 {
		c.PairingSweep = 30 * time.Second
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 5 * time.Minute
	}
}

// LoadFile populates the config from a YAML file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// ApplyEnv overlays environment variables onto the current values.
func (c *ServerConfig) ApplyEnv() {
	if v := getEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := getEnv("METRICS_PORT", ""); v != "" {
		if strings.Contains(v, ":") {
			c.MetricsAddr = v
		} else {
			c.MetricsAddr = ":" + v
		}
	}
	if v := getEnv("WS_PATH", ""); v != "" {
		c.WSPath = v
	}
	if v := getEnv("AUTH_TOKEN", ""); v != "" {
		c.AuthToken = v
	}
	if v := getEnv("PASSWORD", ""); v != "" {
		c.Password = v
	}
	if v := getEnv("DEFAULT_ROLE", ""); v != "" {
		c.DefaultRole = v
	}
	if v := getEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := getEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	applyDurationEnv("HANDSHAKE_TIMEOUT", &c.HandshakeTimeout)
	applyDurationEnv("PING_INTERVAL", &c.PingInterval)
	applyDurationEnv("PONG_TIMEOUT", &c.PongTimeout)
	applyDurationEnv("PAIRING_TTL", &c.PairingTTL)
	applyDurationEnv("PAIRING_SWEEP", &c.PairingSweep)
	applyDurationEnv("DRAIN_TIMEOUT", &c.DrainTimeout)
	if v := getEnv("SEND_QUEUE_SIZE", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SendQueueSize = n
		}
	}
	if v := getEnv("RATE_LIMIT_PER_SEC", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimitPerSec = f
		}
	}
	if v := getEnv("RATE_LIMIT_BURST", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimitBurst = n
		}
	}
}

// BindFlagsFromCurrent binds command line flags using the current
// config values as defaults.
func (c *ServerConfig) BindFlagsFromCurrent() {
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "gateway config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port")
	flag.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port; defaults to the value of --port")
	flag.StringVar(&c.WSPath, "ws-path", c.WSPath, "path clients use to establish WebSocket connections")
	flag.StringVar(&c.AuthToken, "auth-token", c.AuthToken, "bearer token clients must present; leave empty with --password to disable auth")
	flag.StringVar(&c.Password, "password", c.Password, "password clients may present instead of a token")
	flag.StringVar(&c.DefaultRole, "default-role", c.DefaultRole, "role assigned in no-auth mode")
	flag.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for the device token store")
	flag.DurationVar(&c.HandshakeTimeout, "handshake-timeout", c.HandshakeTimeout, "time allowed for a connection to complete its handshake")
	flag.DurationVar(&c.PingInterval, "ping-interval", c.PingInterval, "interval between heartbeat pings")
	flag.DurationVar(&c.PongTimeout, "pong-timeout", c.PongTimeout, "time to wait for a pong before closing the connection")
	flag.IntVar(&c.SendQueueSize, "send-queue-size", c.SendQueueSize, "outbound frames buffered per connection before it is dropped")
	flag.Float64Var(&c.RateLimitPerSec, "rate-limit", c.RateLimitPerSec, "inbound requests allowed per second per connection")
	flag.IntVar(&c.RateLimitBurst, "rate-limit-burst", c.RateLimitBurst, "burst capacity of the per-connection rate limiter")
	flag.DurationVar(&c.PairingTTL, "pairing-ttl", c.PairingTTL, "lifetime of an unconfirmed pairing code")
	flag.DurationVar(&c.PairingSweep, "pairing-sweep", c.PairingSweep, "interval between sweeps of expired pairing codes")
	flag.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for connections to finish on shutdown")
	flag.Func("allowed-origins", "comma separated list of allowed websocket origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
}

// NoAuth reports whether the gateway runs with the auth gate open.
func (c *ServerConfig) NoAuth() bool {
	return c.AuthToken == "" && c.Password == ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func applyDurationEnv(key string, dst *time.Duration) {
	if v := getEnv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
