package pairing

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	deviceKeyPrefix = "aisopod:device:"
	secretKeyPrefix = "aisopod:device_secret:"
)

// redisStore implements TokenStore backed by a Redis instance, letting
// a restarted gateway keep honoring (and keep rejecting revoked)
// device tokens.
type redisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to the given Redis URL and returns a TokenStore.
func NewRedisStore(addr string) (TokenStore, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewUniversalClient(opts)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &redisStore{client: c}, nil
}

// parseRedisURL parses addr into UniversalOptions supporting single,
// cluster, and sentinel Redis deployments. If no scheme is present,
// addr is treated as a plain host:port string.
func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{}
	if u.User != nil {
		opts.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}
	opts.Addrs = strings.Split(u.Host, ",")

	q := u.Query()
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	switch u.Scheme {
	case "redis", "rediss":
		if u.Path != "" && u.Path != "/" {
			if db, err := strconv.Atoi(strings.TrimPrefix(u.Path, "/")); err == nil {
				opts.DB = db
			} else {
				return nil, fmt.Errorf("redis: invalid db: %v", err)
			}
		} else if dbStr := q.Get("db"); dbStr != "" {
			if db, err := strconv.Atoi(dbStr); err == nil {
				opts.DB = db
			} else {
				return nil, fmt.Errorf("redis: invalid db: %v", err)
			}
		}
		if u.Scheme == "rediss" {
			opts.TLSConfig = tlsCfg
		}
	case "redis-sentinel", "rediss-sentinel":
		opts.MasterName = strings.TrimPrefix(u.Path, "/")
		if dbStr := q.Get("db"); dbStr != "" {
			if db, err := strconv.Atoi(dbStr); err == nil {
				opts.DB = db
			} else {
				return nil, fmt.Errorf("redis: invalid db: %v", err)
			}
		}
		if v := q.Get("sentinel_username"); v != "" {
			opts.SentinelUsername = v
		}
		if v := q.Get("sentinel_password"); v != "" {
			opts.SentinelPassword = v
		}
		if u.Scheme == "rediss-sentinel" {
			opts.TLSConfig = tlsCfg
		}
	default:
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}

	return opts, nil
}

func (r *redisStore) Save(ctx context.Context, tok DeviceToken) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if old, ok, err := r.ByDevice(ctx, tok.DeviceID); err == nil && ok {
		_ = r.client.Del(ctx, secretKeyPrefix+old.Secret).Err()
	}
	if err := r.client.Set(ctx, deviceKeyPrefix+tok.DeviceID, b, 0).Err(); err != nil {
		return err
	}
	return r.client.Set(ctx, secretKeyPrefix+tok.Secret, tok.DeviceID, 0).Err()
}

func (r *redisStore) BySecret(ctx context.Context, secret string) (DeviceToken, bool, error) {
	deviceID, err := r.client.Get(ctx, secretKeyPrefix+secret).Result()
	if errors.Is(err, redis.Nil) {
		return DeviceToken{}, false, nil
	}
	if err != nil {
		return DeviceToken{}, false, err
	}
	return r.ByDevice(ctx, deviceID)
}

func (r *redisStore) ByDevice(ctx context.Context, deviceID string) (DeviceToken, bool, error) {
	b, err := r.client.Get(ctx, deviceKeyPrefix+deviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return DeviceToken{}, false, nil
	}
	if err != nil {
		return DeviceToken{}, false, err
	}
	var tok DeviceToken
	if err := json.Unmarshal(b, &tok); err != nil {
		return DeviceToken{}, false, err
	}
	return tok, true, nil
}

func (r *redisStore) Revoke(ctx context.Context, deviceID string) (bool, error) {
	tok, ok, err := r.ByDevice(ctx, deviceID)
	if err != nil || !ok {
		return false, err
	}
	tok.Revoked = true
	b, err := json.Marshal(tok)
	if err != nil {
		return false, err
	}
	return true, r.client.Set(ctx, deviceKeyPrefix+deviceID, b, 0).Err()
}
