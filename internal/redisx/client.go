package redisx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oremus-labs/kronos-go/config"
)

// ErrNotConfigured is returned by Require when no address is set.
var ErrNotConfigured = errors.New("redis address not configured (set REDIS_ADDR or --redis-addr)")

// Config configures the Redis client backing the relay.
type Config struct {
	// Addr is "host:port" or a redis:// or rediss:// URL. Credentials and the
	// database in a URL win over Username, Password and DB.
	Addr        string
	Username    string
	Password    string
	DB          int
	TLSEnabled  bool
	TLSInsecure bool
	PingTimeout time.Duration
}

// FromAppConfig extracts the Redis settings from the application config.
func FromAppConfig(cfg *config.Config) Config {
	return Config{
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		TLSEnabled:  cfg.RedisTLSEnabled,
		TLSInsecure: cfg.RedisTLSInsecure,
	}
}

// NewClient returns a configured Redis client or nil when no address is provided.
func NewClient(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s failed: %w", cfg.Redacted(), err)
	}
	return client, nil
}

// Require is NewClient for callers that cannot run without Redis.
func Require(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	if cfg.Addr == "" {
		return nil, ErrNotConfigured
	}
	return NewClient(ctx, cfg)
}

func (cfg Config) options() (*redis.Options, error) {
	if strings.Contains(cfg.Addr, "://") {
		opts, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url %s: %w", cfg.Redacted(), err)
		}
		if opts.Username == "" {
			opts.Username = cfg.Username
		}
		if opts.Password == "" {
			opts.Password = cfg.Password
		}
		if opts.TLSConfig == nil && cfg.TLSEnabled {
			opts.TLSConfig = &tls.Config{}
		}
		if opts.TLSConfig != nil && cfg.TLSInsecure {
			opts.TLSConfig.InsecureSkipVerify = true // #nosec G402 – intentional opt-in
		}
		return opts, nil
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecure, // #nosec G402 – intentional opt-in
		}
	}
	return opts, nil
}

// Redacted returns Addr with any URL password masked, for logs and output.
func (cfg Config) Redacted() string {
	scheme, rest, ok := strings.Cut(cfg.Addr, "://")
	if !ok {
		return cfg.Addr
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return cfg.Addr
	}
	if user, _, hasPass := strings.Cut(userinfo, ":"); hasPass {
		return scheme + "://" + user + ":xxxxx@" + host
	}
	return cfg.Addr
}
