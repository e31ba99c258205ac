// Package lock serializes writers of one inventory record across server
// instances with a Redis lease.
package lock

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"stockpos/internal/domain/ledger"
	"stockpos/pkg/logger"
)

//go:embed release.lua
var releaseLua string

var releaseScript = redis.NewScript(releaseLua)

// ErrNotAcquired is returned when the lease stays held by another owner until the wait runs out.
var ErrNotAcquired = errors.New("lock not acquired")

// Config of the locker.
type Config struct {
	Prefix string
	// TTL bounds how long a crashed owner can block others.
	TTL time.Duration
	// Wait is the longest Acquire polls for a held lease.
	Wait         time.Duration
	PollInterval time.Duration
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig() Config {
	return Config{
		Prefix:       "stockpos:lock:",
		TTL:          5 * time.Second,
		Wait:         2 * time.Second,
		PollInterval: 25 * time.Millisecond,
	}
}

// RedisLocker implements ledger.Locker with SET NX PX and a token-checked release.
type RedisLocker struct {
	client redis.UniversalClient
	cfg    Config
}

var _ ledger.Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker on client.
func NewRedisLocker(client redis.UniversalClient, cfg Config) *RedisLocker {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Wait <= 0 {
		cfg.Wait = def.Wait
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	return &RedisLocker{client: client, cfg: cfg}
}

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Acquire takes the lease for key, polling while another owner holds it.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context), error) {
	fullKey := l.cfg.Prefix + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Wait)
	defer cancel()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.cfg.TTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return l.releaser(fullKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) releaser(fullKey, token string) func(context.Context) {
	return func(ctx context.Context) {
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil {
			// the lease expires on its own after TTL
			logger.Warn(ctx, "failed to release lock", "key", fullKey, "error", err)
		}
	}
}
