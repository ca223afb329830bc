package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MishaNavrotsky/authd/internal/obs/retry"
)

// ErrUnavailable reports that the distributed tier could not be reached.
// Callers must treat it as a retryable infrastructure failure, never as
// "key absent": revocation correctness depends on the distributed tier.
var ErrUnavailable = errors.New("distributed cache unavailable")

// Remote is the distributed tier backed by a shared redis instance.
// Every operation runs under a bounded timeout; writes are retried
// because losing the durable half of a session write is a hard failure.
type Remote struct {
	rdb        *redis.Client
	opTimeout  time.Duration
	defaultTTL time.Duration
	writes     retry.Policy
}

type RemoteConfig struct {
	OpTimeout     time.Duration
	DefaultTTL    time.Duration
	WriteAttempts int
}

func NewRemote(rdb *redis.Client, cfg RemoteConfig) *Remote {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 500 * time.Millisecond
	}
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = 2
	}
	return &Remote{
		rdb:        rdb,
		opTimeout:  cfg.OpTimeout,
		defaultTTL: cfg.DefaultTTL,
		writes: retry.Policy{
			Name:     "cache_write",
			Attempts: cfg.WriteAttempts,
			Backoff:  retry.ExpoJitter{Base: 20 * time.Millisecond, Max: 200 * time.Millisecond, Jitter: 0.2},
			Retryable: func(err error) bool {
				return err != nil && !errors.Is(err, context.Canceled)
			},
		},
	}
}

func (r *Remote) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	val, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	return val, true, nil
}

func (r *Remote) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	err := retry.Do(ctx, func() error {
		opCtx, cancel := r.withTimeout(ctx)
		defer cancel()
		return r.rdb.Set(opCtx, key, value, ttl).Err()
	}, r.writes)
	if err != nil {
		return fmt.Errorf("%w: set %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (r *Remote) Del(ctx context.Context, key string) error {
	err := retry.Do(ctx, func() error {
		opCtx, cancel := r.withTimeout(ctx)
		defer cancel()
		return r.rdb.Del(opCtx, key).Err()
	}, r.writes)
	if err != nil {
		return fmt.Errorf("%w: del %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (r *Remote) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.rdb.Ping(ctx).Err()
}

func (r *Remote) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}
