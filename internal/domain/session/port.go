package session

import (
	"context"
	"time"
)

// Cache is the two-tier key/value store backing session state.
// Get reports (value, found); a missing key is not an error.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
