// Package cache stores rendered computation results keyed by the fingerprint
// of their inputs.
package cache

import (
	"context"
	"time"
)

// Cache is a string key/value store with per-entry expiry. A ttl of zero
// keeps the entry until it is evicted by the backend.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
