package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("store: key not found")

// Store is the key-value backend shared by the captcha, rate-limit
// and OTP components. Values are opaque bytes; every entry carries a
// TTL so abandoned state ages out on its own.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Sweep forces eviction of expired entries. Backends with
	// server-side expiry may treat it as a no-op.
	Sweep(ctx context.Context) error

	Close() error
}
