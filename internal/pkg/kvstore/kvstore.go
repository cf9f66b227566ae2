package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the only persistence contract the service relies on: an
// eventually-consistent key-value store with per-key TTL. Writes are blind
// overwrites; there is no locking primitive. A ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	GetWithTTL(ctx context.Context, key string) (string, time.Duration, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
