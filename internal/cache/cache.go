// Package cache provides the key/value store behind snapshot and correlation
// caching.
//
// Entries are opaque bytes. Writers must be idempotent: two writers racing on
// the same key always store identical bytes, so no coordination beyond what the
// backend provides is needed.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Store is a byte-oriented cache with optional per-entry expiry.
type Store interface {
	// Get returns the value for key. ok is false on a miss or expired entry.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)

	// Set stores val under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options configure New.
type Options struct {
	Backend   string
	RedisAddr string
	Prefix    string
}

// New builds a cache for the named backend.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("cache: redis backend requires an address")
		}
		return NewRedis(opts.RedisAddr, opts.Prefix), nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", opts.Backend)
	}
}

// SnapshotKey builds the cache key for the snapshot of stream after index events.
func SnapshotKey(streamID string, index int) string {
	return fmt.Sprintf("snapshot:%s:%d", streamID, index)
}

// CorrelationKey builds the cache key for the correlations rooted at eventID.
func CorrelationKey(eventID string) string {
	return "correlation:" + eventID
}
