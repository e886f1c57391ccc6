package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/chronicle/internal/cache"
)

// SnapshotCache stores periodic snapshots keyed by (streamID, eventIndex).
//
// Entries are write-once per key in practice: a fold over the same prefix
// always produces the same snapshot, so racing writers store identical bytes.
type SnapshotCache struct {
	store cache.Store
	ttl   time.Duration
}

// NewSnapshotCache wraps a cache store. A zero ttl keeps entries indefinitely.
func NewSnapshotCache(store cache.Store, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{store: store, ttl: ttl}
}

// Snapshot is a cached fold prefix: the state after the first k events of a
// stream, the id of event k-1, and every reconstruction error raised while
// folding those k events.
type Snapshot struct {
	State       State                 `json:"state"`
	LastEventID string                `json:"lastEventId"`
	Errors      []ReconstructionError `json:"errors,omitempty"`
}

// Get returns the snapshot after index events of streamID.
func (c *SnapshotCache) Get(ctx context.Context, streamID string, index int) (Snapshot, bool, error) {
	data, ok, err := c.store.Get(ctx, cache.SnapshotKey(streamID, index))
	if err != nil || !ok {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot %s@%d: %w", streamID, index, err)
	}
	if snap.State == nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot %s@%d: missing state", streamID, index)
	}
	return snap, true, nil
}

// Put stores the snapshot after index events of streamID.
func (c *SnapshotCache) Put(ctx context.Context, streamID string, index int, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s@%d: %w", streamID, index, err)
	}
	return c.store.Set(ctx, cache.SnapshotKey(streamID, index), data, c.ttl)
}
