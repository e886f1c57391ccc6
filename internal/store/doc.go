// Package store provides durable, append-only storage for chronicle audit
// events.
//
// The Store interface is the boundary the replay and analysis engines consume.
// This package ships the SQLite adapter; pgstore provides the Postgres one.
//
// # Guarantees
//
// Immutability: an event is never updated or deleted once appended. The
// SQLite schema enforces this with triggers. Appending an event whose id
// already exists is a no-op when the content is identical and a CONFLICT
// AppendError otherwise.
//
// Ordering: every read returns events in insertion order (ORDER BY seq). Seq
// is the store's logical clock and breaks timestamp ties.
//
// Raw reads: reads return event.Raw, not event.Event, so that rows written by
// other producers are validated by the caller and reported as malformed
// instead of failing the whole read.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
