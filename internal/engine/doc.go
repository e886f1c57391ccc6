// Package engine wires chronicle's components behind one facade.
//
// The Engine owns the event store, the snapshot/correlation cache and the
// analysis components, and exposes the operations the CLI and embedding
// services call:
//
//   - Ingest: validate, normalize and append raw events
//   - Replay / Start: batch or interactive replay (package replay)
//   - Verify: replay twice and compare per-step fingerprints
//   - StreamState: cached point-in-time state of one stream
//   - Correlate: related events of a root event, cached with a short TTL
//   - DetectAnomalies, Timeline: analysis over a replay selection
//   - Export: replay results and correlations as JSON or CSV
//
// Every operation is an independent unit of work. The Engine itself is safe
// for concurrent use.
package engine
