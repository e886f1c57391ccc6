// Package event defines the canonical in-memory representation of an audit
// event and the normalization step that turns raw records into events.
//
// Events are immutable facts. A correction is expressed as a new event, never
// as an edit to an existing one. Every other package in chronicle consumes
// event.Event values produced by Normalize.
//
// # Type Taxonomy
//
// Event types are dotted strings of the form AGGREGATE.ACTION.STATUS, for
// example "workflow.step.failed". The engine never rejects a type it does not
// recognise: unknown types flow through normalization untouched so that a
// newly introduced event type never breaks replay of historical data.
//
// # Ordering
//
// The store assigns each appended event a monotonically increasing Seq. Seq
// is the replay order and breaks timestamp ties. Within a causal stream (same
// workflow or issue) Seq order is expected to be non-decreasing in Timestamp.
//
// # Payloads
//
// Data holds JSON-native values only (string, float64, bool, nil,
// map[string]any, []any). Normalize converts integers and YAML-decoded maps so
// that events survive a JSON round-trip unchanged.
package event
