package event

import (
	"fmt"
	"strings"
)

// StreamKind identifies which context field a stream is keyed by.
type StreamKind string

const (
	StreamWorkflow StreamKind = "workflow"
	StreamIssue    StreamKind = "issue"
	StreamUser     StreamKind = "user"
	StreamSession  StreamKind = "session"
)

// StreamKey addresses an ordered subsequence of the log sharing one context value.
type StreamKey struct {
	Kind StreamKind
	ID   string
}

// IsZero reports whether the key addresses no stream.
func (k StreamKey) IsZero() bool {
	return k.ID == ""
}

// String renders the key as "kind:id".
func (k StreamKey) String() string {
	if k.IsZero() {
		return ""
	}
	return string(k.Kind) + ":" + k.ID
}

// ParseStreamKey parses a "kind:id" string.
func ParseStreamKey(s string) (StreamKey, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return StreamKey{}, fmt.Errorf("invalid stream key %q: want kind:id", s)
	}
	switch k := StreamKind(kind); k {
	case StreamWorkflow, StreamIssue, StreamUser, StreamSession:
		return StreamKey{Kind: k, ID: id}, nil
	default:
		return StreamKey{}, fmt.Errorf("invalid stream key %q: unknown kind %q", s, kind)
	}
}
