package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoop_RecordsWithoutPanicking(t *testing.T) {
	tel := Noop()
	ctx, span := tel.Start(context.Background(), "replay", attribute.String("mode", "batch"))
	assert.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())

	tel.EventsReplayed(ctx, 3, "batch")
	tel.ReconstructionErrors(ctx, 1)
	tel.MalformedEvents(ctx, 0)
	tel.StoreRead(ctx, "events_by_stream")
	tel.ReplayDuration(ctx, 0.25, "completed")
	EndSpan(span, errors.New("boom"))
}

func TestNew_EnabledUsesGlobals(t *testing.T) {
	// The global providers default to no-ops until an SDK is installed.
	tel := New(true)
	_, span := tel.Start(context.Background(), "correlate")
	EndSpan(span, nil)
	assert.NotNil(t, tel.tracer)
}
