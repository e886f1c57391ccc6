// Package telemetry wraps the OpenTelemetry API for chronicle's replay,
// correlation and store paths.
//
// No exporter is configured here. When enabled, instruments come from the
// global providers, so an embedding process that installs an SDK sees
// chronicle's spans and metrics; otherwise every call is a no-op.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/roach88/chronicle"

// Telemetry holds chronicle's tracer and instruments.
type Telemetry struct {
	tracer trace.Tracer

	eventsReplayed       metric.Int64Counter
	reconstructionErrors metric.Int64Counter
	malformedEvents      metric.Int64Counter
	storeReads           metric.Int64Counter
	replayDuration       metric.Float64Histogram
}

// New returns telemetry bound to the global providers when enabled, or to
// no-op providers otherwise.
func New(enabled bool) *Telemetry {
	var tp trace.TracerProvider = tracenoop.NewTracerProvider()
	var mp metric.MeterProvider = metricnoop.NewMeterProvider()
	if enabled {
		tp = otel.GetTracerProvider()
		mp = otel.GetMeterProvider()
	}
	return newWith(tp, mp)
}

// Noop returns telemetry that records nothing.
func Noop() *Telemetry {
	return New(false)
}

func newWith(tp trace.TracerProvider, mp metric.MeterProvider) *Telemetry {
	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	if t.eventsReplayed, err = meter.Int64Counter("chronicle.replay.events",
		metric.WithDescription("Events folded by replay sessions")); err != nil {
		return fallback(err)
	}
	if t.reconstructionErrors, err = meter.Int64Counter("chronicle.replay.reconstruction_errors",
		metric.WithDescription("Transitions that failed during replay")); err != nil {
		return fallback(err)
	}
	if t.malformedEvents, err = meter.Int64Counter("chronicle.events.malformed",
		metric.WithDescription("Raw events rejected by normalization")); err != nil {
		return fallback(err)
	}
	if t.storeReads, err = meter.Int64Counter("chronicle.store.reads",
		metric.WithDescription("Event store read operations")); err != nil {
		return fallback(err)
	}
	if t.replayDuration, err = meter.Float64Histogram("chronicle.replay.duration",
		metric.WithDescription("Wall time of replay runs"),
		metric.WithUnit("s")); err != nil {
		return fallback(err)
	}
	return t
}

func fallback(err error) *Telemetry {
	slog.Warn("telemetry instruments unavailable, disabling", "error", err)
	return newWith(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
}

// Start opens a span named name.
func (t *Telemetry) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// EventsReplayed counts folded events.
func (t *Telemetry) EventsReplayed(ctx context.Context, n int, mode string) {
	t.eventsReplayed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("mode", mode)))
}

// ReconstructionErrors counts failed transitions.
func (t *Telemetry) ReconstructionErrors(ctx context.Context, n int) {
	if n > 0 {
		t.reconstructionErrors.Add(ctx, int64(n))
	}
}

// MalformedEvents counts rejected raw events.
func (t *Telemetry) MalformedEvents(ctx context.Context, n int) {
	if n > 0 {
		t.malformedEvents.Add(ctx, int64(n))
	}
}

// StoreRead counts one store read of the given operation.
func (t *Telemetry) StoreRead(ctx context.Context, op string) {
	t.storeReads.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// ReplayDuration records the wall time of one replay run in seconds.
func (t *Telemetry) ReplayDuration(ctx context.Context, seconds float64, status string) {
	t.replayDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}
