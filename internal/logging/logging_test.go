package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/chronicle/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNew_ProductionWritesJSON(t *testing.T) {
	cfg := config.Default()
	cfg.Env = config.EnvProduction
	var buf bytes.Buffer

	New(&buf, cfg, false).Info("replay complete", "steps", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "replay complete", rec["msg"])
	assert.Equal(t, float64(3), rec["steps"])
}

func TestNew_DevelopmentWritesText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, config.Default(), false).Info("replay complete")
	assert.Contains(t, buf.String(), `msg="replay complete"`)
}

func TestNew_LevelFiltering(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "warn"
	var buf bytes.Buffer

	l := New(&buf, cfg, false)
	l.Info("hidden")
	assert.Empty(t, buf.String())

	New(&buf, cfg, true).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestTraceHandler_AddsSpanIDs(t *testing.T) {
	cfg := config.Default()
	cfg.Env = config.EnvProduction
	var buf bytes.Buffer
	l := New(&buf, cfg, false)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	l.InfoContext(ctx, "traced")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, sc.TraceID().String(), rec["trace_id"])
	assert.Equal(t, sc.SpanID().String(), rec["span_id"])
}
