package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/chronicle/internal/anomaly"
	"github.com/roach88/chronicle/internal/cache"
	"github.com/roach88/chronicle/internal/correlate"
	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/replay"
	"github.com/roach88/chronicle/internal/state"
	"github.com/roach88/chronicle/internal/store"
	"github.com/roach88/chronicle/internal/telemetry"
	"github.com/roach88/chronicle/internal/timeline"
)

// DefaultCorrelationTTL is how long computed correlations stay cached.
const DefaultCorrelationTTL = 30 * time.Second

// Options configures an Engine. Zero values select the component defaults.
type Options struct {
	Registry *state.Registry

	// Cache backs stream snapshots and correlations. Default: in-memory.
	Cache cache.Store

	SnapshotInterval int
	SnapshotTTL      time.Duration

	CorrelationWindow time.Duration
	MaxRelated        int
	CorrelationTTL    time.Duration

	// MaxCorrelationDuration bounds correlations whose call sets no bound.
	MaxCorrelationDuration time.Duration

	MaxEventsPerType int

	// MaxReplayDuration bounds replays and anomaly detection whose request
	// sets no MaxDuration.
	MaxReplayDuration time.Duration

	// IDs assigns ids to ingested events that carry none. Default: UUIDv7.
	IDs event.IDGenerator

	Logger    *slog.Logger
	Telemetry *telemetry.Telemetry
	Now       func() time.Time
}

// Engine is the entry point for every chronicle operation.
type Engine struct {
	store      store.Store
	ctrl       *replay.Controller
	recon      *state.Reconstructor
	correlator *correlate.Engine
	analyzer   *anomaly.Analyzer
	cache      cache.Store
	corrTTL    time.Duration
	maxReplay  time.Duration
	maxCorr    time.Duration
	ids        event.IDGenerator
	logger     *slog.Logger
	tel        *telemetry.Telemetry
}

// New creates an Engine over st. The caller keeps ownership of st.
func New(st store.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Noop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = state.DefaultRegistry()
	}
	c := opts.Cache
	if c == nil {
		c = cache.NewMemory()
	}
	ids := opts.IDs
	if ids == nil {
		ids = event.UUIDv7Generator{}
	}
	corrTTL := opts.CorrelationTTL
	if corrTTL <= 0 {
		corrTTL = DefaultCorrelationTTL
	}

	return &Engine{
		store: st,
		ctrl: replay.NewController(st, replay.Options{
			Registry:    registry,
			MaxDuration: opts.MaxReplayDuration,
			Logger:      logger,
			Telemetry:   tel,
			Now:         opts.Now,
		}),
		recon: state.NewReconstructor(
			state.WithRegistry(registry),
			state.WithSnapshotInterval(opts.SnapshotInterval),
			state.WithSnapshotCache(state.NewSnapshotCache(c, opts.SnapshotTTL)),
			state.WithLogger(logger),
		),
		correlator: correlate.New(correlate.Options{
			Window:     opts.CorrelationWindow,
			MaxRelated: opts.MaxRelated,
			Logger:     logger,
		}),
		analyzer: anomaly.NewAnalyzer(anomaly.Options{
			MaxEventsPerType: opts.MaxEventsPerType,
			Logger:           logger,
		}),
		cache:     c,
		corrTTL:   corrTTL,
		maxReplay: opts.MaxReplayDuration,
		maxCorr:   opts.MaxCorrelationDuration,
		ids:       ids,
		logger:    logger,
		tel:       tel,
	}
}

// Replay runs req to completion. See replay.Controller.Replay.
func (e *Engine) Replay(ctx context.Context, req replay.Request) (replay.Result, error) {
	return e.ctrl.Replay(ctx, req)
}

// Start begins a replay session driven by the caller.
func (e *Engine) Start(ctx context.Context, req replay.Request) (*replay.Session, error) {
	return e.ctrl.Start(ctx, req)
}

// DetectAnomalies runs the anomaly detectors over the events req selects.
//
// req.MaxDuration, or the engine's replay bound when unset, limits the
// detection phase; a report cut short has Truncated set.
func (e *Engine) DetectAnomalies(ctx context.Context, req replay.Request) (anomaly.Report, error) {
	loaded, err := e.ctrl.Load(ctx, req)
	if err != nil {
		return anomaly.Report{}, err
	}
	d := req.MaxDuration
	if d == 0 {
		d = e.maxReplay
	}
	actx, cancel := bounded(ctx, d)
	defer cancel()
	return e.analyzer.Analyze(actx, loaded.Events), nil
}

// bounded derives a context that expires after d. Zero or negative d only
// adds a cancel.
func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// expired reports whether ctx is done or past its deadline.
func expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	d, ok := ctx.Deadline()
	return ok && !time.Now().Before(d)
}

// Timeline lays out the events req selects.
func (e *Engine) Timeline(ctx context.Context, req replay.Request) (timeline.Timeline, error) {
	loaded, err := e.ctrl.Load(ctx, req)
	if err != nil {
		return timeline.Timeline{}, err
	}
	return timeline.Build(loaded.Events), nil
}

// Export replays req and encodes the result.
func (e *Engine) Export(ctx context.Context, req replay.Request, format replay.Format) ([]byte, error) {
	res, err := e.ctrl.Replay(ctx, req)
	if err != nil {
		return nil, err
	}
	return replay.Export(res, format)
}

// ExportCorrelations correlates rootID and encodes the result.
func (e *Engine) ExportCorrelations(ctx context.Context, rootID string, format replay.Format) ([]byte, error) {
	cs, err := e.Correlate(ctx, rootID)
	if err != nil {
		return nil, err
	}
	return replay.Export(cs, format)
}

// Streams lists the streams of one kind.
func (e *Engine) Streams(ctx context.Context, kind event.StreamKind) ([]store.StreamInfo, error) {
	return e.store.ListStreams(ctx, kind)
}
