package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/state"
	"github.com/roach88/chronicle/internal/store"
	"github.com/roach88/chronicle/internal/telemetry"
)

// Source is the read side of the event store used by replays.
// store.Store satisfies it.
type Source interface {
	EventsByStream(ctx context.Context, key event.StreamKey) ([]event.Raw, error)
	EventsUntil(ctx context.Context, t time.Time) ([]event.Raw, error)
	EventsByIDs(ctx context.Context, ids []string) ([]event.Raw, error)
}

// Options configures a Controller.
type Options struct {
	// Registry holds the transitions. Default: state.DefaultRegistry().
	Registry *state.Registry

	// MaxDuration bounds each run when the request sets none.
	MaxDuration time.Duration

	Logger    *slog.Logger
	Telemetry *telemetry.Telemetry

	// Now is the clock for StartedAt and Duration. Default: time.Now.
	Now func() time.Time
}

// Controller loads events and starts replay sessions.
// It holds no per-replay state and is safe for concurrent use.
type Controller struct {
	source      Source
	rc          *state.Reconstructor
	maxDuration time.Duration
	logger      *slog.Logger
	tel         *telemetry.Telemetry
	now         func() time.Time
}

// NewController creates a Controller reading from source. source may be nil
// when every request supplies inline events.
func NewController(source Source, opts Options) *Controller {
	c := &Controller{
		source:      source,
		maxDuration: opts.MaxDuration,
		logger:      opts.Logger,
		tel:         opts.Telemetry,
		now:         opts.Now,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tel == nil {
		c.tel = telemetry.Noop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	registry := opts.Registry
	if registry == nil {
		registry = state.DefaultRegistry()
	}
	c.rc = state.NewReconstructor(state.WithRegistry(registry), state.WithLogger(c.logger))
	return c
}

// Loaded is the normalized, filtered input of one request.
type Loaded struct {
	// Events are the surviving events in store order.
	Events []event.Event

	// Errors itemizes the malformed events that were dropped.
	Errors []ErrorEntry

	Total     int
	Filtered  int
	Malformed int
}

// Load fetches, normalizes and filters the events a request selects.
//
// Malformed events are dropped with a warning and itemized. A store failure
// returns a *store.UnavailableError.
func (c *Controller) Load(ctx context.Context, req Request) (Loaded, error) {
	if err := req.Validate(); err != nil {
		return Loaded{}, err
	}
	matcher, err := req.Filter.Compile()
	if err != nil {
		return Loaded{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	raws, err := c.fetch(ctx, req)
	if err != nil {
		return Loaded{}, err
	}

	out := Loaded{
		Events: make([]event.Event, 0, len(raws)),
		Errors: []ErrorEntry{},
		Total:  len(raws),
	}
	for i, raw := range raws {
		e, err := event.Normalize(raw)
		if err != nil {
			c.logger.Warn("dropping malformed event", "event_id", raw.ID, "index", i, "error", err)
			out.Errors = append(out.Errors, ErrorEntry{
				Kind:       KindMalformed,
				EventIndex: i,
				EventID:    raw.ID,
				Message:    err.Error(),
			})
			out.Malformed++
			continue
		}
		if !matcher.Match(e) {
			out.Filtered++
			continue
		}
		out.Events = append(out.Events, e)
	}
	c.tel.MalformedEvents(ctx, out.Malformed)
	return out, nil
}

func (c *Controller) fetch(ctx context.Context, req Request) (raws []event.Raw, err error) {
	if req.Events != nil {
		raws = make([]event.Raw, len(req.Events))
		for i, raw := range req.Events {
			if raw.Seq == 0 {
				raw.Seq = int64(i + 1)
			}
			raws[i] = raw
		}
		store.SortBySeq(raws)
		return raws, nil
	}
	if c.source == nil {
		return nil, fmt.Errorf("%w: no event source configured", ErrInvalidRequest)
	}

	ctx, span := c.tel.Start(ctx, "replay.load")
	defer func() { telemetry.EndSpan(span, err) }()

	var op string
	switch {
	case req.CorrelationID != "":
		op = "events by stream"
		key, _ := req.StreamKey()
		span.SetAttributes(attribute.String("stream", key.String()))
		raws, err = c.source.EventsByStream(ctx, key)
	case req.Until != nil:
		op = "events until"
		raws, err = c.source.EventsUntil(ctx, *req.Until)
	default:
		op = "events by ids"
		raws, err = c.source.EventsByIDs(ctx, req.EventIDs)
	}
	c.tel.StoreRead(ctx, op)
	if err != nil {
		if !store.IsUnavailable(err) {
			err = &store.UnavailableError{Op: op, Err: err}
		}
		return nil, err
	}
	if raws == nil {
		raws = []event.Raw{}
	}
	return raws, nil
}

// Start loads the request and returns a session ready to run.
//
// Batch sessions start Replaying and are driven by Resume; interactive ones
// start Paused. An empty selection yields a Completed session. When the store
// fails the session is returned Failed together with the error.
func (c *Controller) Start(ctx context.Context, req Request) (*Session, error) {
	startedAt := c.now().UTC()
	mode := req.EffectiveMode()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	loaded, err := c.Load(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}
		c.logger.Error("replay load failed", "error", err)
		s := newSession(c, req, mode, Loaded{Errors: []ErrorEntry{}}, startedAt)
		s.errors = append(s.errors, ErrorEntry{Kind: KindStoreUnavailable, EventIndex: -1, Message: err.Error()})
		s.end(ctx, StatusFailed)
		return s, err
	}

	s := newSession(c, req, mode, loaded, startedAt)
	switch {
	case len(loaded.Events) == 0:
		s.finish(ctx)
	case mode == ModeInteractive:
		s.status = StatusPaused
		s.publish()
	default:
		s.status = StatusReplaying
		s.publish()
	}
	return s, nil
}

// Replay runs a request to the end and returns the assembled result.
//
// Interactive requests run until the first halt-policy error, which leaves
// the result Paused. On store failure the Failed result is returned together
// with the error.
func (c *Controller) Replay(ctx context.Context, req Request) (Result, error) {
	s, err := c.Start(ctx, req)
	if err != nil {
		if s != nil {
			return s.Result(), err
		}
		return Result{}, err
	}
	if !s.Inspect().Status.Terminal() {
		if _, err := s.Resume(ctx); err != nil {
			return s.Result(), err
		}
	}
	return s.Result(), nil
}
