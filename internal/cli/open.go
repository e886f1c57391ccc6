package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/chronicle/internal/cache"
	"github.com/roach88/chronicle/internal/config"
	"github.com/roach88/chronicle/internal/engine"
	"github.com/roach88/chronicle/internal/replay"
	"github.com/roach88/chronicle/internal/store"
	"github.com/roach88/chronicle/internal/store/pgstore"
	"github.com/roach88/chronicle/internal/telemetry"
)

var openPostgres = pgstore.Open

// openStore opens the configured event store.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		st, err := openPostgres(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite, "":
		st, err := store.Open(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openEngine wires an Engine from the configuration. The returned close
// function releases the store and cache.
func openEngine(ctx context.Context, opts *RootOptions) (*engine.Engine, func() error, error) {
	cfg := opts.settings()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open event store", err)
	}
	c, err := cache.New(cache.Options{
		Backend:   cfg.Cache.Backend,
		RedisAddr: cfg.Cache.RedisAddr,
		Prefix:    "chronicle:",
	})
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to open cache", err)
	}

	e := engine.New(st, engine.Options{
		Cache:                  c,
		SnapshotInterval:       cfg.Snapshot.Interval,
		SnapshotTTL:            cfg.Cache.TTL,
		CorrelationWindow:      cfg.Correlation.Window,
		MaxRelated:             cfg.Correlation.MaxRelated,
		MaxCorrelationDuration: cfg.Correlation.MaxDuration,
		MaxEventsPerType:       cfg.Anomaly.MaxEventsPerType,
		MaxReplayDuration:      cfg.Replay.MaxDuration,
		Logger:                 opts.logger(),
		Telemetry:              telemetry.New(cfg.Telemetry.Enabled),
	})

	closeFn := func() error {
		err := st.Close()
		if cl, ok := c.(io.Closer); ok {
			err = errors.Join(err, cl.Close())
		}
		return err
	}
	return e, closeFn, nil
}

// commandError maps an engine error to an ExitError, writing the error
// response first in JSON mode.
func commandError(f *OutputFormatter, message string, err error) error {
	code, exit := errorCode(err)
	if f.Format == "json" {
		if werr := f.Error(code, fmt.Sprintf("%s: %v", message, err), nil); werr != nil {
			return werr
		}
	}
	return WrapExitError(exit, message, err)
}

func errorCode(err error) (string, int) {
	switch {
	case store.IsUnavailable(err):
		return store.ErrCodeUnavailable, ExitCommandError
	case engine.IsNotFound(err):
		return string(engine.ErrCodeNotFound), ExitCommandError
	case engine.IsNonDeterministic(err):
		return string(engine.ErrCodeNonDeterministic), ExitFailure
	case errors.Is(err, replay.ErrInvalidRequest):
		return "INVALID_REQUEST", ExitCommandError
	default:
		return "ERROR", ExitCommandError
	}
}
