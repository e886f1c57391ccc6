package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSrc string

// Error codes.
const (
	ErrCodeRead    = "CONFIG_READ"
	ErrCodeParse   = "CONFIG_PARSE"
	ErrCodeInvalid = "CONFIG_INVALID"
)

// Error is a configuration problem. Path names the offending setting or
// environment variable when known.
type Error struct {
	Code    string
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalid returns true if err contains a CONFIG_INVALID *Error.
func IsInvalid(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeInvalid
}

// Validate checks c against the embedded CUE schema. Every violation is
// reported; the result joins one *Error per path.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(c.document()))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return convertCUEError(err)
	}
	return nil
}

func convertCUEError(err error) error {
	var errs []error
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		errs = append(errs, &Error{
			Code:    ErrCodeInvalid,
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	if len(errs) == 0 {
		return &Error{Code: ErrCodeInvalid, Message: err.Error()}
	}
	return errors.Join(errs...)
}

// document is the shape the CUE schema constrains. Durations are rendered the
// way time.Duration prints them.
func (c Config) document() map[string]any {
	return map[string]any{
		"env": c.Env,
		"log": map[string]any{"level": c.Log.Level},
		"store": map[string]any{
			"driver": c.Store.Driver,
			"dsn":    c.Store.DSN,
		},
		"snapshot": map[string]any{"interval": c.Snapshot.Interval},
		"cache": map[string]any{
			"backend":   c.Cache.Backend,
			"redisAddr": c.Cache.RedisAddr,
			"ttl":       duration(c.Cache.TTL),
		},
		"correlation": map[string]any{
			"window":      duration(c.Correlation.Window),
			"maxRelated":  c.Correlation.MaxRelated,
			"maxDuration": duration(c.Correlation.MaxDuration),
		},
		"anomaly":   map[string]any{"maxEventsPerType": c.Anomaly.MaxEventsPerType},
		"replay":    map[string]any{"maxDuration": duration(c.Replay.MaxDuration)},
		"telemetry": map[string]any{"enabled": c.Telemetry.Enabled},
	}
}

func duration(d time.Duration) string {
	return d.String()
}
