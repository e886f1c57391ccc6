package replay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/chronicle/internal/diff"
	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/state"
)

// Command errors.
var (
	ErrNotInteractive = errors.New("command requires an interactive replay")
	ErrFinished       = errors.New("replay already finished")
)

// Session is one replay in progress.
//
// Commands are serialized; Pause, Cancel and Inspect may be called from
// another goroutine while Resume or Step is running and take effect at the
// next event boundary.
type Session struct {
	mu sync.Mutex

	ctrl        *Controller
	mode        Mode
	policy      state.Policy
	maxDuration time.Duration

	events  []event.Event
	initial state.State
	cur     state.State
	cursor  int
	steps   []Step
	errors  []ErrorEntry
	status  Status

	summary Summary

	pauseReq  atomic.Bool
	cancelReq atomic.Bool
	queued    atomic.Int32
	progress  atomic.Pointer[State]
}

func newSession(c *Controller, req Request, mode Mode, loaded Loaded, startedAt time.Time) *Session {
	maxDuration := req.MaxDuration
	if maxDuration == 0 {
		maxDuration = c.maxDuration
	}
	initial := state.New()
	s := &Session{
		ctrl:        c,
		mode:        mode,
		policy:      req.EffectivePolicy(),
		maxDuration: maxDuration,
		events:      loaded.Events,
		initial:     initial,
		cur:         initial,
		steps:       make([]Step, 0, len(loaded.Events)),
		errors:      slices.Clone(loaded.Errors),
		status:      StatusLoading,
		summary: Summary{
			TotalEvents: loaded.Total,
			Loaded:      len(loaded.Events),
			Filtered:    loaded.Filtered,
			Malformed:   loaded.Malformed,
			StartedAt:   startedAt,
		},
	}
	if s.errors == nil {
		s.errors = []ErrorEntry{}
	}
	s.publish()
	return s
}

// Inspect returns the state after the most recent command. It never blocks.
func (s *Session) Inspect() State {
	return *s.progress.Load()
}

// Step folds up to n events (at least one) and pauses.
func (s *Session) Step(ctx context.Context, n int) (State, error) {
	s.lock()
	defer s.mu.Unlock()
	if err := s.check(true); err != nil {
		return s.Inspect(), err
	}
	s.run(ctx, max(n, 1))
	return s.Inspect(), nil
}

// Resume folds events until the end, a pause request, or, in interactive
// mode, a halt-policy error.
func (s *Session) Resume(ctx context.Context) (State, error) {
	s.lock()
	defer s.mu.Unlock()
	if err := s.check(false); err != nil {
		return s.Inspect(), err
	}
	s.run(ctx, -1)
	return s.Inspect(), nil
}

// Pause asks a running interactive session to stop at the next event
// boundary. Pausing an idle session is a no-op unless a command is already
// waiting to run, in which case that command pauses.
func (s *Session) Pause() error {
	if s.mode != ModeInteractive {
		return ErrNotInteractive
	}
	s.pauseReq.Store(true)
	if s.mu.TryLock() {
		// A command waiting for the lock takes the pause.
		if s.queued.Load() == 0 {
			s.pauseReq.Store(false)
		}
		s.mu.Unlock()
	}
	return nil
}

// lock acquires mu for a folding command, marking it queued while it waits.
func (s *Session) lock() {
	s.queued.Add(1)
	s.mu.Lock()
	s.queued.Add(-1)
}

// Cancel ends the session as Completed with Cancelled set, keeping every
// folded step. A running command stops at the next event boundary.
func (s *Session) Cancel() State {
	s.cancelReq.Store(true)
	if s.mu.TryLock() {
		if !s.status.Terminal() {
			s.summary.Cancelled = true
			s.finish(context.Background())
		}
		s.mu.Unlock()
	}
	return s.Inspect()
}

// Jump moves the cursor to index, 0 <= index <= total. Moving backwards
// restores the recorded state at index and discards later steps; moving
// forwards folds the intervening events, stopping early on a halt-policy
// error.
func (s *Session) Jump(ctx context.Context, index int) (State, error) {
	s.lock()
	defer s.mu.Unlock()
	if s.mode != ModeInteractive {
		return s.Inspect(), ErrNotInteractive
	}
	if s.status == StatusFailed || s.summary.Cancelled || s.summary.Truncated {
		return s.Inspect(), ErrFinished
	}
	if index < 0 || index > len(s.events) {
		return s.Inspect(), fmt.Errorf("jump index %d out of range [0, %d]", index, len(s.events))
	}

	if index < s.cursor {
		s.rewind(index)
		s.status = StatusPaused
		s.publish()
		return s.Inspect(), nil
	}
	if index > s.cursor {
		s.run(ctx, index-s.cursor)
	}
	return s.Inspect(), nil
}

// Result assembles the result as of now. It waits for a running command.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := s.summary
	summary.Processed = len(s.steps)
	summary.Skipped = 0
	for _, st := range s.steps {
		if st.Skipped {
			summary.Skipped++
		}
	}
	if !s.status.Terminal() {
		summary.Duration = s.ctrl.now().Sub(summary.StartedAt)
	}
	summary.FinalFingerprint, _ = s.cur.Fingerprint()

	return Result{
		Status:     s.status,
		Mode:       s.mode,
		Steps:      slices.Clone(s.steps),
		FinalState: s.cur,
		Errors:     slices.Clone(s.errors),
		Summary:    summary,
	}
}

func (s *Session) check(interactiveOnly bool) error {
	if interactiveOnly && s.mode != ModeInteractive {
		return ErrNotInteractive
	}
	if s.status.Terminal() {
		return ErrFinished
	}
	return nil
}

// run folds at most limit events (all when limit < 0). Caller holds mu.
func (s *Session) run(ctx context.Context, limit int) {
	if s.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.maxDuration)
		defer cancel()
	}

	s.status = StatusReplaying
	s.publish()

	folded, failed := 0, 0
	defer func() {
		s.ctrl.tel.EventsReplayed(ctx, folded, string(s.mode))
		s.ctrl.tel.ReconstructionErrors(ctx, failed)
	}()

	for s.cursor < len(s.events) && (limit < 0 || folded < limit) {
		if s.cancelReq.Load() {
			s.summary.Cancelled = true
			break
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				s.summary.Cancelled = true
			} else {
				s.summary.Truncated = true
			}
			break
		}
		if s.pauseReq.Swap(false) && s.mode == ModeInteractive {
			s.status = StatusPaused
			s.publish()
			return
		}

		ok := s.fold()
		folded++
		if !ok {
			failed++
			if s.policy == state.PolicyHalt {
				s.summary.Halted = true
				if s.mode == ModeInteractive && s.cursor < len(s.events) {
					s.status = StatusPaused
					s.publish()
					return
				}
				s.finish(ctx)
				return
			}
		}
		s.publish()
	}

	if s.summary.Cancelled || s.summary.Truncated || s.cursor >= len(s.events) {
		s.finish(ctx)
		return
	}
	s.status = StatusPaused
	s.publish()
}

// fold applies the event at the cursor and records the step. It returns
// false if the transition failed.
func (s *Session) fold() bool {
	idx := s.cursor
	e := s.events[idx]
	prev := s.cur

	next, rerr := s.ctrl.rc.Apply(prev, e, idx)
	step := Step{
		Index:         idx,
		Event:         e,
		PreviousState: prev,
		NewState:      next,
		Diff:          diff.Compute(prev, next),
	}
	step.Fingerprint, _ = next.Fingerprint()
	if rerr != nil {
		step.Skipped = true
		s.errors = append(s.errors, ErrorEntry{
			Kind:       KindReconstruction,
			EventIndex: idx,
			EventID:    e.ID,
			Message:    rerr.Message,
		})
		s.ctrl.logger.Warn("transition failed",
			"event_id", e.ID,
			"event_type", string(e.Type),
			"index", idx,
			"policy", string(s.policy),
			"error", rerr.Message)
	}

	s.steps = append(s.steps, step)
	s.cur = next
	s.cursor++
	return rerr == nil
}

// rewind restores the state recorded before event index.
func (s *Session) rewind(index int) {
	s.steps = s.steps[:index]
	if index == 0 {
		s.cur = s.initial
	} else {
		s.cur = s.steps[index-1].NewState
	}
	s.cursor = index
	kept := s.errors[:0:0]
	for _, e := range s.errors {
		if e.Kind == KindReconstruction && e.EventIndex >= index {
			continue
		}
		kept = append(kept, e)
	}
	s.errors = kept
	s.summary.Halted = false
}

func (s *Session) finish(ctx context.Context) {
	s.end(ctx, StatusCompleted)
}

// end moves the session to a terminal status and records its duration.
func (s *Session) end(ctx context.Context, status Status) {
	s.status = status
	s.summary.Duration = s.ctrl.now().Sub(s.summary.StartedAt)
	s.ctrl.tel.ReplayDuration(ctx, s.summary.Duration.Seconds(), string(s.status))
	s.publish()
}

func (s *Session) publish() {
	st := State{
		Status:    s.status,
		Mode:      s.mode,
		Cursor:    s.cursor,
		Total:     len(s.events),
		Current:   s.cur,
		Errors:    len(s.errors),
		Halted:    s.summary.Halted,
		Cancelled: s.summary.Cancelled,
		Truncated: s.summary.Truncated,
	}
	if n := len(s.steps); n > 0 {
		last := s.steps[n-1]
		st.LastStep = &last
	}
	s.progress.Store(&st)
}
