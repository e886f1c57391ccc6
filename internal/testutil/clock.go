package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time for deterministic test clocks.
var Epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// DeterministicClock hands out evenly spaced timestamps for building event
// sequences.
//
// The same clock configuration always produces the same timestamps, so two
// sequences built from fresh clocks are identical.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewDeterministicClock creates a clock starting at start and advancing by
// step on every Next call. A zero start uses Epoch; a zero step uses one
// second.
func NewDeterministicClock(start time.Time, step time.Duration) *DeterministicClock {
	if start.IsZero() {
		start = Epoch
	}
	if step == 0 {
		step = time.Second
	}
	return &DeterministicClock{start: start.UTC(), step: step}
}

// Next returns the current time and advances the clock by one step.
//
// The first call returns start.
func (c *DeterministicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Now returns the time the next call to Next would return, without advancing.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.n) * c.step)
}

// Advance moves the clock forward by d without counting a step.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = c.start.Add(d)
}

// Reset rewinds the clock to its first step.
//
// Advance offsets are kept.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
