package timectrl

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ReplayClock is the time source a dataset replay observes. Advance moves the
// clock to the given instant, blocking as long as the pacing policy requires.
// The clock is monotonic: advancing to an instant at or before Now is a no-op.
type ReplayClock interface {
	Now() time.Time
	Advance(ctx context.Context, to time.Time) error
	// AddListener registers a callback invoked after every advance.
	AddListener(fn func(time.Time))
}

// NewClock selects the pacing policy: a speedup of zero or less replays as
// fast as the pipeline can run, anything else paces dataset time against wall
// time at that multiple.
func NewClock(start time.Time, speedup float64) ReplayClock {
	if speedup <= 0 {
		return NewImmediate(start)
	}
	return NewPaced(start, speedup)
}

type clockBase struct {
	mu        sync.RWMutex
	now       time.Time
	listeners []func(time.Time)
}

func (b *clockBase) Now() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.now
}

// AddListener registers a callback invoked after every advance.
func (b *clockBase) AddListener(fn func(time.Time)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// set moves the clock forward and notifies listeners outside the lock.
func (b *clockBase) set(to time.Time) {
	b.mu.Lock()
	b.now = to
	listeners := append([]func(time.Time){}, b.listeners...)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(to)
	}
}

// ImmediateClock advances without waiting. It is the analysis-mode clock and
// the clock tests hand to the pipeline.
type ImmediateClock struct {
	clockBase
}

// NewImmediate returns a clock starting at the given instant.
func NewImmediate(start time.Time) *ImmediateClock {
	c := &ImmediateClock{}
	c.now = start
	return c
}

// Advance moves the clock to the given instant, honoring a cancelled context.
func (c *ImmediateClock) Advance(ctx context.Context, to time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !to.After(c.Now()) {
		return nil
	}
	c.set(to)
	return nil
}

// PacedClock advances dataset time in lockstep with wall time scaled by a
// speedup factor. Pacing rides on a token bucket refilled at the scaled rate,
// one token per dataset millisecond; the initial bucket is drained at
// construction so the first advance is already paced.
type PacedClock struct {
	clockBase

	limiter *rate.Limiter
	// burst caps a single WaitN, one wall second of dataset milliseconds.
	burst int
}

// NewPaced returns a paced clock. A speedup of 1 replays in real time, 60
// replays a minute of dataset per wall second.
func NewPaced(start time.Time, speedup float64) *PacedClock {
	burst := int(1000 * speedup)
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(1000*speedup), burst)
	l.AllowN(time.Now(), burst)

	c := &PacedClock{limiter: l, burst: burst}
	c.now = start
	return c
}

// Advance blocks until enough wall time has passed for the dataset to reach
// the given instant, then moves the clock. A cancelled context cuts the wait
// short and returns its error with the clock unmoved.
func (c *PacedClock) Advance(ctx context.Context, to time.Time) error {
	now := c.Now()
	if !to.After(now) {
		return ctx.Err()
	}

	remaining := int(to.Sub(now) / time.Millisecond)
	for remaining > 0 {
		n := remaining
		if n > c.burst {
			n = c.burst
		}
		if err := c.limiter.WaitN(ctx, n); err != nil {
			return err
		}
		remaining -= n
	}

	c.set(to)
	return nil
}
