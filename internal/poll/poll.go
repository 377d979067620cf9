// Package poll waits for an object to appear in a bucket using a fixed
// interval and a wall-clock budget:
//
//	pending → found | errored | timedOut
//
// Only results accepted by the policy's retry predicate are retried; anything
// else ends the wait immediately.
package poll

import (
	"context"
	"time"

	"greyportal/internal/storage"
)

const (
	DefaultInterval = 1 * time.Second
	DefaultTimeout  = 20 * time.Second
)

// State is the lifecycle state of a single wait.
type State string

const (
	StatePending  State = "pending"
	StateFound    State = "found"
	StateErrored  State = "errored"
	StateTimedOut State = "timed_out"
)

// Clock abstracts wall-clock time so the loop can be tested without real
// delays.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckFunc performs one existence check.
type CheckFunc func(ctx context.Context) storage.Presence

// Policy configures the wait loop. Zero values fall back to the defaults.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    Clock

	// Retryable decides whether a check result warrants another attempt.
	// Defaults to retrying only StateNotFound.
	Retryable func(storage.Presence) bool
}

// Outcome describes how a wait ended.
type Outcome struct {
	State    State
	Presence storage.Presence
	Attempts int
	Elapsed  time.Duration

	// Err is set for StateErrored: the failed check's error, or the context
	// error if the wait was cancelled while sleeping.
	Err error
}

// RetryOnNotFound is the default retry predicate.
func RetryOnNotFound(p storage.Presence) bool {
	return p.State == storage.StateNotFound
}

// Wait runs check until it reports the object as found, returns a result the
// policy does not retry, or the budget is exhausted. A new check is only
// started while the elapsed time is below the budget, so a timeout is never
// reported early and overshoots by at most one interval plus one check.
func (p Policy) Wait(ctx context.Context, check CheckFunc) Outcome {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clock := p.Clock
	if clock == nil {
		clock = RealClock()
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = RetryOnNotFound
	}

	start := clock.Now()
	out := Outcome{State: StatePending}

	for clock.Now().Sub(start) < timeout {
		out.Attempts++
		out.Presence = check(ctx)

		if out.Presence.State == storage.StateFound {
			out.State = StateFound
			out.Elapsed = clock.Now().Sub(start)
			return out
		}

		if !retryable(out.Presence) {
			out.State = StateErrored
			out.Err = out.Presence.Err
			out.Elapsed = clock.Now().Sub(start)
			return out
		}

		if err := clock.Sleep(ctx, interval); err != nil {
			out.State = StateErrored
			out.Err = err
			out.Elapsed = clock.Now().Sub(start)
			return out
		}
	}

	out.State = StateTimedOut
	out.Elapsed = clock.Now().Sub(start)
	return out
}
