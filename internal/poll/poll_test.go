package poll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greyportal/internal/poll"
	"greyportal/internal/poll/polltest"
	"greyportal/internal/storage"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newPolicy(clock poll.Clock) poll.Policy {
	return poll.Policy{Interval: time.Second, Timeout: 20 * time.Second, Clock: clock}
}

func TestWait_FoundAfterFiveSeconds(t *testing.T) {
	clock := polltest.NewClock(epoch)
	policy := newPolicy(clock)

	out := policy.Wait(context.Background(), func(context.Context) storage.Presence {
		if clock.Now().Sub(epoch) < 5*time.Second {
			return storage.NotFound()
		}
		return storage.Found(storage.ObjectInfo{Key: "cat.png"})
	})

	assert.Equal(t, poll.StateFound, out.State)
	assert.Equal(t, 6, out.Attempts)
	assert.Equal(t, 5*time.Second, out.Elapsed)
	assert.Equal(t, "cat.png", out.Presence.Info.Key)
	assert.Len(t, clock.Sleeps(), 5)
	assert.NoError(t, out.Err)
}

func TestWait_FoundImmediately(t *testing.T) {
	clock := polltest.NewClock(epoch)

	out := newPolicy(clock).Wait(context.Background(), func(context.Context) storage.Presence {
		return storage.Found(storage.ObjectInfo{})
	})

	assert.Equal(t, poll.StateFound, out.State)
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, clock.Sleeps())
}

func TestWait_TimesOutAtBudget(t *testing.T) {
	clock := polltest.NewClock(epoch)
	checks := 0

	out := newPolicy(clock).Wait(context.Background(), func(context.Context) storage.Presence {
		checks++
		return storage.NotFound()
	})

	assert.Equal(t, poll.StateTimedOut, out.State)
	assert.Equal(t, 20, checks)
	assert.Equal(t, 20, out.Attempts)
	assert.GreaterOrEqual(t, out.Elapsed, 20*time.Second)
	assert.LessOrEqual(t, out.Elapsed, 21*time.Second)
	assert.LessOrEqual(t, clock.Slept(), 20*time.Second)
}

func TestWait_SlowChecksStillBounded(t *testing.T) {
	clock := polltest.NewClock(epoch)

	out := newPolicy(clock).Wait(context.Background(), func(context.Context) storage.Presence {
		clock.Advance(700 * time.Millisecond)
		return storage.NotFound()
	})

	assert.Equal(t, poll.StateTimedOut, out.State)
	assert.GreaterOrEqual(t, out.Elapsed, 20*time.Second)
	assert.Less(t, out.Elapsed, 20*time.Second+time.Second+700*time.Millisecond)
	assert.LessOrEqual(t, clock.Slept(), 20*time.Second)
}

func TestWait_NotFoundSleepsExactlyOnceBetweenChecks(t *testing.T) {
	clock := polltest.NewClock(epoch)
	var sleepsAtCheck []int

	out := newPolicy(clock).Wait(context.Background(), func(context.Context) storage.Presence {
		sleepsAtCheck = append(sleepsAtCheck, len(clock.Sleeps()))
		if len(sleepsAtCheck) == 4 {
			return storage.Found(storage.ObjectInfo{})
		}
		return storage.NotFound()
	})

	require.Equal(t, poll.StateFound, out.State)
	assert.Equal(t, []int{0, 1, 2, 3}, sleepsAtCheck)
	for _, d := range clock.Sleeps() {
		assert.Equal(t, time.Second, d)
	}
}

func TestWait_ErrorStopsImmediately(t *testing.T) {
	clock := polltest.NewClock(epoch)
	denied := errors.New("AccessDenied")
	checks := 0

	out := newPolicy(clock).Wait(context.Background(), func(context.Context) storage.Presence {
		checks++
		if checks == 3 {
			return storage.Failed(denied)
		}
		return storage.NotFound()
	})

	assert.Equal(t, poll.StateErrored, out.State)
	assert.Equal(t, 3, checks)
	assert.ErrorIs(t, out.Err, denied)
	assert.Len(t, clock.Sleeps(), 2)
}

func TestWait_CancelledWhileSleeping(t *testing.T) {
	clock := polltest.NewClock(epoch)
	ctx, cancel := context.WithCancel(context.Background())

	out := newPolicy(clock).Wait(ctx, func(context.Context) storage.Presence {
		cancel()
		return storage.NotFound()
	})

	assert.Equal(t, poll.StateErrored, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 1, out.Attempts)
}

func TestWait_CustomRetryable(t *testing.T) {
	clock := polltest.NewClock(epoch)
	policy := newPolicy(clock)
	policy.Retryable = func(storage.Presence) bool { return true }
	checks := 0

	out := policy.Wait(context.Background(), func(context.Context) storage.Presence {
		checks++
		if checks < 3 {
			return storage.Failed(errors.New("throttled"))
		}
		return storage.Found(storage.ObjectInfo{})
	})

	assert.Equal(t, poll.StateFound, out.State)
	assert.Equal(t, 3, checks)
}

func TestWait_Defaults(t *testing.T) {
	clock := polltest.NewClock(epoch)

	out := poll.Policy{Clock: clock}.Wait(context.Background(), func(context.Context) storage.Presence {
		return storage.NotFound()
	})

	assert.Equal(t, poll.StateTimedOut, out.State)
	assert.Equal(t, poll.DefaultTimeout, out.Elapsed)
	assert.Equal(t, int(poll.DefaultTimeout/poll.DefaultInterval), out.Attempts)
}

func TestRealClock_SleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := poll.RealClock().Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
