package inbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollerTickSkipsWhenHidden(t *testing.T) {
	var calls atomic.Int32
	var visible atomic.Bool
	p := NewPoller(PollerConfig{}, func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithVisibility(visible.Load))

	require.Equal(t, VerdictSkipped, p.Tick(context.Background()))
	require.Equal(t, int32(0), calls.Load())

	visible.Store(true)
	require.Equal(t, VerdictOK, p.Tick(context.Background()))
	require.Equal(t, int32(1), calls.Load())
}

func TestPollerStopsAfterMaxFailures(t *testing.T) {
	var calls atomic.Int32
	var verdicts []Verdict
	p := NewPoller(PollerConfig{}, func(context.Context) error {
		calls.Add(1)
		return errors.New("unreachable")
	}, OnVerdict(func(v Verdict, _ int) { verdicts = append(verdicts, v) }))

	for n := 0; n < 10; n++ {
		p.Tick(context.Background())
	}
	select {
	case <-p.Done():
		t.Fatal("done closed before the last allowed failure")
	default:
	}
	p.Tick(context.Background())
	require.Equal(t, PollerStopped, p.State())
	select {
	case <-p.Done():
	default:
		t.Fatal("done not closed after polling stopped")
	}
	require.Equal(t, VerdictStop, verdicts[len(verdicts)-1])
	require.Equal(t, int32(11), calls.Load())

	for n := 0; n < 5; n++ {
		require.Equal(t, VerdictStop, p.Tick(context.Background()))
	}
	require.Equal(t, int32(11), calls.Load())
	require.ErrorIs(t, p.Start(context.Background()), ErrPollerStopped)
}

func TestPollerLifecycle(t *testing.T) {
	clock := NewManualClock(baseNow)
	var calls atomic.Int32
	p := NewPoller(PollerConfig{Interval: 5 * time.Second}, func(context.Context) error {
		calls.Add(1)
		return nil
	}, WithPollerClock(clock))

	require.Equal(t, PollerIdle, p.State())
	require.NoError(t, p.Start(context.Background()))
	require.ErrorIs(t, p.Start(context.Background()), ErrPollerAlreadyRunning)
	require.Equal(t, PollerPolling, p.State())

	clock.Advance(4 * time.Second)
	require.Equal(t, int32(0), calls.Load())
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	p.Stop()
	require.Equal(t, PollerTerminated, p.State())
	require.Equal(t, 0, clock.Tickers())
	p.Stop()

	clock.Advance(time.Minute)
	require.Equal(t, VerdictSkipped, p.Tick(context.Background()))
	require.Equal(t, int32(1), calls.Load())
	require.ErrorIs(t, p.Start(context.Background()), ErrPollerStopped)
}

func TestPollerLoopExitsOnHardFailure(t *testing.T) {
	clock := NewManualClock(baseNow)
	var calls atomic.Int32
	p := NewPoller(PollerConfig{Interval: time.Second, SilentFailures: 1, MaxFailures: 2}, func(context.Context) error {
		calls.Add(1)
		return errors.New("down")
	}, WithPollerClock(clock))
	require.NoError(t, p.Start(context.Background()))

	for n := 1; n <= 3; n++ {
		clock.Advance(time.Second)
		want := int32(n)
		require.Eventually(t, func() bool { return calls.Load() == want }, time.Second, time.Millisecond)
	}
	require.Eventually(t, func() bool { return clock.Tickers() == 0 }, time.Second, time.Millisecond)
	require.Equal(t, PollerStopped, p.State())

	clock.Advance(10 * time.Second)
	require.Equal(t, int32(3), calls.Load())

	// Stop still works from the stopped state.
	p.Stop()
	require.Equal(t, PollerTerminated, p.State())
}

func TestPollerStopBeforeStart(t *testing.T) {
	p := NewPoller(PollerConfig{}, func(context.Context) error { return nil })
	p.Stop()
	require.Equal(t, PollerTerminated, p.State())
}

func TestPollerCanceledRefreshIsNotAFailure(t *testing.T) {
	p := NewPoller(PollerConfig{}, func(ctx context.Context) error { return ctx.Err() })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, VerdictSkipped, p.Tick(ctx))
	require.Equal(t, 0, p.Failures())
}
