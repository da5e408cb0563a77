package framework

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRemaining(t *testing.T) {
	testCases := []struct {
		name    string
		period  time.Duration
		elapsed time.Duration
		expect  time.Duration
	}{
		{"fast iteration", 100 * time.Millisecond, 10 * time.Millisecond, 90 * time.Millisecond},
		{"no time spent", 100 * time.Millisecond, 0, 100 * time.Millisecond},
		{"exactly one period", 100 * time.Millisecond, 100 * time.Millisecond, 0},
		{"overrun", 100 * time.Millisecond, 250 * time.Millisecond, 0},
		{"clock went back", 100 * time.Millisecond, -time.Millisecond, 100 * time.Millisecond},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, Remaining(tc.period, tc.elapsed))
		})
	}
}

func TestLoopRunsControllersInOrder(t *testing.T) {
	loop := NewLoop()
	loop.Interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var order []string
	loop.AddController(
		ControlFunc(func(cc ControlContext) error {
			order = append(order, "first")
			return nil
		}),
		ControlFunc(func(cc ControlContext) error {
			order = append(order, "second")
			if cc.Iteration() == 2 {
				cancel()
			}
			return nil
		}),
	)
	err := loop.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"first", "second", "first", "second"}, order)
	require.Equal(t, uint64(2), loop.Iterations())
}

func TestLoopCompletesIterationOnCancel(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	var finished int32
	loop.AddController(ControlFunc(func(cc ControlContext) error {
		cancel()
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
		return nil
	}))
	require.ErrorIs(t, loop.Run(ctx), context.Canceled)
	require.Equal(t, int32(1), atomic.LoadInt32(&finished))
	require.Equal(t, uint64(1), loop.Iterations())
}

func TestLoopTriggerNext(t *testing.T) {
	loop := NewLoop()
	loop.Interval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	iterCh := make(chan uint64, 4)
	loop.AddController(ControlFunc(func(cc ControlContext) error {
		iterCh <- cc.Iteration()
		return nil
	}))
	go loop.Run(ctx)

	require.Equal(t, uint64(1), <-iterCh)
	loop.TriggerNext()
	select {
	case n := <-iterCh:
		require.Equal(t, uint64(2), n)
	case <-time.After(time.Second):
		t.Fatal("triggered iteration not executed")
	}
}

func TestLoopDriftCorrection(t *testing.T) {
	loop := NewLoop()
	loop.Interval = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stamps []time.Time
	loop.AddController(ControlFunc(func(cc ControlContext) error {
		stamps = append(stamps, cc.Time())
		// slow iteration consuming most of the period.
		time.Sleep(15 * time.Millisecond)
		if len(stamps) == 5 {
			cancel()
		}
		return nil
	}))
	loop.Run(ctx)
	require.Len(t, stamps, 5)
	total := stamps[4].Sub(stamps[0])
	// four periods; an uncorrected loop would need 4*(20+15)ms.
	require.Less(t, total, 4*30*time.Millisecond)
	for i := 1; i < len(stamps); i++ {
		require.False(t, stamps[i].Before(stamps[i-1]))
	}
}
