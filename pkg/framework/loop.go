package framework

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the loop period when Interval is not set.
const DefaultInterval = 100 * time.Millisecond

// Loop runs controllers periodically.
//
// Each iteration runs all controllers in the order they were added. The
// loop measures how long an iteration takes and only sleeps for the rest of
// the period, so slow iterations shorten the next sleep rather than push the
// schedule back. An iteration that overruns the whole period is followed
// immediately by the next one.
type Loop struct {
	Interval time.Duration

	controllers []Controller
	runners     []Runnable
	lock        sync.Mutex

	iterations uint64
	wakeUpCh   chan struct{}
	now        func() time.Time
}

type iteration struct {
	loop  *Loop
	ctx   context.Context
	time  time.Time
	count uint64
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{
		Interval: DefaultInterval,
		wakeUpCh: make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop.
func (l *Loop) AddController(ctls ...Controller) *Loop {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.controllers = append(l.controllers, ctls...)
	return l
}

// AddRunnable adds Runnables started together with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.runners = append(l.runners, runnables...)
	return l
}

// Iterations returns the number of iterations started so far.
func (l *Loop) Iterations() uint64 {
	return atomic.LoadUint64(&l.iterations)
}

// Run implements Runnable.
// The iteration in progress when ctx is cancelled always completes.
func (l *Loop) Run(ctx context.Context) error {
	l.lock.Lock()
	runners := l.runners
	l.lock.Unlock()

	if len(runners) > 0 {
		runner := NewRunnerWith(ctx)
		runner.Go(runners...)
		defer runner.Wait()
	}

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := l.now
	if now == nil {
		now = time.Now
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := now()
		l.runIteration(ctx, start)
		wait := Remaining(interval, now().Sub(start))
		if wait == 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case <-l.wakeUpCh:
			timer.Stop()
		}
	}
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Remaining returns what is left of period after elapsed, never negative.
func Remaining(period, elapsed time.Duration) time.Duration {
	if elapsed >= period {
		return 0
	}
	if elapsed < 0 {
		return period
	}
	return period - elapsed
}

func (l *Loop) runIteration(ctx context.Context, now time.Time) {
	l.lock.Lock()
	ctls := l.controllers
	l.lock.Unlock()
	iter := &iteration{
		loop:  l,
		ctx:   ctx,
		time:  now,
		count: atomic.AddUint64(&l.iterations, 1),
	}
	for _, ctl := range ctls {
		if err := ctl.Control(iter); err != nil {
			glog.Errorf("controller error: %v", err)
		}
	}
}

func (t *iteration) Context() context.Context {
	return t.ctx
}

func (t *iteration) Time() time.Time {
	return t.time
}

func (t *iteration) Iteration() uint64 {
	return t.count
}

func (t *iteration) TriggerNext() {
	t.loop.TriggerNext()
}
