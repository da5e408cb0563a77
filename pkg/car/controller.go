package car

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/legocar.go/pkg/framework"
	"github.com/robotalks/legocar.go/pkg/lctp"
)

// Status is the lifecycle state of the Controller.
type Status int32

// Controller states.
const (
	Idle Status = iota
	Active
	ShuttingDown
)

var statusNames = map[Status]string{
	Idle:         "idle",
	Active:       "active",
	ShuttingDown: "shutting-down",
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// ErrStopped is returned when activating a stopped controller.
var ErrStopped = errors.New("controller stopped")

// StateListener receives every published State. It is called on the
// telemetry goroutine and must not block.
type StateListener interface {
	StateChanged(s *State)
}

// StateListenerFunc is the func form of StateListener.
type StateListenerFunc func(s *State)

// StateChanged implements StateListener.
func (f StateListenerFunc) StateChanged(s *State) {
	f(s)
}

// Controller dispatches LCTP commands to the car and runs the telemetry
// loop while active.
//
// Commands hold a read lock for their whole dispatch, deactivation takes
// the write lock, so devices are never released under an in-flight command.
type Controller struct {
	Opener    Opener
	Interval  time.Duration
	Listeners []StateListener

	lock     sync.RWMutex
	status   Status
	stopped  bool
	baseCtx  context.Context
	car      *Car
	loop     *fx.Loop
	cancel   context.CancelFunc
	loopDone chan struct{}

	state      atomic.Pointer[State]
	readErrors atomic.Uint64
}

var (
	_ lctp.Handler        = &Controller{}
	_ lctp.RequestHandler = &Controller{}
)

// NewController creates a Controller with defaults.
func NewController(opener Opener) *Controller {
	return &Controller{Opener: opener, Interval: fx.DefaultInterval}
}

// AddListener registers a StateListener. It must be called before Run.
func (c *Controller) AddListener(listeners ...StateListener) *Controller {
	c.Listeners = append(c.Listeners, listeners...)
	return c
}

// Status returns the current lifecycle state.
func (c *Controller) Status() Status {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.status
}

// State returns the last published State, nil before the first cycle.
func (c *Controller) State() *State {
	return c.state.Load()
}

// ReadErrors returns the number of telemetry cycles dropped by read errors.
func (c *Controller) ReadErrors() uint64 {
	return c.readErrors.Load()
}

// Name implements Named.
func (c *Controller) Name() string {
	return "car-controller"
}

// Run implements Runnable. It binds the telemetry loop to ctx and on
// cancellation deactivates the car and refuses further activation.
func (c *Controller) Run(ctx context.Context) error {
	c.lock.Lock()
	c.baseCtx = ctx
	c.lock.Unlock()
	<-ctx.Done()
	c.lock.Lock()
	c.stopped = true
	c.lock.Unlock()
	c.Deactivate()
	return ctx.Err()
}

// Activate opens the car and starts the telemetry loop if idle. The first
// State is published by the loop, not by the caller.
func (c *Controller) Activate(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.activateLocked(ctx)
}

func (c *Controller) activateLocked(ctx context.Context) error {
	if c.stopped {
		return ErrStopped
	}
	if c.status == Active {
		return nil
	}
	if c.Opener == nil {
		return errors.New("no car configured")
	}
	car, err := c.Opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("open car: %w", err)
	}
	c.car = car

	base := c.baseCtx
	if base == nil {
		base = context.Background()
	}
	loopCtx, cancel := context.WithCancel(base)
	c.loop = fx.NewLoop()
	if c.Interval > 0 {
		c.loop.Interval = c.Interval
	}
	c.loop.AddController(fx.ControlFunc(func(cc fx.ControlContext) error {
		if err := c.sample(car, cc.Time()); err != nil {
			glog.Warningf("Telemetry cycle %d: %v", cc.Iteration(), err)
		}
		return nil
	}))
	c.cancel, c.loopDone = cancel, make(chan struct{})
	go func(loop *fx.Loop, done chan struct{}) {
		defer close(done)
		loop.Run(loopCtx)
	}(c.loop, c.loopDone)

	c.status = Active
	glog.Infof("Car %s activated", car.Name)
	return nil
}

// Deactivate stops the telemetry loop after its current cycle and closes
// the car. It waits for in-flight commands first.
func (c *Controller) Deactivate() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.status != Active {
		return
	}
	c.status = ShuttingDown
	c.cancel()
	<-c.loopDone
	if err := c.car.Close(); err != nil {
		glog.Warningf("Close car %s: %v", c.car.Name, err)
	}
	glog.Infof("Car %s deactivated", c.car.Name)
	c.car, c.loop, c.cancel, c.loopDone = nil, nil, nil, nil
	c.status = Idle
}

// acquire returns the active car with the read lock held, activating
// the controller when idle.
func (c *Controller) acquire(ctx context.Context) (*Car, func(), error) {
	for {
		c.lock.RLock()
		if c.stopped {
			c.lock.RUnlock()
			return nil, nil, ErrStopped
		}
		if c.status == Active {
			return c.car, c.lock.RUnlock, nil
		}
		c.lock.RUnlock()
		if err := c.Activate(ctx); err != nil {
			return nil, nil, err
		}
	}
}

// sample reads all devices and publishes a new State. On any read error
// the previous State stays published.
func (c *Controller) sample(car *Car, now time.Time) error {
	prev := c.state.Load()
	s, err := readState(car, now, prev)
	if err != nil {
		c.readErrors.Add(1)
		return err
	}
	c.state.Store(s)
	for _, l := range c.Listeners {
		l.StateChanged(s)
	}
	return nil
}

func readState(car *Car, now time.Time, prev *State) (*State, error) {
	s := &State{Timestamp: now}
	if prev != nil {
		s.Sequence = prev.Sequence + 1
		if now.Before(prev.Timestamp) {
			s.Timestamp = prev.Timestamp
		}
	}
	if car.LeftMotor != nil {
		s.LeftMotor = car.LeftMotor.Speed()
	}
	if car.RightMotor != nil {
		s.RightMotor = car.RightMotor.Speed()
	}
	if car.Steering != nil {
		s.SteerAngle = car.Steering.Angle()
	}
	if car.FrontLight != nil {
		s.FrontLight = car.FrontLight.On()
	}
	if car.RearLight != nil {
		s.RearLight = car.RearLight.On()
	}
	s.Speed = SpeedOf(s.LeftMotor, s.RightMotor)

	errs := &fx.AggregatedError{}
	s.Voltages = make([]float64, len(car.Inputs))
	for n, in := range car.Inputs {
		v, err := in.ReadVoltage()
		if err != nil {
			errs.Add(fmt.Errorf("adc %d: %w", n, err))
			continue
		}
		s.Voltages[n] = v
	}
	if car.IMU != nil {
		sample, err := car.IMU.ReadAll()
		if err != nil {
			errs.Add(fmt.Errorf("imu: %w", err))
		}
		s.Accel, s.Gyro, s.Mag, s.Temp = sample.Accel, sample.Gyro, sample.Mag, sample.Temp
		s.Orientation = OrientationFrom(s.Accel, s.Mag)
	} else {
		s.Orientation = Level()
	}
	if err := errs.Aggregate(); err != nil {
		return nil, err
	}
	return s, nil
}

// HandleCommand implements lctp.Handler.
func (c *Controller) HandleCommand(ctx context.Context, line string, peer lctp.Peer) lctp.Message {
	req, err := lctp.ParseRequest(line)
	if err != nil {
		glog.V(2).Infof("%s %s: %q: %v", peer.Transport, peer.ID, line, err)
		return lctp.BadRequest(err.Error())
	}
	resp := c.Dispatch(ctx, req)
	glog.V(2).Infof("%s %s: %s -> %s", peer.Transport, peer.ID, req, resp)
	return resp
}

// Dispatch implements lctp.RequestHandler.
func (c *Controller) Dispatch(ctx context.Context, req *lctp.Request) lctp.Message {
	switch req.Verb {
	case lctp.VerbPing:
		return lctp.Pong()
	case lctp.VerbDisconnect:
		c.Deactivate()
		return lctp.Disconnected()
	case lctp.VerbGet:
		if req.Path.String() == "state" {
			return lctp.OK(c.Status().String())
		}
	}

	if !routable(req) {
		return unknownPath(req.Path)
	}
	car, release, err := c.acquire(ctx)
	if err != nil {
		glog.Warningf("Activate car: %v", err)
		return lctp.InternalError(err.Error())
	}
	defer release()

	if req.Verb == lctp.VerbGet {
		return c.get(req.Path)
	}
	resp := c.set(car, req.Path, req.Value)
	if resp.IsOK() {
		c.loop.TriggerNext()
	}
	return resp
}
