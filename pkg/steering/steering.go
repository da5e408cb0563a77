// Package steering drives a car from a joystick: one axis turns the
// steering servo, another one drives both motors.
package steering

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/legocar.go/pkg/framework"
	"github.com/robotalks/legocar.go/pkg/steering/device"
)

// Setter writes paths on the car, implemented by *lctp.Client.
type Setter interface {
	Set(ctx context.Context, path, value string) error
}

// DefaultRetryInterval is the wait between attempts to open the joystick.
const DefaultRetryInterval = time.Second

// Command is what the controller sends to the car in one iteration.
type Command struct {
	Angle int
	Speed int
}

// Controller forwards the joystick position to a car.
type Controller struct {
	Config        Config
	Car           Setter
	RetryInterval time.Duration

	// Open opens the joystick, device.Open or device.Detect by default.
	Open func(index int) (device.Device, error)

	lock     sync.Mutex
	attached string
	steer    int
	throttle int
	stopped  bool

	sent    *Command
	pending bool
}

// NewController creates a Controller.
func NewController(car Setter) *Controller {
	return &Controller{
		Config:        defaultConfig,
		Car:           car,
		RetryInterval: DefaultRetryInterval,
	}
}

// AddToLoop implements LoopAdder.
func (c *Controller) AddToLoop(loop *fx.Loop) {
	loop.Interval = c.Config.Interval
	loop.AddRunnable(c)
	loop.AddController(c)
}

// Name implements Named.
func (c *Controller) Name() string {
	return "steering"
}

// Angle maps an axis position to a steering angle.
func (c *Config) Angle(axis int) int {
	return c.Center + scale(axis, c.Range)
}

// Speed maps an axis position to a motor speed. Pushing the stick
// forward reports negative values and drives forward.
func (c *Config) Speed(axis int) int {
	return -scale(axis, c.MaxSpeed)
}

func scale(axis, limit int) int {
	return int(math.Round(float64(axis) * float64(limit) / device.AxisMax))
}

// Attached returns the name of the joystick in use, empty without one.
func (c *Controller) Attached() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.attached
}

// Current returns the command for the joystick position. The motors are
// stopped without a joystick or with the stop button held.
func (c *Controller) Current() Command {
	c.lock.Lock()
	defer c.lock.Unlock()
	cmd := Command{Angle: c.Config.Angle(c.steer)}
	if c.attached != "" && !c.stopped {
		cmd.Speed = c.Config.Speed(c.throttle)
	}
	return cmd
}

// Control implements Controller. The command is repeated every iteration
// while a joystick is attached so the car keeps following it.
func (c *Controller) Control(cc fx.ControlContext) error {
	cmd := c.Current()
	if c.Attached() == "" && c.sent != nil && *c.sent == cmd && !c.pending {
		return nil
	}
	if err := c.send(cc.Context(), cmd); err != nil {
		c.pending = true
		return err
	}
	c.sent, c.pending = &cmd, false
	return nil
}

func (c *Controller) send(ctx context.Context, cmd Command) error {
	angle, speed := strconv.Itoa(cmd.Angle), strconv.Itoa(cmd.Speed)
	var errs []error
	for _, set := range [][2]string{
		{"steer/angle", angle},
		{"motor/left", speed},
		{"motor/right", speed},
	} {
		if err := c.Car.Set(ctx, set[0], set[1]); err != nil {
			errs = append(errs, fmt.Errorf("SET %s %s: %w", set[0], set[1], err))
		}
	}
	return errors.Join(errs...)
}

// HandleEvent applies a joystick event.
func (c *Controller) HandleEvent(ev device.Event) {
	if c.Config.Verbose {
		prefix := ""
		if ev.Init {
			prefix = "[INIT] "
		}
		if ev.IsAxis() {
			glog.Infof("%sAxis %d: %d", prefix, ev.Number, ev.Value)
		} else if ev.IsButton() {
			glog.Infof("%sButton %d: %v", prefix, ev.Number, ev.Pressed())
		}
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	switch {
	case ev.IsAxis() && int(ev.Number) == c.Config.SteerAxis:
		c.steer = int(ev.Value)
	case ev.IsAxis() && int(ev.Number) == c.Config.ThrottleAxis:
		c.throttle = int(ev.Value)
	case ev.IsButton() && int(ev.Number) == c.Config.StopButton:
		c.stopped = ev.Pressed()
	}
}

func (c *Controller) attach(name string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.attached = name
	c.steer, c.throttle, c.stopped = 0, 0, false
}

func (c *Controller) open() (device.Device, error) {
	if c.Open != nil {
		return c.Open(c.Config.DeviceIndex)
	}
	if c.Config.DeviceIndex < 0 {
		return device.Detect(0)
	}
	return device.Open(c.Config.DeviceIndex)
}

// Run implements Runnable. It opens the joystick, reads its events until
// it is unplugged and opens it again.
func (c *Controller) Run(ctx context.Context) error {
	retry := c.RetryInterval
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	for {
		js, err := c.open()
		switch {
		case err != nil:
			glog.Warningf("Open joystick: %v", err)
		case js == nil:
			glog.V(1).Info("No joystick detected")
		default:
			glog.Infof("Joystick %d %q opened: %d axes, %d buttons",
				js.Index(), js.Name(), js.AxisCount(), js.ButtonCount())
			c.attach(js.Name())
			err = fx.RunWithContextCloser(ctx, js, func() error {
				return c.poll(js)
			})
			c.attach("")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			glog.Warningf("Joystick %q detached: %v", js.Name(), err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

func (c *Controller) poll(js device.Device) error {
	for {
		ev, err := js.ReadEvent()
		if err != nil {
			return err
		}
		c.HandleEvent(ev)
	}
}
