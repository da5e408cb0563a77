// Package car implements the LCTP command dispatcher of the car: it owns the
// opened devices, routes GET/SET commands and samples the devices into
// CarState snapshots on a periodic telemetry loop.
package car

import (
	"context"
	"io"
	"sync"

	"github.com/robotalks/legocar.go/pkg/device"
	fx "github.com/robotalks/legocar.go/pkg/framework"
)

// Car is the set of opened devices of one car. Any device may be nil when
// the car doesn't have it.
type Car struct {
	Name       string
	LeftMotor  device.Motor
	RightMotor device.Motor
	Steering   device.Servo
	FrontLight device.Switch
	RearLight  device.Switch
	Inputs     []device.AnalogInput
	IMU        device.InertialUnit

	closers  []io.Closer
	once     sync.Once
	closeErr error
}

// AddCloser registers resources released by Close in reverse order.
func (c *Car) AddCloser(closers ...io.Closer) *Car {
	c.closers = append(c.closers, closers...)
	return c
}

// Close releases all registered resources exactly once.
func (c *Car) Close() error {
	c.once.Do(func() {
		errs := &fx.AggregatedError{}
		for i := len(c.closers) - 1; i >= 0; i-- {
			errs.Add(c.closers[i].Close())
		}
		c.closeErr = errs.Aggregate()
	})
	return c.closeErr
}

// Opener opens the devices of a car.
type Opener interface {
	Open(ctx context.Context) (*Car, error)
}

// OpenerFunc is the func form of Opener.
type OpenerFunc func(ctx context.Context) (*Car, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context) (*Car, error) {
	return f(ctx)
}
