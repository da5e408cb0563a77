// Package motor drives the 4tronix motor controller. Each port takes a
// signed speed written as (port number, speed) to the controller.
package motor

import (
	"fmt"
	"sync"

	"github.com/robotalks/legocar.go/pkg/device"
	fx "github.com/robotalks/legocar.go/pkg/framework"
)

// Speed limits.
const (
	MinSpeed = -127
	MaxSpeed = 127
)

// DefaultAddr is the factory address of the Picon Zero.
const DefaultAddr device.Address = 0x22

// ErrOutOfRange rejects a speed outside MinSpeed..MaxSpeed.
var ErrOutOfRange = device.ErrOutOfRange

// Driver is an opened motor controller.
type Driver struct {
	Bus    device.Bus
	Handle device.Handle

	lock   sync.Mutex
	closer fx.CloseOnce
}

// Open opens the controller at addr.
func Open(bus device.Bus, addr device.Address) (*Driver, error) {
	h, err := bus.OpenDevice(addr)
	if err != nil {
		return nil, fmt.Errorf("open motor controller 0x%02x: %w", uint8(addr), err)
	}
	d := &Driver{Bus: bus, Handle: h}
	d.closer.Fn = func() error { return bus.CloseDevice(h) }
	return d, nil
}

// Port returns the port with number n.
func (d *Driver) Port(n int) *Port {
	return &Port{Driver: d, Number: n, MinSpeed: MinSpeed, MaxSpeed: MaxSpeed}
}

// Close releases the controller once.
func (d *Driver) Close() error {
	return d.closer.Close()
}

// Port is one motor output.
type Port struct {
	Driver   *Driver
	Number   int
	MinSpeed int
	MaxSpeed int

	speed int
	lock  sync.Mutex
}

var _ device.Motor = &Port{}

// SetSpeed implements device.Motor. The cached speed changes only when
// the write succeeds.
func (p *Port) SetSpeed(speed int) error {
	if speed < p.MinSpeed || speed > p.MaxSpeed {
		return fmt.Errorf("motor %d: %w: %d not in %d..%d", p.Number, ErrOutOfRange, speed, p.MinSpeed, p.MaxSpeed)
	}
	p.Driver.lock.Lock()
	err := p.Driver.Bus.WriteRegister(p.Driver.Handle, byte(p.Number), byte(int8(speed)))
	p.Driver.lock.Unlock()
	if err != nil {
		return err
	}
	p.lock.Lock()
	p.speed = speed
	p.lock.Unlock()
	return nil
}

// Speed implements device.Motor.
func (p *Port) Speed() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.speed
}
