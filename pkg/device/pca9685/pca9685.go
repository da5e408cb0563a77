// Package pca9685 drives the PCA9685 16-channel PWM controller used for
// the steering servo and the lights.
package pca9685

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robotalks/legocar.go/pkg/device"
	fx "github.com/robotalks/legocar.go/pkg/framework"
)

// DefaultAddr is the factory address.
const DefaultAddr device.Address = 0x40

// Registers.
const (
	RegMode1    byte = 0x00
	RegMode2    byte = 0x01
	RegLED0OnL  byte = 0x06
	RegPrescale byte = 0xfe
)

// MODE1/MODE2 bits.
const (
	mode1Restart byte = 0x80
	mode1AI      byte = 0x20
	mode1Sleep   byte = 0x10
	mode2OutDrv  byte = 0x04

	fullBit byte = 0x10
)

const (
	oscillator = 25000000.0
	steps      = 4096

	// NumChannels is the number of PWM outputs.
	NumChannels = 16
	// DefaultFrequency suits analog servos.
	DefaultFrequency = 50.0
)

// Prescale computes the PRESCALE value for freq Hz.
func Prescale(freq float64) byte {
	v := math.Round(oscillator/(steps*freq)) - 1
	return byte(math.Max(3, math.Min(255, v)))
}

// Controller is an opened PCA9685.
type Controller struct {
	Bus       device.Bus
	Handle    device.Handle
	Frequency float64

	lock   sync.Mutex
	closer fx.CloseOnce
}

// Open resets the controller and sets the PWM frequency.
func Open(bus device.Bus, addr device.Address, freq float64) (*Controller, error) {
	if freq <= 0 {
		freq = DefaultFrequency
	}
	h, err := bus.OpenDevice(addr)
	if err != nil {
		return nil, fmt.Errorf("open pca9685 0x%02x: %w", uint8(addr), err)
	}
	c := &Controller{Bus: bus, Handle: h, Frequency: freq}
	c.closer.Fn = func() error { return bus.CloseDevice(h) }
	if err := c.setup(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Controller) setup() error {
	writes := []struct{ reg, value byte }{
		{RegMode1, mode1Sleep},
		{RegPrescale, Prescale(c.Frequency)},
		{RegMode2, mode2OutDrv},
		{RegMode1, 0},
	}
	for _, w := range writes {
		if err := c.Bus.WriteRegister(c.Handle, w.reg, w.value); err != nil {
			return err
		}
	}
	// oscillator start up
	time.Sleep(500 * time.Microsecond)
	return c.Bus.WriteRegister(c.Handle, RegMode1, mode1Restart|mode1AI)
}

func channelReg(ch int) (byte, error) {
	if ch < 0 || ch >= NumChannels {
		return 0, fmt.Errorf("invalid pwm channel %d", ch)
	}
	return RegLED0OnL + byte(4*ch), nil
}

func (c *Controller) write4(ch int, onL, onH, offL, offH byte) error {
	reg, err := channelReg(ch)
	if err != nil {
		return err
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	for i, v := range []byte{onL, onH, offL, offH} {
		if err := c.Bus.WriteRegister(c.Handle, reg+byte(i), v); err != nil {
			return err
		}
	}
	return nil
}

// SetPWM sets the on and off counts (0..4095) of a channel.
func (c *Controller) SetPWM(ch int, on, off uint16) error {
	on, off = on&0x0fff, off&0x0fff
	return c.write4(ch, byte(on), byte(on>>8), byte(off), byte(off>>8))
}

// SetFull drives a channel fully on or fully off.
func (c *Controller) SetFull(ch int, on bool) error {
	if on {
		return c.write4(ch, 0, fullBit, 0, 0)
	}
	return c.write4(ch, 0, 0, 0, fullBit)
}

// SetPulse sets the high time of a channel.
func (c *Controller) SetPulse(ch int, pulse time.Duration) error {
	period := time.Duration(float64(time.Second) / c.Frequency)
	count := math.Round(float64(pulse) / float64(period) * steps)
	count = math.Max(0, math.Min(steps-1, count))
	return c.SetPWM(ch, 0, uint16(count))
}

// Close releases the controller once.
func (c *Controller) Close() error {
	return c.closer.Close()
}
