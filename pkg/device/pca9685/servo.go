package pca9685

import (
	"sync"
	"time"

	"github.com/robotalks/legocar.go/pkg/device"
)

// ServoConfig describes how degrees map to pulse widths.
type ServoConfig struct {
	MinAngle int           `yaml:"min-angle"`
	MaxAngle int           `yaml:"max-angle"`
	MinPulse time.Duration `yaml:"min-pulse"`
	MaxPulse time.Duration `yaml:"max-pulse"`
}

// DefaultServoConfig maps 0..180 degrees to 1.0..2.0 ms.
func DefaultServoConfig() ServoConfig {
	return ServoConfig{
		MinAngle: 0,
		MaxAngle: 180,
		MinPulse: time.Millisecond,
		MaxPulse: 2 * time.Millisecond,
	}
}

// Clamp limits deg to the configured range.
func (c ServoConfig) Clamp(deg int) int {
	if deg < c.MinAngle {
		return c.MinAngle
	}
	if deg > c.MaxAngle {
		return c.MaxAngle
	}
	return deg
}

// Pulse returns the pulse width for deg, clamped to the range.
func (c ServoConfig) Pulse(deg int) time.Duration {
	deg = c.Clamp(deg)
	span := c.MaxAngle - c.MinAngle
	if span <= 0 {
		return c.MinPulse
	}
	return c.MinPulse + time.Duration(int64(c.MaxPulse-c.MinPulse)*int64(deg-c.MinAngle)/int64(span))
}

// Servo is a servo on a PWM channel.
type Servo struct {
	Controller *Controller
	Channel    int
	Config     ServoConfig

	angle int
	lock  sync.Mutex
}

var _ device.Servo = &Servo{}

// NewServo creates a servo on channel ch.
func NewServo(c *Controller, ch int, conf ServoConfig) *Servo {
	return &Servo{Controller: c, Channel: ch, Config: conf, angle: conf.Clamp(0)}
}

// SetAngle implements device.Servo. Out of range values are clamped.
func (s *Servo) SetAngle(deg int) error {
	deg = s.Config.Clamp(deg)
	if err := s.Controller.SetPulse(s.Channel, s.Config.Pulse(deg)); err != nil {
		return err
	}
	s.lock.Lock()
	s.angle = deg
	s.lock.Unlock()
	return nil
}

// Angle implements device.Servo.
func (s *Servo) Angle() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.angle
}

// Range implements device.Servo.
func (s *Servo) Range() (int, int) {
	return s.Config.MinAngle, s.Config.MaxAngle
}

// Switch is an on/off output on a PWM channel.
type Switch struct {
	Controller *Controller
	Channel    int

	on   bool
	lock sync.Mutex
}

var _ device.Switch = &Switch{}

// NewSwitch creates a switch on channel ch.
func NewSwitch(c *Controller, ch int) *Switch {
	return &Switch{Controller: c, Channel: ch}
}

// SetOn implements device.Switch.
func (s *Switch) SetOn(on bool) error {
	if err := s.Controller.SetFull(s.Channel, on); err != nil {
		return err
	}
	s.lock.Lock()
	s.on = on
	s.lock.Unlock()
	return nil
}

// On implements device.Switch.
func (s *Switch) On() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.on
}
