package sim

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/legocar.go/pkg/device"
)

// Motor is a simulated motor port.
type Motor struct {
	Name string

	sim   *Sim
	speed int
	lock  sync.Mutex
}

// SetSpeed implements device.Motor.
func (m *Motor) SetSpeed(speed int) error {
	if speed < -127 || speed > 127 {
		return fmt.Errorf("%s: %w: %d", m.Name, device.ErrOutOfRange, speed)
	}
	if err := m.sim.writeError(m.Name); err != nil {
		return err
	}
	m.lock.Lock()
	m.speed = speed
	m.lock.Unlock()
	glog.V(1).Infof("%s.Speed = %d", m.Name, speed)
	m.sim.motorsChanged()
	return nil
}

// Speed implements device.Motor.
func (m *Motor) Speed() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.speed
}

// Servo is a simulated steering servo.
type Servo struct {
	Name     string
	MinAngle int
	MaxAngle int

	sim   *Sim
	angle int
	lock  sync.Mutex
}

// SetAngle implements device.Servo. Values are clamped to the range.
func (s *Servo) SetAngle(deg int) error {
	if deg < s.MinAngle {
		deg = s.MinAngle
	} else if deg > s.MaxAngle {
		deg = s.MaxAngle
	}
	if err := s.sim.writeError(s.Name); err != nil {
		return err
	}
	s.lock.Lock()
	s.angle = deg
	s.lock.Unlock()
	glog.V(1).Infof("%s.Value = %d", s.Name, deg)
	s.sim.Body.SetSteer(deg)
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
	return s.MinAngle, s.MaxAngle
}

// Switch is a simulated light.
type Switch struct {
	Name string

	sim  *Sim
	on   bool
	lock sync.Mutex
}

// SetOn implements device.Switch.
func (s *Switch) SetOn(on bool) error {
	if err := s.sim.writeError(s.Name); err != nil {
		return err
	}
	s.lock.Lock()
	s.on = on
	s.lock.Unlock()
	glog.V(1).Infof("%s.On = %v", s.Name, on)
	return nil
}

// On implements device.Switch.
func (s *Switch) On() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.on
}

// AnalogInput reports a fixed voltage.
type AnalogInput struct {
	Number int
	sim    *Sim
}

// ReadVoltage implements device.AnalogInput.
func (in *AnalogInput) ReadVoltage() (float64, error) {
	return in.sim.voltage(in.Number)
}

// IMU synthesizes inertial readings from the body.
type IMU struct {
	sim *Sim
}

// ReadAll implements device.InertialUnit.
func (u *IMU) ReadAll() (device.InertialSample, error) {
	if err := u.sim.readError(); err != nil {
		return device.InertialSample{}, err
	}
	return u.sim.Body.Inertial(), nil
}
