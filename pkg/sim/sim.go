package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/legocar.go/pkg/car"
	"github.com/robotalks/legocar.go/pkg/device"
	"github.com/robotalks/legocar.go/pkg/device/pca9685"
)

// Config configures the simulated car.
type Config struct {
	Body     BodyConfig `yaml:"body"`
	Voltages []float64  `yaml:"voltages"`
}

// DefaultConfig simulates eight ADC inputs with a 7.4V battery on input 0.
func DefaultConfig() Config {
	return Config{
		Body:     DefaultBodyConfig(),
		Voltages: []float64{7.4, 0, 0, 0, 0, 0, 0, 0},
	}
}

// Sim is a simulated car. It implements car.Opener and keeps the body
// across activations.
type Sim struct {
	Config Config
	Body   *Body

	left, right *Motor
	lock        sync.Mutex
	readErr     error
	writeErr    error
	voltages    []float64
}

var _ car.Opener = &Sim{}

// New creates a Sim.
func New(conf Config) *Sim {
	s := &Sim{Config: conf, Body: NewBody(conf.Body)}
	s.voltages = append([]float64(nil), conf.Voltages...)
	return s
}

// SetReadError makes sensor reads fail with err; nil clears it.
func (s *Sim) SetReadError(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.readErr = err
}

// SetWriteError makes actuator writes fail with err; nil clears it.
func (s *Sim) SetWriteError(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.writeErr = err
}

// SetVoltage changes the voltage of an input.
func (s *Sim) SetVoltage(n int, v float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if n >= 0 && n < len(s.voltages) {
		s.voltages[n] = v
	}
}

func (s *Sim) readError() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.readErr != nil {
		return &device.BusError{Op: "read", Reg: device.NoReg, Err: s.readErr}
	}
	return nil
}

func (s *Sim) writeError(name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.writeErr != nil {
		return fmt.Errorf("%s: %w", name, &device.BusError{Op: "write", Reg: device.NoReg, Err: s.writeErr})
	}
	return nil
}

func (s *Sim) voltage(n int) (float64, error) {
	if err := s.readError(); err != nil {
		return 0, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.voltages[n], nil
}

func (s *Sim) motorsChanged() {
	s.Body.SetMotors(s.left.Speed(), s.right.Speed())
}

// Open implements car.Opener.
func (s *Sim) Open(ctx context.Context) (*car.Car, error) {
	servo := pca9685.DefaultServoConfig()
	s.left = &Motor{Name: "motor/left", sim: s}
	s.right = &Motor{Name: "motor/right", sim: s}
	steering := &Servo{Name: "steer/angle", MinAngle: servo.MinAngle, MaxAngle: servo.MaxAngle, sim: s}
	steering.angle = SteerCenter
	s.Body.SetMotors(0, 0)
	s.Body.SetSteer(SteerCenter)

	c := &car.Car{
		Name:       "simulator",
		LeftMotor:  s.left,
		RightMotor: s.right,
		Steering:   steering,
		FrontLight: &Switch{Name: "light/front", sim: s},
		RearLight:  &Switch{Name: "light/rear", sim: s},
		IMU:        &IMU{sim: s},
	}
	for n := range s.voltages {
		c.Inputs = append(c.Inputs, &AnalogInput{Number: n, sim: s})
	}
	c.AddCloser(closerFunc(func() error {
		s.Body.SetMotors(0, 0)
		glog.Infof("Simulated car stopped at %+v", s.Body.Pose())
		return nil
	}))
	glog.Infof("Simulated car opened")
	return c, nil
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
