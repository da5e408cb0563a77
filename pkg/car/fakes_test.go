package car

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robotalks/legocar.go/pkg/device"
)

var errInjected = errors.New("injected")

type fakeMotor struct {
	lock    sync.Mutex
	speed   int
	err     error
	entered chan struct{}
	release chan struct{}
}

func (m *fakeMotor) SetSpeed(v int) error {
	if m.release != nil {
		close(m.entered)
		<-m.release
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.err != nil {
		return &device.BusError{Op: "write", Addr: 0x22, Reg: 0, Err: m.err}
	}
	if v < -127 || v > 127 {
		return fmt.Errorf("motor: %w: %d", device.ErrOutOfRange, v)
	}
	m.speed = v
	return nil
}

func (m *fakeMotor) Speed() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.speed
}

type fakeServo struct {
	lock  sync.Mutex
	angle int
}

func (s *fakeServo) SetAngle(deg int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if deg < 0 {
		deg = 0
	} else if deg > 180 {
		deg = 180
	}
	s.angle = deg
	return nil
}

func (s *fakeServo) Angle() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.angle
}

func (s *fakeServo) Range() (int, int) {
	return 0, 180
}

type fakeSwitch struct {
	on atomic.Bool
}

func (s *fakeSwitch) SetOn(on bool) error {
	s.on.Store(on)
	return nil
}

func (s *fakeSwitch) On() bool {
	return s.on.Load()
}

type fakeInput struct {
	lock sync.Mutex
	v    float64
	err  error
	gate chan struct{}
}

func (in *fakeInput) set(v float64, err error) {
	in.lock.Lock()
	defer in.lock.Unlock()
	in.v, in.err = v, err
}

func (in *fakeInput) ReadVoltage() (float64, error) {
	if in.gate != nil {
		<-in.gate
	}
	in.lock.Lock()
	defer in.lock.Unlock()
	return in.v, in.err
}

type fakeIMU struct {
	lock   sync.Mutex
	sample device.InertialSample
}

func (u *fakeIMU) ReadAll() (device.InertialSample, error) {
	u.lock.Lock()
	defer u.lock.Unlock()
	return u.sample, nil
}

type closeCounter struct {
	n atomic.Int32
}

func (c *closeCounter) Close() error {
	c.n.Add(1)
	return nil
}

type testCar struct {
	left, right *fakeMotor
	steering    *fakeServo
	front, rear *fakeSwitch
	inputs      []*fakeInput
	imu         *fakeIMU
	closes      closeCounter
	opens       atomic.Int32
	openErr     error
}

func newTestCar() *testCar {
	tc := &testCar{
		left:     &fakeMotor{},
		right:    &fakeMotor{},
		steering: &fakeServo{angle: 90},
		front:    &fakeSwitch{},
		rear:     &fakeSwitch{},
		imu: &fakeIMU{sample: device.InertialSample{
			Accel: device.Vector3{Z: 1},
			Mag:   device.Vector3{X: 0.3},
			Temp:  25,
		}},
	}
	for n := 0; n < 4; n++ {
		tc.inputs = append(tc.inputs, &fakeInput{v: float64(n) / 2})
	}
	return tc
}

func (tc *testCar) Open(ctx context.Context) (*Car, error) {
	tc.opens.Add(1)
	if tc.openErr != nil {
		return nil, tc.openErr
	}
	c := &Car{
		Name:       "test",
		LeftMotor:  tc.left,
		RightMotor: tc.right,
		Steering:   tc.steering,
		FrontLight: tc.front,
		RearLight:  tc.rear,
		IMU:        tc.imu,
	}
	for _, in := range tc.inputs {
		c.Inputs = append(c.Inputs, in)
	}
	c.AddCloser(&tc.closes)
	return c, nil
}
