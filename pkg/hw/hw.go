// Package hw assembles the physical car: a 4tronix motor controller, a
// PCA9685 for steering and lights, an ADC Pi Zero and an LSM9DS1, all on
// one i2c bus.
package hw

import (
	"context"
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/robotalks/legocar.go/pkg/car"
	"github.com/robotalks/legocar.go/pkg/device"
	"github.com/robotalks/legocar.go/pkg/device/adc"
	"github.com/robotalks/legocar.go/pkg/device/i2c"
	"github.com/robotalks/legocar.go/pkg/device/lsm9ds1"
	"github.com/robotalks/legocar.go/pkg/device/motor"
	"github.com/robotalks/legocar.go/pkg/device/pca9685"
)

// Config describes how the devices are wired.
type Config struct {
	Bus string `yaml:"bus"`

	MotorAddr device.Address `yaml:"motor-addr"`
	LeftPort  int            `yaml:"left-port"`
	RightPort int            `yaml:"right-port"`

	PWMAddr      device.Address      `yaml:"pwm-addr"`
	PWMFrequency float64             `yaml:"pwm-frequency"`
	SteerChannel int                 `yaml:"steer-channel"`
	FrontChannel int                 `yaml:"front-light-channel"`
	RearChannel  int                 `yaml:"rear-light-channel"`
	Servo        pca9685.ServoConfig `yaml:"servo"`

	ADC adc.BoardConfig `yaml:"adc"`
	IMU bool            `yaml:"imu"`
}

// DefaultConfig is the wiring of the reference car.
func DefaultConfig() Config {
	return Config{
		Bus:          i2c.DefaultDevice,
		MotorAddr:    motor.DefaultAddr,
		LeftPort:     0,
		RightPort:    1,
		PWMAddr:      pca9685.DefaultAddr,
		PWMFrequency: pca9685.DefaultFrequency,
		SteerChannel: 0,
		FrontChannel: 14,
		RearChannel:  15,
		Servo:        pca9685.DefaultServoConfig(),
		ADC:          adc.DefaultBoardConfig(),
		IMU:          true,
	}
}

// BusOpener opens the bus named by Config.Bus.
type BusOpener func(path string) (device.Bus, io.Closer, error)

// OpenI2C opens a Linux i2c-dev bus.
func OpenI2C(path string) (device.Bus, io.Closer, error) {
	bus, err := i2c.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return bus, bus, nil
}

// Opener implements car.Opener for the physical car.
type Opener struct {
	Config  Config
	OpenBus BusOpener
}

var _ car.Opener = &Opener{}

// NewOpener creates an Opener on the Linux i2c bus.
func NewOpener(conf Config) *Opener {
	return &Opener{Config: conf, OpenBus: OpenI2C}
}

type stopMotors struct {
	motors []device.Motor
}

func (s *stopMotors) Close() error {
	var firstErr error
	for _, m := range s.motors {
		if err := m.SetSpeed(0); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open implements car.Opener. Any failure releases what was opened.
func (o *Opener) Open(ctx context.Context) (c *car.Car, err error) {
	conf := o.Config
	openBus := o.OpenBus
	if openBus == nil {
		openBus = OpenI2C
	}
	bus, busCloser, err := openBus(conf.Bus)
	if err != nil {
		return nil, fmt.Errorf("open bus %s: %w", conf.Bus, err)
	}
	c = &car.Car{Name: "legocar"}
	c.AddCloser(busCloser)
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	drv, err := motor.Open(bus, conf.MotorAddr)
	if err != nil {
		return
	}
	c.AddCloser(drv)
	left, right := drv.Port(conf.LeftPort), drv.Port(conf.RightPort)
	c.LeftMotor, c.RightMotor = left, right
	c.AddCloser(&stopMotors{motors: []device.Motor{left, right}})

	pwm, err := pca9685.Open(bus, conf.PWMAddr, conf.PWMFrequency)
	if err != nil {
		return
	}
	c.AddCloser(pwm)
	steering := pca9685.NewServo(pwm, conf.SteerChannel, conf.Servo)
	center := (conf.Servo.MinAngle + conf.Servo.MaxAngle) / 2
	if err = steering.SetAngle(center); err != nil {
		return
	}
	c.Steering = steering
	front, rear := pca9685.NewSwitch(pwm, conf.FrontChannel), pca9685.NewSwitch(pwm, conf.RearChannel)
	for _, sw := range []*pca9685.Switch{front, rear} {
		if err = sw.SetOn(false); err != nil {
			return
		}
	}
	c.FrontLight, c.RearLight = front, rear

	board, err := adc.OpenBoard(bus, conf.ADC)
	if err != nil {
		return
	}
	c.AddCloser(board)
	for _, in := range board.Inputs {
		c.Inputs = append(c.Inputs, in)
	}

	if conf.IMU {
		imu, ierr := lsm9ds1.Open(bus)
		if ierr != nil {
			err = ierr
			return
		}
		c.AddCloser(imu)
		c.IMU = imu
	}
	glog.Infof("Car opened on %s", conf.Bus)
	return c, nil
}
