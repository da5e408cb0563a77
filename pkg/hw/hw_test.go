package hw

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/legocar.go/pkg/device"
	"github.com/robotalks/legocar.go/pkg/device/devicetest"
	"github.com/robotalks/legocar.go/pkg/device/lsm9ds1"
	"github.com/robotalks/legocar.go/pkg/device/motor"
)

type busCloser struct {
	closed int
}

func (c *busCloser) Close() error {
	c.closed++
	return nil
}

func testOpener(bus *devicetest.Bus, conf Config) (*Opener, *busCloser) {
	closer := &busCloser{}
	return &Opener{
		Config: conf,
		OpenBus: func(string) (device.Bus, io.Closer, error) {
			return bus, closer, nil
		},
	}, closer
}

func newIMUBus() *devicetest.Bus {
	bus := devicetest.NewBus()
	bus.SetRegister(lsm9ds1.AddrXG, lsm9ds1.RegWhoAmIXG, lsm9ds1.IDXG)
	bus.SetRegister(lsm9ds1.AddrMag, lsm9ds1.RegWhoAmIM, lsm9ds1.IDMag)
	return bus
}

func init() {
	lsm9ds1.SettleTime = 0
}

func TestOpenAssemblesCar(t *testing.T) {
	bus := newIMUBus()
	o, closer := testOpener(bus, DefaultConfig())
	c, err := o.Open(context.Background())
	require.NoError(t, err)

	require.NotNil(t, c.LeftMotor)
	require.NotNil(t, c.RightMotor)
	require.NotNil(t, c.IMU)
	assert.Len(t, c.Inputs, 8)
	assert.Equal(t, 90, c.Steering.Angle())
	assert.False(t, c.FrontLight.On())
	assert.False(t, c.RearLight.On())

	require.NoError(t, c.LeftMotor.SetSpeed(-20))
	require.NoError(t, c.RightMotor.SetSpeed(30))
	assert.ErrorIs(t, c.RightMotor.SetSpeed(200), motor.ErrOutOfRange)
	writes := bus.Writes(motor.DefaultAddr)
	require.Len(t, writes, 2)
	assert.Equal(t, devicetest.RegisterWrite{Reg: 0, Value: byte(0xec)}, writes[0])
	assert.Equal(t, devicetest.RegisterWrite{Reg: 1, Value: 30}, writes[1])

	require.NoError(t, c.Close())
	assert.Equal(t, 0, bus.OpenHandles())
	assert.Equal(t, 1, closer.closed)
	writes = bus.Writes(motor.DefaultAddr)
	require.Len(t, writes, 4)
	assert.Equal(t, devicetest.RegisterWrite{Reg: 0, Value: 0}, writes[2])
	assert.Equal(t, devicetest.RegisterWrite{Reg: 1, Value: 0}, writes[3])
}

func TestOpenWithoutIMU(t *testing.T) {
	conf := DefaultConfig()
	conf.IMU = false
	bus := devicetest.NewBus()
	o, _ := testOpener(bus, conf)
	c, err := o.Open(context.Background())
	require.NoError(t, err)
	assert.Nil(t, c.IMU)
	require.NoError(t, c.Close())
	assert.Equal(t, 0, bus.OpenHandles())
}

func TestOpenFailureReleasesEverything(t *testing.T) {
	bus := devicetest.NewBus()
	o, closer := testOpener(bus, DefaultConfig())
	c, err := o.Open(context.Background())
	require.Error(t, err)
	assert.Nil(t, c)
	var mismatch *lsm9ds1.IdentityMismatchError
	assert.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 0, bus.OpenHandles())
	assert.Equal(t, 1, closer.closed)
}

func TestOpenBusFailure(t *testing.T) {
	o := &Opener{
		Config: DefaultConfig(),
		OpenBus: func(string) (device.Bus, io.Closer, error) {
			return nil, nil, devicetest.ErrInjected
		},
	}
	_, err := o.Open(context.Background())
	assert.ErrorIs(t, err, devicetest.ErrInjected)
}
