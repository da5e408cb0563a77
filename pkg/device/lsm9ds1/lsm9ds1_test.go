package lsm9ds1

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/legocar.go/pkg/device"
	"github.com/robotalks/legocar.go/pkg/device/devicetest"
)

func init() {
	SettleTime = 0
}

func newBus() *devicetest.Bus {
	bus := devicetest.NewBus()
	bus.SetRegister(AddrXG, RegWhoAmIXG, IDXG)
	bus.SetRegister(AddrMag, RegWhoAmIM, IDMag)
	return bus
}

func TestOpenConfigures(t *testing.T) {
	bus := newBus()
	u, err := Open(bus)
	require.NoError(t, err)
	defer u.Close()

	assert.Equal(t, []devicetest.RegisterWrite{
		{Reg: RegCtrlReg8, Value: 0x05},
		{Reg: RegCtrlReg1G, Value: 0xc0},
		{Reg: RegCtrlReg4, Value: 0x38},
		{Reg: RegCtrlReg5X, Value: 0x38},
		{Reg: RegCtrlReg6X, Value: 0xc0},
	}, bus.Writes(AddrXG))
	assert.Equal(t, []devicetest.RegisterWrite{
		{Reg: RegCtrlReg2M, Value: 0x0c},
		{Reg: RegCtrlReg1M, Value: 0xfc},
		{Reg: RegCtrlReg2M, Value: 0x00},
		{Reg: RegCtrlReg3M, Value: 0x00},
		{Reg: RegCtrlReg4M, Value: 0x0c},
	}, bus.Writes(AddrMag))
}

func TestOpenIdentityMismatch(t *testing.T) {
	tests := []struct {
		name string
		addr device.Address
		reg  byte
	}{
		{"accel/gyro", AddrXG, RegWhoAmIXG},
		{"magnetometer", AddrMag, RegWhoAmIM},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bus := newBus()
			bus.SetRegister(tc.addr, tc.reg, 0x42)
			_, err := Open(bus)
			var mismatch *IdentityMismatchError
			require.True(t, errors.As(err, &mismatch))
			assert.Equal(t, tc.addr, mismatch.Addr)
			assert.Equal(t, byte(0x42), mismatch.Actual)
			assert.Equal(t, 0, bus.OpenHandles())
		})
	}
}

func TestReadAll(t *testing.T) {
	bus := newBus()
	u, err := Open(bus)
	require.NoError(t, err)
	defer u.Close()

	// accel x=1000 y=-1000 z=16393
	bus.SetBlock(AddrXG, RegOutXLXL, 0xe8, 0x03, 0x18, 0xfc, 0x09, 0x40)
	// gyro x=100 y=0 z=-100
	bus.SetBlock(AddrXG, RegOutXLG, 0x64, 0x00, 0x00, 0x00, 0x9c, 0xff)
	// mag x=-5000 y=5000 z=0
	bus.SetBlock(AddrMag, RegOutXLM, 0x78, 0xec, 0x88, 0x13, 0x00, 0x00)
	// temp 200 -> 25C
	bus.SetBlock(AddrXG, RegTempOutL, 0xc8, 0x00)

	s, err := u.ReadAll()
	require.NoError(t, err)
	assert.InDelta(t, 1000*AccelScale, s.Accel.X, 1e-9)
	assert.InDelta(t, -1000*AccelScale, s.Accel.Y, 1e-9)
	assert.InDelta(t, 16393*AccelScale, s.Accel.Z, 1e-9)
	assert.InDelta(t, 0.875, s.Gyro.X, 1e-9)
	assert.InDelta(t, -0.875, s.Gyro.Z, 1e-9)
	assert.InDelta(t, -0.7, s.Mag.X, 1e-9)
	assert.InDelta(t, 0.7, s.Mag.Y, 1e-9)
	assert.InDelta(t, 25.0, s.Temp, 1e-9)
	assert.Equal(t, s, u.Last())
}

func TestReadAllPartialFailure(t *testing.T) {
	bus := newBus()
	u, err := Open(bus)
	require.NoError(t, err)
	defer u.Close()

	bus.SetBlock(AddrXG, RegOutXLXL, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00)
	bus.SetBlock(AddrMag, RegOutXLM, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00)
	first, err := u.ReadAll()
	require.NoError(t, err)

	bus.Fail(AddrMag, devicetest.ErrInjected)
	bus.SetBlock(AddrXG, RegOutXLXL, 0x20, 0x00, 0x00, 0x00, 0x00, 0x00)
	bus.SetBlock(AddrXG, RegTempOutL, 0x10, 0x00)
	s, err := u.ReadAll()
	require.ErrorIs(t, err, devicetest.ErrInjected)
	var busErr *device.BusError
	require.True(t, errors.As(err, &busErr))
	assert.Equal(t, AddrMag, busErr.Addr)
	// mag kept, others refreshed.
	assert.Equal(t, first.Mag, s.Mag)
	assert.InDelta(t, 32*AccelScale, s.Accel.X, 1e-9)
	assert.InDelta(t, 2.0, s.Temp, 1e-9)
}

func TestCloseOnce(t *testing.T) {
	bus := newBus()
	u, err := Open(bus)
	require.NoError(t, err)
	assert.Equal(t, 2, bus.OpenHandles())
	require.NoError(t, u.Close())
	require.NoError(t, u.Close())
	assert.Equal(t, 0, bus.OpenHandles())
}
