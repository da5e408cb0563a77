// Package lsm9ds1 implements the LSM9DS1 9-DOF inertial unit.
package lsm9ds1

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/robotalks/legocar.go/pkg/device"
	fx "github.com/robotalks/legocar.go/pkg/framework"
)

// IdentityMismatchError indicates an unexpected WHO_AM_I value.
type IdentityMismatchError struct {
	Addr     device.Address
	Expected byte
	Actual   byte
}

// Error implements error.
func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("lsm9ds1 0x%02x: expected id 0x%02x, got 0x%02x",
		uint8(e.Addr), e.Expected, e.Actual)
}

func readVector(bus device.Bus, h device.Handle, reg byte, scale float64) (device.Vector3, error) {
	data, err := bus.ReadBlock(h, reg, 6)
	if err != nil {
		return device.Vector3{}, err
	}
	if len(data) < 6 {
		return device.Vector3{}, fmt.Errorf("short read %d of 6 bytes", len(data))
	}
	return device.Vector3{
		X: float64(int16(binary.LittleEndian.Uint16(data[0:]))) * scale,
		Y: float64(int16(binary.LittleEndian.Uint16(data[2:]))) * scale,
		Z: float64(int16(binary.LittleEndian.Uint16(data[4:]))) * scale,
	}, nil
}

// Accel reads the accelerometer in g.
type Accel struct{}

// Read reads the output registers.
func (Accel) Read(bus device.Bus, h device.Handle) (device.Vector3, error) {
	return readVector(bus, h, RegOutXLXL, AccelScale)
}

// Gyro reads the gyroscope in degrees per second.
type Gyro struct{}

// Read reads the output registers.
func (Gyro) Read(bus device.Bus, h device.Handle) (device.Vector3, error) {
	return readVector(bus, h, RegOutXLG, GyroScale)
}

// Mag reads the magnetometer in gauss.
type Mag struct{}

// Read reads the output registers.
func (Mag) Read(bus device.Bus, h device.Handle) (device.Vector3, error) {
	return readVector(bus, h, RegOutXLM, MagScale)
}

// Thermometer reads the die temperature of the accelerometer/gyroscope.
type Thermometer struct{}

// Read reads the output registers.
func (Thermometer) Read(bus device.Bus, h device.Handle) (float64, error) {
	data, err := bus.ReadBlock(h, RegTempOutL, 2)
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, fmt.Errorf("short read %d of 2 bytes", len(data))
	}
	return float64(int16(binary.LittleEndian.Uint16(data))) / TempLSB, nil
}

// IMU is an opened LSM9DS1.
type IMU struct {
	Bus device.Bus

	xg, mag device.Handle
	last    device.InertialSample
	lock    sync.Mutex
	closer  fx.CloseOnce
}

var _ device.InertialUnit = &IMU{}

// SettleTime is waited after the soft reset.
var SettleTime = 10 * time.Millisecond

// Open resets and configures both chips. An unexpected identity is
// returned as *IdentityMismatchError and no handle is left open.
func Open(bus device.Bus) (*IMU, error) {
	u := &IMU{Bus: bus}
	u.closer.Fn = u.close
	var err error
	if u.xg, err = bus.OpenDevice(AddrXG); err != nil {
		return nil, fmt.Errorf("open lsm9ds1 accel/gyro: %w", err)
	}
	if u.mag, err = bus.OpenDevice(AddrMag); err != nil {
		bus.CloseDevice(u.xg)
		return nil, fmt.Errorf("open lsm9ds1 mag: %w", err)
	}
	if err = u.init(); err != nil {
		u.Close()
		return nil, err
	}
	return u, nil
}

func (u *IMU) init() error {
	if err := u.Bus.WriteRegister(u.xg, resetXG.reg, resetXG.value); err != nil {
		return err
	}
	if err := u.Bus.WriteRegister(u.mag, resetMag.reg, resetMag.value); err != nil {
		return err
	}
	time.Sleep(SettleTime)
	if err := u.checkID(u.xg, AddrXG, RegWhoAmIXG, IDXG); err != nil {
		return err
	}
	if err := u.checkID(u.mag, AddrMag, RegWhoAmIM, IDMag); err != nil {
		return err
	}
	for _, w := range setupXG {
		if err := u.Bus.WriteRegister(u.xg, w.reg, w.value); err != nil {
			return err
		}
	}
	for _, w := range setupMag {
		if err := u.Bus.WriteRegister(u.mag, w.reg, w.value); err != nil {
			return err
		}
	}
	return nil
}

func (u *IMU) checkID(h device.Handle, addr device.Address, reg, expected byte) error {
	id, err := u.Bus.ReadByte(h, reg)
	if err != nil {
		return err
	}
	if id != expected {
		return &IdentityMismatchError{Addr: addr, Expected: expected, Actual: id}
	}
	return nil
}

// ReadAll implements device.InertialUnit. It reads accelerometer,
// magnetometer, gyroscope and temperature in this order. A failed read
// keeps the previous value of its slot and does not stop the others.
func (u *IMU) ReadAll() (device.InertialSample, error) {
	u.lock.Lock()
	defer u.lock.Unlock()
	errs := &fx.AggregatedError{}
	if v, err := (Accel{}).Read(u.Bus, u.xg); err != nil {
		errs.Add(fmt.Errorf("accel: %w", err))
	} else {
		u.last.Accel = v
	}
	if v, err := (Mag{}).Read(u.Bus, u.mag); err != nil {
		errs.Add(fmt.Errorf("mag: %w", err))
	} else {
		u.last.Mag = v
	}
	if v, err := (Gyro{}).Read(u.Bus, u.xg); err != nil {
		errs.Add(fmt.Errorf("gyro: %w", err))
	} else {
		u.last.Gyro = v
	}
	if v, err := (Thermometer{}).Read(u.Bus, u.xg); err != nil {
		errs.Add(fmt.Errorf("temp: %w", err))
	} else {
		u.last.Temp = v
	}
	return u.last, errs.Aggregate()
}

// Last returns the cached values of the last ReadAll.
func (u *IMU) Last() device.InertialSample {
	u.lock.Lock()
	defer u.lock.Unlock()
	return u.last
}

// Close releases both handles once.
func (u *IMU) Close() error {
	return u.closer.Close()
}

func (u *IMU) close() error {
	return (&fx.AggregatedError{}).Add(
		u.Bus.CloseDevice(u.xg),
		u.Bus.CloseDevice(u.mag),
	).Aggregate()
}
