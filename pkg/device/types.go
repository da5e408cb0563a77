// Package device defines the bus collaborator and the device capabilities
// used by the car controller.
package device

import (
	"errors"
	"fmt"
	"strconv"
)

// Address is a 7-bit I2C device address.
type Address uint8

// Handle identifies an opened device on a Bus.
type Handle int

// Bus is the register level transport to devices.
// Implementations serialize transactions per handle.
type Bus interface {
	OpenDevice(addr Address) (Handle, error)
	CloseDevice(h Handle) error
	WriteRegister(h Handle, reg, value byte) error
	ReadByte(h Handle, reg byte) (byte, error)
	ReadBlock(h Handle, reg byte, n int) ([]byte, error)
	WriteRaw(h Handle, data ...byte) error
	ReadRaw(h Handle, n int) ([]byte, error)
}

// ErrOutOfRange rejects a value outside of what a device accepts.
var ErrOutOfRange = errors.New("value out of range")

// BusError is a failed bus transaction.
type BusError struct {
	Op   string
	Addr Address
	Reg  int
	Err  error
}

// NoReg is used in BusError.Reg for raw transfers.
const NoReg = -1

// Error implements error.
func (e *BusError) Error() string {
	if e.Reg == NoReg {
		return fmt.Sprintf("bus %s 0x%02x: %v", e.Op, uint8(e.Addr), e.Err)
	}
	return fmt.Sprintf("bus %s 0x%02x reg 0x%02x: %v", e.Op, uint8(e.Addr), e.Reg, e.Err)
}

// Unwrap returns the underlying error.
func (e *BusError) Unwrap() error {
	return e.Err
}

// Vector3 is a three axis value.
type Vector3 struct {
	X float64 `json:"x" yaml:"x" cbor:"x"`
	Y float64 `json:"y" yaml:"y" cbor:"y"`
	Z float64 `json:"z" yaml:"z" cbor:"z"`
}

// String renders "x y z".
func (v Vector3) String() string {
	return FormatFloat(v.X) + " " + FormatFloat(v.Y) + " " + FormatFloat(v.Z)
}

// FormatFloat renders v with up to 6 significant digits, negative zero
// as 0.
func FormatFloat(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// Motor drives a wheel.
type Motor interface {
	SetSpeed(speed int) error
	Speed() int
}

// Servo positions a steering linkage.
type Servo interface {
	SetAngle(deg int) error
	Angle() int
	Range() (min, max int)
}

// Switch toggles an on/off output such as a light.
type Switch interface {
	SetOn(on bool) error
	On() bool
}

// AnalogInput samples a voltage.
type AnalogInput interface {
	ReadVoltage() (float64, error)
}

// InertialSample is one reading of all inertial sensors.
type InertialSample struct {
	Accel Vector3 // g
	Gyro  Vector3 // degrees per second
	Mag   Vector3 // gauss
	Temp  float64 // celsius
}

// InertialUnit samples accelerometer, gyroscope, magnetometer and
// temperature. A partial failure still returns the slots which succeeded,
// the rest keep their previous values.
type InertialUnit interface {
	ReadAll() (InertialSample, error)
}
