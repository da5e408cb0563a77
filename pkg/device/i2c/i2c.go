// Package i2c implements device.Bus on the Linux i2c-dev interface.
package i2c

import (
	"errors"
	"fmt"

	"github.com/robotalks/legocar.go/pkg/device"
)

// DefaultDevice is the i2c bus of the Raspberry Pi header.
const DefaultDevice = "/dev/i2c-1"

// ErrUnsupported is returned where i2c-dev is not available.
var ErrUnsupported = errors.New("i2c-dev is not supported on this platform")

func busError(op string, addr device.Address, reg int, err error) error {
	return &device.BusError{Op: op, Addr: addr, Reg: reg, Err: err}
}

func invalidHandle(op string, h device.Handle) error {
	return busError(op, 0, device.NoReg, fmt.Errorf("invalid handle %d", h))
}
