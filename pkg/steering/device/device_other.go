//go:build !linux

package device

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupported is returned by Open outside Linux.
var ErrUnsupported = errors.New("joystick devices are not supported on " + runtime.GOOS)

// Path returns the device node of a joystick index.
func Path(index int) string {
	return fmt.Sprintf("/dev/input/js%d", index)
}

// Open always fails.
func Open(index int) (Device, error) {
	return nil, ErrUnsupported
}

// Detect always fails.
func Detect(index int) (Device, error) {
	return nil, ErrUnsupported
}
