//go:build linux

package device

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl requests from linux/joystick.h.
const (
	jsIOCGAXES    = 0x80016a11
	jsIOCGBUTTONS = 0x80016a12
	jsIOCGNAME    = 0x80ff6a13 // JSIOCGNAME(255)
)

// MaxIndex bounds the device detection.
const MaxIndex = 32

type joystick struct {
	file    *os.File
	index   int
	name    string
	axes    uint8
	buttons uint8
	buf     [EventSize]byte
}

// Path returns the device node of a joystick index.
func Path(index int) string {
	return fmt.Sprintf("/dev/input/js%d", index)
}

// Open opens the joystick with the index.
func Open(index int) (Device, error) {
	f, err := os.OpenFile(Path(index), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	js := &joystick{file: f, index: index}
	if err := js.query(); err != nil {
		f.Close()
		return nil, fmt.Errorf("query %s: %w", Path(index), err)
	}
	return js, nil
}

// Detect opens the first joystick present at or after index. It returns
// nil without error when none is present.
func Detect(index int) (Device, error) {
	for ; index < MaxIndex; index++ {
		js, err := Open(index)
		if os.IsNotExist(err) {
			continue
		}
		return js, err
	}
	return nil, nil
}

func (js *joystick) ioctl(req uintptr, ptr unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, js.file.Fd(), req, uintptr(ptr))
	if errno != 0 {
		return errno
	}
	return nil
}

func (js *joystick) query() error {
	if err := js.ioctl(jsIOCGAXES, unsafe.Pointer(&js.axes)); err != nil {
		return err
	}
	if err := js.ioctl(jsIOCGBUTTONS, unsafe.Pointer(&js.buttons)); err != nil {
		return err
	}
	var name [255]byte
	if err := js.ioctl(jsIOCGNAME, unsafe.Pointer(&name[0])); err != nil {
		return err
	}
	if n := bytes.IndexByte(name[:], 0); n >= 0 {
		js.name = string(name[:n])
	} else {
		js.name = string(name[:])
	}
	return nil
}

func (js *joystick) Close() error {
	return js.file.Close()
}

func (js *joystick) Index() int {
	return js.index
}

func (js *joystick) Name() string {
	return js.name
}

func (js *joystick) AxisCount() int {
	return int(js.axes)
}

func (js *joystick) ButtonCount() int {
	return int(js.buttons)
}

func (js *joystick) ReadEvent() (Event, error) {
	if _, err := io.ReadFull(js.file, js.buf[:]); err != nil {
		return Event{}, err
	}
	return Decode(js.buf[:])
}
