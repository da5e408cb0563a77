//go:build !linux

package i2c

import "github.com/robotalks/legocar.go/pkg/device"

// Bus is unavailable on this platform.
type Bus struct {
	Path string
}

var _ device.Bus = &Bus{}

// Open always fails with ErrUnsupported.
func Open(path string) (*Bus, error) {
	return nil, ErrUnsupported
}

// OpenDevice implements device.Bus.
func (b *Bus) OpenDevice(addr device.Address) (device.Handle, error) {
	return 0, busError("open", addr, device.NoReg, ErrUnsupported)
}

// CloseDevice implements device.Bus.
func (b *Bus) CloseDevice(h device.Handle) error {
	return invalidHandle("close", h)
}

// WriteRegister implements device.Bus.
func (b *Bus) WriteRegister(h device.Handle, reg, value byte) error {
	return invalidHandle("write", h)
}

// ReadByte implements device.Bus.
func (b *Bus) ReadByte(h device.Handle, reg byte) (byte, error) {
	return 0, invalidHandle("read", h)
}

// ReadBlock implements device.Bus.
func (b *Bus) ReadBlock(h device.Handle, reg byte, n int) ([]byte, error) {
	return nil, invalidHandle("read", h)
}

// WriteRaw implements device.Bus.
func (b *Bus) WriteRaw(h device.Handle, data ...byte) error {
	return invalidHandle("write", h)
}

// ReadRaw implements device.Bus.
func (b *Bus) ReadRaw(h device.Handle, n int) ([]byte, error) {
	return nil, invalidHandle("read", h)
}

// Close implements io.Closer.
func (b *Bus) Close() error {
	return nil
}
