//go:build linux

package i2c

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/robotalks/legocar.go/pkg/device"
)

const ioctlI2CSlave = 0x0703

type slave struct {
	fd   int
	addr device.Address
	lock sync.Mutex
}

// Bus is an opened i2c-dev bus. Every handle owns a file descriptor bound
// to one slave address and transactions on it are serialized.
type Bus struct {
	Path string

	slaves map[device.Handle]*slave
	next   device.Handle
	lock   sync.RWMutex
}

var _ device.Bus = &Bus{}

// Open checks the bus device is accessible.
func Open(path string) (*Bus, error) {
	if path == "" {
		path = DefaultDevice
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &device.BusError{Op: "open " + path, Reg: device.NoReg, Err: err}
	}
	unix.Close(fd)
	return &Bus{Path: path, slaves: make(map[device.Handle]*slave)}, nil
}

func (b *Bus) slave(op string, h device.Handle) (*slave, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	s := b.slaves[h]
	if s == nil {
		return nil, invalidHandle(op, h)
	}
	return s, nil
}

// OpenDevice implements device.Bus.
func (b *Bus) OpenDevice(addr device.Address) (device.Handle, error) {
	fd, err := unix.Open(b.Path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, busError("open", addr, device.NoReg, err)
	}
	if err := unix.IoctlSetInt(fd, ioctlI2CSlave, int(addr)); err != nil {
		unix.Close(fd)
		return 0, busError("open", addr, device.NoReg, err)
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	b.next++
	b.slaves[b.next] = &slave{fd: fd, addr: addr}
	return b.next, nil
}

// CloseDevice implements device.Bus.
func (b *Bus) CloseDevice(h device.Handle) error {
	b.lock.Lock()
	s := b.slaves[h]
	delete(b.slaves, h)
	b.lock.Unlock()
	if s == nil {
		return invalidHandle("close", h)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := unix.Close(s.fd); err != nil {
		return busError("close", s.addr, device.NoReg, err)
	}
	return nil
}

func (s *slave) write(data []byte) error {
	n, err := unix.Write(s.fd, data)
	if err == nil && n != len(data) {
		err = unix.EIO
	}
	return err
}

func (s *slave) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := unix.Read(s.fd, buf)
	if err == nil && read != n {
		err = unix.EIO
	}
	return buf, err
}

// WriteRegister implements device.Bus.
func (b *Bus) WriteRegister(h device.Handle, reg, value byte) error {
	s, err := b.slave("write", h)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.write([]byte{reg, value}); err != nil {
		return busError("write", s.addr, int(reg), err)
	}
	return nil
}

// ReadByte implements device.Bus.
func (b *Bus) ReadByte(h device.Handle, reg byte) (byte, error) {
	data, err := b.ReadBlock(h, reg, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// ReadBlock implements device.Bus.
func (b *Bus) ReadBlock(h device.Handle, reg byte, n int) ([]byte, error) {
	s, err := b.slave("read", h)
	if err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.write([]byte{reg}); err != nil {
		return nil, busError("read", s.addr, int(reg), err)
	}
	data, err := s.read(n)
	if err != nil {
		return nil, busError("read", s.addr, int(reg), err)
	}
	return data, nil
}

// WriteRaw implements device.Bus.
func (b *Bus) WriteRaw(h device.Handle, data ...byte) error {
	s, err := b.slave("write", h)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.write(data); err != nil {
		return busError("write", s.addr, device.NoReg, err)
	}
	return nil
}

// ReadRaw implements device.Bus.
func (b *Bus) ReadRaw(h device.Handle, n int) ([]byte, error) {
	s, err := b.slave("read", h)
	if err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	data, err := s.read(n)
	if err != nil {
		return nil, busError("read", s.addr, device.NoReg, err)
	}
	return data, nil
}

// Close closes all open handles.
func (b *Bus) Close() error {
	b.lock.Lock()
	handles := make([]device.Handle, 0, len(b.slaves))
	for h := range b.slaves {
		handles = append(handles, h)
	}
	b.lock.Unlock()
	var firstErr error
	for _, h := range handles {
		if err := b.CloseDevice(h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
