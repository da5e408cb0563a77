// Package devicetest provides an in-memory device.Bus for tests.
package devicetest

import (
	"errors"
	"sync"

	"github.com/robotalks/legocar.go/pkg/device"
)

// ErrInjected is a convenient error for failure injection.
var ErrInjected = errors.New("injected failure")

// RegisterWrite records a WriteRegister call.
type RegisterWrite struct {
	Reg   byte
	Value byte
}

type fakeDevice struct {
	regs      [256]byte
	writes    []RegisterWrite
	rawWrites [][]byte
	rawReads  [][]byte
	rawReader func(n int) []byte
	rawReadN  int
	err       error
	regErrs   map[byte]error
	opened    int
}

// Bus is an in-memory device.Bus. Registers auto-increment on block reads.
// It is safe for concurrent use.
type Bus struct {
	devices map[device.Address]*fakeDevice
	handles map[device.Handle]device.Address
	next    device.Handle
	lock    sync.Mutex
}

var _ device.Bus = &Bus{}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		devices: make(map[device.Address]*fakeDevice),
		handles: make(map[device.Handle]device.Address),
	}
}

func (b *Bus) device(addr device.Address) *fakeDevice {
	d := b.devices[addr]
	if d == nil {
		d = &fakeDevice{regErrs: make(map[byte]error)}
		b.devices[addr] = d
	}
	return d
}

func (b *Bus) lookup(op string, h device.Handle, reg int) (device.Address, *fakeDevice, error) {
	addr, ok := b.handles[h]
	if !ok {
		return 0, nil, &device.BusError{Op: op, Reg: reg, Err: errors.New("invalid handle")}
	}
	d := b.device(addr)
	err := d.err
	if err == nil && reg != device.NoReg {
		err = d.regErrs[byte(reg)]
	}
	if err != nil {
		return addr, nil, &device.BusError{Op: op, Addr: addr, Reg: reg, Err: err}
	}
	return addr, d, nil
}

// SetRegister sets the value of a register.
func (b *Bus) SetRegister(addr device.Address, reg, value byte) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.device(addr).regs[reg] = value
}

// SetBlock sets consecutive registers starting at reg.
func (b *Bus) SetBlock(addr device.Address, reg byte, data ...byte) {
	b.lock.Lock()
	defer b.lock.Unlock()
	d := b.device(addr)
	for i, v := range data {
		d.regs[byte(int(reg)+i)] = v
	}
}

// Register returns the value of a register.
func (b *Bus) Register(addr device.Address, reg byte) byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.device(addr).regs[reg]
}

// Fail makes every transaction with addr fail with err; nil clears it.
func (b *Bus) Fail(addr device.Address, err error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.device(addr).err = err
}

// FailRegister makes transactions on a single register fail; nil clears it.
func (b *Bus) FailRegister(addr device.Address, reg byte, err error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	d := b.device(addr)
	if err == nil {
		delete(d.regErrs, reg)
	} else {
		d.regErrs[reg] = err
	}
}

// QueueRaw queues responses returned by ReadRaw in order.
func (b *Bus) QueueRaw(addr device.Address, payloads ...[]byte) {
	b.lock.Lock()
	defer b.lock.Unlock()
	d := b.device(addr)
	d.rawReads = append(d.rawReads, payloads...)
}

// SetRawReader answers ReadRaw once the queue is empty.
func (b *Bus) SetRawReader(addr device.Address, fn func(n int) []byte) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.device(addr).rawReader = fn
}

// Writes returns the WriteRegister log of addr.
func (b *Bus) Writes(addr device.Address) []RegisterWrite {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]RegisterWrite(nil), b.device(addr).writes...)
}

// RawWrites returns the WriteRaw log of addr.
func (b *Bus) RawWrites(addr device.Address) [][]byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([][]byte(nil), b.device(addr).rawWrites...)
}

// RawReadCount returns the number of ReadRaw calls on addr.
func (b *Bus) RawReadCount(addr device.Address) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.device(addr).rawReadN
}

// OpenCount returns the number of handles currently open on addr.
func (b *Bus) OpenCount(addr device.Address) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.device(addr).opened
}

// OpenHandles returns the number of open handles on all addresses.
func (b *Bus) OpenHandles() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.handles)
}

// OpenDevice implements device.Bus.
func (b *Bus) OpenDevice(addr device.Address) (device.Handle, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	d := b.device(addr)
	if d.err != nil {
		return 0, &device.BusError{Op: "open", Addr: addr, Reg: device.NoReg, Err: d.err}
	}
	b.next++
	b.handles[b.next] = addr
	d.opened++
	return b.next, nil
}

// CloseDevice implements device.Bus.
func (b *Bus) CloseDevice(h device.Handle) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	addr, ok := b.handles[h]
	if !ok {
		return &device.BusError{Op: "close", Reg: device.NoReg, Err: errors.New("invalid handle")}
	}
	delete(b.handles, h)
	b.device(addr).opened--
	return nil
}

// WriteRegister implements device.Bus.
func (b *Bus) WriteRegister(h device.Handle, reg, value byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	_, d, err := b.lookup("write", h, int(reg))
	if err != nil {
		return err
	}
	d.regs[reg] = value
	d.writes = append(d.writes, RegisterWrite{Reg: reg, Value: value})
	return nil
}

// ReadByte implements device.Bus.
func (b *Bus) ReadByte(h device.Handle, reg byte) (byte, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	_, d, err := b.lookup("read", h, int(reg))
	if err != nil {
		return 0, err
	}
	return d.regs[reg], nil
}

// ReadBlock implements device.Bus.
func (b *Bus) ReadBlock(h device.Handle, reg byte, n int) ([]byte, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	_, d, err := b.lookup("read", h, int(reg))
	if err != nil {
		return nil, err
	}
	data := make([]byte, n)
	for i := range data {
		data[i] = d.regs[byte(int(reg)+i)]
	}
	return data, nil
}

// WriteRaw implements device.Bus.
func (b *Bus) WriteRaw(h device.Handle, data ...byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	_, d, err := b.lookup("write", h, device.NoReg)
	if err != nil {
		return err
	}
	d.rawWrites = append(d.rawWrites, append([]byte(nil), data...))
	return nil
}

// ReadRaw implements device.Bus. Without queued data or a reader it
// returns zeros.
func (b *Bus) ReadRaw(h device.Handle, n int) ([]byte, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	_, d, err := b.lookup("read", h, device.NoReg)
	if err != nil {
		return nil, err
	}
	d.rawReadN++
	var src []byte
	switch {
	case len(d.rawReads) > 0:
		src, d.rawReads = d.rawReads[0], d.rawReads[1:]
	case d.rawReader != nil:
		src = d.rawReader(n)
	}
	data := make([]byte, n)
	copy(data, src)
	return data, nil
}
