// Package device reads Linux joystick devices (/dev/input/jsN).
package device

import (
	"encoding/binary"
	"errors"
	"io"
)

// EventSize is the size of a js_event record.
const EventSize = 8

// ErrShortEvent is returned when decoding less than EventSize bytes.
var ErrShortEvent = errors.New("short joystick event")

// Event kinds, see linux/joystick.h.
const (
	KindButton uint8 = 0x01
	KindAxis   uint8 = 0x02
	kindInit   uint8 = 0x80
)

// AxisMax is the magnitude of a fully deflected axis.
const AxisMax = 32767

// Event is a decoded js_event.
type Event struct {
	// Time is the event timestamp in milliseconds.
	Time   uint32
	Value  int16
	Kind   uint8
	Number uint8
	// Init marks the synthetic events reporting the initial state.
	Init bool
}

// IsAxis reports whether the event moved an axis.
func (e Event) IsAxis() bool {
	return e.Kind == KindAxis
}

// IsButton reports whether the event changed a button.
func (e Event) IsButton() bool {
	return e.Kind == KindButton
}

// Pressed is the button state of a button event.
func (e Event) Pressed() bool {
	return e.Value != 0
}

// Decode parses a js_event record.
func Decode(b []byte) (Event, error) {
	if len(b) < EventSize {
		return Event{}, ErrShortEvent
	}
	kind := b[6]
	return Event{
		Time:   binary.LittleEndian.Uint32(b[0:4]),
		Value:  int16(binary.LittleEndian.Uint16(b[4:6])),
		Kind:   kind &^ kindInit,
		Number: b[7],
		Init:   kind&kindInit != 0,
	}, nil
}

// Device is an opened joystick.
type Device interface {
	io.Closer
	Index() int
	Name() string
	AxisCount() int
	ButtonCount() int
	// ReadEvent blocks until the next event.
	ReadEvent() (Event, error)
}
