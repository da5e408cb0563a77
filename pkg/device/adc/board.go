package adc

import (
	"fmt"

	"github.com/robotalks/legocar.go/pkg/device"
	fx "github.com/robotalks/legocar.go/pkg/framework"
)

// Default chip addresses of the ADC Pi Zero.
const (
	DefaultAddr1 device.Address = 0x68
	DefaultAddr2 device.Address = 0x69
)

// NumInputs is the number of inputs on a board.
const NumInputs = 8

// Board is an ADC Pi Zero: two converters with four channels each.
// Input n is channel n%4 on chip n/4.
type Board struct {
	Inputs []*Input

	bus     device.Bus
	handles []device.Handle
	closer  fx.CloseOnce
}

// BoardConfig configures Open.
type BoardConfig struct {
	Addrs   [2]device.Address `yaml:"addrs"`
	Bitrate Bitrate           `yaml:"bitrate"`
	Gain    Gain              `yaml:"gain"`
	Mode    Mode              `yaml:"mode"`
}

// DefaultBoardConfig uses the factory addresses at 12-bit, x1, continuous.
func DefaultBoardConfig() BoardConfig {
	return BoardConfig{
		Addrs:   [2]device.Address{DefaultAddr1, DefaultAddr2},
		Bitrate: Bitrate12,
		Gain:    Gain1,
		Mode:    Continuous,
	}
}

// OpenBoard opens both converters.
func OpenBoard(bus device.Bus, conf BoardConfig) (*Board, error) {
	b := &Board{bus: bus}
	b.closer.Fn = b.close
	for _, addr := range conf.Addrs {
		h, err := bus.OpenDevice(addr)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open adc 0x%02x: %w", uint8(addr), err)
		}
		b.handles = append(b.handles, h)
	}
	for n := 0; n < NumInputs; n++ {
		c := Config{Channel: n % 4, Bitrate: conf.Bitrate, Gain: conf.Gain, Mode: conf.Mode}
		if err := c.Validate(); err != nil {
			b.Close()
			return nil, fmt.Errorf("adc input %d: %w", n, err)
		}
		b.Inputs = append(b.Inputs, NewInput(bus, b.handles[n/4], n, c))
	}
	return b, nil
}

// Input returns input n or nil.
func (b *Board) Input(n int) *Input {
	if n < 0 || n >= len(b.Inputs) {
		return nil
	}
	return b.Inputs[n]
}

// Close releases both converters once.
func (b *Board) Close() error {
	return b.closer.Close()
}

func (b *Board) close() error {
	errs := &fx.AggregatedError{}
	for _, h := range b.handles {
		errs.Add(b.bus.CloseDevice(h))
	}
	return errs.Aggregate()
}
