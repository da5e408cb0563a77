package adc

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/legocar.go/pkg/device"
)

// DefaultMaxAttempts bounds the polling of a conversion.
const DefaultMaxAttempts = 1000

// Calibration is the board's input divider constant.
const Calibration = 2.471

// ErrTimeout indicates a conversion never became ready.
var ErrTimeout = errors.New("adc conversion timeout")

const readyBit byte = 0x80

// Input is one analog input of a converter.
type Input struct {
	Bus    device.Bus
	Handle device.Handle
	Number int
	Config Config
	// MaxAttempts bounds the polling, DefaultMaxAttempts when 0.
	MaxAttempts int

	timeouts uint64
}

var _ device.AnalogInput = &Input{}

// NewInput creates an input on an opened converter.
func NewInput(bus device.Bus, h device.Handle, number int, conf Config) *Input {
	return &Input{Bus: bus, Handle: h, Number: number, Config: conf, MaxAttempts: DefaultMaxAttempts}
}

// Timeouts returns how many conversions timed out.
func (in *Input) Timeouts() uint64 {
	return atomic.LoadUint64(&in.timeouts)
}

// ReadRaw runs a conversion and returns the signed reading.
// A conversion which never becomes ready yields 0 with a nil error
// after logging a warning. Only bus failures are returned as errors.
func (in *Input) ReadRaw() (int, error) {
	val, err := Convert(in.Bus, in.Handle, in.Config, in.MaxAttempts)
	if errors.Is(err, ErrTimeout) {
		atomic.AddUint64(&in.timeouts, 1)
		glog.Warningf("ADC input %d: %v", in.Number, err)
		return 0, nil
	}
	return val, err
}

// ReadVoltage implements device.AnalogInput.
func (in *Input) ReadVoltage() (float64, error) {
	raw, err := in.ReadRaw()
	if err != nil {
		return 0, err
	}
	return Voltage(raw, in.Config), nil
}

// Voltage scales a signed reading.
func Voltage(raw int, c Config) float64 {
	return Calibration * float64(raw) * LSBVoltage(c.Bitrate) / GainFactor(c.Gain)
}

// Convert writes the configuration and polls until the conversion is
// ready, at most maxAttempts times. It returns ErrTimeout when the ready
// flag never clears.
func Convert(bus device.Bus, h device.Handle, c Config, maxAttempts int) (int, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	cfg := BuildConfig(c)
	n := 3
	if c.Bitrate == Bitrate18 {
		n = 4
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := bus.WriteRaw(h, cfg); err != nil {
			return 0, err
		}
		data, err := bus.ReadRaw(h, n)
		if err != nil {
			return 0, err
		}
		if len(data) < n {
			return 0, fmt.Errorf("adc: short read %d of %d bytes", len(data), n)
		}
		if data[n-1]&readyBit == 0 {
			return Decode(c.Bitrate, data[:n-1]), nil
		}
	}
	return 0, fmt.Errorf("%w after %d attempts", ErrTimeout, maxAttempts)
}

// Decode assembles the payload bytes at the resolution and sign extends.
// 18-bit uses three payload bytes, the others two.
func Decode(b Bitrate, payload []byte) int {
	var hi, med, lo int
	if len(payload) > 0 {
		hi = int(payload[0])
	}
	if len(payload) > 1 {
		med = int(payload[1])
	}
	if len(payload) > 2 {
		lo = int(payload[2])
	}
	switch b {
	case Bitrate12:
		return signExtend((hi&0x0f)<<8|med, 12)
	case Bitrate14:
		return signExtend((hi&0x3f)<<8|med, 14)
	case Bitrate16:
		return signExtend(hi<<8|med, 16)
	case Bitrate18:
		return signExtend((hi&0x03)<<16|med<<8|lo, 18)
	}
	return 0
}

func signExtend(v int, bits uint) int {
	if v&(1<<(bits-1)) != 0 {
		return v - 1<<bits
	}
	return v
}
