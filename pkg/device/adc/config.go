// Package adc implements the MCP342x delta-sigma converters found on the
// ADC Pi Zero board.
package adc

import "fmt"

// Bitrate is the conversion resolution in bits.
type Bitrate int

// Supported resolutions.
const (
	Bitrate12 Bitrate = 12
	Bitrate14 Bitrate = 14
	Bitrate16 Bitrate = 16
	Bitrate18 Bitrate = 18
)

// Gain is the programmable gain amplifier factor.
type Gain int

// Supported gains.
const (
	Gain1 Gain = 1
	Gain2 Gain = 2
	Gain4 Gain = 4
	Gain8 Gain = 8
)

// Mode is the conversion mode.
type Mode int

// Conversion modes.
const (
	OneShot Mode = iota
	Continuous
)

// Configuration register fragments.
const (
	cfgReady      byte = 0x80
	cfgChannelMsk byte = 0x60
	cfgContinuous byte = 0x10
	cfgRateMsk    byte = 0x0c
	cfgGainMsk    byte = 0x03
)

// Config selects channel, resolution, gain and mode of a conversion.
type Config struct {
	// Channel is 0-based, 0..3.
	Channel int     `yaml:"channel"`
	Bitrate Bitrate `yaml:"bitrate"`
	Gain    Gain    `yaml:"gain"`
	Mode    Mode    `yaml:"mode"`
}

// DefaultConfig is 12-bit, x1, continuous.
func DefaultConfig(channel int) Config {
	return Config{Channel: channel, Bitrate: Bitrate12, Gain: Gain1, Mode: Continuous}
}

// Validate checks every field is a supported value.
func (c Config) Validate() error {
	if c.Channel < 0 || c.Channel > 3 {
		return fmt.Errorf("invalid channel %d", c.Channel)
	}
	if rateBits(c.Bitrate) < 0 {
		return fmt.Errorf("invalid bitrate %d", c.Bitrate)
	}
	if gainBits(c.Gain) < 0 {
		return fmt.Errorf("invalid gain %d", c.Gain)
	}
	if c.Mode != OneShot && c.Mode != Continuous {
		return fmt.Errorf("invalid mode %d", c.Mode)
	}
	return nil
}

func rateBits(b Bitrate) int {
	switch b {
	case Bitrate12:
		return 0
	case Bitrate14:
		return 1
	case Bitrate16:
		return 2
	case Bitrate18:
		return 3
	}
	return -1
}

func gainBits(g Gain) int {
	switch g {
	case Gain1:
		return 0
	case Gain2:
		return 1
	case Gain4:
		return 2
	case Gain8:
		return 3
	}
	return -1
}

// BuildConfig packs c into the configuration byte. The ready bit is
// always set, which starts a conversion in one-shot mode.
// Unsupported bitrate or gain values pack as 12-bit and x1.
//
//	bit 7    ready / start
//	bit 6-5  channel
//	bit 4    1 continuous, 0 one-shot
//	bit 3-2  00 12-bit, 01 14-bit, 10 16-bit, 11 18-bit
//	bit 1-0  00 x1, 01 x2, 10 x4, 11 x8
func BuildConfig(c Config) byte {
	cfg := cfgReady
	cfg |= byte(c.Channel<<5) & cfgChannelMsk
	if c.Mode == Continuous {
		cfg |= cfgContinuous
	}
	if r := rateBits(c.Bitrate); r > 0 {
		cfg |= byte(r<<2) & cfgRateMsk
	}
	if g := gainBits(c.Gain); g > 0 {
		cfg |= byte(g) & cfgGainMsk
	}
	return cfg
}

// LSBVoltage returns the voltage of one LSB at the resolution.
// Unknown resolutions return a large sentinel.
func LSBVoltage(b Bitrate) float64 {
	switch b {
	case Bitrate12:
		return 0.001
	case Bitrate14:
		return 0.000250
	case Bitrate16:
		return 0.0000625
	case Bitrate18:
		return 0.000015625
	}
	return 9999
}

// GainFactor returns the PGA multiplier, 1 for unknown values.
func GainFactor(g Gain) float64 {
	switch g {
	case Gain1, Gain2, Gain4, Gain8:
		return float64(g)
	}
	return 1
}
