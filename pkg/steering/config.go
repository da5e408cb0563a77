package steering

import (
	"time"

	"github.com/spf13/pflag"
)

// Config defines the configuration of the steering controller.
type Config struct {
	// DeviceIndex selects /dev/input/jsN, -1 detects the first one.
	DeviceIndex  int           `yaml:"device"`
	SteerAxis    int           `yaml:"steer-axis"`
	ThrottleAxis int           `yaml:"throttle-axis"`
	StopButton   int           `yaml:"stop-button"`
	Center       int           `yaml:"center"`
	Range        int           `yaml:"range"`
	MaxSpeed     int           `yaml:"max-speed"`
	Interval     time.Duration `yaml:"interval"`
	Verbose      bool          `yaml:"verbose"`
}

var defaultConfig = Config{
	DeviceIndex:  -1,
	SteerAxis:    0,
	ThrottleAxis: 1,
	StopButton:   0,
	Center:       90,
	Range:        45,
	MaxSpeed:     127,
	Interval:     100 * time.Millisecond,
}

// SetupFlags binds the command line flags to the defaults.
func SetupFlags(fs *pflag.FlagSet) {
	c := &defaultConfig
	fs.IntVar(&c.DeviceIndex, "device", c.DeviceIndex, "Joystick index, -1 for auto detection")
	fs.IntVar(&c.SteerAxis, "steer-axis", c.SteerAxis, "Axis turning the steering servo")
	fs.IntVar(&c.ThrottleAxis, "throttle-axis", c.ThrottleAxis, "Axis driving both motors, pushed forward is negative")
	fs.IntVar(&c.StopButton, "stop-button", c.StopButton, "Button stopping the motors while pressed, -1 for none")
	fs.IntVar(&c.Center, "center", c.Center, "Steering angle with the axis centered")
	fs.IntVar(&c.Range, "range", c.Range, "Steering degrees at full deflection")
	fs.IntVar(&c.MaxSpeed, "max-speed", c.MaxSpeed, "Motor speed at full throttle")
	fs.DurationVar(&c.Interval, "interval", c.Interval, "Period of the commands sent to the car")
	fs.BoolVar(&c.Verbose, "verbose", c.Verbose, "Log joystick events")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewController creates a controller using the config.
func (c *Config) NewController(car Setter) *Controller {
	ctl := NewController(car)
	ctl.Config = *c
	return ctl
}
