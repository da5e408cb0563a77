package car

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robotalks/legocar.go/pkg/device"
	"github.com/robotalks/legocar.go/pkg/lctp"
)

type getter func(s *State) (string, bool)

func formatSwitch(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

var getters = map[string]getter{
	"speed": func(s *State) (string, bool) {
		return s.Speed.String(), true
	},
	"orientation": func(s *State) (string, bool) {
		o := s.Orientation
		return strings.Join([]string{device.FormatFloat(o.Roll), device.FormatFloat(o.Pitch), device.FormatFloat(o.Yaw)}, " "), true
	},
	"orientation/quat": func(s *State) (string, bool) {
		q := s.Orientation.Quat
		return strings.Join([]string{device.FormatFloat(q.Real), device.FormatFloat(q.Imag), device.FormatFloat(q.Jmag), device.FormatFloat(q.Kmag)}, " "), true
	},
	"timestamp": func(s *State) (string, bool) {
		return s.Timestamp.UTC().Format(time.RFC3339Nano), true
	},
	"seq": func(s *State) (string, bool) {
		return strconv.FormatUint(s.Sequence, 10), true
	},
	"motor/left": func(s *State) (string, bool) {
		return strconv.Itoa(s.LeftMotor), true
	},
	"motor/right": func(s *State) (string, bool) {
		return strconv.Itoa(s.RightMotor), true
	},
	"steer/angle": func(s *State) (string, bool) {
		return strconv.Itoa(s.SteerAngle), true
	},
	"light/front": func(s *State) (string, bool) {
		return formatSwitch(s.FrontLight), true
	},
	"light/rear": func(s *State) (string, bool) {
		return formatSwitch(s.RearLight), true
	},
	"imu/accel": func(s *State) (string, bool) {
		return s.Accel.String(), true
	},
	"imu/gyro": func(s *State) (string, bool) {
		return s.Gyro.String(), true
	},
	"imu/mag": func(s *State) (string, bool) {
		return s.Mag.String(), true
	},
	"imu/temp": func(s *State) (string, bool) {
		return device.FormatFloat(s.Temp), true
	},
}

func adcGetter(path lctp.Path) getter {
	if len(path) != 2 || path[0] != "adc" {
		return nil
	}
	n, err := strconv.Atoi(path[1])
	if err != nil || n < 0 {
		return nil
	}
	return func(s *State) (string, bool) {
		if n >= len(s.Voltages) {
			return "", false
		}
		return device.FormatFloat(s.Voltages[n]), true
	}
}

var settable = map[string]bool{
	"motor/left":  true,
	"motor/right": true,
	"steer/angle": true,
	"light/front": true,
	"light/rear":  true,
}

// routable reports whether req addresses a path the controller serves.
func routable(req *lctp.Request) bool {
	switch req.Verb {
	case lctp.VerbGet:
		return getters[req.Path.String()] != nil || adcGetter(req.Path) != nil
	case lctp.VerbSet:
		return settable[req.Path.String()]
	}
	return false
}

// get serves a path from the last published State.
func (c *Controller) get(path lctp.Path) lctp.Message {
	fn := getters[path.String()]
	if fn == nil {
		fn = adcGetter(path)
	}
	if fn == nil {
		return unknownPath(path)
	}
	s := c.state.Load()
	if s == nil {
		return lctp.InternalError("no telemetry available")
	}
	val, ok := fn(s)
	if !ok {
		return unknownPath(path)
	}
	return lctp.OK(val)
}

// ParseSwitch parses on/off, 1/0 and true/false.
func ParseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid switch value %q", value)
}

func parseInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", value)
	}
	return n, nil
}

// set applies a value to the device behind path.
func (c *Controller) set(car *Car, path lctp.Path, value string) lctp.Message {
	var err error
	switch key := path.String(); key {
	case "motor/left", "motor/right":
		m := car.LeftMotor
		if key == "motor/right" {
			m = car.RightMotor
		}
		if m == nil {
			break
		}
		var speed int
		if speed, err = parseInt(value); err != nil {
			return lctp.BadRequest(err.Error())
		}
		return deviceResult(m.SetSpeed(speed))
	case "steer/angle":
		if car.Steering == nil {
			break
		}
		var deg int
		if deg, err = parseInt(value); err != nil {
			return lctp.BadRequest(err.Error())
		}
		return deviceResult(car.Steering.SetAngle(deg))
	case "light/front", "light/rear":
		sw := car.FrontLight
		if key == "light/rear" {
			sw = car.RearLight
		}
		if sw == nil {
			break
		}
		var on bool
		if on, err = ParseSwitch(value); err != nil {
			return lctp.BadRequest(err.Error())
		}
		return deviceResult(sw.SetOn(on))
	}
	return unknownPath(path)
}

func unknownPath(path lctp.Path) lctp.Message {
	return lctp.BadRequest((&lctp.PathError{Path: path.String()}).Error())
}

func deviceResult(err error) lctp.Message {
	switch {
	case err == nil:
		return lctp.OK("")
	case errors.Is(err, device.ErrOutOfRange):
		return lctp.BadRequest(err.Error())
	}
	return lctp.InternalError("device error: " + err.Error())
}
