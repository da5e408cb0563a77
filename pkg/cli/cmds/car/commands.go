// Package car adds the car commands to the shell.
package car

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/legocar.go/pkg/cli/sh"
	"github.com/robotalks/legocar.go/pkg/lctp"
	"github.com/robotalks/legocar.go/pkg/telemetry"
)

// StatusPaths are read by the status command in this order.
var StatusPaths = []string{
	"state",
	"seq",
	"timestamp",
	"speed",
	"orientation",
	"motor/left",
	"motor/right",
	"steer/angle",
	"light/front",
	"light/rear",
	"adc/0",
	"imu/temp",
}

func get(s *sh.Shell, path string) (string, error) {
	ctx, cancel := s.Context()
	defer cancel()
	return s.CurrentClient().Get(ctx, path)
}

func set(s *sh.Shell, path, value string) error {
	ctx, cancel := s.Context()
	defer cancel()
	return s.CurrentClient().Set(ctx, path, value)
}

func ok(s *sh.Shell, c *ishell.Context) error {
	return s.Output(c, map[string]string{"result": "OK"}, "OK")
}

func parseOnOff(arg string) (string, error) {
	switch strings.ToLower(arg) {
	case "on", "1", "true":
		return "on", nil
	case "off", "0", "false":
		return "off", nil
	}
	return "", fmt.Errorf("expect on or off: %q", arg)
}

var (
	// GetCmd reads a path.
	GetCmd = sh.Command{
		Name:      "get",
		Aliases:   []string{"g"},
		Help:      "PATH",
		Connected: true,
		Run: func(s *sh.Shell, c *ishell.Context) error {
			if len(c.Args) != 1 {
				return fmt.Errorf("usage: get PATH")
			}
			val, err := get(s, c.Args[0])
			if err != nil {
				return err
			}
			return s.Output(c, map[string]string{"path": c.Args[0], "value": val}, val)
		},
	}

	// SetCmd writes a path.
	SetCmd = sh.Command{
		Name:      "set",
		Aliases:   []string{"s"},
		Help:      "PATH VALUE",
		Connected: true,
		Run: func(s *sh.Shell, c *ishell.Context) error {
			if len(c.Args) != 2 {
				return fmt.Errorf("usage: set PATH VALUE")
			}
			if err := set(s, c.Args[0], c.Args[1]); err != nil {
				return err
			}
			return ok(s, c)
		},
	}

	// PingCmd measures the round trip.
	PingCmd = sh.Command{
		Name:      "ping",
		Connected: true,
		Run: func(s *sh.Shell, c *ishell.Context) error {
			ctx, cancel := s.Context()
			defer cancel()
			rtt, err := s.CurrentClient().Ping(ctx)
			if err != nil {
				return err
			}
			return s.Output(c, map[string]int64{"rtt_us": rtt.Microseconds()}, "PONG "+rtt.String())
		},
	}

	// StatusCmd prints the common paths.
	StatusCmd = sh.Command{
		Name:      "status",
		Aliases:   []string{"st"},
		Connected: true,
		Run: func(s *sh.Shell, c *ishell.Context) error {
			values := make(map[string]string, len(StatusPaths))
			var text strings.Builder
			for _, path := range StatusPaths {
				val, err := get(s, path)
				if err != nil {
					val = "! " + err.Error()
				}
				values[path] = val
				fmt.Fprintf(&text, "%-12s %s\n", path, val)
			}
			return s.Output(c, values, strings.TrimSuffix(text.String(), "\n"))
		},
	}

	// DriveCmd sets both motors.
	DriveCmd = sh.Command{
		Name:      "drive",
		Aliases:   []string{"dr"},
		Help:      "LEFT [RIGHT]",
		Connected: true,
		Run: func(s *sh.Shell, c *ishell.Context) error {
			if len(c.Args) < 1 || len(c.Args) > 2 {
				return fmt.Errorf("usage: drive LEFT [RIGHT]")
			}
			left, right := c.Args[0], c.Args[0]
			if len(c.Args) > 1 {
				right = c.Args[1]
			}
			for _, v := range []string{left, right} {
				if _, err := strconv.Atoi(v); err != nil {
					return fmt.Errorf("invalid speed %q", v)
				}
			}
			if err := set(s, "motor/left", left); err != nil {
				return err
			}
			if err := set(s, "motor/right", right); err != nil {
				return err
			}
			return ok(s, c)
		},
	}

	// StopCmd stops both motors.
	StopCmd = sh.Command{
		Name:      "stop",
		Connected: true,
		Run: func(s *sh.Shell, c *ishell.Context) error {
			errLeft := set(s, "motor/left", "0")
			errRight := set(s, "motor/right", "0")
			if errLeft != nil {
				return errLeft
			}
			if errRight != nil {
				return errRight
			}
			return ok(s, c)
		},
	}

	// SteerCmd sets the steering angle.
	SteerCmd = sh.Command{
		Name:      "steer",
		Help:      "DEGREES",
		Connected: true,
		Run: func(s *sh.Shell, c *ishell.Context) error {
			if len(c.Args) != 1 {
				return fmt.Errorf("usage: steer DEGREES")
			}
			if err := set(s, "steer/angle", c.Args[0]); err != nil {
				return err
			}
			return ok(s, c)
		},
	}

	// LightCmd switches a light.
	LightCmd = sh.Command{
		Name:      "light",
		Help:      "front|rear on|off",
		Connected: true,
		Run: func(s *sh.Shell, c *ishell.Context) error {
			if len(c.Args) != 2 || (c.Args[0] != "front" && c.Args[0] != "rear") {
				return fmt.Errorf("usage: light front|rear on|off")
			}
			val, err := parseOnOff(c.Args[1])
			if err != nil {
				return err
			}
			if err := set(s, "light/"+c.Args[0], val); err != nil {
				return err
			}
			return ok(s, c)
		},
	}

	// RawCmd sends a request line as is and prints the response.
	RawCmd = sh.Command{
		Name:      "raw",
		Help:      "VERB [PATH [VALUE]]",
		Connected: true,
		Run: func(s *sh.Shell, c *ishell.Context) error {
			req, err := lctp.ParseRequest(strings.Join(c.Args, " "))
			if err != nil {
				return err
			}
			ctx, cancel := s.Context()
			defer cancel()
			msg, err := s.CurrentClient().Do(ctx, req)
			if err != nil {
				return err
			}
			return s.Output(c, map[string]interface{}{"status": msg.StatusCode, "content": msg.Content}, msg.Format())
		},
	}

	// WatchCmd prints states published over MQTT.
	WatchCmd = sh.Command{
		Name: "watch",
		Help: "[TYPE [ID]] [COUNT]",
		Run: func(s *sh.Shell, c *ishell.Context) error {
			var src telemetry.Source
			count := 10
			args := c.Args
			if n := len(args); n > 0 {
				if v, err := strconv.Atoi(args[n-1]); err == nil {
					count, args = v, args[:n-1]
				}
			}
			if len(args) > 0 {
				src.Type = args[0]
			}
			if len(args) > 1 {
				src.ID = args[1]
			}
			w, err := s.Config.NewWatcher()
			if err != nil {
				return err
			}
			if err := w.Connect(); err != nil {
				return err
			}
			defer w.Close()
			return watch(context.Background(), s, c, w, src, count)
		},
	}
)

func init() {
	sh.AddCmds(
		&GetCmd,
		&SetCmd,
		&PingCmd,
		&StatusCmd,
		&DriveCmd,
		&StopCmd,
		&SteerCmd,
		&LightCmd,
		&RawCmd,
		&WatchCmd,
	)
}
