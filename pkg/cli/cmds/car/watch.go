package car

import (
	"context"
	"fmt"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/legocar.go/pkg/car"
	"github.com/robotalks/legocar.go/pkg/cli/sh"
	"github.com/robotalks/legocar.go/pkg/device"
	"github.com/robotalks/legocar.go/pkg/telemetry"
	"github.com/robotalks/legocar.go/pkg/telemetry/mqtt"
)

type stateWatcher interface {
	Watch(ctx context.Context, src telemetry.Source, fn mqtt.StateHandler) error
}

type watched struct {
	src   telemetry.Source
	state *car.State
}

// FormatState summarizes a state in one line.
func FormatState(src telemetry.Source, s *car.State) string {
	line := fmt.Sprintf("%s #%d speed=%s motors=%d/%d steer=%d yaw=%s",
		src.Name(), s.Sequence, s.Speed, s.LeftMotor, s.RightMotor, s.SteerAngle,
		device.FormatFloat(s.Orientation.Yaw))
	if len(s.Voltages) > 0 {
		line += " adc0=" + device.FormatFloat(s.Voltages[0])
	}
	return line
}

func watch(ctx context.Context, s *sh.Shell, c *ishell.Context, w stateWatcher, src telemetry.Source, count int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	states := make(chan watched, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Watch(ctx, src, func(src telemetry.Source, state *car.State) {
			select {
			case states <- watched{src: src, state: state}:
			default:
			}
		})
	}()
	for n := 0; n < count; n++ {
		select {
		case e := <-states:
			if err := s.Output(c, e.state, FormatState(e.src, e.state)); err != nil {
				return err
			}
		case err := <-errCh:
			return err
		}
	}
	return nil
}
