package car

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/legocar.go/pkg/car"
	"github.com/robotalks/legocar.go/pkg/cli/sh"
	"github.com/robotalks/legocar.go/pkg/device"
	"github.com/robotalks/legocar.go/pkg/env"
	"github.com/robotalks/legocar.go/pkg/lctp/comm"
	"github.com/robotalks/legocar.go/pkg/sim"
	"github.com/robotalks/legocar.go/pkg/telemetry"
	"github.com/robotalks/legocar.go/pkg/telemetry/mqtt"
)

type recorder struct {
	ishell.Actions
	lines []string
}

func (r *recorder) Println(val ...interface{}) {
	r.lines = append(r.lines, strings.TrimSuffix(fmt.Sprintln(val...), "\n"))
}

func (r *recorder) Printf(format string, val ...interface{}) {
	r.lines = append(r.lines, strings.TrimSuffix(fmt.Sprintf(format, val...), "\n"))
}

func (r *recorder) SetPrompt(string) {}

func (r *recorder) last() string {
	if len(r.lines) == 0 {
		return ""
	}
	return r.lines[len(r.lines)-1]
}

type testCar struct {
	shell *sh.Shell
	ctl   *car.Controller
	sim   *sim.Sim
}

func newTestCar(t *testing.T) *testCar {
	s := sim.New(sim.DefaultConfig())
	ctl := car.NewController(s)
	ctl.Interval = 10 * time.Millisecond
	srv := comm.NewStreamServer("127.0.0.1:0", ctl)
	require.NoError(t, srv.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Run(ctx)
	}()

	conf := env.NewClientConfig()
	conf.Addr = srv.ListenAddr().String()
	shell := sh.New(conf)
	require.NoError(t, shell.Connect(nil, "tcp", conf.Addr))
	t.Cleanup(func() {
		shell.Disconnect(nil)
		cancel()
		<-done
		ctl.Deactivate()
	})
	return &testCar{shell: shell, ctl: ctl, sim: s}
}

func (c *testCar) run(t *testing.T, cmd *sh.Command, args ...string) (*recorder, error) {
	r := &recorder{}
	return r, c.shell.Invoke(cmd, &ishell.Context{Args: args, Actions: r})
}

func (c *testCar) eventually(t *testing.T, path, value string) {
	require.Eventually(t, func() bool {
		r, err := c.run(t, &GetCmd, path)
		return err == nil && r.last() == value
	}, 2*time.Second, 10*time.Millisecond, "%s = %s", path, value)
}

func TestDriveAndStop(t *testing.T) {
	c := newTestCar(t)
	r, err := c.run(t, &DriveCmd, "40", "-20")
	require.NoError(t, err)
	assert.Equal(t, "OK", r.last())
	c.eventually(t, "motor/left", "40")
	c.eventually(t, "motor/right", "-20")
	c.eventually(t, "speed", "10 0 -30")

	_, err = c.run(t, &DriveCmd, "30")
	require.NoError(t, err)
	c.eventually(t, "motor/right", "30")

	_, err = c.run(t, &StopCmd)
	require.NoError(t, err)
	c.eventually(t, "motor/left", "0")
	c.eventually(t, "motor/right", "0")
}

func TestSteerAndLights(t *testing.T) {
	c := newTestCar(t)
	_, err := c.run(t, &SteerCmd, "120")
	require.NoError(t, err)
	c.eventually(t, "steer/angle", "120")

	_, err = c.run(t, &LightCmd, "front", "ON")
	require.NoError(t, err)
	c.eventually(t, "light/front", "on")
	_, err = c.run(t, &SetCmd, "light/rear", "1")
	require.NoError(t, err)
	c.eventually(t, "light/rear", "on")
}

func TestArgumentErrors(t *testing.T) {
	c := newTestCar(t)
	tests := []struct {
		cmd  *sh.Command
		args []string
	}{
		{&GetCmd, nil},
		{&SetCmd, []string{"motor/left"}},
		{&DriveCmd, nil},
		{&DriveCmd, []string{"fast"}},
		{&DriveCmd, []string{"1", "2", "3"}},
		{&SteerCmd, nil},
		{&LightCmd, []string{"side", "on"}},
		{&LightCmd, []string{"front", "dim"}},
		{&RawCmd, nil},
	}
	for _, test := range tests {
		_, err := c.run(t, test.cmd, test.args...)
		assert.Error(t, err, "%s %v", test.cmd.Name, test.args)
	}
}

func TestServerErrors(t *testing.T) {
	c := newTestCar(t)
	_, err := c.run(t, &SetCmd, "motor/left", "200")
	assert.Error(t, err)
	_, err = c.run(t, &GetCmd, "foo")
	assert.Error(t, err)
}

func TestRawAndPing(t *testing.T) {
	c := newTestCar(t)
	r, err := c.run(t, &RawCmd, "PING")
	require.NoError(t, err)
	assert.Equal(t, "200 Pong", r.last())

	r, err = c.run(t, &RawCmd, "get", "foo")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(r.last(), "400 "), r.last())

	r, err = c.run(t, &PingCmd)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(r.last(), "PONG "), r.last())
}

func TestStatus(t *testing.T) {
	c := newTestCar(t)
	c.eventually(t, "speed", "0 0 0")
	c.eventually(t, "state", "active")
	r, err := c.run(t, &StatusCmd)
	require.NoError(t, err)
	lines := strings.Split(r.last(), "\n")
	require.Len(t, lines, len(StatusPaths))
	assert.Equal(t, "state        active", lines[0])
	assert.True(t, strings.HasPrefix(lines[5], "motor/left   "), lines[5])

	c.shell.OutputJSON = true
	r, err = c.run(t, &StatusCmd)
	require.NoError(t, err)
	var values map[string]string
	require.NoError(t, json.Unmarshal([]byte(r.last()), &values))
	assert.Equal(t, "active", values["state"])
	assert.Equal(t, "0", values["motor/left"])
}

func TestNotConnected(t *testing.T) {
	s := sh.New(env.NewClientConfig())
	r := &recorder{}
	err := s.Invoke(&GetCmd, &ishell.Context{Args: []string{"speed"}, Actions: r})
	assert.ErrorIs(t, err, sh.ErrNotConnected)
}

type fakeWatcher struct {
	states []*car.State
	err    error
}

func (w *fakeWatcher) Watch(ctx context.Context, src telemetry.Source, fn mqtt.StateHandler) error {
	if w.err != nil {
		return w.err
	}
	for _, s := range w.states {
		fn(telemetry.Source{Type: "legocar", ID: "a1"}, s)
	}
	<-ctx.Done()
	return nil
}

func TestWatch(t *testing.T) {
	w := &fakeWatcher{}
	for n := 1; n <= 3; n++ {
		w.states = append(w.states, &car.State{Sequence: uint64(n), LeftMotor: n})
	}
	s := sh.New(env.NewClientConfig())
	r := &recorder{}
	c := &ishell.Context{Actions: r}
	require.NoError(t, watch(context.Background(), s, c, w, telemetry.Source{}, 2))
	require.Len(t, r.lines, 2)
	assert.Equal(t, "legocar/a1 #1 speed=0 0 0 motors=1/0 steer=0 yaw=0", r.lines[0])
	assert.Equal(t, "legocar/a1 #2 speed=0 0 0 motors=2/0 steer=0 yaw=0", r.lines[1])

	w.err = fmt.Errorf("broker down")
	assert.EqualError(t, watch(context.Background(), s, c, w, telemetry.Source{}, 2), "broker down")
}

func TestFormatState(t *testing.T) {
	s := &car.State{
		Sequence:    7,
		Speed:       device.Vector3{X: 64, Z: -0.5},
		Orientation: car.Orientation{Yaw: 1.5},
		LeftMotor:   64,
		RightMotor:  63,
		SteerAngle:  90,
		Voltages:    []float64{2.5, 0},
	}
	assert.Equal(t,
		"legocar/a1 #7 speed=64 0 -0.5 motors=64/63 steer=90 yaw=1.5 adc0=2.5",
		FormatState(telemetry.Source{Type: "legocar", ID: "a1"}, s))
}
