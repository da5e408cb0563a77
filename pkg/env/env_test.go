package env

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/legocar.go/pkg/car"
	fx "github.com/robotalks/legocar.go/pkg/framework"
	"github.com/robotalks/legocar.go/pkg/lctp"
	"github.com/robotalks/legocar.go/pkg/lctp/comm"
)

func TestEnvName(t *testing.T) {
	assert.Equal(t, "LEGOCAR_IDLE_TIMEOUT", EnvName("idle-timeout"))
	assert.Equal(t, "LEGOCAR_MQTT", EnvName("mqtt"))
}

func TestConfigPath(t *testing.T) {
	cases := []struct {
		args []string
		path string
	}{
		{nil, ""},
		{[]string{"--config", "a.yaml"}, "a.yaml"},
		{[]string{"--mode=hw", "--config=b.yaml"}, "b.yaml"},
		{[]string{"-c", "c.yaml", "--eager"}, "c.yaml"},
		{[]string{"-c=d.yaml"}, "d.yaml"},
		{[]string{"--", "--config", "e.yaml"}, ""},
		{[]string{"--config"}, ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.path, configPath(c.args), "%v", c.args)
	}
}

func writeYAML(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "car.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func loadServer(t *testing.T, args ...string) (*ServerConfig, error) {
	conf := NewServerConfig()
	fs := pflag.NewFlagSet("carserver", pflag.ContinueOnError)
	conf.SetupFlags(fs)
	return conf, Load(fs, args, conf)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeYAML(t, `
mode: hw
stream-addr: ":6000"
datagram-addr: ":6001"
interval: 250ms
mqtt: mqtt://yaml:1883/
hardware:
  bus: /dev/i2c-3
  pwm-frequency: 60
  servo:
    min-angle: 30
    max-angle: 150
`)
	t.Setenv("LEGOCAR_STREAM", ":7000")
	t.Setenv("LEGOCAR_INTERVAL", "50ms")

	conf, err := loadServer(t, "--config", path, "--interval=20ms")
	require.NoError(t, err)
	assert.Equal(t, ModeHardware, conf.Mode, "yaml over default")
	assert.Equal(t, ":6001", conf.DatagramAddr, "yaml over default")
	assert.Equal(t, ":7000", conf.StreamAddr, "env over yaml")
	assert.Equal(t, 20*time.Millisecond, conf.Interval, "flag over env")
	assert.Equal(t, "mqtt://yaml:1883/", conf.MQTTURL)
	assert.Equal(t, "/dev/i2c-3", conf.Hardware.Bus)
	assert.Equal(t, 60.0, conf.Hardware.PWMFrequency)
	assert.Equal(t, 30, conf.Hardware.Servo.MinAngle)
	assert.Equal(t, 150, conf.Hardware.Servo.MaxAngle)
	assert.Equal(t, time.Millisecond, conf.Hardware.Servo.MinPulse, "untouched nested default")
	assert.True(t, conf.Hardware.IMU)
	assert.Equal(t, CarType, conf.Car.Type)
	assert.NoError(t, conf.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	path := writeYAML(t, "car:\n  id: yaml-car\n")
	t.Setenv("LEGOCAR_CONFIG", path)
	conf, err := loadServer(t)
	require.NoError(t, err)
	assert.Equal(t, "yaml-car", conf.Car.ID)
}

func TestLoadErrors(t *testing.T) {
	_, err := loadServer(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = loadServer(t, "--config", writeYAML(t, "mode: [oops"))
	assert.Error(t, err)

	t.Setenv("LEGOCAR_MAX_CONNS", "many")
	_, err = loadServer(t)
	assert.ErrorContains(t, err, "LEGOCAR_MAX_CONNS")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(c *ServerConfig)
	}{
		{"no id", func(c *ServerConfig) { c.Car.ID = "" }},
		{"mode", func(c *ServerConfig) { c.Mode = "boat" }},
		{"no listener", func(c *ServerConfig) { c.StreamAddr, c.DatagramAddr = "", "" }},
		{"encoding", func(c *ServerConfig) { c.Encoding = "xml" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			conf := NewServerConfig()
			c.modify(conf)
			assert.Error(t, conf.Validate())
		})
	}
}

func TestMachineID(t *testing.T) {
	id := MachineID()
	assert.NotEmpty(t, id)
	assert.Equal(t, id, MachineID())
}

func TestServerEnv(t *testing.T) {
	conf := NewServerConfig()
	conf.Car.ID = "test"
	conf.StreamAddr = "127.0.0.1:0"
	conf.DatagramAddr = "127.0.0.1:0"
	conf.Interval = 10 * time.Millisecond
	conf.Eager = true
	conf.Encoding = "cbor"
	conf.RecordPath = filepath.Join(t.TempDir(), "car.db")
	conf.MDNS = true

	e, err := conf.NewEnv()
	require.NoError(t, err)
	defer e.Close()
	require.NotNil(t, e.Sim)
	require.NotNil(t, e.Recorder)
	require.NotNil(t, e.Advertiser)
	require.Len(t, e.Advertiser.Services, 2)
	assert.Equal(t, "legocar-test", e.Advertiser.Services[0].Instance)
	e.Advertiser = nil

	r := fx.NewRunner()
	require.NoError(t, e.Start(r))
	assert.Equal(t, car.Active, e.Controller.Status())

	ctx := context.Background()
	client, err := lctp.Dial(ctx, "tcp", e.Stream.ListenAddr().String())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Set(ctx, "motor/left", "50"))
	require.Eventually(t, func() bool {
		val, err := client.Get(ctx, "motor/left")
		return err == nil && val == "50"
	}, 2*time.Second, 10*time.Millisecond)

	dgram, err := lctp.Dial(ctx, "udp", e.Datagram.ListenAddr().String())
	require.NoError(t, err)
	defer dgram.Close()
	_, err = dgram.Ping(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		states, err := e.Recorder.Recent(ctx, 1)
		return err == nil && len(states) == 1 && states[0].LeftMotor == 50
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	require.NoError(t, r.Wait())
	assert.Equal(t, car.Idle, e.Controller.Status())
	require.NoError(t, e.Close())
}

func TestServerEnvListenFailure(t *testing.T) {
	conf := NewServerConfig()
	conf.StreamAddr = "127.0.0.1:0"
	conf.DatagramAddr = "not-an-address"
	_, err := conf.NewEnv()
	assert.Error(t, err)
}

func TestClientConfig(t *testing.T) {
	conf := NewClientConfig()
	fs := pflag.NewFlagSet("carcli", pflag.ContinueOnError)
	conf.SetupFlags(fs)
	t.Setenv("LEGOCAR_NETWORK", "udp")
	require.NoError(t, Load(fs, []string{"-a", "car.local:5081", "--timeout", "2s"}, conf))
	assert.Equal(t, "car.local:5081", conf.Addr)
	assert.Equal(t, "udp", conf.Network)
	assert.Equal(t, 2*time.Second, conf.Timeout)

	conf.Network = "unix"
	_, err := conf.Dial(context.Background())
	assert.Error(t, err)

	conf.Encoding = "xml"
	_, err = conf.NewWatcher()
	assert.Error(t, err)
}

func TestRedialer(t *testing.T) {
	var sets []string
	var lock sync.Mutex
	srv := comm.NewStreamServer("127.0.0.1:0", lctp.HandlerFunc(func(ctx context.Context, line string, peer lctp.Peer) lctp.Message {
		lock.Lock()
		defer lock.Unlock()
		sets = append(sets, peer.ID+" "+line)
		return lctp.OK("")
	}))
	require.NoError(t, srv.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	conf := NewClientConfig()
	conf.Addr = srv.ListenAddr().String()
	r := &Redialer{Config: conf}
	defer r.Close()

	first, err := r.Client(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Set(ctx, "motor/left", "10"))
	same, err := r.Client(ctx)
	require.NoError(t, err)
	assert.Same(t, first, same)

	require.NoError(t, first.Close())
	require.NoError(t, r.Set(ctx, "motor/left", "0"))
	second, err := r.Client(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	lock.Lock()
	defer lock.Unlock()
	require.Len(t, sets, 2)
	assert.NotEqual(t, strings.Fields(sets[0])[0], strings.Fields(sets[1])[0])
}
