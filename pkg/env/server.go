package env

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/robotalks/legocar.go/pkg/car"
	"github.com/robotalks/legocar.go/pkg/discovery"
	fx "github.com/robotalks/legocar.go/pkg/framework"
	"github.com/robotalks/legocar.go/pkg/hw"
	"github.com/robotalks/legocar.go/pkg/lctp/comm"
	"github.com/robotalks/legocar.go/pkg/sim"
	"github.com/robotalks/legocar.go/pkg/telemetry"
	"github.com/robotalks/legocar.go/pkg/telemetry/mqtt"
	"github.com/robotalks/legocar.go/pkg/telemetry/record"
)

// Car modes.
const (
	ModeSim      = "sim"
	ModeHardware = "hw"
)

// CarType is the default type of a car.
const CarType = "legocar"

// ServerConfig configures carserver.
type ServerConfig struct {
	Car  telemetry.Source `yaml:"car"`
	Mode string           `yaml:"mode"`

	// StreamAddr and DatagramAddr are disabled when empty.
	StreamAddr   string        `yaml:"stream-addr"`
	DatagramAddr string        `yaml:"datagram-addr"`
	IdleTimeout  time.Duration `yaml:"idle-timeout"`
	MaxConns     int           `yaml:"max-conns"`

	Interval time.Duration `yaml:"interval"`
	Eager    bool          `yaml:"eager"`

	MQTTURL    string `yaml:"mqtt"`
	Encoding   string `yaml:"encoding"`
	RecordPath string `yaml:"record"`
	MDNS       bool   `yaml:"mdns"`

	Hardware hw.Config  `yaml:"hardware"`
	Sim      sim.Config `yaml:"sim"`
}

// NewServerConfig returns the defaults.
func NewServerConfig() *ServerConfig {
	return &ServerConfig{
		Car:          telemetry.Source{Type: CarType, ID: MachineID()},
		Mode:         ModeSim,
		StreamAddr:   comm.DefaultStreamAddr,
		DatagramAddr: comm.DefaultDatagramAddr,
		IdleTimeout:  comm.DefaultIdleTimeout,
		Interval:     fx.DefaultInterval,
		Encoding:     telemetry.EncodingProto,
		Hardware:     hw.DefaultConfig(),
		Sim:          sim.DefaultConfig(),
	}
}

// SetupFlags binds the command line flags to c.
func (c *ServerConfig) SetupFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Car.Type, "type", c.Car.Type, "Car type")
	fs.StringVar(&c.Car.ID, "id", c.Car.ID, "Car ID")
	fs.StringVar(&c.Mode, "mode", c.Mode, "Car to drive: sim or hw")
	fs.StringVar(&c.StreamAddr, "stream", c.StreamAddr, "TCP listen address, empty to disable")
	fs.StringVar(&c.DatagramAddr, "datagram", c.DatagramAddr, "UDP listen address, empty to disable")
	fs.DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "Close idle TCP connections after")
	fs.IntVar(&c.MaxConns, "max-conns", c.MaxConns, "Max concurrent TCP connections, 0 for unlimited")
	fs.DurationVar(&c.Interval, "interval", c.Interval, "Telemetry interval")
	fs.BoolVar(&c.Eager, "eager", c.Eager, "Activate the car at start instead of on first command")
	fs.StringVar(&c.MQTTURL, "mqtt", c.MQTTURL, "MQTT broker URL to publish telemetry, e.g. "+mqtt.DefaultBrokerURL)
	fs.StringVar(&c.Encoding, "encoding", c.Encoding, "Telemetry encoding: proto or cbor")
	fs.StringVar(&c.RecordPath, "record", c.RecordPath, "SQLite file recording telemetry")
	fs.BoolVar(&c.MDNS, "mdns", c.MDNS, "Advertise the listeners over mDNS")
	fs.StringVar(&c.Hardware.Bus, "i2c-bus", c.Hardware.Bus, "i2c bus device")
	fs.BoolVar(&c.Hardware.IMU, "imu", c.Hardware.IMU, "Use the LSM9DS1 inertial unit")
}

// Validate checks the values which can't be used as is.
func (c *ServerConfig) Validate() error {
	if !c.Car.IsValid() {
		return fmt.Errorf("car type and id must be specified")
	}
	if c.Mode != ModeSim && c.Mode != ModeHardware {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.StreamAddr == "" && c.DatagramAddr == "" {
		return fmt.Errorf("at least one of stream and datagram must be enabled")
	}
	if _, err := telemetry.NewEncoder(c.Encoding); err != nil {
		return err
	}
	return nil
}

// ServerEnv is the assembled carserver.
type ServerEnv struct {
	Config     *ServerConfig
	Sim        *sim.Sim
	Controller *car.Controller
	Stream     *comm.StreamServer
	Datagram   *comm.DatagramServer
	Pump       *telemetry.Pump
	Publisher  *mqtt.Publisher
	Recorder   *record.Recorder
	Advertiser *discovery.Advertiser

	closers []func() error
}

// NewEnv validates c, binds the listeners and creates all components.
func (c *ServerConfig) NewEnv() (e *ServerEnv, err error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	e = &ServerEnv{Config: c}
	defer func() {
		if err != nil {
			e.Close()
			e = nil
		}
	}()

	var opener car.Opener
	switch c.Mode {
	case ModeSim:
		e.Sim = sim.New(c.Sim)
		opener = e.Sim
	case ModeHardware:
		opener = hw.NewOpener(c.Hardware)
	}
	e.Controller = car.NewController(opener)
	e.Controller.Interval = c.Interval

	if c.StreamAddr != "" {
		e.Stream = comm.NewStreamServer(c.StreamAddr, e.Controller)
		e.Stream.IdleTimeout = c.IdleTimeout
		e.Stream.MaxConns = c.MaxConns
		if err = e.Stream.Listen(); err != nil {
			return e, fmt.Errorf("listen tcp %s: %w", c.StreamAddr, err)
		}
		e.closers = append(e.closers, e.Stream.Close)
	}
	if c.DatagramAddr != "" {
		e.Datagram = comm.NewDatagramServer(c.DatagramAddr, e.Controller)
		if err = e.Datagram.Listen(); err != nil {
			return e, fmt.Errorf("listen udp %s: %w", c.DatagramAddr, err)
		}
		e.closers = append(e.closers, e.Datagram.Close)
	}

	enc, err := telemetry.NewEncoder(c.Encoding)
	if err != nil {
		return e, err
	}
	var sinks []telemetry.Sink
	if c.MQTTURL != "" {
		meta := mqtt.Meta{Source: c.Car}
		if e.Stream != nil {
			meta.StreamAddr = e.Stream.ListenAddr().String()
		}
		if e.Datagram != nil {
			meta.DgramAddr = e.Datagram.ListenAddr().String()
		}
		if e.Publisher, err = mqtt.NewPublisher(c.MQTTURL, meta, enc); err != nil {
			return e, err
		}
		sinks = append(sinks, e.Publisher)
	}
	if c.RecordPath != "" {
		if e.Recorder, err = record.Open(c.RecordPath); err != nil {
			return e, fmt.Errorf("open record %s: %w", c.RecordPath, err)
		}
		e.closers = append(e.closers, e.Recorder.Close)
		sinks = append(sinks, e.Recorder)
	}
	if len(sinks) > 0 {
		e.Pump = telemetry.NewPump(telemetry.DefaultQueueSize, sinks...)
		e.Controller.AddListener(e.Pump)
	}

	if c.MDNS {
		e.Advertiser = discovery.NewAdvertiser(e.services()...)
	}
	return e, nil
}

func (e *ServerEnv) services() []discovery.Service {
	c := e.Config
	instance := c.Car.Type + "-" + c.Car.ID
	txt := discovery.TXT(map[string]string{
		discovery.TXTType: c.Car.Type,
		discovery.TXTID:   c.Car.ID,
	})
	var services []discovery.Service
	add := func(typ string, addr net.Addr) {
		port, err := discovery.PortOf(addr)
		if err != nil {
			glog.Warningf("Not advertising %s: %v", addr, err)
			return
		}
		services = append(services, discovery.Service{Instance: instance, Type: typ, Port: port, Text: txt})
	}
	if e.Stream != nil {
		add(discovery.ServiceStream, e.Stream.ListenAddr())
	}
	if e.Datagram != nil {
		add(discovery.ServiceDatagram, e.Datagram.ListenAddr())
	}
	return services
}

// Start spawns all components on r. With Eager the car is activated
// first and a failure to open it is returned.
func (e *ServerEnv) Start(r *fx.Runner) error {
	if e.Config.Eager {
		if err := e.Controller.Activate(r.Context); err != nil {
			return err
		}
	}
	r.Go(e.Controller)
	if e.Stream != nil {
		r.Go(e.Stream)
	}
	if e.Datagram != nil {
		r.Go(e.Datagram)
	}
	if e.Pump != nil {
		r.Go(e.Pump)
	}
	if e.Publisher != nil {
		r.Go(e.Publisher)
	}
	if e.Advertiser != nil {
		r.Go(e.Advertiser)
	}
	glog.Infof("Car %s (%s) serving", e.Config.Car.Name(), e.Config.Mode)
	return nil
}

// Run starts the components and waits for them to stop.
func (e *ServerEnv) Run(ctx context.Context) error {
	r := fx.NewRunnerWith(ctx)
	if err := e.Start(r); err != nil {
		r.Stop()
		return err
	}
	return r.Wait()
}

// Close releases what NewEnv acquired. It is safe after Run.
func (e *ServerEnv) Close() error {
	errs := &fx.AggregatedError{}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs.Add(e.closers[i]())
	}
	e.closers = nil
	return errs.Aggregate()
}
