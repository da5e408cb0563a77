package env

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/robotalks/legocar.go/pkg/lctp"
	"github.com/robotalks/legocar.go/pkg/telemetry"
	"github.com/robotalks/legocar.go/pkg/telemetry/mqtt"
)

// ClientConfig configures programs talking to a car.
type ClientConfig struct {
	Addr     string        `yaml:"addr"`
	Network  string        `yaml:"network"`
	Timeout  time.Duration `yaml:"timeout"`
	MQTTURL  string        `yaml:"mqtt"`
	Encoding string        `yaml:"encoding"`
}

// NewClientConfig returns the defaults.
func NewClientConfig() *ClientConfig {
	return &ClientConfig{
		Addr:     "localhost:5080",
		Network:  "tcp",
		Timeout:  lctp.DefaultClientTimeout,
		MQTTURL:  mqtt.DefaultBrokerURL,
		Encoding: telemetry.EncodingProto,
	}
}

// SetupFlags binds the command line flags to c.
func (c *ClientConfig) SetupFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Addr, "addr", "a", c.Addr, "Car address host:port")
	fs.StringVarP(&c.Network, "network", "n", c.Network, "tcp (stream) or udp (datagram)")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Request timeout")
	fs.StringVar(&c.MQTTURL, "mqtt", c.MQTTURL, "MQTT broker URL for telemetry")
	fs.StringVar(&c.Encoding, "encoding", c.Encoding, "Telemetry encoding: proto or cbor")
}

// Dial connects to the car.
func (c *ClientConfig) Dial(ctx context.Context) (*lctp.Client, error) {
	switch c.Network {
	case "tcp", "tcp4", "tcp6", "udp", "udp4", "udp6":
	default:
		return nil, fmt.Errorf("unsupported network %q", c.Network)
	}
	client, err := lctp.Dial(ctx, c.Network, c.Addr)
	if err != nil {
		return nil, err
	}
	if c.Timeout > 0 {
		client.Timeout = c.Timeout
	}
	return client, nil
}

// Redialer holds a client to the car and dials again once the previous
// one has been closed.
type Redialer struct {
	Config *ClientConfig

	client *lctp.Client
	lock   sync.Mutex
}

// Client returns the current client, dialing when there is none.
func (r *Redialer) Client(ctx context.Context) (*lctp.Client, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.client != nil && !r.client.Closed() {
		return r.client, nil
	}
	client, err := r.Config.Dial(ctx)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

// Set implements steering.Setter.
func (r *Redialer) Set(ctx context.Context, path, value string) error {
	client, err := r.Client(ctx)
	if err != nil {
		return err
	}
	return client.Set(ctx, path, value)
}

// Close implements io.Closer.
func (r *Redialer) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// NewWatcher creates a telemetry watcher on the configured broker.
func (c *ClientConfig) NewWatcher() (*mqtt.Watcher, error) {
	enc, err := telemetry.NewEncoder(c.Encoding)
	if err != nil {
		return nil, err
	}
	return mqtt.NewWatcher(c.MQTTURL, enc)
}
