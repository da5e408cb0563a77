package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/legocar.go/pkg/car"
	fx "github.com/robotalks/legocar.go/pkg/framework"
	"github.com/robotalks/legocar.go/pkg/telemetry"
)

// Meta is the retained description of a car.
type Meta struct {
	Source     telemetry.Source `json:"source"`
	Encoding   string           `json:"encoding"`
	StreamAddr string           `json:"stream,omitempty"`
	DgramAddr  string           `json:"datagram,omitempty"`
}

// Defaults of Publisher.
const (
	DefaultPublishTimeout = time.Second
	DefaultRetryInterval  = 5 * time.Second
)

// Publisher implements telemetry.Sink on an MQTT broker.
type Publisher struct {
	Client         paho.Client
	TopicPrefix    string
	Meta           Meta
	Encoder        telemetry.Encoder
	PublishTimeout time.Duration
	RetryInterval  time.Duration

	metaJSON []byte
}

var (
	_ telemetry.Sink = &Publisher{}
	_ fx.Runnable    = &Publisher{}
)

// NewPublisher creates a Publisher connecting to brokerURL. The meta topic
// is cleared by the broker if the car disappears.
func NewPublisher(brokerURL string, meta Meta, enc telemetry.Encoder) (*Publisher, error) {
	if !meta.Source.IsValid() {
		return nil, fmt.Errorf("car type and id must be specified")
	}
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}
	opts.SetBinaryWill(prefix+MetaTopic(meta.Source), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("legocar:" + meta.Source.Name())
	}
	p := &Publisher{TopicPrefix: prefix}
	opts.SetOnConnectHandler(func(paho.Client) { p.announce() })
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		glog.Warningf("MQTT connection lost: %v", err)
	})
	if err := p.init(paho.NewClient(opts), meta, enc); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) init(client paho.Client, meta Meta, enc telemetry.Encoder) error {
	meta.Encoding = enc.Name()
	data, err := json.Marshal(&meta)
	if err != nil {
		return err
	}
	p.Client, p.Meta, p.Encoder, p.metaJSON = client, meta, enc, data
	return nil
}

// Name implements fx.Named.
func (p *Publisher) Name() string {
	return "mqtt-publisher"
}

func (p *Publisher) wait(token paho.Token) error {
	timeout := p.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt: timed out after %v", timeout)
	}
	return token.Error()
}

func (p *Publisher) announce() {
	glog.Infof("MQTT connected, announcing %s", p.Meta.Source.Name())
	token := p.Client.Publish(p.TopicPrefix+MetaTopic(p.Meta.Source), 1, true, p.metaJSON)
	go func() {
		if err := p.wait(token); err != nil {
			glog.Warningf("Publish meta: %v", err)
		}
	}()
}

// Publish implements telemetry.Sink.
func (p *Publisher) Publish(ctx context.Context, s *car.State) error {
	if !p.Client.IsConnected() {
		return nil
	}
	payload, err := p.Encoder.Encode(s)
	if err != nil {
		return err
	}
	return p.wait(p.Client.Publish(p.TopicPrefix+StateTopic(p.Meta.Source), 0, false, payload))
}

// Run implements fx.Runnable. It keeps trying to connect until ctx is
// done and withdraws the meta on exit.
func (p *Publisher) Run(ctx context.Context) error {
	retry := p.RetryInterval
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	for {
		token := p.Client.Connect()
		token.Wait()
		err := token.Error()
		if err == nil {
			break
		}
		glog.Warningf("MQTT connect: %v, retry in %v", err, retry)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
	<-ctx.Done()
	if err := p.wait(p.Client.Publish(p.TopicPrefix+MetaTopic(p.Meta.Source), 1, true, []byte{})); err != nil {
		glog.Warningf("Withdraw meta: %v", err)
	}
	p.Client.Disconnect(250)
	return nil
}
