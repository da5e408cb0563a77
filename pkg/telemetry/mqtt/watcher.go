package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/legocar.go/pkg/car"
	"github.com/robotalks/legocar.go/pkg/telemetry"
)

// DefaultDiscoverTimeout is how long Discover collects retained metas.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// StateHandler receives decoded states.
type StateHandler func(src telemetry.Source, s *car.State)

// Watcher follows published telemetry.
type Watcher struct {
	Client          paho.Client
	TopicPrefix     string
	Decoder         telemetry.Encoder
	DiscoverTimeout time.Duration
}

// NewWatcher creates a Watcher. The client is connected by Connect.
func NewWatcher(brokerURL string, dec telemetry.Encoder) (*Watcher, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}
	return &Watcher{
		Client:          paho.NewClient(opts),
		TopicPrefix:     prefix,
		Decoder:         dec,
		DiscoverTimeout: DefaultDiscoverTimeout,
	}, nil
}

// Connect connects the client.
func (w *Watcher) Connect() error {
	token := w.Client.Connect()
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (w *Watcher) Close() error {
	w.Client.Disconnect(0)
	return nil
}

func (w *Watcher) pattern(src telemetry.Source, kind string) string {
	typ, id := src.Type, src.ID
	if typ == "" {
		typ = "+"
	}
	if id == "" {
		id = "+"
	}
	return typ + "/" + id + "/" + kind
}

func (w *Watcher) subscribe(ctx context.Context, pattern string, fn func(src telemetry.Source, payload []byte)) error {
	topic := w.TopicPrefix + pattern
	glog.V(2).Infof("SUB %q", topic)
	token := w.Client.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		name := strings.TrimPrefix(msg.Topic(), w.TopicPrefix)
		if !MatchTopic(name, pattern) {
			return
		}
		if src, _, ok := ParseTopic(name); ok {
			fn(src, msg.Payload())
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		w.Client.Unsubscribe(topic)
	}()
	return nil
}

// Watch delivers the states of the cars matching src to fn until ctx is
// done. Empty fields of src match any car.
func (w *Watcher) Watch(ctx context.Context, src telemetry.Source, fn StateHandler) error {
	err := w.subscribe(ctx, w.pattern(src, "state"), func(src telemetry.Source, payload []byte) {
		s, err := w.Decoder.Decode(payload)
		if err != nil {
			glog.Warningf("State from %s: %v", src.Name(), err)
			return
		}
		fn(src, s)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Discover collects the retained metas of the cars online.
func (w *Watcher) Discover(ctx context.Context) ([]Meta, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	metaCh := make(chan Meta, 16)
	err := w.subscribe(ctx, w.pattern(telemetry.Source{}, "meta"), func(src telemetry.Source, payload []byte) {
		if len(payload) == 0 {
			return
		}
		var meta Meta
		if err := json.Unmarshal(payload, &meta); err != nil {
			glog.Warningf("Meta of %s: %v", src.Name(), err)
			return
		}
		meta.Source = src
		select {
		case metaCh <- meta:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}
	dur := w.DiscoverTimeout
	if dur <= 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.After(dur)
	var metas []Meta
	for {
		select {
		case meta := <-metaCh:
			metas = append(metas, meta)
		case <-timeout:
			return metas, nil
		case <-ctx.Done():
			return metas, ctx.Err()
		}
	}
}
