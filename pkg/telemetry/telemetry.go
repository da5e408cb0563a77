// Package telemetry ships published car states to sinks such as an MQTT
// broker or a local recording.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/legocar.go/pkg/car"
	fx "github.com/robotalks/legocar.go/pkg/framework"
)

// Source identifies the car publishing the states.
type Source struct {
	Type string `json:"type" yaml:"type"`
	ID   string `json:"id" yaml:"id"`
}

// Name returns "type/id".
func (s Source) Name() string {
	return s.Type + "/" + s.ID
}

// IsValid checks both parts are present.
func (s Source) IsValid() bool {
	return s.Type != "" && s.ID != ""
}

// Encoder converts states to payloads and back.
type Encoder interface {
	Name() string
	Encode(s *car.State) ([]byte, error)
	Decode(data []byte) (*car.State, error)
}

// ErrUnknownEncoding is returned by NewEncoder.
var ErrUnknownEncoding = errors.New("unknown encoding")

// Encoding names.
const (
	EncodingProto = "proto"
	EncodingCBOR  = "cbor"
)

// NewEncoder returns the Encoder with the given name.
func NewEncoder(name string) (Encoder, error) {
	switch name {
	case EncodingProto:
		return ProtoEncoder{}, nil
	case EncodingCBOR:
		enc, err := NewCBOREncoder()
		if err != nil {
			return nil, err
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

// Sink receives states from a Pump.
type Sink interface {
	Publish(ctx context.Context, s *car.State) error
}

// SinkFunc is the func form of Sink.
type SinkFunc func(ctx context.Context, s *car.State) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, s *car.State) error {
	return f(ctx, s)
}

// DefaultQueueSize is the number of states a Pump buffers.
const DefaultQueueSize = 16

// Pump decouples the telemetry loop from slow sinks. It is registered as a
// car.StateListener and delivers states to the sinks in order on its own
// goroutine. When the queue is full the oldest state is dropped.
type Pump struct {
	Sinks []Sink

	queue   chan *car.State
	dropped atomic.Uint64
}

var (
	_ car.StateListener = &Pump{}
	_ fx.Runnable       = &Pump{}
)

// NewPump creates a Pump.
func NewPump(size int, sinks ...Sink) *Pump {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Pump{Sinks: sinks, queue: make(chan *car.State, size)}
}

// Name implements fx.Named.
func (p *Pump) Name() string {
	return "telemetry"
}

// Dropped returns the number of states discarded on overflow.
func (p *Pump) Dropped() uint64 {
	return p.dropped.Load()
}

// StateChanged implements car.StateListener. It never blocks.
func (p *Pump) StateChanged(s *car.State) {
	for {
		select {
		case p.queue <- s:
			return
		default:
		}
		select {
		case <-p.queue:
			p.dropped.Add(1)
		default:
		}
	}
}

// Run implements fx.Runnable.
func (p *Pump) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-p.queue:
			for _, sink := range p.Sinks {
				if err := sink.Publish(ctx, s); err != nil {
					glog.Warningf("Telemetry %d: %v", s.Sequence, err)
				}
			}
		}
	}
}
