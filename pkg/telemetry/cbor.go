package telemetry

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/robotalks/legocar.go/pkg/car"
)

// CBOREncoder encodes a state as deterministic CBOR using the cbor struct
// tags of car.State. Timestamps are RFC 3339 strings with nanoseconds.
type CBOREncoder struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBOREncoder creates a CBOREncoder.
func NewCBOREncoder() (*CBOREncoder, error) {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBOREncoder{enc: enc, dec: dec}, nil
}

// Name implements Encoder.
func (e *CBOREncoder) Name() string {
	return EncodingCBOR
}

// Encode implements Encoder.
func (e *CBOREncoder) Encode(s *car.State) ([]byte, error) {
	return e.enc.Marshal(s)
}

// Decode implements Encoder.
func (e *CBOREncoder) Decode(data []byte) (*car.State, error) {
	var s car.State
	if err := e.dec.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &s, nil
}
