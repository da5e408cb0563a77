package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/legocar.go/pkg/car"
	"github.com/robotalks/legocar.go/pkg/device"
)

func sampleState() *car.State {
	return &car.State{
		Sequence:    42,
		Timestamp:   time.Date(2024, 5, 1, 12, 30, 15, 123456789, time.UTC),
		Speed:       car.SpeedOf(-32, 64),
		Orientation: car.OrientationFrom(device.Vector3{X: 0.1, Z: 0.99}, device.Vector3{X: 0.3, Y: -0.2}),
		LeftMotor:   -32,
		RightMotor:  64,
		SteerAngle:  120,
		FrontLight:  true,
		Voltages:    []float64{0.5, 7.4, 0, 1.25},
		Accel:       device.Vector3{X: 0.1, Z: 0.99},
		Gyro:        device.Vector3{Y: -3.5},
		Mag:         device.Vector3{X: 0.3, Y: -0.2},
		Temp:        24.125,
	}
}

func TestEncoders(t *testing.T) {
	for _, name := range []string{EncodingProto, EncodingCBOR} {
		t.Run(name, func(t *testing.T) {
			enc, err := NewEncoder(name)
			require.NoError(t, err)
			assert.Equal(t, name, enc.Name())
			want := sampleState()
			data, err := enc.Encode(want)
			require.NoError(t, err)
			require.NotEmpty(t, data)
			got, err := enc.Decode(data)
			require.NoError(t, err)
			assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp %v", got.Timestamp)
			got.Timestamp = want.Timestamp
			assert.Equal(t, want, got)
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	for _, name := range []string{EncodingProto, EncodingCBOR} {
		enc, err := NewEncoder(name)
		require.NoError(t, err)
		_, err = enc.Decode([]byte{0xff, 0xff, 0xff})
		assert.Error(t, err, name)
	}
}

func TestUnknownEncoding(t *testing.T) {
	_, err := NewEncoder("xml")
	assert.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestSourceName(t *testing.T) {
	src := Source{Type: "legocar", ID: "abc"}
	assert.Equal(t, "legocar/abc", src.Name())
	assert.True(t, src.IsValid())
	assert.False(t, Source{Type: "legocar"}.IsValid())
}

type recordingSink struct {
	lock sync.Mutex
	seqs []uint64
	got  chan struct{}
}

func (r *recordingSink) Publish(_ context.Context, s *car.State) error {
	r.lock.Lock()
	r.seqs = append(r.seqs, s.Sequence)
	r.lock.Unlock()
	r.got <- struct{}{}
	return nil
}

func (r *recordingSink) Seqs() []uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]uint64(nil), r.seqs...)
}

func TestPumpDeliversInOrder(t *testing.T) {
	sink := &recordingSink{got: make(chan struct{}, 10)}
	failing := SinkFunc(func(context.Context, *car.State) error {
		return assert.AnError
	})
	p := NewPump(4, failing, sink)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for n := uint64(1); n <= 3; n++ {
		p.StateChanged(&car.State{Sequence: n})
	}
	for n := 0; n < 3; n++ {
		select {
		case <-sink.got:
		case <-time.After(time.Second):
			t.Fatal("state not delivered")
		}
	}
	assert.Equal(t, []uint64{1, 2, 3}, sink.Seqs())
	cancel()
	require.NoError(t, <-done)
}

func TestPumpDropsOldest(t *testing.T) {
	p := NewPump(2)
	for n := uint64(1); n <= 5; n++ {
		p.StateChanged(&car.State{Sequence: n})
	}
	assert.Equal(t, uint64(3), p.Dropped())
	assert.Equal(t, uint64(4), (<-p.queue).Sequence)
	assert.Equal(t, uint64(5), (<-p.queue).Sequence)
}
