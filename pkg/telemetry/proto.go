package telemetry

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes"
	structpb "github.com/golang/protobuf/ptypes/struct"
	tspb "github.com/golang/protobuf/ptypes/timestamp"
	"gonum.org/v1/gonum/num/quat"

	"github.com/robotalks/legocar.go/pkg/car"
	"github.com/robotalks/legocar.go/pkg/device"
)

// ProtoEncoder encodes a state as a google.protobuf.Struct. The timestamp
// is a nested struct with the seconds and nanos of google.protobuf.Timestamp.
type ProtoEncoder struct{}

// Name implements Encoder.
func (ProtoEncoder) Name() string {
	return EncodingProto
}

func numberValue(v float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: v}}
}

func boolValue(v bool) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: v}}
}

func structValue(fields map[string]*structpb.Value) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StructValue{StructValue: &structpb.Struct{Fields: fields}}}
}

func vectorValue(v device.Vector3) *structpb.Value {
	return structValue(map[string]*structpb.Value{
		"x": numberValue(v.X),
		"y": numberValue(v.Y),
		"z": numberValue(v.Z),
	})
}

// Encode implements Encoder.
func (ProtoEncoder) Encode(s *car.State) ([]byte, error) {
	ts, err := ptypes.TimestampProto(s.Timestamp)
	if err != nil {
		return nil, err
	}
	voltages := make([]*structpb.Value, len(s.Voltages))
	for n, v := range s.Voltages {
		voltages[n] = numberValue(v)
	}
	o := s.Orientation
	timestamp := structValue(map[string]*structpb.Value{
		"seconds": numberValue(float64(ts.Seconds)),
		"nanos":   numberValue(float64(ts.Nanos)),
	})
	orientation := structValue(map[string]*structpb.Value{
		"roll":  numberValue(o.Roll),
		"pitch": numberValue(o.Pitch),
		"yaw":   numberValue(o.Yaw),
		"quat": structValue(map[string]*structpb.Value{
			"w": numberValue(o.Quat.Real),
			"x": numberValue(o.Quat.Imag),
			"y": numberValue(o.Quat.Jmag),
			"z": numberValue(o.Quat.Kmag),
		}),
	})
	adc := &structpb.Value{Kind: &structpb.Value_ListValue{ListValue: &structpb.ListValue{Values: voltages}}}
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		"seq":         numberValue(float64(s.Sequence)),
		"timestamp":   timestamp,
		"speed":       vectorValue(s.Speed),
		"orientation": orientation,
		"motor_left":  numberValue(float64(s.LeftMotor)),
		"motor_right": numberValue(float64(s.RightMotor)),
		"steer_angle": numberValue(float64(s.SteerAngle)),
		"light_front": boolValue(s.FrontLight),
		"light_rear":  boolValue(s.RearLight),
		"adc":         adc,
		"accel":       vectorValue(s.Accel),
		"gyro":        vectorValue(s.Gyro),
		"mag":         vectorValue(s.Mag),
		"temp":        numberValue(s.Temp),
	}}
	return proto.Marshal(msg)
}

type fields map[string]*structpb.Value

func (f fields) number(key string) float64 {
	return f[key].GetNumberValue()
}

func (f fields) sub(key string) fields {
	return f[key].GetStructValue().GetFields()
}

func (f fields) vector(key string) device.Vector3 {
	v := f.sub(key)
	return device.Vector3{X: v.number("x"), Y: v.number("y"), Z: v.number("z")}
}

// Decode implements Encoder.
func (ProtoEncoder) Decode(data []byte) (*car.State, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	f := fields(msg.GetFields())
	tf := f.sub("timestamp")
	ts, err := ptypes.Timestamp(&tspb.Timestamp{
		Seconds: int64(tf.number("seconds")),
		Nanos:   int32(tf.number("nanos")),
	})
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	of, qf := f.sub("orientation"), f.sub("orientation").sub("quat")
	s := &car.State{
		Sequence:  uint64(f.number("seq")),
		Timestamp: ts.In(time.UTC),
		Speed:     f.vector("speed"),
		Orientation: car.Orientation{
			Roll:  of.number("roll"),
			Pitch: of.number("pitch"),
			Yaw:   of.number("yaw"),
			Quat: quat.Number{
				Real: qf.number("w"),
				Imag: qf.number("x"),
				Jmag: qf.number("y"),
				Kmag: qf.number("z"),
			},
		},
		LeftMotor:  int(f.number("motor_left")),
		RightMotor: int(f.number("motor_right")),
		SteerAngle: int(f.number("steer_angle")),
		FrontLight: f["light_front"].GetBoolValue(),
		RearLight:  f["light_rear"].GetBoolValue(),
		Accel:      f.vector("accel"),
		Gyro:       f.vector("gyro"),
		Mag:        f.vector("mag"),
		Temp:       f.number("temp"),
	}
	for _, v := range f["adc"].GetListValue().GetValues() {
		s.Voltages = append(s.Voltages, v.GetNumberValue())
	}
	return s, nil
}
