package car

import (
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"

	"github.com/robotalks/legocar.go/pkg/device"
)

// Orientation is the attitude of the car as Euler angles in radians and
// as the equivalent unit quaternion.
type Orientation struct {
	Roll  float64     `json:"roll" cbor:"roll"`
	Pitch float64     `json:"pitch" cbor:"pitch"`
	Yaw   float64     `json:"yaw" cbor:"yaw"`
	Quat  quat.Number `json:"quat" cbor:"quat"`
}

// State is a snapshot produced by one telemetry cycle. It is never
// modified after being published.
type State struct {
	Sequence    uint64         `json:"seq" cbor:"seq"`
	Timestamp   time.Time      `json:"timestamp" cbor:"timestamp"`
	Speed       device.Vector3 `json:"speed" cbor:"speed"`
	Orientation Orientation    `json:"orientation" cbor:"orientation"`

	LeftMotor  int  `json:"motor_left" cbor:"motor_left"`
	RightMotor int  `json:"motor_right" cbor:"motor_right"`
	SteerAngle int  `json:"steer_angle" cbor:"steer_angle"`
	FrontLight bool `json:"light_front" cbor:"light_front"`
	RearLight  bool `json:"light_rear" cbor:"light_rear"`

	Voltages []float64      `json:"adc" cbor:"adc"`
	Accel    device.Vector3 `json:"accel" cbor:"accel"`
	Gyro     device.Vector3 `json:"gyro" cbor:"gyro"`
	Mag      device.Vector3 `json:"mag" cbor:"mag"`
	Temp     float64        `json:"temp" cbor:"temp"`
}

// SpeedOf derives the car speed from the motor speeds: X is the mean
// forward speed, Z the turning component.
func SpeedOf(left, right int) device.Vector3 {
	return device.Vector3{
		X: float64(left+right) / 2,
		Z: float64(right-left) / 2,
	}
}

// Level is the orientation of a car standing level facing north.
func Level() Orientation {
	return Orientation{Quat: quat.Number{Real: 1}}
}

// OrientationFrom estimates the attitude from gravity and the magnetic
// field. Roll and pitch come from the accelerometer, yaw is the tilt
// compensated heading. Without a gravity reading the identity is returned.
func OrientationFrom(accel, mag device.Vector3) Orientation {
	if accel.X == 0 && accel.Y == 0 && accel.Z == 0 {
		return Level()
	}
	roll := math.Atan2(accel.Y, accel.Z)
	pitch := math.Atan2(-accel.X, math.Hypot(accel.Y, accel.Z))
	var yaw float64
	if mag.X != 0 || mag.Y != 0 || mag.Z != 0 {
		sr, cr := math.Sincos(roll)
		sp, cp := math.Sincos(pitch)
		xh := mag.X*cp + mag.Y*sr*sp + mag.Z*cr*sp
		yh := mag.Y*cr - mag.Z*sr
		yaw = math.Atan2(-yh, xh)
	}
	return Orientation{Roll: roll, Pitch: pitch, Yaw: yaw, Quat: EulerToQuat(roll, pitch, yaw)}
}

// EulerToQuat converts Z-Y-X Euler angles into a unit quaternion.
func EulerToQuat(roll, pitch, yaw float64) quat.Number {
	sr, cr := math.Sincos(roll / 2)
	sp, cp := math.Sincos(pitch / 2)
	sy, cy := math.Sincos(yaw / 2)
	q := quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
	if n := quat.Abs(q); n > 0 {
		q = quat.Scale(1/n, q)
	}
	return q
}

// Rotate rotates v by the unit quaternion q.
func Rotate(q quat.Number, v device.Vector3) device.Vector3 {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return device.Vector3{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}
