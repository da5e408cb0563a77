package sim

import (
	"math"
	"sync"
	"time"

	"github.com/robotalks/legocar.go/pkg/device"
)

const (
	standardGravity = 9806.65 // mm/s^2
	// EarthField is the horizontal magnetic field in gauss.
	EarthField = 0.4
	// SteerCenter is the servo angle driving straight.
	SteerCenter = 90
)

// BodyConfig describes the dimensions and limits of the simulated car.
type BodyConfig struct {
	// MaxSpeed in mm/s at motor speed 127.
	MaxSpeed float64 `yaml:"max-speed"`
	// Accel limits speed changes in mm/s^2, 0 changes instantly.
	Accel      float64 `yaml:"accel"`
	TrackWidth float64 `yaml:"track-width"`
	Wheelbase  float64 `yaml:"wheelbase"`
	// Temp is the reported die temperature in celsius.
	Temp float64 `yaml:"temp"`
}

// DefaultBodyConfig roughly matches the Lego race car (420x200 mm).
func DefaultBodyConfig() BodyConfig {
	return BodyConfig{
		MaxSpeed:   1000,
		Accel:      2000,
		TrackWidth: 200,
		Wheelbase:  300,
		Temp:       25,
	}
}

// Body is the kinematic model of the car. It advances lazily whenever it
// is read or commanded.
type Body struct {
	Config BodyConfig

	lock    sync.Mutex
	now     func() time.Time
	last    time.Time
	pose    Pose2D
	speed   float64 // mm/s along heading
	yawRate float64 // rad/s
	accel   float64 // mm/s^2 along heading during the last step
	left    int
	right   int
	steer   int
}

// NewBody creates a Body at the origin facing +X.
func NewBody(conf BodyConfig) *Body {
	return &Body{Config: conf, now: time.Now, steer: SteerCenter}
}

func (b *Body) targetSpeed() float64 {
	return float64(b.left+b.right) / 2 / 127 * b.Config.MaxSpeed
}

func (b *Body) targetYawRate(speed float64) float64 {
	var rate float64
	if b.Config.TrackWidth > 0 {
		rate = float64(b.right-b.left) / 127 * b.Config.MaxSpeed / b.Config.TrackWidth
	}
	if b.Config.Wheelbase > 0 && b.steer != SteerCenter {
		rate += speed * math.Tan(float64(b.steer-SteerCenter)*math.Pi/180) / b.Config.Wheelbase
	}
	return rate
}

// advance moves the body to now, with the lock held.
func (b *Body) advance(now time.Time) {
	if b.last.IsZero() {
		b.last = now
		return
	}
	dt := now.Sub(b.last).Seconds()
	if dt <= 0 {
		return
	}
	b.last = now
	v0, vt := b.speed, b.targetSpeed()
	var dist float64
	b.accel = 0
	if a := b.Config.Accel; a > 0 && v0 != vt {
		if vt < v0 {
			a = -a
		}
		if ta := (vt - v0) / a; dt < ta {
			dist = v0*dt + a*dt*dt/2
			b.speed = v0 + a*dt
		} else {
			dist = (v0+vt)/2*ta + vt*(dt-ta)
			b.speed = vt
		}
		b.accel = a
	} else {
		b.speed = vt
		dist = vt * dt
	}
	b.yawRate = b.targetYawRate(b.speed)
	b.pose.Move(dist, b.yawRate*dt)
}

func (b *Body) update(fn func()) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.advance(b.now())
	fn()
}

// SetMotors sets the motor speeds.
func (b *Body) SetMotors(left, right int) {
	b.update(func() { b.left, b.right = left, right })
}

// SetSteer sets the steering servo angle.
func (b *Body) SetSteer(deg int) {
	b.update(func() { b.steer = deg })
}

// Pose returns the current pose.
func (b *Body) Pose() (pose Pose2D) {
	b.update(func() { pose = b.pose })
	return
}

// Speed returns the current speed in mm/s.
func (b *Body) Speed() (speed float64) {
	b.update(func() { speed = b.speed })
	return
}

// Inertial synthesizes what an inertial unit mounted level on the body
// would measure.
func (b *Body) Inertial() (s device.InertialSample) {
	b.update(func() {
		heading := b.pose.Heading.Rad()
		sin, cos := math.Sincos(heading)
		s.Accel = device.Vector3{
			X: b.accel / standardGravity,
			Y: b.speed * b.yawRate / standardGravity,
			Z: 1,
		}
		s.Gyro = device.Vector3{Z: b.yawRate * 180 / math.Pi}
		s.Mag = device.Vector3{X: EarthField * cos, Y: -EarthField * sin}
		s.Temp = b.Config.Temp
	})
	return
}
