// Package sim simulates the car: a kinematic body driven by the simulated
// motors and steering, and sensors synthesized from its motion.
package sim

import "math"

// Heading is a direction on the floor in radians, counter clockwise from
// +X and wrapped into (-Pi, Pi].
type Heading float64

// WrapHeading wraps r radians into a Heading.
func WrapHeading(r float64) Heading {
	r = math.Remainder(r, 2*math.Pi)
	if r <= -math.Pi {
		r += 2 * math.Pi
	}
	return Heading(r)
}

// HeadingDeg converts degrees into a Heading.
func HeadingDeg(d float64) Heading {
	return WrapHeading(d * math.Pi / 180)
}

// Rad returns the heading in radians.
func (h Heading) Rad() float64 {
	return float64(h)
}

// Deg returns the heading in degrees.
func (h Heading) Deg() float64 {
	return float64(h) * 180 / math.Pi
}

// Pos2D is a position on the floor in mm.
type Pos2D struct {
	X, Y float64
}

// Pose2D is where the car is and where it faces.
type Pose2D struct {
	Pos2D
	Heading Heading
}

// Move advances dist along the current heading, then turns.
func (p *Pose2D) Move(dist, turn float64) {
	sin, cos := math.Sincos(p.Heading.Rad())
	p.X += dist * cos
	p.Y += dist * sin
	p.Heading = WrapHeading(p.Heading.Rad() + turn)
}
