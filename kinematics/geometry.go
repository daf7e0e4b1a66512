// Package kinematics converts between a chassis velocity and the four
// per-module (speed, angle) setpoints of a swerve drive.
package kinematics

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/s1"
)

// Module indices. Every [4] array in this repo is ordered this way.
const (
	FrontLeft = iota
	FrontRight
	BackLeft
	BackRight

	NumModules
)

// ModuleNames match the module indices.
var ModuleNames = [NumModules]string{"front_left", "front_right", "back_left", "back_right"}

// Translation2d is a module's offset from the robot center in meters,
// x forward and y to the left.
type Translation2d = r2.Point

// Geometry holds the offsets of the four modules.
type Geometry [NumModules]Translation2d

// NewGeometry builds a geometry from explicit module offsets.
func NewGeometry(frontLeft, frontRight, backLeft, backRight Translation2d) Geometry {
	return Geometry{frontLeft, frontRight, backLeft, backRight}
}

// RectangularGeometry places the modules at the corners of a
// trackwidth x wheelbase rectangle centered on the robot.
func RectangularGeometry(trackwidthMeters, wheelbaseMeters float64) Geometry {
	x := wheelbaseMeters / 2
	y := trackwidthMeters / 2
	return NewGeometry(
		r2.Point{X: x, Y: y},
		r2.Point{X: x, Y: -y},
		r2.Point{X: -x, Y: y},
		r2.Point{X: -x, Y: -y},
	)
}

// MaxRadius is the distance from the center to the farthest module.
func (g Geometry) MaxRadius() float64 {
	var r float64
	for _, t := range g {
		if n := t.Norm(); n > r {
			r = n
		}
	}
	return r
}

// ChassisSpeeds is a robot-relative velocity command. Vx is forward, Vy is
// to the left (m/s) and Omega is counter-clockwise rotation (rad/s).
type ChassisSpeeds struct {
	Vx    float64
	Vy    float64
	Omega float64
}

// IsZero reports whether no motion is requested.
func (c ChassisSpeeds) IsZero() bool {
	return c.Vx == 0 && c.Vy == 0 && c.Omega == 0
}

// FromFieldRelativeSpeeds converts a field-oriented command into robot
// frame given the robot's current heading.
func FromFieldRelativeSpeeds(vx, vy, omega float64, heading s1.Angle) ChassisSpeeds {
	v := rotate(r2.Point{X: vx, Y: vy}, -heading)
	return ChassisSpeeds{Vx: v.X, Vy: v.Y, Omega: omega}
}

// ModuleState is the speed (m/s, signed) and steering angle of one module.
type ModuleState struct {
	Speed float64
	Angle s1.Angle
}

// ModuleStates is one snapshot of all four modules. It is a value; copies
// never alias.
type ModuleStates [NumModules]ModuleState

// Angles returns the steering angle of each module.
func (m ModuleStates) Angles() [NumModules]s1.Angle {
	var out [NumModules]s1.Angle
	for i, s := range m {
		out[i] = s.Angle
	}
	return out
}

func rotate(p r2.Point, a s1.Angle) r2.Point {
	c, s := math.Cos(a.Radians()), math.Sin(a.Radians())
	return r2.Point{X: p.X*c - p.Y*s, Y: p.X*s + p.Y*c}
}
