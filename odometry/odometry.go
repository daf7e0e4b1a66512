// Package odometry accumulates a field-relative robot pose from module
// states and an absolute gyro heading.
package odometry

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/s1"

	"swerve/kinematics"
)

// Pose is a field-relative position in meters and a heading.
type Pose struct {
	X       float64
	Y       float64
	Heading s1.Angle
}

// Translation returns the pose position.
func (p Pose) Translation() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.2f deg)", p.X, p.Y, p.Heading.Degrees())
}

// Odometry integrates chassis motion into a Pose. The gyro heading is
// authoritative for rotation; wheel states only supply translation.
//
// Update and Reset are expected from a single writer. Pose may be read from
// any goroutine.
type Odometry struct {
	kin *kinematics.Kinematics

	mu sync.RWMutex
	// pose.Heading == gyro + offset
	pose        Pose
	offset      s1.Angle
	lastHeading s1.Angle
}

// New starts tracking at initial with the gyro currently reading gyroHeading.
func New(kin *kinematics.Kinematics, gyroHeading s1.Angle, initial Pose) *Odometry {
	o := &Odometry{kin: kin}
	o.reset(initial, gyroHeading)
	return o
}

// Pose returns the latest estimate.
func (o *Odometry) Pose() Pose {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pose
}

// Reset places the robot at pose. Later gyro readings are taken relative to
// gyroHeading, so the gyro does not need to be zeroed.
func (o *Odometry) Reset(pose Pose, gyroHeading s1.Angle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reset(pose, gyroHeading)
}

func (o *Odometry) reset(pose Pose, gyroHeading s1.Angle) {
	o.pose = pose
	o.offset = pose.Heading - gyroHeading
	o.lastHeading = pose.Heading
}

// Update advances the pose by dt using the measured module states. A
// non-positive dt, or a non-finite input, leaves the pose unchanged.
func (o *Odometry) Update(gyroHeading s1.Angle, states kinematics.ModuleStates, dt time.Duration) Pose {
	o.mu.Lock()
	defer o.mu.Unlock()

	if dt <= 0 || !finite(gyroHeading.Radians()) {
		return o.pose
	}
	speeds := o.kin.ToChassisSpeeds(states)
	if !finite(speeds.Vx) || !finite(speeds.Vy) {
		return o.pose
	}

	heading := (gyroHeading + o.offset).Normalized()
	seconds := dt.Seconds()
	delta := exp(speeds.Vx*seconds, speeds.Vy*seconds, (heading - o.lastHeading).Normalized())

	c, s := math.Cos(o.pose.Heading.Radians()), math.Sin(o.pose.Heading.Radians())
	o.pose = Pose{
		X:       o.pose.X + delta.X*c - delta.Y*s,
		Y:       o.pose.Y + delta.X*s + delta.Y*c,
		Heading: heading,
	}
	o.lastHeading = heading
	return o.pose
}

// exp maps a body-frame displacement (dx, dy) traveled while turning by
// dTheta to the chord in the starting frame, following a constant-curvature
// arc.
func exp(dx, dy float64, dTheta s1.Angle) r2.Point {
	theta := dTheta.Radians()
	var s, c float64
	if math.Abs(theta) < 1e-9 {
		s = 1 - theta*theta/6
		c = theta / 2
	} else {
		s = math.Sin(theta) / theta
		c = (1 - math.Cos(theta)) / theta
	}
	return r2.Point{X: dx*s - dy*c, Y: dx*c + dy*s}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
