// Package sim is a kinematic stand-in for the drivetrain hardware: modules
// that take commands instantly and a gyro that reads the true heading.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/golang/geo/s1"

	"swerve/kinematics"
	"swerve/odometry"
)

// Module is a perfect swerve module: it reaches the commanded state at once.
type Module struct {
	mu    sync.Mutex
	state kinematics.ModuleState
	sets  int
}

// Set implements drivetrain.ModuleActuator.
func (m *Module) Set(speedMetersPerSecond float64, angle s1.Angle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = kinematics.ModuleState{Speed: speedMetersPerSecond, Angle: angle.Normalized()}
	m.sets++
}

// Angle implements drivetrain.ModuleActuator.
func (m *Module) Angle() s1.Angle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Angle
}

// State returns the module's current state.
func (m *Module) State() kinematics.ModuleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Sets counts calls to Set.
func (m *Module) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// Gyro reads the world's true heading relative to its last zero.
type Gyro struct {
	mu      sync.Mutex
	heading s1.Angle
	zero    s1.Angle
}

// Yaw implements drivetrain.Gyro.
func (g *Gyro) Yaw() s1.Angle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return (g.heading - g.zero).Normalized()
}

// Zero implements drivetrain.Gyro.
func (g *Gyro) Zero() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.zero = g.heading
}

func (g *Gyro) rotate(d s1.Angle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.heading += d
}

// World tracks where the robot really is given what its modules are doing.
type World struct {
	kin     *kinematics.Kinematics
	Modules [kinematics.NumModules]*Module
	Gyro    *Gyro

	// Slip is the fraction of wheel motion lost to the floor, 0 to 1.
	Slip float64

	truth odometry.Pose
}

// NewWorld places a robot with geometry g at the origin.
func NewWorld(g kinematics.Geometry) *World {
	w := &World{
		kin:  kinematics.NewKinematics(g),
		Gyro: &Gyro{},
	}
	for i := range w.Modules {
		w.Modules[i] = &Module{}
	}
	return w
}

// Truth returns the robot's actual pose.
func (w *World) Truth() odometry.Pose {
	return w.truth
}

// Step moves the robot by what its modules did over dt.
func (w *World) Step(dt time.Duration) {
	if dt <= 0 {
		return
	}
	var states kinematics.ModuleStates
	for i, m := range w.Modules {
		states[i] = m.State()
	}
	speeds := w.kin.ToChassisSpeeds(states)
	grip := 1 - w.Slip
	seconds := dt.Seconds()

	dx := speeds.Vx * grip * seconds
	dy := speeds.Vy * grip * seconds
	dTheta := s1.Angle(speeds.Omega * grip * seconds)

	// midpoint heading is exact enough for a truth model at control rates
	mid := (w.truth.Heading + dTheta/2).Radians()
	c, s := math.Cos(mid), math.Sin(mid)
	w.truth = odometry.Pose{
		X:       w.truth.X + dx*c - dy*s,
		Y:       w.truth.Y + dx*s + dy*c,
		Heading: (w.truth.Heading + dTheta).Normalized(),
	}
	w.Gyro.rotate(dTheta)
}
