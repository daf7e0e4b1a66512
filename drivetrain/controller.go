// Package drivetrain runs one control tick of a swerve drive: kinematics,
// desaturation, dispatch to the four modules and the odometry update.
package drivetrain

import (
	"sync"
	"time"

	"github.com/golang/geo/s1"
	"go.viam.com/rdk/logging"

	"swerve/kinematics"
	"swerve/odometry"
)

// LockAngles point every wheel along its diagonal so the modules form an X.
var LockAngles = [kinematics.NumModules]s1.Angle{
	kinematics.FrontLeft:  45 * s1.Degree,
	kinematics.FrontRight: -45 * s1.Degree,
	kinematics.BackLeft:   -45 * s1.Degree,
	kinematics.BackRight:  45 * s1.Degree,
}

type commandKind int

const (
	noCommand commandKind = iota
	velocityCommand
	statesCommand
)

// Controller owns the latest drive command and the pose estimate. Tick is
// driven by an external scheduler and must not be called concurrently with
// itself; the command setters and readers may be called from anywhere.
//
// There is no command timeout. Whoever issues commands must call Stop when
// it is done, or the last command keeps running.
type Controller struct {
	cfg      Config
	kin      *kinematics.Kinematics
	modules  [kinematics.NumModules]ModuleActuator
	gyro     Gyro
	odometry *odometry.Odometry
	logger   logging.Logger

	// actuation is held by a tick from reading the command until it has
	// recorded what it dispatched, and by Stop and Lock.
	actuation sync.Mutex

	mu        sync.RWMutex
	kind      commandKind
	speeds    kinematics.ChassisSpeeds
	states    kinematics.ModuleStates
	commanded kinematics.ModuleStates
}

// New builds a controller and seeds odometry at the origin.
func New(
	cfg Config,
	modules [kinematics.NumModules]ModuleActuator,
	gyro Gyro,
	logger logging.Logger,
) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kin := kinematics.NewKinematics(cfg.Geometry)
	if kin.Degenerate() {
		logger.Warnw("module geometry is degenerate, odometry will not track translation")
	}

	c := &Controller{
		cfg:     cfg,
		kin:     kin,
		modules: modules,
		gyro:    gyro,
		logger:  logger,
	}
	for i, m := range modules {
		c.commanded[i].Angle = m.Angle()
	}
	c.odometry = odometry.New(kin, gyro.Yaw(), odometry.Pose{})
	return c, nil
}

// Config returns the controller's configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// SetVelocity stores a robot-relative command for the next tick.
func (c *Controller) SetVelocity(speeds kinematics.ChassisSpeeds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = velocityCommand
	c.speeds = speeds
}

// SetModuleStates stores raw module states for the next tick, bypassing
// kinematics. They are still desaturated.
func (c *Controller) SetModuleStates(states kinematics.ModuleStates) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = statesCommand
	c.states = states
}

// Tick runs one control cycle and returns the updated pose. With no stored
// command the modules are left alone and odometry sees them as stopped.
func (c *Controller) Tick(dt time.Duration) odometry.Pose {
	states := c.actuate()
	if dt <= 0 {
		c.logger.Warnw("skipping odometry update", "dt", dt)
	}
	return c.odometry.Update(c.gyro.Yaw(), states, dt)
}

// actuate turns the stored command into module states, dispatches them and
// records them as commanded.
func (c *Controller) actuate() kinematics.ModuleStates {
	c.actuation.Lock()
	defer c.actuation.Unlock()

	c.mu.RLock()
	kind, speeds, raw := c.kind, c.speeds, c.states
	held := c.commanded.Angles()
	c.mu.RUnlock()

	var states kinematics.ModuleStates
	switch kind {
	case velocityCommand:
		states = c.kin.ToModuleStates(speeds, held)
	case statesCommand:
		states = raw
	default:
		for i := range states {
			states[i].Angle = held[i]
		}
	}

	if kind != noCommand {
		states = kinematics.Desaturate(states, c.cfg.MaxSpeedMetersPerSecond)
		c.dispatch(states)
	}

	c.mu.Lock()
	c.commanded = states
	c.mu.Unlock()
	return states
}

func (c *Controller) dispatch(states kinematics.ModuleStates) {
	for i, m := range c.modules {
		s := states[i]
		if c.cfg.OptimizeSteering {
			s = kinematics.Optimize(s, m.Angle())
		}
		m.Set(s.Speed, s.Angle)
	}
	c.logger.Debugw("module dispatch",
		"front_left", states[kinematics.FrontLeft],
		"front_right", states[kinematics.FrontRight],
		"back_left", states[kinematics.BackLeft],
		"back_right", states[kinematics.BackRight],
	)
}

// Stop sets every module to zero speed at its current steering angle and
// clears the stored command.
func (c *Controller) Stop() {
	c.actuation.Lock()
	defer c.actuation.Unlock()

	var states kinematics.ModuleStates
	for i, m := range c.modules {
		states[i].Angle = m.Angle()
		m.Set(0, states[i].Angle)
	}
	c.hold(states)
}

// Lock sets every module to zero speed with the wheels in an X so the robot
// resists being pushed. The stored command is cleared.
func (c *Controller) Lock() {
	c.actuation.Lock()
	defer c.actuation.Unlock()

	var states kinematics.ModuleStates
	for i, m := range c.modules {
		states[i].Angle = LockAngles[i]
		m.Set(0, LockAngles[i])
	}
	c.hold(states)
}

func (c *Controller) hold(states kinematics.ModuleStates) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = noCommand
	c.speeds = kinematics.ChassisSpeeds{}
	c.commanded = states
}

// ZeroHeading zeroes the gyro. The pose is not touched; call ResetOdometry
// as well to move the pose heading.
func (c *Controller) ZeroHeading() {
	c.gyro.Zero()
}

// Heading returns the raw gyro yaw.
func (c *Controller) Heading() s1.Angle {
	return c.gyro.Yaw()
}

// Pose returns the current pose estimate.
func (c *Controller) Pose() odometry.Pose {
	return c.odometry.Pose()
}

// ResetOdometry places the robot at pose.
func (c *Controller) ResetOdometry(pose odometry.Pose) {
	c.odometry.Reset(pose, c.gyro.Yaw())
}

// ModuleStates returns the states dispatched on the last tick.
func (c *Controller) ModuleStates() kinematics.ModuleStates {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.commanded
}

// ChassisSpeeds returns the chassis motion implied by the last dispatch.
func (c *Controller) ChassisSpeeds() kinematics.ChassisSpeeds {
	return c.kin.ToChassisSpeeds(c.ModuleStates())
}

// IsMoving reports whether a command is stored or any module was last
// commanded a non-zero speed.
func (c *Controller) IsMoving() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.kind == velocityCommand && !c.speeds.IsZero() {
		return true
	}
	for _, s := range c.commanded {
		if s.Speed != 0 {
			return true
		}
	}
	return false
}
