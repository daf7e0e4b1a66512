package sim

import (
	"context"
	"os"
	"time"

	"github.com/golang/geo/s1"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"swerve/drivetrain"
	"swerve/kinematics"
	"swerve/odometry"
)

const defaultTick = 20 * time.Millisecond

// Segment is one stretch of constant command.
type Segment struct {
	Vx    float64 `yaml:"vx"`
	Vy    float64 `yaml:"vy"`
	Omega float64 `yaml:"omega"`
	// FieldRelative interprets vx and vy in the field frame.
	FieldRelative bool          `yaml:"field_relative"`
	Duration      time.Duration `yaml:"duration"`
	// Stop, Lock and ZeroHeading run before the segment's ticks.
	Stop        bool `yaml:"stop"`
	Lock        bool `yaml:"lock"`
	ZeroHeading bool `yaml:"zero_heading"`
}

// Scenario describes a simulated run.
type Scenario struct {
	TrackwidthMeters float64       `yaml:"trackwidth_m"`
	WheelbaseMeters  float64       `yaml:"wheelbase_m"`
	MaxSpeed         float64       `yaml:"max_speed_mps"`
	Tick             time.Duration `yaml:"tick"`
	OptimizeSteering bool          `yaml:"optimize_steering"`
	Slip             float64       `yaml:"slip"`
	Start            *StartPose    `yaml:"start"`
	Segments         []Segment     `yaml:"segments"`
	// Realtime paces ticks against the wall clock.
	Realtime bool `yaml:"realtime"`
}

// StartPose seeds odometry and the true pose.
type StartPose struct {
	X          float64 `yaml:"x"`
	Y          float64 `yaml:"y"`
	HeadingDeg float64 `yaml:"heading_deg"`
}

// Result is the outcome of a run.
type Result struct {
	Estimate odometry.Pose
	Truth    odometry.Pose
	Ticks    int
	Final    kinematics.ModuleStates
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading scenario %q", path)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a YAML scenario and fills in defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, errors.Wrap(err, "parsing scenario")
	}
	if sc.TrackwidthMeters == 0 {
		sc.TrackwidthMeters = drivetrain.DefaultTrackwidthMeters
	}
	if sc.WheelbaseMeters == 0 {
		sc.WheelbaseMeters = drivetrain.DefaultWheelbaseMeters
	}
	if sc.MaxSpeed == 0 {
		sc.MaxSpeed = drivetrain.DefaultMaxSpeedMetersPerSecond
	}
	if sc.Tick == 0 {
		sc.Tick = defaultTick
	}
	if sc.Tick < 0 {
		return nil, errors.Errorf("tick must be positive, got %v", sc.Tick)
	}
	if sc.Slip < 0 || sc.Slip > 1 {
		return nil, errors.Errorf("slip must be within [0, 1], got %v", sc.Slip)
	}
	for i, seg := range sc.Segments {
		if seg.Duration < 0 {
			return nil, errors.Errorf("segment %d: negative duration %v", i, seg.Duration)
		}
	}
	return &sc, nil
}

// Config returns the drivetrain config the scenario describes.
func (sc *Scenario) Config() drivetrain.Config {
	return drivetrain.Config{
		Geometry:                kinematics.RectangularGeometry(sc.TrackwidthMeters, sc.WheelbaseMeters),
		MaxSpeedMetersPerSecond: sc.MaxSpeed,
		OptimizeSteering:        sc.OptimizeSteering,
	}
}

// Run drives a real controller through the scenario against a World.
func Run(ctx context.Context, sc *Scenario, logger logging.Logger) (Result, error) {
	cfg := sc.Config()
	world := NewWorld(cfg.Geometry)
	world.Slip = sc.Slip

	var actuators [kinematics.NumModules]drivetrain.ModuleActuator
	for i, m := range world.Modules {
		actuators[i] = m
	}
	ctrl, err := drivetrain.New(cfg, actuators, world.Gyro, logger)
	if err != nil {
		return Result{}, err
	}
	if sc.Start != nil {
		start := odometry.Pose{X: sc.Start.X, Y: sc.Start.Y, Heading: s1.Angle(sc.Start.HeadingDeg) * s1.Degree}
		world.truth = start
		ctrl.ResetOdometry(start)
	}

	var res Result
	for i, seg := range sc.Segments {
		switch {
		case seg.Lock:
			ctrl.Lock()
		case seg.Stop:
			ctrl.Stop()
		}
		if seg.ZeroHeading {
			ctrl.ZeroHeading()
		}
		drive := !seg.Lock && !seg.Stop
		if drive && !seg.FieldRelative {
			ctrl.SetVelocity(kinematics.ChassisSpeeds{Vx: seg.Vx, Vy: seg.Vy, Omega: seg.Omega})
		}

		ticks := int(seg.Duration / sc.Tick)
		for n := 0; n < ticks; n++ {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if drive && seg.FieldRelative {
				ctrl.SetVelocity(kinematics.FromFieldRelativeSpeeds(seg.Vx, seg.Vy, seg.Omega, ctrl.Pose().Heading))
			}
			ctrl.Tick(sc.Tick)
			world.Step(sc.Tick)
			res.Ticks++
			if sc.Realtime && !goutils.SelectContextOrWait(ctx, sc.Tick) {
				return res, ctx.Err()
			}
		}
		logger.Debugw("segment done", "segment", i, "estimate", ctrl.Pose().String(), "truth", world.Truth().String())
	}

	res.Estimate = ctrl.Pose()
	res.Truth = world.Truth()
	res.Final = ctrl.ModuleStates()
	return res, nil
}
