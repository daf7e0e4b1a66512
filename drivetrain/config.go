package drivetrain

import (
	"math"

	"github.com/pkg/errors"

	"swerve/kinematics"
)

// Physical constants of the reference robot: SDS Mk4 L1 modules driven by
// Falcon 500s on a 20.5in square frame.
const (
	// MaxVoltage is the drive voltage that corresponds to full speed.
	MaxVoltage = 12.0

	falconFreeSpeedRPM  = 6380.0
	mk4L1DriveReduction = (14.0 / 50.0) * (19.0 / 25.0) * (15.0 / 45.0)

	DefaultWheelDiameterMeters = 0.10033
	DefaultTrackwidthMeters    = 0.5207
	DefaultWheelbaseMeters     = 0.5207
)

// DefaultMaxSpeedMetersPerSecond is the theoretical free speed of a module.
const DefaultMaxSpeedMetersPerSecond = falconFreeSpeedRPM / 60.0 * mk4L1DriveReduction * DefaultWheelDiameterMeters * math.Pi

// Config describes one drivetrain.
type Config struct {
	Geometry                kinematics.Geometry
	MaxSpeedMetersPerSecond float64
	// OptimizeSteering lets a module reverse its wheel instead of steering
	// more than a quarter turn.
	OptimizeSteering bool
}

// DefaultConfig returns the reference robot's configuration.
func DefaultConfig() Config {
	return Config{
		Geometry:                kinematics.RectangularGeometry(DefaultTrackwidthMeters, DefaultWheelbaseMeters),
		MaxSpeedMetersPerSecond: DefaultMaxSpeedMetersPerSecond,
	}
}

// Validate checks the config for values the controller cannot use.
func (c Config) Validate() error {
	if math.IsNaN(c.MaxSpeedMetersPerSecond) || math.IsInf(c.MaxSpeedMetersPerSecond, 0) {
		return errors.New("max speed must be finite")
	}
	if c.MaxSpeedMetersPerSecond <= 0 {
		return errors.Errorf("max speed must be positive, got %v", c.MaxSpeedMetersPerSecond)
	}
	for i, t := range c.Geometry {
		if math.IsNaN(t.X) || math.IsNaN(t.Y) || math.IsInf(t.X, 0) || math.IsInf(t.Y, 0) {
			return errors.Errorf("%s module offset must be finite", kinematics.ModuleNames[i])
		}
	}
	return nil
}

// MaxAngularSpeed is the fastest the robot can spin in place, in rad/s.
func (c Config) MaxAngularSpeed() float64 {
	r := c.Geometry.MaxRadius()
	if r == 0 {
		return 0
	}
	return c.MaxSpeedMetersPerSecond / r
}
