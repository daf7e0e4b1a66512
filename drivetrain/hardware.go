package drivetrain

import "github.com/golang/geo/s1"

// ModuleActuator drives one swerve module. Closed-loop control and fault
// handling live behind this interface; Set never fails from the
// controller's point of view.
type ModuleActuator interface {
	Set(speedMetersPerSecond float64, angle s1.Angle)
	Angle() s1.Angle
}

// Gyro reports the robot's yaw, counter-clockwise positive.
type Gyro interface {
	Yaw() s1.Angle
	// Zero makes the current yaw read as zero.
	Zero()
}
