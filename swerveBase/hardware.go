package main

import (
	"sync"

	"github.com/go-daq/canbus"
	"github.com/golang/geo/s1"
	"go.viam.com/rdk/logging"
)

// canModule drives one swerve corner over the bus.
type canModule struct {
	index  int
	canId  uint32
	frames *frameTable
	telem  *telemetry
	logger logging.Logger

	mu        sync.Mutex
	commanded s1.Angle
}

// Set replaces the corner's frame in the publish table.
func (m *canModule) Set(speedMetersPerSecond float64, angle s1.Angle) {
	angle = angle.Normalized()
	m.mu.Lock()
	m.commanded = angle
	m.mu.Unlock()

	cmd := moduleCommand{
		canId:    m.canId,
		state:    moduleStateEnable,
		speedMps: speedMetersPerSecond,
		angleDeg: angle.Degrees(),
	}
	m.frames.set(cmd.toFrame(m.logger))
}

// Angle is the reported steering angle, or the last commanded one before
// the module has reported.
func (m *canModule) Angle() s1.Angle {
	if deg, ok := m.telem.float(telemModuleAngleKey(m.index)); ok {
		return (s1.Angle(deg) * s1.Degree).Normalized()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commanded
}

// canGyro reads yaw off the bus, counter-clockwise positive.
type canGyro struct {
	setId     uint32
	telem     *telemetry
	oneShotCh chan<- canbus.Frame
	logger    logging.Logger
}

func (g *canGyro) Yaw() s1.Angle {
	deg, ok := g.telem.float(telemYaw)
	if !ok {
		return 0
	}
	return (s1.Angle(deg) * s1.Degree).Normalized()
}

// Zero asks the gyro to set its yaw to zero. The stored yaw is cleared
// right away so readers do not see the old heading until the next report.
func (g *canGyro) Zero() {
	if !sendOneShot(g.oneShotCh, &gyroSetCommand{canId: g.setId}, g.logger) {
		return
	}
	g.telem.set(telemYaw, 0.0)
}

// sendOneShot queues cmd without blocking the caller.
func sendOneShot(ch chan<- canbus.Frame, cmd canCommand, logger logging.Logger) bool {
	frame := cmd.toFrame(logger)
	select {
	case ch <- frame:
		return true
	default:
		logger.Warnw("one-shot queue full, command dropped", "id", frame.ID)
		return false
	}
}
