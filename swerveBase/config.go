package main

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"swerve/drivetrain"
	"swerve/kinematics"
)

const (
	defaultTickRateHz = 50.0
	maxTickRateHz     = 1000.0
)

// Config is the base's attribute block.
type Config struct {
	CanChannel              string  `json:"can_channel,omitempty"`
	TrackwidthMeters        float64 `json:"trackwidth_m,omitempty"`
	WheelbaseMeters         float64 `json:"wheelbase_m,omitempty"`
	WheelDiameterMeters     float64 `json:"wheel_diameter_m,omitempty"`
	MaxSpeedMetersPerSecond float64 `json:"max_speed_mps,omitempty"`
	TickRateHz              float64 `json:"tick_rate_hz,omitempty"`
	OptimizeSteering        bool    `json:"optimize_steering,omitempty"`

	// ModuleCanIds are the command ids in front-left, front-right,
	// back-left, back-right order.
	ModuleCanIds []uint32 `json:"module_can_ids,omitempty"`
	GyroCanId    uint32   `json:"gyro_can_id,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) ([]string, error) {
	for name, v := range map[string]float64{
		"trackwidth_m":     cfg.TrackwidthMeters,
		"wheelbase_m":      cfg.WheelbaseMeters,
		"wheel_diameter_m": cfg.WheelDiameterMeters,
		"max_speed_mps":    cfg.MaxSpeedMetersPerSecond,
		"tick_rate_hz":     cfg.TickRateHz,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, errors.Errorf("%s: %s must be a non-negative number, got %v", path, name, v)
		}
	}
	if cfg.TickRateHz > maxTickRateHz {
		return nil, errors.Errorf("%s: tick_rate_hz must be at most %v, got %v", path, maxTickRateHz, cfg.TickRateHz)
	}
	if n := len(cfg.ModuleCanIds); n != 0 && n != kinematics.NumModules {
		return nil, errors.Errorf("%s: module_can_ids needs %d ids, got %d", path, kinematics.NumModules, n)
	}

	seen := map[uint32]bool{}
	for _, id := range cfg.layout().moduleIds {
		if id > 0x7FF {
			return nil, errors.Errorf("%s: module CAN id %#x is not a standard id", path, id)
		}
		if seen[id] {
			return nil, errors.Errorf("%s: duplicate module CAN id %#x", path, id)
		}
		seen[id] = true
	}
	if cfg.GyroCanId > 0x7FF {
		return nil, errors.Errorf("%s: gyro CAN id %#x is not a standard id", path, cfg.GyroCanId)
	}
	return nil, nil
}

func (cfg *Config) channel() string {
	if cfg.CanChannel == "" {
		return defaultChannel
	}
	return cfg.CanChannel
}

func (cfg *Config) layout() canLayout {
	l := defaultLayout()
	if len(cfg.ModuleCanIds) == kinematics.NumModules {
		copy(l.moduleIds[:], cfg.ModuleCanIds)
	}
	if cfg.GyroCanId != 0 {
		l.gyroId = cfg.GyroCanId
	}
	return l
}

func (cfg *Config) tickInterval() time.Duration {
	hz := cfg.TickRateHz
	if hz == 0 {
		hz = defaultTickRateHz
	}
	return time.Duration(float64(time.Second) / hz)
}

func (cfg *Config) wheelDiameter() float64 {
	if cfg.WheelDiameterMeters == 0 {
		return drivetrain.DefaultWheelDiameterMeters
	}
	return cfg.WheelDiameterMeters
}

func (cfg *Config) drivetrainConfig() drivetrain.Config {
	out := drivetrain.DefaultConfig()
	track, wheelbase := drivetrain.DefaultTrackwidthMeters, drivetrain.DefaultWheelbaseMeters
	if cfg.TrackwidthMeters != 0 {
		track = cfg.TrackwidthMeters
	}
	if cfg.WheelbaseMeters != 0 {
		wheelbase = cfg.WheelbaseMeters
	}
	out.Geometry = kinematics.RectangularGeometry(track, wheelbase)
	if cfg.MaxSpeedMetersPerSecond != 0 {
		out.MaxSpeedMetersPerSecond = cfg.MaxSpeedMetersPerSecond
	}
	out.OptimizeSteering = cfg.OptimizeSteering
	return out
}
