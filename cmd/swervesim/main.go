// Package main runs a swerve drivetrain scenario against the kinematic
// simulator and reports how far the odometry drifted from the truth.
package main

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	"swerve/sim"
)

func main() {
	goutils.ContextualMain(mainWithArgs, logging.NewDebugLogger("swervesim"))
}

// Arguments for the command.
type Arguments struct {
	Scenario string `flag:"scenario,usage=path to a scenario YAML file"`
	Realtime bool   `flag:"realtime,usage=pace ticks against the wall clock"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Scenario == "" {
		return errors.New("-scenario is required")
	}

	sc, err := sim.LoadScenario(argsParsed.Scenario)
	if err != nil {
		return err
	}
	if argsParsed.Realtime {
		sc.Realtime = true
	}

	res, err := sim.Run(ctx, sc, logger)
	if err != nil {
		return err
	}

	logger.Infow("scenario done",
		"ticks", res.Ticks,
		"estimate", res.Estimate.String(),
		"truth", res.Truth.String(),
		"drift_m", math.Hypot(res.Estimate.X-res.Truth.X, res.Estimate.Y-res.Truth.Y),
		"heading_error_deg", (res.Estimate.Heading - res.Truth.Heading).Normalized().Degrees(),
	)
	return nil
}
