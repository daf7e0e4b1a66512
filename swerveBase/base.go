package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/go-daq/canbus"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/base"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
	viamutils "go.viam.com/utils"

	"swerve/drivetrain"
	"swerve/kinematics"
	"swerve/odometry"
)

type swerveBase struct {
	resource.Named
	resource.AlwaysRebuild

	cfg        *Config
	geometries []spatialmath.Geometry
	logger     logging.Logger

	ctrl  *drivetrain.Controller
	telem *telemetry

	recvSocket io.Closer
	sendSocket io.Closer

	cancelCtx               context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
}

// newBase creates a new base that underneath the hood sends canbus frames via
// a 10ms publishing loop and ticks the drivetrain at the configured rate.
func newBase(conf resource.Config, logger logging.Logger) (base.Base, error) {
	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}

	var geometries = []spatialmath.Geometry{}
	if conf.Frame != nil {
		frame, err := conf.Frame.ParseConfig()
		if err != nil {
			return nil, err
		}
		geometries = append(geometries, frame.Geometry())
	}

	layout := cfg.layout()
	socketSend, err := canbus.New()
	if err != nil {
		return nil, err
	}
	if err := socketSend.Bind(cfg.channel()); err != nil {
		return nil, multierr.Combine(err, socketSend.Close())
	}

	socketRecv, err := canbus.New()
	if err != nil {
		return nil, multierr.Combine(err, socketSend.Close())
	}
	if err := socketRecv.SetFilters(layout.filters()); err != nil {
		return nil, multierr.Combine(err, socketRecv.Close(), socketSend.Close())
	}
	if err := socketRecv.Bind(cfg.channel()); err != nil {
		return nil, multierr.Combine(err, socketRecv.Close(), socketSend.Close())
	}

	frames := newFrameTable()
	telem := newTelemetry()
	oneShotCh := make(chan canbus.Frame, oneShotQueueLen)

	var modules [kinematics.NumModules]drivetrain.ModuleActuator
	for i, id := range layout.moduleIds {
		modules[i] = &canModule{index: i, canId: id, frames: frames, telem: telem, logger: logger}
	}
	gyro := &canGyro{setId: layout.gyroSetId(), telem: telem, oneShotCh: oneShotCh, logger: logger}

	sBase, err := newSwerveBase(conf.ResourceName(), cfg, geometries, modules, gyro, telem, logger)
	if err != nil {
		return nil, multierr.Combine(err, socketRecv.Close(), socketSend.Close())
	}
	sBase.recvSocket = socketRecv
	sBase.sendSocket = socketSend

	sBase.activeBackgroundWorkers.Add(2)
	viamutils.ManagedGo(func() {
		publishThread(sBase.cancelCtx, socketSend, frames, oneShotCh, logger)
	}, sBase.activeBackgroundWorkers.Done)
	viamutils.ManagedGo(func() {
		receiveThread(sBase.cancelCtx, socketRecv, layout, telem, logger)
	}, sBase.activeBackgroundWorkers.Done)
	sBase.startTicking()

	logger.Infow("swerve base started",
		"channel", cfg.channel(),
		"tick", cfg.tickInterval(),
		"max_speed_mps", sBase.ctrl.Config().MaxSpeedMetersPerSecond,
	)
	return sBase, nil
}

// newSwerveBase wires a controller to the given hardware without starting
// any goroutines.
func newSwerveBase(
	name resource.Name,
	cfg *Config,
	geometries []spatialmath.Geometry,
	modules [kinematics.NumModules]drivetrain.ModuleActuator,
	gyro drivetrain.Gyro,
	telem *telemetry,
	logger logging.Logger,
) (*swerveBase, error) {
	ctrl, err := drivetrain.New(cfg.drivetrainConfig(), modules, gyro, logger)
	if err != nil {
		return nil, err
	}
	cancelCtx, cancel := context.WithCancel(context.Background())
	return &swerveBase{
		Named:      name.AsNamed(),
		cfg:        cfg,
		geometries: geometries,
		logger:     logger,
		ctrl:       ctrl,
		telem:      telem,
		cancelCtx:  cancelCtx,
		cancel:     cancel,
	}, nil
}

func (b *swerveBase) startTicking() {
	b.activeBackgroundWorkers.Add(1)
	viamutils.ManagedGo(func() {
		tickThread(b.cancelCtx, b.ctrl, b.cfg.tickInterval())
	}, b.activeBackgroundWorkers.Done)
}

// tickThread runs the drivetrain at a fixed rate with the measured dt.
func tickThread(ctx context.Context, ctrl *drivetrain.Controller, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ctrl.Tick(now.Sub(last))
			last = now
		}
	}
}

// warnUnused logs vector components a planar base cannot follow.
func (b *swerveBase) warnUnused(linear, angular r3.Vector) {
	if linear.Z != 0 {
		b.logger.Warnw("Linear Z command non-zero and has no effect")
	}
	if angular.X != 0 {
		b.logger.Warnw("Angular X command non-zero and has no effect")
	}
	if angular.Y != 0 {
		b.logger.Warnw("Angular Y command non-zero and has no effect")
	}
}

// command stores speeds for the next tick, rotating them out of the field
// frame when extra asks for it.
func (b *swerveBase) command(speeds kinematics.ChassisSpeeds, extra map[string]interface{}) {
	if fieldRelative, _ := extra["field_relative"].(bool); fieldRelative {
		speeds = kinematics.FromFieldRelativeSpeeds(speeds.Vx, speeds.Vy, speeds.Omega, b.ctrl.Pose().Heading)
	}
	b.ctrl.SetVelocity(speeds)
}

// SetVelocity sets the linear (mmPerSec) and angular (degsPerSec) velocity.
// Y is forward and X is to the right.
func (b *swerveBase) SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	b.warnUnused(linear, angular)
	b.command(kinematics.ChassisSpeeds{
		Vx:    linear.Y / 1000,
		Vy:    -linear.X / 1000,
		Omega: (s1.Angle(angular.Z) * s1.Degree).Radians(),
	}, extra)
	return nil
}

// SetPower sets the linear and angular [-1, 1] drive power as a fraction of
// the drivetrain's top speeds.
func (b *swerveBase) SetPower(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	b.warnUnused(linear, angular)
	cfg := b.ctrl.Config()
	maxSpeed, maxAngular := cfg.MaxSpeedMetersPerSecond, cfg.MaxAngularSpeed()
	b.command(kinematics.ChassisSpeeds{
		Vx:    clampPower(linear.Y) * maxSpeed,
		Vy:    -clampPower(linear.X) * maxSpeed,
		Omega: clampPower(angular.Z) * maxAngular,
	}, extra)
	return nil
}

func clampPower(p float64) float64 {
	return math.Min(math.Max(p, -1), 1)
}

// MoveStraight moves the base forward the given distance and speed.
func (b *swerveBase) MoveStraight(ctx context.Context, distanceMm int, mmPerSec float64, extra map[string]interface{}) error {
	speed := math.Min(math.Abs(mmPerSec)/1000, b.ctrl.Config().MaxSpeedMetersPerSecond)
	if distanceMm == 0 || speed == 0 {
		return b.Stop(ctx, extra)
	}
	distance := float64(distanceMm) / 1000
	if mmPerSec < 0 {
		distance = -distance
	}

	return b.driveFor(ctx,
		kinematics.ChassisSpeeds{Vx: math.Copysign(speed, distance)},
		seconds(math.Abs(distance)/speed),
	)
}

// Spin spins the base by the given angleDeg and degsPerSec.
func (b *swerveBase) Spin(ctx context.Context, angleDeg, degsPerSec float64, extra map[string]interface{}) error {
	omega := math.Min((s1.Angle(math.Abs(degsPerSec)) * s1.Degree).Radians(), b.ctrl.Config().MaxAngularSpeed())
	if angleDeg == 0 || omega == 0 {
		return b.Stop(ctx, extra)
	}
	angle := (s1.Angle(angleDeg) * s1.Degree).Radians()
	if degsPerSec < 0 {
		angle = -angle
	}

	return b.driveFor(ctx,
		kinematics.ChassisSpeeds{Omega: math.Copysign(omega, angle)},
		seconds(math.Abs(angle)/omega),
	)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// driveFor holds speeds for d and then stops, early if ctx is done.
func (b *swerveBase) driveFor(ctx context.Context, speeds kinematics.ChassisSpeeds, d time.Duration) error {
	b.ctrl.SetVelocity(speeds)
	defer b.ctrl.Stop()

	if !viamutils.SelectContextOrWait(ctx, d) {
		return ctx.Err()
	}
	return nil
}

// Stop stops the base with the wheels where they are.
func (b *swerveBase) Stop(ctx context.Context, extra map[string]interface{}) error {
	b.ctrl.Stop()
	return nil
}

func (b *swerveBase) IsMoving(ctx context.Context) (bool, error) {
	return b.ctrl.IsMoving(), nil
}

func (b *swerveBase) Properties(ctx context.Context, extra map[string]interface{}) (base.Properties, error) {
	g := b.ctrl.Config().Geometry
	return base.Properties{
		WidthMeters:              math.Abs(g[kinematics.FrontLeft].Y - g[kinematics.FrontRight].Y),
		WheelCircumferenceMeters: math.Pi * b.cfg.wheelDiameter(),
	}, nil
}

func (b *swerveBase) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return b.geometries, nil
}

// DoCommand executes additional commands beyond the Base{} interface: wheel
// lock, heading and odometry resets, and state readout.
func (b *swerveBase) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, ok := cmd["command"]
	if !ok {
		return nil, errors.New("missing 'command' value")
	}
	switch name {
	case "lock":
		b.ctrl.Lock()
		return map[string]interface{}{"return": "lock command processed"}, nil

	case "zero_heading":
		b.ctrl.ZeroHeading()
		return map[string]interface{}{"return": "zero_heading command processed"}, nil

	case "reset_odometry":
		var values [3]float64
		for i, key := range []string{"x", "y", "heading_deg"} {
			raw, ok := cmd[key]
			if !ok {
				continue
			}
			v, ok := raw.(float64)
			if !ok {
				return nil, errors.Errorf("%s value must be a number but is type %T", key, raw)
			}
			values[i] = v
		}
		pose := odometry.Pose{X: values[0], Y: values[1], Heading: s1.Angle(values[2]) * s1.Degree}
		b.ctrl.ResetOdometry(pose)
		return map[string]interface{}{"return": fmt.Sprintf("reset_odometry command processed: %v", pose)}, nil

	case "get_pose":
		pose := b.ctrl.Pose()
		return map[string]interface{}{
			"x":           pose.X,
			"y":           pose.Y,
			"heading_deg": pose.Heading.Degrees(),
		}, nil

	case "get_telemetry":
		out := b.telem.all()
		states := b.ctrl.ModuleStates()
		for i, s := range states {
			out[kinematics.ModuleNames[i]+"_commanded_speed_mps"] = s.Speed
			out[kinematics.ModuleNames[i]+"_commanded_angle_deg"] = s.Angle.Degrees()
		}
		out["gyro_heading_deg"] = b.ctrl.Heading().Degrees()
		return out, nil

	default:
		return nil, errors.Errorf("no such command: %s", name)
	}
}

// Close stops the base, then shuts down the bus threads and sockets.
func (b *swerveBase) Close(ctx context.Context) error {
	b.ctrl.Stop()
	b.cancel()

	var err error
	if b.recvSocket != nil {
		err = multierr.Combine(err, b.recvSocket.Close())
	}
	b.activeBackgroundWorkers.Wait()
	if b.sendSocket != nil {
		err = multierr.Combine(err, b.sendSocket.Close())
	}
	return err
}
