package odometry

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/s1"
	"go.viam.com/test"

	"swerve/kinematics"
)

const tick = 20 * time.Millisecond

var kin = kinematics.NewKinematics(kinematics.RectangularGeometry(0.52, 0.52))

func statesFor(speeds kinematics.ChassisSpeeds) kinematics.ModuleStates {
	return kin.ToModuleStates(speeds, [kinematics.NumModules]s1.Angle{})
}

func TestZeroMotionHoldsPose(t *testing.T) {
	start := Pose{X: 1.5, Y: -2, Heading: 30 * s1.Degree}
	o := New(kin, 0, start)
	still := statesFor(kinematics.ChassisSpeeds{})
	for i := 0; i < 500; i++ {
		o.Update(0, still, tick)
	}
	got := o.Pose()
	test.That(t, got.X, test.ShouldAlmostEqual, start.X)
	test.That(t, got.Y, test.ShouldAlmostEqual, start.Y)
	test.That(t, got.Heading.Radians(), test.ShouldAlmostEqual, start.Heading.Radians())
}

func TestStraightLine(t *testing.T) {
	o := New(kin, 0, Pose{})
	forward := statesFor(kinematics.ChassisSpeeds{Vx: 1})
	for i := 0; i < 50; i++ {
		o.Update(0, forward, tick)
	}
	got := o.Pose()
	test.That(t, got.X, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, got.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, got.Heading.Radians(), test.ShouldAlmostEqual, 0, 1e-9)
}

func TestStrafeUsesHeading(t *testing.T) {
	// robot faces +y, so driving forward moves along field +y
	o := New(kin, 0, Pose{})
	forward := statesFor(kinematics.ChassisSpeeds{Vx: 1})
	for i := 0; i < 50; i++ {
		o.Update(90*s1.Degree, forward, tick)
	}
	got := o.Pose()
	test.That(t, got.Y, test.ShouldAlmostEqual, 1, 0.05)
	test.That(t, got.Heading.Degrees(), test.ShouldAlmostEqual, 90, 1e-9)
}

func TestQuarterCircle(t *testing.T) {
	o := New(kin, 0, Pose{})
	const n = 100
	second := float64(time.Second)
	dt := time.Duration(second * math.Pi / 2 / n)
	arc := statesFor(kinematics.ChassisSpeeds{Vx: 1, Omega: 1})

	var elapsed time.Duration
	for i := 0; i < n; i++ {
		elapsed += dt
		o.Update(s1.Angle(elapsed.Seconds()), arc, dt)
	}
	got := o.Pose()
	test.That(t, got.X, test.ShouldAlmostEqual, 1, 1e-6)
	test.That(t, got.Y, test.ShouldAlmostEqual, 1, 1e-6)
	test.That(t, got.Heading.Degrees(), test.ShouldAlmostEqual, 90, 1e-4)
}

func TestResetReturnsExactPose(t *testing.T) {
	o := New(kin, 0, Pose{})
	moving := statesFor(kinematics.ChassisSpeeds{Vx: 0.7, Vy: -0.2, Omega: 0.4})
	for i := 0; i < 37; i++ {
		o.Update(s1.Angle(0.01*float64(i)), moving, tick)
	}

	want := Pose{X: 5, Y: 5, Heading: 90 * s1.Degree}
	o.Reset(want, 0.37)
	test.That(t, o.Pose(), test.ShouldResemble, want)
}

func TestResetOffsetsGyro(t *testing.T) {
	o := New(kin, 0, Pose{})
	o.Reset(Pose{X: 5, Y: 5, Heading: 90 * s1.Degree}, 10*s1.Degree)

	// gyro keeps reading 10 degrees, which is now field heading 90
	forward := statesFor(kinematics.ChassisSpeeds{Vx: 1})
	for i := 0; i < 50; i++ {
		o.Update(10*s1.Degree, forward, tick)
	}
	got := o.Pose()
	test.That(t, got.X, test.ShouldAlmostEqual, 5, 1e-9)
	test.That(t, got.Y, test.ShouldAlmostEqual, 6, 1e-9)
	test.That(t, got.Heading.Degrees(), test.ShouldAlmostEqual, 90, 1e-9)
}

func TestInvalidTickSkipped(t *testing.T) {
	o := New(kin, 0, Pose{X: 1})
	forward := statesFor(kinematics.ChassisSpeeds{Vx: 1})

	for _, dt := range []time.Duration{0, -tick} {
		got := o.Update(0, forward, dt)
		test.That(t, got, test.ShouldResemble, Pose{X: 1})
	}

	got := o.Update(s1.Angle(math.NaN()), forward, tick)
	test.That(t, got, test.ShouldResemble, Pose{X: 1})

	nan := forward
	nan[kinematics.FrontLeft].Speed = math.NaN()
	got = o.Update(0, nan, tick)
	test.That(t, got, test.ShouldResemble, Pose{X: 1})

	got = o.Update(0, forward, tick)
	test.That(t, got.X, test.ShouldAlmostEqual, 1.02, 1e-9)
}

func TestDegenerateGeometryHoldsPosition(t *testing.T) {
	o := New(kinematics.NewKinematics(kinematics.Geometry{}), 0, Pose{X: 2, Y: 3})
	states := kinematics.ModuleStates{{Speed: 1}, {Speed: 1}, {Speed: 1}, {Speed: 1}}
	for i := 0; i < 10; i++ {
		o.Update(45*s1.Degree, states, tick)
	}
	got := o.Pose()
	test.That(t, got.X, test.ShouldEqual, 2.0)
	test.That(t, got.Y, test.ShouldEqual, 3.0)
	test.That(t, got.Heading.Degrees(), test.ShouldAlmostEqual, 45, 1e-9)
}

func TestConcurrentReaders(t *testing.T) {
	o := New(kin, 0, Pose{})
	forward := statesFor(kinematics.ChassisSpeeds{Vx: 1})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = o.Pose()
			}
		}
	}()
	for i := 0; i < 100; i++ {
		o.Update(0, forward, tick)
	}
	close(stop)
	wg.Wait()
	test.That(t, o.Pose().X, test.ShouldAlmostEqual, 2, 1e-9)
}
