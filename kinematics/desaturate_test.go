package kinematics

import (
	"math"
	"testing"

	"github.com/golang/geo/s1"
	"go.viam.com/test"
)

func TestDesaturateUnderLimit(t *testing.T) {
	states := ModuleStates{{Speed: 1, Angle: 0.1}, {Speed: -2, Angle: 0.2}, {Speed: 0.5}, {Speed: 0}}
	test.That(t, Desaturate(states, 3), test.ShouldResemble, states)
	test.That(t, Desaturate(ModuleStates{}, 3), test.ShouldResemble, ModuleStates{})
}

func TestDesaturateScalesAll(t *testing.T) {
	states := ModuleStates{
		{Speed: 4, Angle: 10 * s1.Degree},
		{Speed: -2, Angle: 20 * s1.Degree},
		{Speed: 1, Angle: 30 * s1.Degree},
		{Speed: -8, Angle: 40 * s1.Degree},
	}
	got := Desaturate(states, 2)

	test.That(t, got[FrontLeft].Speed, test.ShouldAlmostEqual, 1, tol)
	test.That(t, got[FrontRight].Speed, test.ShouldAlmostEqual, -0.5, tol)
	test.That(t, got[BackLeft].Speed, test.ShouldAlmostEqual, 0.25, tol)
	test.That(t, got[BackRight].Speed, test.ShouldAlmostEqual, -2, tol)

	for i := range got {
		test.That(t, got[i].Angle, test.ShouldEqual, states[i].Angle)
		test.That(t, math.Abs(got[i].Speed), test.ShouldBeLessThanOrEqualTo, 2)
		for j := range got {
			if states[j].Speed == 0 {
				continue
			}
			test.That(t, got[i].Speed/got[j].Speed, test.ShouldAlmostEqual, states[i].Speed/states[j].Speed, tol)
		}
	}
	// input is a value and stays untouched
	test.That(t, states[BackRight].Speed, test.ShouldEqual, -8.0)
}

func TestDesaturateIdempotent(t *testing.T) {
	k := NewKinematics(RectangularGeometry(0.52, 0.61))
	for _, speeds := range []ChassisSpeeds{
		{Vx: 5, Vy: 3, Omega: 9},
		{Vx: -7.3, Omega: 1.1},
		{Omega: 30},
		{Vx: 0.1},
	} {
		once := Desaturate(k.ToModuleStates(speeds, [NumModules]s1.Angle{}), 2.38)
		twice := Desaturate(once, 2.38)
		test.That(t, twice, test.ShouldResemble, once)
		for _, s := range once {
			test.That(t, math.Abs(s.Speed), test.ShouldBeLessThanOrEqualTo, 2.38)
		}
	}
}

func TestDesaturatePreservesMotionDirection(t *testing.T) {
	k := NewKinematics(RectangularGeometry(0.52, 0.61))
	speeds := ChassisSpeeds{Vx: 4, Vy: -2, Omega: 6}
	got := k.ToChassisSpeeds(Desaturate(k.ToModuleStates(speeds, [NumModules]s1.Angle{}), 1))

	scale := got.Vx / speeds.Vx
	test.That(t, scale, test.ShouldBeLessThan, 1)
	test.That(t, got.Vy, test.ShouldAlmostEqual, speeds.Vy*scale, tol)
	test.That(t, got.Omega, test.ShouldAlmostEqual, speeds.Omega*scale, tol)
}
