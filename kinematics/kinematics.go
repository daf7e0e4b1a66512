package kinematics

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/s1"
	"gonum.org/v1/gonum/mat"
)

// Below this speed a module's direction is undefined and its steering angle
// is held instead of recomputed.
const idleSpeedMetersPerSecond = 1e-6

// Kinematics maps chassis speeds to module states and back for one fixed
// geometry. It holds no mutable state and is safe for concurrent use.
type Kinematics struct {
	geometry   Geometry
	forward    *mat.Dense // 2N x 3
	pseudoInv  *mat.Dense // 3 x 2N, nil when degenerate
	degenerate bool
}

// NewKinematics precomputes the forward matrix and its least-squares
// inverse for g.
func NewKinematics(g Geometry) *Kinematics {
	forward := mat.NewDense(2*NumModules, 3, nil)
	for i, t := range g {
		forward.SetRow(2*i, []float64{1, 0, -t.Y})
		forward.SetRow(2*i+1, []float64{0, 1, t.X})
	}

	k := &Kinematics{geometry: g, forward: forward}

	var normal mat.Dense
	normal.Mul(forward.T(), forward)
	var inv mat.Dense
	if err := inv.Inverse(&normal); err != nil {
		// All modules at one point: rotation is unobservable.
		k.degenerate = true
		return k
	}
	k.pseudoInv = mat.NewDense(3, 2*NumModules, nil)
	k.pseudoInv.Mul(&inv, forward.T())
	return k
}

// Geometry returns the module offsets this model was built with.
func (k *Kinematics) Geometry() Geometry {
	return k.geometry
}

// Degenerate reports whether the geometry cannot be inverted.
func (k *Kinematics) Degenerate() bool {
	return k.degenerate
}

// ToModuleStates computes the module states that realize speeds. A module
// whose required speed is effectively zero keeps the matching angle from
// held rather than snapping to zero.
func (k *Kinematics) ToModuleStates(speeds ChassisSpeeds, held [NumModules]s1.Angle) ModuleStates {
	var states ModuleStates
	for i, t := range k.geometry {
		v := r2.Point{
			X: speeds.Vx - speeds.Omega*t.Y,
			Y: speeds.Vy + speeds.Omega*t.X,
		}
		speed := v.Norm()
		if speed < idleSpeedMetersPerSecond {
			states[i] = ModuleState{Speed: 0, Angle: held[i].Normalized()}
			continue
		}
		states[i] = ModuleState{
			Speed: speed,
			Angle: s1.Angle(math.Atan2(v.Y, v.X)).Normalized(),
		}
	}
	return states
}

// ToChassisSpeeds returns the chassis speeds that best explain states in
// the least-squares sense. A degenerate geometry yields zero speeds.
func (k *Kinematics) ToChassisSpeeds(states ModuleStates) ChassisSpeeds {
	if k.degenerate {
		return ChassisSpeeds{}
	}
	b := mat.NewVecDense(2*NumModules, nil)
	for i, s := range states {
		b.SetVec(2*i, s.Speed*math.Cos(s.Angle.Radians()))
		b.SetVec(2*i+1, s.Speed*math.Sin(s.Angle.Radians()))
	}
	var x mat.VecDense
	x.MulVec(k.pseudoInv, b)
	return ChassisSpeeds{Vx: x.AtVec(0), Vy: x.AtVec(1), Omega: x.AtVec(2)}
}

// Optimize returns a state equivalent to desired that needs at most a
// quarter turn of steering from current, reversing the wheel if needed.
func Optimize(desired ModuleState, current s1.Angle) ModuleState {
	delta := (desired.Angle - current).Normalized()
	if math.Abs(delta.Radians()) <= math.Pi/2 {
		return desired
	}
	return ModuleState{
		Speed: -desired.Speed,
		Angle: (desired.Angle + math.Pi*s1.Radian).Normalized(),
	}
}
