package kinematics

import "math"

// Desaturate scales every module speed by the same factor so that none
// exceeds maxSpeed. Angles and the ratios between speeds are preserved.
func Desaturate(states ModuleStates, maxSpeed float64) ModuleStates {
	var realMax float64
	for _, s := range states {
		realMax = math.Max(realMax, math.Abs(s.Speed))
	}
	if realMax == 0 || realMax <= maxSpeed {
		return states
	}
	scale := maxSpeed / realMax
	for i := range states {
		states[i].Speed *= scale
		if math.Abs(states[i].Speed) > maxSpeed {
			// speed*scale can land an ulp above maxSpeed
			states[i].Speed = math.Copysign(maxSpeed, states[i].Speed)
		}
	}
	return states
}
