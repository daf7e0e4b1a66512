package main

import (
	"fmt"
	"math"
	"sync"

	"swerve/kinematics"
)

const (
	telemYaw           = "yaw_deg"
	telemStateOfCharge = "state_of_charge"
)

func telemModuleSpeedKey(i int) string {
	return fmt.Sprintf("%s_speed_mps", kinematics.ModuleNames[i])
}

func telemModuleAngleKey(i int) string {
	return fmt.Sprintf("%s_angle_deg", kinematics.ModuleNames[i])
}

// telemetry is the latest value of every signal decoded off the bus.
type telemetry struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

func newTelemetry() *telemetry {
	return &telemetry{values: map[string]interface{}{}}
}

func (t *telemetry) set(key string, value interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[key] = value
}

func (t *telemetry) get(key string) interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values[key]
}

// float returns the value at key, or false if nothing numeric was received.
func (t *telemetry) float(key string) (float64, bool) {
	v, ok := t.get(key).(float64)
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// all returns a copy with -1 for signals not yet received.
func (t *telemetry) all() map[string]interface{} {
	toReturn := map[string]interface{}{
		telemYaw:           float64(-1),
		telemStateOfCharge: float64(-1),
	}
	for i := range kinematics.ModuleNames {
		toReturn[telemModuleSpeedKey(i)] = float64(-1)
		toReturn[telemModuleAngleKey(i)] = float64(-1)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for k, v := range t.values {
		toReturn[k] = v
	}
	return toReturn
}
