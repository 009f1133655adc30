// Package tracking implements the pure computation core of the trip tracking
// engine: the time-decayed destination bubble and the corridor deviation and
// alert logic. Persistence and orchestration live in the service layer; this
// package has no state and no side effects.
package tracking

import (
	"math"
	"time"
)

// Bubble history reasons.
const (
	BubbleReasonInit   = "init"
	BubbleReasonShrink = "stepped_shrink_with_safety_floor"
)

// Config carries the tunable constants of the bubble decay model. Values come
// from configuration (see config.TrackingConfig), not package globals.
type Config struct {
	InitialRadiusFloorKm  float64 // smallest allowed R0
	InitialRadiusMarginKm float64 // added to straight-line distance for R0
	MinRadiusKm           float64 // absolute radius floor
	ShrinkStepKm          float64 // shrink per elapsed interval
	ShrinkIntervalMin     float64 // shrink interval, minutes
	SafetyMarginKm        float64 // radius must stay this far beyond current distance
	LateralAllowanceRatio float64 // corridor half-width as a fraction of the radius
	HardDeviationKm       float64 // soft/hard alert escalation boundary
}

// InitialRadiusKm computes R0 for a session that starts straightKm away from
// its destination: max(floor, straight + margin).
func (c Config) InitialRadiusKm(straightKm float64) float64 {
	return math.Max(c.InitialRadiusFloorKm, straightKm+c.InitialRadiusMarginKm)
}

// RadiusState is the result of one bubble radius computation.
type RadiusState struct {
	RadiusKm     float64 // permitted radius after this step
	StepsElapsed int     // whole shrink intervals since session start
	AllowedDevKm float64 // corridor half-width at this radius
}

// ComputeRadius evaluates the stepped shrink with safety floor. The bubble
// tightens by ShrinkStepKm for every whole ShrinkIntervalMin elapsed since
// startedAt, but never below MinRadiusKm and never below the agent's current
// distance plus SafetyMarginKm: an agent that is still legitimately far away
// must not be flagged as out of bounds purely because time passed.
//
// Decay derives purely from wall-clock elapsed time, so the model is O(1) per
// call and needs no ticking timer or history replay.
func (c Config) ComputeRadius(r0Km, distanceKm float64, startedAt, now time.Time) RadiusState {
	elapsedMin := now.Sub(startedAt).Minutes()
	if elapsedMin < 0 {
		elapsedMin = 0
	}

	steps := 0
	if c.ShrinkIntervalMin > 0 {
		steps = int(math.Floor(elapsedMin / c.ShrinkIntervalMin))
	}

	candidate := r0Km - float64(steps)*c.ShrinkStepKm
	radius := math.Max(c.MinRadiusKm, math.Max(distanceKm+c.SafetyMarginKm, candidate))

	return RadiusState{
		RadiusKm:     radius,
		StepsElapsed: steps,
		AllowedDevKm: c.LateralAllowanceRatio * radius,
	}
}

// RadiusChanged reports whether a newly computed radius differs from the
// previously stored one beyond floating tolerance; only then is a bubble
// history entry written.
func RadiusChanged(prevKm, newKm float64) bool {
	return math.Abs(RoundKm(newKm)-RoundKm(prevKm)) > 1e-9
}

// RoundKm rounds a kilometer value to 3 decimals (meter precision), the
// resolution stored and reported everywhere.
func RoundKm(km float64) float64 {
	return math.Round(km*1000) / 1000
}
