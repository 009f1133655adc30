package tracking

import (
	"fmt"
	"math"
	"time"

	"github.com/klenoapp/kleno-server/internal/geo"
)

// Movement labels reported on every breadcrumb.
const (
	MovementStart  = "start"
	MovementCloser = "closer to destination"
	MovementAway   = "away from destination"
)

// Alert levels.
const (
	AlertLevelSoft   = "soft"
	AlertLevelHard   = "hard"
	AlertLevelReturn = "return"
)

// Alert is one deviation alert raised by a step evaluation.
type Alert struct {
	Level   string // soft / hard / return
	Message string // human-readable text forwarded to the notification layer
}

// StepInput carries everything one state transition needs besides the bubble
// radius: current and historical positions plus the previous rolling metrics.
type StepInput struct {
	Current     geo.Point
	Origin      geo.Point
	Destination geo.Point

	PrevDistanceKm  float64 // metrics.last_distance_km
	PrevDeviationKm float64 // metrics.last_deviation_km
	PrevMaxDevKm    float64 // metrics.max_deviation_km

	PrevAllowedDevKm float64 // allowance in force at the previous sample
}

// StepResult is the outcome of evaluating one position sample.
type StepResult struct {
	DistanceKm     float64
	DeviationKm    float64
	MaxDeviationKm float64
	BearingDeg     float64
	Heading        string
	Movement       string
	Alerts         []Alert
}

// EvaluateStep computes the derived metrics and alert decisions for one
// position sample against the origin->destination corridor.
//
// Alert rules, in priority order:
//   - deviation in (allowed, hard): soft warning quoting the overage.
//   - deviation >= hard: hard warning instead (never both).
//   - previous sample over its allowance and current within: return
//     confirmation (may accompany neither, since it only fires when the
//     current deviation is within allowance).
func EvaluateStep(cfg Config, in StepInput, radius RadiusState) StepResult {
	distance := geo.HaversineKm(in.Current, in.Destination)
	deviation := geo.PointToSegmentDistanceKm(in.Current, in.Origin, in.Destination)
	bearing := geo.BearingDegrees(in.Origin, in.Current)
	heading := geo.DirectionLabel(bearing)

	movement := MovementAway
	if distance < in.PrevDistanceKm {
		movement = MovementCloser
	}

	res := StepResult{
		DistanceKm:     distance,
		DeviationKm:    deviation,
		MaxDeviationKm: math.Max(in.PrevMaxDevKm, deviation),
		BearingDeg:     bearing,
		Heading:        heading,
		Movement:       movement,
	}

	allowed := radius.AllowedDevKm
	switch {
	case deviation > allowed && deviation < cfg.HardDeviationKm:
		res.Alerts = append(res.Alerts, Alert{
			Level: AlertLevelSoft,
			Message: fmt.Sprintf(
				"Soft warning: %dm off corridor (allowed <= %dm), heading %s, moving %s",
				meters(deviation), meters(allowed), heading, movement),
		})
	case deviation >= cfg.HardDeviationKm:
		res.Alerts = append(res.Alerts, Alert{
			Level: AlertLevelHard,
			Message: fmt.Sprintf(
				"Hard warning: %.2fkm off corridor (allowed <= %.2fkm), heading %s, moving %s",
				deviation, allowed, heading, movement),
		})
	}

	if in.PrevDeviationKm > in.PrevAllowedDevKm && deviation <= allowed {
		res.Alerts = append(res.Alerts, Alert{
			Level: AlertLevelReturn,
			Message: fmt.Sprintf(
				"Returning: within lateral allowance again (<= %dm), heading %s, moving %s",
				meters(allowed), heading, movement),
		})
	}

	return res
}

// Step composes the bubble computation and the deviation evaluation into one
// state transition: radius first, then metrics and alerts against the new
// allowance.
func Step(cfg Config, in StepInput, r0Km float64, startedAt, now time.Time) (RadiusState, StepResult) {
	distance := geo.HaversineKm(in.Current, in.Destination)
	radius := cfg.ComputeRadius(r0Km, distance, startedAt, now)
	return radius, EvaluateStep(cfg, in, radius)
}

// meters converts kilometers to whole meters for alert text.
func meters(km float64) int {
	return int(math.Round(km * 1000))
}
