package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klenoapp/kleno-server/internal/geo"
)

// corridor returns a short north-south test corridor on the equator with the
// given radius state.
func corridor() (origin, dest geo.Point) {
	return geo.Point{Lat: 0, Lon: 0}, geo.Point{Lat: -0.05, Lon: 0}
}

func radiusState(allowedKm float64) RadiusState {
	return RadiusState{RadiusKm: allowedKm / 0.2, AllowedDevKm: allowedKm}
}

func TestEvaluateStep_OnCorridorNoAlert(t *testing.T) {
	cfg := testConfig()
	origin, dest := corridor()

	in := StepInput{
		Current:          geo.Point{Lat: -0.02, Lon: 0}, // exactly on the segment
		Origin:           origin,
		Destination:      dest,
		PrevDistanceKm:   10,
		PrevAllowedDevKm: 0.4,
	}
	res := EvaluateStep(cfg, in, radiusState(0.4))

	assert.InDelta(t, 0.0, res.DeviationKm, 0.005)
	assert.Empty(t, res.Alerts)
	assert.Equal(t, MovementCloser, res.Movement)
}

func TestEvaluateStep_SoftAlert(t *testing.T) {
	cfg := testConfig()
	origin, dest := corridor()

	// ~0.56 km east of the corridor: above the 0.4 km allowance, below the
	// 1.0 km hard boundary.
	in := StepInput{
		Current:          geo.Point{Lat: -0.02, Lon: 0.005},
		Origin:           origin,
		Destination:      dest,
		PrevDistanceKm:   10,
		PrevAllowedDevKm: 0.4,
	}
	res := EvaluateStep(cfg, in, radiusState(0.4))

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, AlertLevelSoft, res.Alerts[0].Level)
	assert.Contains(t, res.Alerts[0].Message, "off corridor")
}

func TestEvaluateStep_HardAlertExcludesSoft(t *testing.T) {
	cfg := testConfig()
	origin, dest := corridor()

	// ~1.5 km perpendicular off the segment with a 0.4 km allowance.
	in := StepInput{
		Current:          geo.Point{Lat: -0.02, Lon: 0.0135},
		Origin:           origin,
		Destination:      dest,
		PrevDistanceKm:   10,
		PrevAllowedDevKm: 0.4,
	}
	res := EvaluateStep(cfg, in, radiusState(0.4))

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, AlertLevelHard, res.Alerts[0].Level)
	for _, a := range res.Alerts {
		assert.NotEqual(t, AlertLevelSoft, a.Level, "soft and hard are mutually exclusive")
	}
}

func TestEvaluateStep_ReturnToCorridor(t *testing.T) {
	cfg := testConfig()
	origin, dest := corridor()

	// Previous sample was over its allowance; current one is back inside.
	in := StepInput{
		Current:          geo.Point{Lat: -0.02, Lon: 0.001},
		Origin:           origin,
		Destination:      dest,
		PrevDistanceKm:   10,
		PrevDeviationKm:  0.7,
		PrevAllowedDevKm: 0.4,
	}
	res := EvaluateStep(cfg, in, radiusState(0.4))

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, AlertLevelReturn, res.Alerts[0].Level)
}

func TestEvaluateStep_NoReturnWhenPreviousInside(t *testing.T) {
	cfg := testConfig()
	origin, dest := corridor()

	in := StepInput{
		Current:          geo.Point{Lat: -0.02, Lon: 0.001},
		Origin:           origin,
		Destination:      dest,
		PrevDistanceKm:   10,
		PrevDeviationKm:  0.1,
		PrevAllowedDevKm: 0.4,
	}
	res := EvaluateStep(cfg, in, radiusState(0.4))
	assert.Empty(t, res.Alerts)
}

func TestEvaluateStep_MaxDeviationMonotone(t *testing.T) {
	cfg := testConfig()
	origin, dest := corridor()

	in := StepInput{
		Current:          geo.Point{Lat: -0.02, Lon: 0},
		Origin:           origin,
		Destination:      dest,
		PrevDistanceKm:   10,
		PrevMaxDevKm:     2.5,
		PrevAllowedDevKm: 0.4,
	}
	res := EvaluateStep(cfg, in, radiusState(0.4))

	// Coming back on corridor never lowers the recorded maximum.
	assert.Equal(t, 2.5, res.MaxDeviationKm)
}

func TestEvaluateStep_MovementLabels(t *testing.T) {
	cfg := testConfig()
	origin, dest := corridor()

	in := StepInput{
		Current:          geo.Point{Lat: -0.02, Lon: 0},
		Origin:           origin,
		Destination:      dest,
		PrevAllowedDevKm: 0.4,
	}

	in.PrevDistanceKm = 100
	assert.Equal(t, MovementCloser, EvaluateStep(cfg, in, radiusState(0.4)).Movement)

	in.PrevDistanceKm = 0.1
	assert.Equal(t, MovementAway, EvaluateStep(cfg, in, radiusState(0.4)).Movement)

	// Equal distances count as not closing in.
	in.PrevDistanceKm = geo.HaversineKm(in.Current, dest)
	assert.Equal(t, MovementAway, EvaluateStep(cfg, in, radiusState(0.4)).Movement)
}

func TestStep_ComposesRadiusAndDeviation(t *testing.T) {
	cfg := testConfig()
	origin, dest := corridor()

	in := StepInput{
		Current:          geo.Point{Lat: -0.02, Lon: 0},
		Origin:           origin,
		Destination:      dest,
		PrevDistanceKm:   10,
		PrevAllowedDevKm: 0.4,
	}

	started := time.Now()
	radius, res := Step(cfg, in, 8.0, started, started)

	assert.Equal(t, 0, radius.StepsElapsed)
	assert.InDelta(t, geo.HaversineKm(in.Current, dest), res.DistanceKm, 1e-9)
	assert.GreaterOrEqual(t, radius.RadiusKm, res.DistanceKm+cfg.SafetyMarginKm)
}
