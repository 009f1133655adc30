package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/klenoapp/kleno-server/internal/geo"
)

func testConfig() Config {
	return Config{
		InitialRadiusFloorKm:  2.0,
		InitialRadiusMarginKm: 2.0,
		MinRadiusKm:           0.3,
		ShrinkStepKm:          0.5,
		ShrinkIntervalMin:     30,
		SafetyMarginKm:        0.2,
		LateralAllowanceRatio: 0.2,
		HardDeviationKm:       1.0,
	}
}

func TestInitialRadiusKm(t *testing.T) {
	cfg := testConfig()

	// Short trips get the floor.
	assert.Equal(t, 2.0, cfg.InitialRadiusKm(0.0))
	assert.InDelta(t, 2.8, cfg.InitialRadiusKm(0.8), 1e-9)

	// Long trips get distance plus margin.
	assert.InDelta(t, 12.0, cfg.InitialRadiusKm(10.0), 1e-9)
}

func TestComputeRadius_NoShrinkAtStart(t *testing.T) {
	cfg := testConfig()
	start := time.Now()

	// Scenario from the Lusaka corridor: origin (-15.4167, 28.2833),
	// destination (-15.4200, 28.2900).
	origin := geo.Point{Lat: -15.4167, Lon: 28.2833}
	dest := geo.Point{Lat: -15.4200, Lon: 28.2900}
	straight := geo.HaversineKm(origin, dest)
	r0 := cfg.InitialRadiusKm(straight)
	// The margin applies even on short trips, so R0 sits above the floor.
	assert.InDelta(t, straight+2.0, r0, 1e-9)
	assert.Greater(t, r0, 2.0)

	state := cfg.ComputeRadius(r0, straight, start, start)
	assert.Equal(t, 0, state.StepsElapsed)
	assert.Equal(t, r0, state.RadiusKm)
}

func TestComputeRadius_OneStepAfter35Minutes(t *testing.T) {
	cfg := testConfig()
	start := time.Now()
	now := start.Add(35 * time.Minute)

	state := cfg.ComputeRadius(2.0, 0.5, start, now)
	assert.Equal(t, 1, state.StepsElapsed)
	assert.InDelta(t, 1.5, state.RadiusKm, 1e-9)
}

func TestComputeRadius_MinRadiusFloor(t *testing.T) {
	cfg := testConfig()
	start := time.Now()

	// After many hours the candidate radius is deeply negative; the agent
	// is already at the door, so only the absolute floor applies.
	state := cfg.ComputeRadius(2.0, 0.0, start, start.Add(10*time.Hour))
	assert.Equal(t, cfg.MinRadiusKm, state.RadiusKm)
}

func TestComputeRadius_SafetyFloorTracksDistance(t *testing.T) {
	cfg := testConfig()
	start := time.Now()

	// The agent is still 5 km out; however much time passed, the radius
	// must cover distance plus the safety margin.
	state := cfg.ComputeRadius(7.0, 5.0, start, start.Add(24*time.Hour))
	assert.InDelta(t, 5.2, state.RadiusKm, 1e-9)
	assert.GreaterOrEqual(t, state.RadiusKm, cfg.MinRadiusKm)
}

func TestComputeRadius_FloorInvariantAcrossElapsed(t *testing.T) {
	cfg := testConfig()
	start := time.Now()

	for _, minutes := range []int{0, 10, 30, 61, 95, 240, 1440} {
		for _, dist := range []float64{0, 0.1, 1.5, 4, 12} {
			state := cfg.ComputeRadius(3.5, dist, start, start.Add(time.Duration(minutes)*time.Minute))
			assert.GreaterOrEqual(t, state.RadiusKm, cfg.MinRadiusKm,
				"minutes=%d dist=%v", minutes, dist)
			assert.GreaterOrEqual(t, state.RadiusKm, dist+cfg.SafetyMarginKm,
				"minutes=%d dist=%v", minutes, dist)
		}
	}
}

func TestComputeRadius_AllowedDeviationScalesWithRadius(t *testing.T) {
	cfg := testConfig()
	start := time.Now()

	wide := cfg.ComputeRadius(4.0, 0.5, start, start)
	narrow := cfg.ComputeRadius(4.0, 0.5, start, start.Add(2*time.Hour))

	assert.InDelta(t, 0.2*wide.RadiusKm, wide.AllowedDevKm, 1e-9)
	assert.InDelta(t, 0.2*narrow.RadiusKm, narrow.AllowedDevKm, 1e-9)
	assert.Less(t, narrow.AllowedDevKm, wide.AllowedDevKm)
}

func TestComputeRadius_ClockSkewClampedToZero(t *testing.T) {
	cfg := testConfig()
	start := time.Now()

	state := cfg.ComputeRadius(2.0, 0.5, start, start.Add(-5*time.Minute))
	assert.Equal(t, 0, state.StepsElapsed)
	assert.Equal(t, 2.0, state.RadiusKm)
}

func TestRadiusChanged(t *testing.T) {
	assert.False(t, RadiusChanged(2.0, 2.0))
	assert.False(t, RadiusChanged(2.0, 2.0004)) // below meter precision
	assert.True(t, RadiusChanged(2.0, 1.5))
	assert.True(t, RadiusChanged(2.0, 2.001))
}

func TestRoundKm(t *testing.T) {
	assert.Equal(t, 1.234, RoundKm(1.23449))
	assert.Equal(t, 1.235, RoundKm(1.23461))
}
