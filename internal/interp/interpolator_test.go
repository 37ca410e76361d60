package interp_test

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloclimat/veloclimat/internal/errs"
	"github.com/veloclimat/veloclimat/internal/interp"
)

var t0 = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func triangleFixture(t *testing.T) (*interp.Network, *interp.SeriesIndex) {
	t.Helper()

	net, err := interp.BuildNetwork([]interp.Station{
		{ID: 1, Position: orb.Point{0, 0}},
		{ID: 2, Position: orb.Point{10, 0}},
		{ID: 3, Position: orb.Point{0, 10}},
	})
	require.NoError(t, err)

	series := interp.NewSeriesIndex([]interp.Observation{
		{StationID: 1, Time: t0, Baseline: 0, Delta: 6},
		{StationID: 2, Time: t0, Baseline: 10, Delta: 6},
		{StationID: 3, Time: t0, Baseline: 20, Delta: 6},
	})
	return net, series
}

func newInterpolator(t *testing.T, cfg interp.Config) *interp.Interpolator {
	t.Helper()
	i, err := interp.NewInterpolator(cfg, zerolog.Nop())
	require.NoError(t, err)
	return i
}

func TestInterpolator_Scenario(t *testing.T) {
	net, series := triangleFixture(t)
	i := newInterpolator(t, interp.DefaultConfig())

	samples := []interp.Sample{
		{ID: 1, Position: orb.Point{0, 0}, Time: t0, Measured: 1},
		{ID: 2, Position: orb.Point{10.0 / 3, 10.0 / 3}, Time: t0, Measured: 12},
		{ID: 3, Position: orb.Point{20, 20}, Time: t0, Measured: 5},
	}

	out, err := i.Interpolate(net, series, samples)
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.Equal(t, 1, out.OutsideHull)
	assert.Equal(t, 0, out.MissingJoin)

	assert.Equal(t, int64(1), out.Results[0].SampleID)
	assert.InDelta(t, 0.0, out.Results[0].Interpolated, 1e-9)
	assert.InDelta(t, 1.0, out.Results[0].Difference, 1e-9)

	assert.Equal(t, int64(2), out.Results[1].SampleID)
	assert.InDelta(t, 10.0, out.Results[1].Interpolated, 1e-9)
	assert.InDelta(t, 2.0, out.Results[1].Difference, 1e-9)
	assert.Equal(t, 1, out.Results[1].TriangleID)
}

func TestInterpolator_TimeWeightAndLapse(t *testing.T) {
	net, series := triangleFixture(t)
	i := newInterpolator(t, interp.DefaultConfig())

	out, err := i.Interpolate(net, series, []interp.Sample{
		{ID: 1, Position: orb.Point{0, 0}, Time: t0.Add(3 * time.Minute), Elevation: 100},
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)

	// baseline 0 + delta 6 * weight 0.5 - 0.0065 * 100
	assert.InDelta(t, 3-0.65, out.Results[0].Interpolated, 1e-9)
}

func TestInterpolator_TimeWeightFromNewestVertex(t *testing.T) {
	net, _ := triangleFixture(t)
	series := interp.NewSeriesIndex([]interp.Observation{
		{StationID: 1, Time: t0.Add(-1 * time.Minute), Baseline: 0, Delta: 6},
		{StationID: 2, Time: t0.Add(-3 * time.Minute), Baseline: 10, Delta: 6},
		{StationID: 3, Time: t0.Add(-5 * time.Minute), Baseline: 20, Delta: 6},
	})
	cfg := interp.DefaultConfig()
	cfg.LapseRate = 0
	i := newInterpolator(t, cfg)

	out, err := i.Interpolate(net, series, []interp.Sample{
		{ID: 1, Position: orb.Point{10.0 / 3, 10.0 / 3}, Time: t0, Measured: 12},
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)

	// baseline 10 at the centroid + delta 6 * (60s / 360s) from the t0-1m row
	assert.InDelta(t, 11.0, out.Results[0].Interpolated, 1e-9)
	assert.InDelta(t, 1.0, out.Results[0].Difference, 1e-9)
}

func TestInterpolator_ZeroLapseRateDisablesCorrection(t *testing.T) {
	net, series := triangleFixture(t)
	cfg := interp.DefaultConfig()
	cfg.LapseRate = 0
	i := newInterpolator(t, cfg)

	out, err := i.Interpolate(net, series, []interp.Sample{
		{ID: 1, Position: orb.Point{0, 0}, Time: t0, Elevation: 800},
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.InDelta(t, 0.0, out.Results[0].Interpolated, 1e-9)
}

func TestInterpolator_MissingJoin(t *testing.T) {
	net, series := triangleFixture(t)
	i := newInterpolator(t, interp.DefaultConfig())

	out, err := i.Interpolate(net, series, []interp.Sample{
		{ID: 1, Position: orb.Point{1, 1}, Time: t0.Add(-time.Minute)},
		{ID: 2, Position: orb.Point{1, 1}, Time: t0.Add(6 * time.Minute)},
		{ID: 3, Position: orb.Point{1, 1}, Time: t0.Add(5 * time.Minute)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, out.MissingJoin)
	require.Len(t, out.Results, 1)
	assert.Equal(t, int64(3), out.Results[0].SampleID)
}

func TestInterpolator_UniqueSampleIDs(t *testing.T) {
	net, err := interp.BuildNetwork(squareStations())
	require.NoError(t, err)

	var obs []interp.Observation
	for _, s := range squareStations() {
		obs = append(obs, interp.Observation{StationID: s.ID, Time: t0, Baseline: 15})
	}
	i := newInterpolator(t, interp.DefaultConfig())

	// (2,2) sits on an edge shared by two triangles, (5,5) on a vertex shared by four.
	out, err := i.Interpolate(net, interp.NewSeriesIndex(obs), []interp.Sample{
		{ID: 1, Position: orb.Point{2, 2}, Time: t0},
		{ID: 2, Position: orb.Point{5, 5}, Time: t0},
		{ID: 3, Position: orb.Point{7, 2}, Time: t0},
	})
	require.NoError(t, err)

	seen := map[int64]bool{}
	for _, r := range out.Results {
		assert.False(t, seen[r.SampleID], "duplicate sample %d", r.SampleID)
		seen[r.SampleID] = true
		assert.InDelta(t, 15.0, r.Interpolated, 1e-9)
	}
	assert.Len(t, out.Results, 3)
}

func TestInterpolator_Idempotent(t *testing.T) {
	net, series := triangleFixture(t)
	i := newInterpolator(t, interp.DefaultConfig())
	samples := []interp.Sample{
		{ID: 9, Position: orb.Point{2, 3}, Time: t0.Add(time.Minute)},
		{ID: 4, Position: orb.Point{4, 4}, Time: t0.Add(2 * time.Minute)},
	}

	first, err := i.Interpolate(net, series, samples)
	require.NoError(t, err)
	second, err := i.Interpolate(net, series, samples)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNewInterpolator_InvalidConfig(t *testing.T) {
	_, err := interp.NewInterpolator(interp.Config{LookBack: -time.Minute}, zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	_, err = interp.NewInterpolator(interp.Config{LapseRate: -1}, zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestNewInterpolator_Defaults(t *testing.T) {
	i := newInterpolator(t, interp.Config{LapseRate: 0.0065})
	assert.Equal(t, interp.DefaultConfig(), i.Config())
}
