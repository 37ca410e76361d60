package interp_test

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloclimat/veloclimat/internal/interp"
)

func TestSelectLatest(t *testing.T) {
	t0 := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	samples := map[int64]interp.Sample{
		1: {ID: 1, Time: t0, Measured: 25, Position: orb.Point{1, 1}, Group: "thermo-a"},
		2: {ID: 2, Time: t0, Measured: 21},
		3: {ID: 3, Time: t0, Measured: 19},
	}
	candidates := []interp.Candidate{
		{SampleID: 2, TriangleID: 4, Value: 20, SampleTime: t0, StationTime: t0.Add(-time.Minute)},
		{SampleID: 1, TriangleID: 7, Value: 23, SampleTime: t0, StationTime: t0.Add(-2 * time.Minute)},
		{SampleID: 1, TriangleID: 3, Value: 24, SampleTime: t0, StationTime: t0.Add(-time.Minute)},
		{SampleID: 2, TriangleID: 2, Value: 22, SampleTime: t0, StationTime: t0.Add(-time.Minute)},
		{SampleID: 99, TriangleID: 1, Value: 0, SampleTime: t0, StationTime: t0},
	}

	results := interp.SelectLatest(candidates, samples)
	require.Len(t, results, 2)

	// most recent station time wins
	assert.Equal(t, int64(1), results[0].SampleID)
	assert.Equal(t, 3, results[0].TriangleID)
	assert.Equal(t, 24.0, results[0].Interpolated)
	assert.Equal(t, 1.0, results[0].Difference)
	assert.Equal(t, "thermo-a", results[0].Group)
	assert.Equal(t, orb.Point{1, 1}, results[0].Position)

	// equal times fall back to the lowest triangle id
	assert.Equal(t, int64(2), results[1].SampleID)
	assert.Equal(t, 2, results[1].TriangleID)
	assert.Equal(t, -1.0, results[1].Difference)
}

func TestSelectLatest_OrderIndependent(t *testing.T) {
	t0 := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	samples := map[int64]interp.Sample{5: {ID: 5, Time: t0}}
	a := interp.Candidate{SampleID: 5, TriangleID: 1, Value: 1, SampleTime: t0, StationTime: t0}
	b := interp.Candidate{SampleID: 5, TriangleID: 2, Value: 2, SampleTime: t0, StationTime: t0}

	assert.Equal(t,
		interp.SelectLatest([]interp.Candidate{a, b}, samples),
		interp.SelectLatest([]interp.Candidate{b, a}, samples),
	)
}
