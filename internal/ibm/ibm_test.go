package ibm_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloclimat/veloclimat/internal/ibm"
)

func at(day, hour int) time.Time {
	return time.Date(2024, 7, day, hour, 0, 0, 0, time.UTC)
}

func TestCompute(t *testing.T) {
	readings := []ibm.Reading{
		{Time: at(2, 14), Temperature: 30},
		{Time: at(1, 6), Temperature: 14},
		{Time: at(1, 15), Temperature: 26},
		{Time: at(2, 5), Temperature: 16},
		{Time: at(3, 4), Temperature: 18},
		{Time: at(3, 16), Temperature: 34},
		{Time: at(3, 12), Temperature: math.NaN()},
	}

	days := ibm.Compute(readings, time.UTC)
	require.Len(t, days, 3)

	assert.Equal(t, at(1, 0), days[0].Date)
	assert.Equal(t, 14.0, days[0].Tn)
	assert.Equal(t, 26.0, days[0].Tx)

	// mid-ranges: 20, 23, 26
	assert.InDelta(t, 21.5, days[0].IBM, 1e-9)
	assert.InDelta(t, 23.0, days[1].IBM, 1e-9)
	assert.InDelta(t, 24.5, days[2].IBM, 1e-9)
}

func TestCompute_RoundsToTwoDecimals(t *testing.T) {
	days := ibm.Compute([]ibm.Reading{
		{Time: at(1, 12), Temperature: 20},
		{Time: at(2, 12), Temperature: 20},
		{Time: at(3, 12), Temperature: 21},
	}, time.UTC)
	require.Len(t, days, 3)

	assert.Equal(t, 20.33, days[1].IBM)
}

func TestCompute_Location(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	// 23:30 UTC on July 1st is July 2nd in Paris.
	days := ibm.Compute([]ibm.Reading{
		{Time: time.Date(2024, 7, 1, 23, 30, 0, 0, time.UTC), Temperature: 19},
	}, paris)
	require.Len(t, days, 1)
	assert.Equal(t, 2, days[0].Date.Day())
}

func TestCompute_Empty(t *testing.T) {
	assert.Empty(t, ibm.Compute(nil, nil))
}

func TestSummarize(t *testing.T) {
	days := []ibm.Day{
		{Tn: 14, Tx: 26, IBM: 21.5},
		{Tn: 16, Tx: 30, IBM: 23},
		{Tn: 18, Tx: 34, IBM: 24.5},
	}

	s := ibm.Summarize(days)
	assert.Equal(t, ibm.Summary{Days: 3, TnMin: 14, TxMax: 34, IBMMean: 23, IBMMin: 21.5, IBMMax: 24.5}, s)
	assert.Equal(t, ibm.Summary{}, ibm.Summarize(nil))
}
