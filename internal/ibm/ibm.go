// Package ibm computes the daily biometeorological index: a centered
// three-day rolling mean of the daily mid-range temperature.
package ibm

import (
	"math"
	"sort"
	"time"
)

// Reading is one temperature measurement.
type Reading struct {
	Time        time.Time
	Temperature float64
}

// Day holds the daily extremes and the index for one calendar day.
type Day struct {
	Date time.Time // midnight in the computation location
	Tn   float64
	Tx   float64
	IBM  float64
}

// Summary describes a series of days.
type Summary struct {
	Days    int
	TnMin   float64
	TxMax   float64
	IBMMean float64
	IBMMin  float64
	IBMMax  float64
}

// Compute groups readings by calendar day in loc and returns one Day per day
// with data, in date order. The index of a day averages the mid-range of the
// previous, current and next days present in the series; edge days average
// over the days available.
func Compute(readings []Reading, loc *time.Location) []Day {
	if loc == nil {
		loc = time.UTC
	}

	byDay := make(map[time.Time]*Day)
	for _, r := range readings {
		if math.IsNaN(r.Temperature) {
			continue
		}
		t := r.Time.In(loc)
		date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		d, ok := byDay[date]
		if !ok {
			byDay[date] = &Day{Date: date, Tn: r.Temperature, Tx: r.Temperature}
			continue
		}
		d.Tn = math.Min(d.Tn, r.Temperature)
		d.Tx = math.Max(d.Tx, r.Temperature)
	}

	days := make([]Day, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	for i := range days {
		lo, hi := max(i-1, 0), min(i+1, len(days)-1)
		var sum float64
		for k := lo; k <= hi; k++ {
			sum += (days[k].Tn + days[k].Tx) / 2
		}
		days[i].IBM = round2(sum / float64(hi-lo+1))
	}
	return days
}

// Summarize returns the extremes and mean index over days, rounded to two
// decimals. An empty series yields a zero Summary.
func Summarize(days []Day) Summary {
	if len(days) == 0 {
		return Summary{}
	}
	s := Summary{
		Days:   len(days),
		TnMin:  days[0].Tn,
		TxMax:  days[0].Tx,
		IBMMin: days[0].IBM,
		IBMMax: days[0].IBM,
	}
	var sum float64
	for _, d := range days {
		s.TnMin = math.Min(s.TnMin, d.Tn)
		s.TxMax = math.Max(s.TxMax, d.Tx)
		s.IBMMin = math.Min(s.IBMMin, d.IBM)
		s.IBMMax = math.Max(s.IBMMax, d.IBM)
		sum += d.IBM
	}
	s.TnMin = round2(s.TnMin)
	s.TxMax = round2(s.TxMax)
	s.IBMMean = round2(sum / float64(len(days)))
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
