package interp

import (
	"sort"
	"time"
)

// SeriesIndex answers "latest observation of station s before t" queries over
// per-station series sorted by time.
type SeriesIndex struct {
	series map[int64][]Observation
}

// NewSeriesIndex groups and sorts observations by station. When a station
// reports twice at the same instant, the later row in the input wins.
func NewSeriesIndex(observations []Observation) *SeriesIndex {
	idx := &SeriesIndex{series: make(map[int64][]Observation)}
	for _, o := range observations {
		idx.series[o.StationID] = append(idx.series[o.StationID], o)
	}
	for id, s := range idx.series {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })

		deduped := s[:0]
		for i, o := range s {
			if i+1 < len(s) && s[i+1].Time.Equal(o.Time) {
				continue
			}
			deduped = append(deduped, o)
		}
		idx.series[id] = deduped
	}
	return idx
}

// Stations returns how many stations have at least one observation.
func (idx *SeriesIndex) Stations() int {
	return len(idx.series)
}

// Latest returns the observation of station with the greatest time in
// (t - window, t]. The lower bound is exclusive.
func (idx *SeriesIndex) Latest(station int64, t time.Time, window time.Duration) (Observation, bool) {
	s := idx.series[station]
	// first observation strictly after t
	i := sort.Search(len(s), func(i int) bool { return s[i].Time.After(t) })
	if i == 0 {
		return Observation{}, false
	}
	o := s[i-1]
	if !o.Time.After(t.Add(-window)) {
		return Observation{}, false
	}
	return o, true
}
