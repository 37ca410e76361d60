package interp

import "sort"

// SelectLatest keeps one candidate per sample: the most recent sample time,
// then the most recent matched station time, then the lowest triangle id.
// Candidates whose sample is unknown are ignored. Results are ordered by
// sample id.
func SelectLatest(candidates []Candidate, samples map[int64]Sample) []Result {
	best := make(map[int64]Candidate, len(samples))
	for _, c := range candidates {
		if _, ok := samples[c.SampleID]; !ok {
			continue
		}
		cur, ok := best[c.SampleID]
		if !ok || preferred(c, cur) {
			best[c.SampleID] = c
		}
	}

	results := make([]Result, 0, len(best))
	for id, c := range best {
		s := samples[id]
		results = append(results, Result{
			SampleID:     id,
			Time:         s.Time,
			Measured:     s.Measured,
			Interpolated: c.Value,
			Difference:   s.Measured - c.Value,
			Position:     s.Position,
			TriangleID:   c.TriangleID,
			Group:        s.Group,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].SampleID < results[j].SampleID })
	return results
}

func preferred(a, b Candidate) bool {
	if !a.SampleTime.Equal(b.SampleTime) {
		return a.SampleTime.After(b.SampleTime)
	}
	if !a.StationTime.Equal(b.StationTime) {
		return a.StationTime.After(b.StationTime)
	}
	return a.TriangleID < b.TriangleID
}
