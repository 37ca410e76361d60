package interp

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/veloclimat/veloclimat/internal/errs"
)

// Outcome is the result of interpolating one batch of samples.
type Outcome struct {
	// Results holds one row per resolved sample, ordered by sample id.
	Results []Result

	// OutsideHull counts samples that no triangle contains.
	OutsideHull int

	// MissingJoin counts samples located in the network for which no
	// containing triangle had an observation at all three vertices.
	MissingJoin int
}

// Interpolator resolves samples against a station network.
type Interpolator struct {
	config Config
	logger zerolog.Logger
}

// NewInterpolator creates an Interpolator. Zero durations in config are
// replaced by their defaults.
func NewInterpolator(config Config, logger zerolog.Logger) (*Interpolator, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Interpolator{config: config, logger: logger}, nil
}

// Config returns the effective configuration.
func (i *Interpolator) Config() Config {
	return i.config
}

// Interpolate computes the candidates of every sample and selects one result
// per sample. A degenerate triangle aborts the batch.
func (i *Interpolator) Interpolate(network *Network, series *SeriesIndex, samples []Sample) (*Outcome, error) {
	out := &Outcome{}
	bySample := make(map[int64]Sample, len(samples))
	var candidates []Candidate

	for _, s := range samples {
		bySample[s.ID] = s

		triangles := network.Locate(s.Position)
		if len(triangles) == 0 {
			out.OutsideHull++
			continue
		}

		found := false
		for _, t := range triangles {
			c, ok, err := i.candidate(t, series, s)
			if err != nil {
				return nil, err
			}
			if ok {
				candidates = append(candidates, c)
				found = true
			}
		}
		if !found {
			out.MissingJoin++
			i.logger.Debug().
				Err(errs.ErrMissingJoinData).
				Int64("sample_id", s.ID).
				Time("sample_time", s.Time).
				Int("triangles", len(triangles)).
				Msg("sample excluded")
		}
	}

	out.Results = SelectLatest(candidates, bySample)
	return out, nil
}

// candidate evaluates both surfaces of t at the sample. ok is false when a
// vertex has no observation inside the look-back window. The time weight is
// taken from the newest of the three matched observations.
func (i *Interpolator) candidate(t *Triangle, series *SeriesIndex, s Sample) (Candidate, bool, error) {
	var obs [3]Observation
	var latest time.Time
	for k, v := range t.Vertices {
		o, ok := series.Latest(v.StationID, s.Time, i.config.LookBack)
		if !ok {
			return Candidate{}, false, nil
		}
		obs[k] = o
		if o.Time.After(latest) {
			latest = o.Time
		}
	}

	var positions [3]orb.Point
	for k, v := range t.Vertices {
		positions[k] = v.Position
	}

	baseline, err := NewPlane(positions, [3]float64{obs[0].Baseline, obs[1].Baseline, obs[2].Baseline})
	if err != nil {
		return Candidate{}, false, fmt.Errorf("triangle %d: %w", t.ID, err)
	}
	delta, err := NewPlane(positions, [3]float64{obs[0].Delta, obs[1].Delta, obs[2].Delta})
	if err != nil {
		return Candidate{}, false, fmt.Errorf("triangle %d: %w", t.ID, err)
	}

	weight := TimeWeight(s.Time, latest, i.config.TimeNormalization)
	raw := baseline.Eval(s.Position) + delta.Eval(s.Position)*weight

	return Candidate{
		SampleID:    s.ID,
		TriangleID:  t.ID,
		Value:       LapseCorrect(raw, s.Elevation, i.config.LapseRate),
		TimeWeight:  weight,
		SampleTime:  s.Time,
		StationTime: latest,
	}, true, nil
}
