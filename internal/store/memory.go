package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/veloclimat/veloclimat/internal/errs"
	"github.com/veloclimat/veloclimat/internal/ibm"
	"github.com/veloclimat/veloclimat/internal/interp"
	"github.com/veloclimat/veloclimat/internal/landcover"
)

// MemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
//
// Tables written by ReplaceResults can be read back with LoadSites, with the
// result fields available as carry columns.
type MemoryRepository struct {
	mu sync.RWMutex

	stations     []interp.Station
	observations []interp.Observation
	samples      map[string][]interp.Sample
	landCover    []landcover.Polygon
	sites        map[string][]landcover.Site

	network  *interp.Network
	results  map[string][]interp.Result
	profiles map[string][]landcover.Profile
	daily    map[string][]ibm.Day

	failOn map[string]error
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		samples:  make(map[string][]interp.Sample),
		sites:    make(map[string][]landcover.Site),
		results:  make(map[string][]interp.Result),
		profiles: make(map[string][]landcover.Profile),
		daily:    make(map[string][]ibm.Day),
		failOn:   make(map[string]error),
	}
}

// SetStations replaces the station layer.
func (r *MemoryRepository) SetStations(stations []interp.Station) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stations = append([]interp.Station(nil), stations...)
}

// SetObservations replaces the station series.
func (r *MemoryRepository) SetObservations(observations []interp.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append([]interp.Observation(nil), observations...)
}

// SetSamples replaces the rows of a sensor table.
func (r *MemoryRepository) SetSamples(table string, samples []interp.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[table] = append([]interp.Sample(nil), samples...)
}

// SetLandCover replaces the land-cover layer.
func (r *MemoryRepository) SetLandCover(polygons []landcover.Polygon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.landCover = append([]landcover.Polygon(nil), polygons...)
}

// SetSites replaces the points of a table.
func (r *MemoryRepository) SetSites(table string, sites []landcover.Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[table] = append([]landcover.Site(nil), sites...)
}

// FailOn makes op ("load stations", "replace results", ...) return a storage
// error wrapping cause.
func (r *MemoryRepository) FailOn(op string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn[op] = cause
}

// LoadStations returns the station layer ordered by id.
func (r *MemoryRepository) LoadStations(_ context.Context) ([]interp.Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.failure("load stations", "stations"); err != nil {
		return nil, err
	}
	out := append([]interp.Station(nil), r.stations...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadObservations returns the station series with a time in (from, to].
func (r *MemoryRepository) LoadObservations(_ context.Context, from, to time.Time) ([]interp.Observation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.failure("load observations", "observations"); err != nil {
		return nil, err
	}
	var out []interp.Observation
	for _, o := range r.observations {
		if o.Time.After(from) && !o.Time.After(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

// LoadSamples returns the rows of a sensor table ordered by id.
func (r *MemoryRepository) LoadSamples(_ context.Context, table SampleTable) ([]interp.Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.failure("load samples", table.Name); err != nil {
		return nil, err
	}
	rows, ok := r.samples[table.Name]
	if !ok {
		return nil, errs.Storage("load samples", table.Name, ErrTableNotFound)
	}
	out := append([]interp.Sample(nil), rows...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadLandCover returns the land-cover layer.
func (r *MemoryRepository) LoadLandCover(_ context.Context) ([]landcover.Polygon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.failure("load land cover", "land cover"); err != nil {
		return nil, err
	}
	return append([]landcover.Polygon(nil), r.landCover...), nil
}

// LoadSites returns the points of table ordered by id. Result tables expose
// the columns timestamp, temperature, t_inter, diff_temperature and
// id_triangle.
func (r *MemoryRepository) LoadSites(_ context.Context, table string, columns []string) ([]landcover.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.failure("load sites", table); err != nil {
		return nil, err
	}

	if sites, ok := r.sites[table]; ok {
		out := make([]landcover.Site, len(sites))
		for i, s := range sites {
			s.Carry = append([]any(nil), s.Carry...)
			out[i] = s
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out, nil
	}

	results, ok := r.results[table]
	if !ok {
		return nil, errs.Storage("load sites", table, ErrTableNotFound)
	}
	out := make([]landcover.Site, 0, len(results))
	for _, res := range results {
		carry := make([]any, 0, len(columns))
		for _, c := range columns {
			v, ok := resultColumn(res, c)
			if !ok {
				return nil, errs.Storage("load sites", table, errColumnNotFound(c))
			}
			carry = append(carry, v)
		}
		out = append(out, landcover.Site{ID: res.SampleID, Position: res.Position, Carry: carry})
	}
	return out, nil
}

// ReplaceNetwork stores the network.
func (r *MemoryRepository) ReplaceNetwork(_ context.Context, network *interp.Network) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failure("replace network", "network"); err != nil {
		return err
	}
	r.network = network
	return nil
}

// ReplaceResults stores a copy of results under table.Name.
func (r *MemoryRepository) ReplaceResults(_ context.Context, table ResultTable, results []interp.Result) (int64, error) {
	if _, err := ParseIdent(table.Name); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failure("replace results", table.Name); err != nil {
		return 0, err
	}
	r.results[table.Name] = append([]interp.Result(nil), results...)
	return int64(len(results)), nil
}

// ReplaceProfiles stores a copy of profiles and drops the source on request.
func (r *MemoryRepository) ReplaceProfiles(_ context.Context, table ProfileTable, profiles []landcover.Profile) (int64, error) {
	if _, err := ParseIdent(table.Name); err != nil {
		return 0, err
	}
	if table.Name == table.Source {
		return 0, errs.Invalid("replace profiles", "table", table.Name+" is also the source")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failure("replace profiles", table.Name); err != nil {
		return 0, err
	}
	r.profiles[table.Name] = append([]landcover.Profile(nil), profiles...)
	if table.DeleteSource {
		delete(r.results, table.Source)
		delete(r.sites, table.Source)
	}
	return int64(len(profiles)), nil
}

// ReplaceDailyIndex stores a copy of days.
func (r *MemoryRepository) ReplaceDailyIndex(_ context.Context, table string, days []ibm.Day) (int64, error) {
	if _, err := ParseIdent(table); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failure("replace daily index", table); err != nil {
		return 0, err
	}
	r.daily[table] = append([]ibm.Day(nil), days...)
	return int64(len(days)), nil
}

// Network returns the last stored network.
func (r *MemoryRepository) Network() *interp.Network {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.network
}

// Results returns the rows of a result table and whether it exists.
func (r *MemoryRepository) Results(table string) ([]interp.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows, ok := r.results[table]
	return rows, ok
}

// Profiles returns the rows of a profile table and whether it exists.
func (r *MemoryRepository) Profiles(table string) ([]landcover.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows, ok := r.profiles[table]
	return rows, ok
}

// DailyIndex returns the rows of a daily index table and whether it exists.
func (r *MemoryRepository) DailyIndex(table string) ([]ibm.Day, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows, ok := r.daily[table]
	return rows, ok
}

func (r *MemoryRepository) failure(op, table string) error {
	if cause, ok := r.failOn[op]; ok {
		return errs.Storage(op, table, cause)
	}
	return nil
}

func errColumnNotFound(column string) error {
	return fmt.Errorf("column %s not found", column)
}

func resultColumn(res interp.Result, column string) (any, bool) {
	switch column {
	case ColumnTime:
		return res.Time, true
	case ColumnMeasured:
		return res.Measured, true
	case ColumnInterpolated:
		return res.Interpolated, true
	case ColumnDifference:
		return res.Difference, true
	case ColumnTriangle:
		return int32(res.TriangleID), true //nolint:gosec // bounded by the station count
	default:
		return nil, false
	}
}
