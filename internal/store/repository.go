// Package store reads the interpolation inputs and replaces its output
// tables.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/veloclimat/veloclimat/internal/ibm"
	"github.com/veloclimat/veloclimat/internal/interp"
	"github.com/veloclimat/veloclimat/internal/landcover"
)

// ErrTableNotFound is returned when an input table does not exist.
var ErrTableNotFound = errors.New("table not found")

// Output column names, shared by every implementation.
const (
	ColumnID           = "id"
	ColumnTime         = "timestamp"
	ColumnMeasured     = "temperature"
	ColumnInterpolated = "t_inter"
	ColumnDifference   = "diff_temperature"
	ColumnTriangle     = "id_triangle"
	ColumnVertex       = "id_pt"
	ColumnGeometry     = "the_geom"
	ColumnTop1         = "lcz_primary_max"
	ColumnTop2         = "lcz_primary_max_2"
)

// Repository defines the persistence used by a run.
//
// Every Replace method drops and recreates its table atomically: readers see
// either the previous table or the complete new one.
type Repository interface {
	// LoadStations returns the station layer ordered by id.
	LoadStations(ctx context.Context) ([]interp.Station, error)

	// LoadObservations returns the station series with a time in (from, to].
	LoadObservations(ctx context.Context, from, to time.Time) ([]interp.Observation, error)

	// LoadSamples returns the rows of a sensor table ordered by id.
	LoadSamples(ctx context.Context, table SampleTable) ([]interp.Sample, error)

	// LoadLandCover returns the land-cover layer.
	LoadLandCover(ctx context.Context) ([]landcover.Polygon, error)

	// LoadSites returns the points of table with the given columns carried.
	LoadSites(ctx context.Context, table string, columns []string) ([]landcover.Site, error)

	// ReplaceNetwork writes the triangles and their vertices.
	ReplaceNetwork(ctx context.Context, network *interp.Network) error

	// ReplaceResults writes the selected interpolation results.
	ReplaceResults(ctx context.Context, table ResultTable, results []interp.Result) (int64, error)

	// ReplaceProfiles writes the land-cover profiles and, when requested,
	// drops the source table in the same transaction. Sites without any
	// coverage are written too, with zero fractions and no top classes.
	ReplaceProfiles(ctx context.Context, table ProfileTable, profiles []landcover.Profile) (int64, error)

	// ReplaceDailyIndex writes the daily biometeorological index.
	ReplaceDailyIndex(ctx context.Context, table string, days []ibm.Day) (int64, error)
}
