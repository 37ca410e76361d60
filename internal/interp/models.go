// Package interp estimates ground temperature at mobile sensor samples from a
// triangulated network of fixed weather stations.
package interp

import (
	"time"

	"github.com/paulmach/orb"
)

// Station is a fixed reference measurement point.
type Station struct {
	ID       int64
	Position orb.Point
}

// Observation is one row of a station time series. Baseline and Delta are
// computed upstream (t_ground_0 and delta_t in the reference deployment).
type Observation struct {
	StationID int64
	Time      time.Time
	Baseline  float64
	Delta     float64
}

// TriangleVertex is one exploded vertex of a triangle.
type TriangleVertex struct {
	TriangleID int
	Index      int // 0..2, counter-clockwise
	StationID  int64
	Position   orb.Point
}

// Triangle is a Delaunay triangle over three stations.
type Triangle struct {
	ID       int
	Vertices [3]TriangleVertex
}

// Ring returns the closed boundary ring of the triangle.
func (t *Triangle) Ring() orb.Ring {
	return orb.Ring{
		t.Vertices[0].Position,
		t.Vertices[1].Position,
		t.Vertices[2].Position,
		t.Vertices[0].Position,
	}
}

// Sample is a cleaned sensor measurement to interpolate at.
type Sample struct {
	ID        int64
	Position  orb.Point
	Time      time.Time
	Elevation float64
	Measured  float64

	// Group is an optional carry-through key such as sensor name or track.
	Group string
}

// Candidate is one resolution of a sample through a containing triangle.
type Candidate struct {
	SampleID    int64
	TriangleID  int
	Value       float64
	TimeWeight  float64
	SampleTime  time.Time
	StationTime time.Time
}

// Result is the selected interpolation for a sample.
type Result struct {
	SampleID     int64
	Time         time.Time
	Measured     float64
	Interpolated float64
	Difference   float64
	Position     orb.Point
	TriangleID   int
	Group        string
}
