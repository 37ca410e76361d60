package interp

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/veloclimat/veloclimat/internal/errs"
)

// degenerateTolerance is the relative area below which a triangle is
// treated as collinear.
const degenerateTolerance = 1e-12

// Plane is the affine surface through three vertex heights, evaluated with
// barycentric weights.
type Plane struct {
	vertices [3]orb.Point
	heights  [3]float64
	det      float64
}

// NewPlane builds the surface through (vertices[i], heights[i]).
// Returns errs.ErrDegenerateGeometry when the vertices are collinear.
func NewPlane(vertices [3]orb.Point, heights [3]float64) (Plane, error) {
	a, b, c := vertices[0], vertices[1], vertices[2]
	det := (b[1]-c[1])*(a[0]-c[0]) + (c[0]-b[0])*(a[1]-c[1])

	scale := math.Max(squaredDistance(a, b), math.Max(squaredDistance(b, c), squaredDistance(c, a)))
	if scale == 0 || math.Abs(det) <= degenerateTolerance*scale {
		return Plane{}, errs.New(errs.ErrDegenerateGeometry, "plane", fmt.Sprintf("vertices %v %v %v", a, b, c), nil)
	}

	return Plane{vertices: vertices, heights: heights, det: det}, nil
}

// Eval returns the surface height at p. Points outside the triangle are
// extrapolated along the same plane.
func (p Plane) Eval(pt orb.Point) float64 {
	l0, l1, l2 := p.barycentric(pt)
	return l0*p.heights[0] + l1*p.heights[1] + l2*p.heights[2]
}

func (p Plane) barycentric(pt orb.Point) (float64, float64, float64) {
	a, b, c := p.vertices[0], p.vertices[1], p.vertices[2]
	l0 := ((b[1]-c[1])*(pt[0]-c[0]) + (c[0]-b[0])*(pt[1]-c[1])) / p.det
	l1 := ((c[1]-a[1])*(pt[0]-c[0]) + (a[0]-c[0])*(pt[1]-c[1])) / p.det
	return l0, l1, 1 - l0 - l1
}

// TimeWeight is the offset between a sample and its matched station
// observation, in units of normalization. It is not clamped to [0, 1].
func TimeWeight(sampleTime, stationTime time.Time, normalization time.Duration) float64 {
	return sampleTime.Sub(stationTime).Seconds() / normalization.Seconds()
}

// LapseCorrect lowers raw by rate for every unit of elevation.
func LapseCorrect(raw, elevation, rate float64) float64 {
	return raw - rate*elevation
}

func squaredDistance(a, b orb.Point) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}
