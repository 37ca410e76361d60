package interp

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/paulmach/orb"

	"github.com/veloclimat/veloclimat/internal/errs"
	"github.com/veloclimat/veloclimat/pkg/delaunay"
)

// locateEpsilon pads point queries so the spatial index never sees an empty
// box, and lets points sitting on a shared edge reach both triangles.
const locateEpsilon = 1e-9

// Network is the triangulated station network with a spatial index over its
// triangles.
type Network struct {
	triangles []*Triangle
	index     *rtree.Rtree

	// Duplicates lists stations dropped because another station with a lower
	// id has the same position.
	Duplicates []int64
}

type indexedTriangle struct {
	geom.Polygon
	tri *Triangle
}

// BuildNetwork triangulates the stations. Triangle ids start at 1 and follow
// the deterministic triangulation order.
func BuildNetwork(stations []Station) (*Network, error) {
	ordered := make([]Station, len(stations))
	copy(ordered, stations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	seen := make(map[orb.Point]bool, len(ordered))
	kept := ordered[:0:0]
	var duplicates []int64
	for _, s := range ordered {
		if seen[s.Position] {
			duplicates = append(duplicates, s.ID)
			continue
		}
		seen[s.Position] = true
		kept = append(kept, s)
	}

	if len(kept) < 3 {
		return nil, errs.New(errs.ErrInsufficientInput, "triangulate", fmt.Sprintf("%d distinct stations", len(kept)), nil)
	}

	points := make([]delaunay.Point, len(kept))
	for i, s := range kept {
		points[i] = delaunay.Point{X: s.Position[0], Y: s.Position[1]}
	}

	faces, err := delaunay.Triangulate(points)
	switch {
	case errors.Is(err, delaunay.ErrCollinear):
		return nil, errs.New(errs.ErrDegenerateGeometry, "triangulate", "all stations collinear", err)
	case errors.Is(err, delaunay.ErrTooFewPoints):
		return nil, errs.New(errs.ErrInsufficientInput, "triangulate", "", err)
	case err != nil:
		return nil, err
	}

	n := &Network{
		triangles:  make([]*Triangle, 0, len(faces)),
		index:      rtree.NewTree(25, 50),
		Duplicates: duplicates,
	}
	for i, f := range faces {
		tri := &Triangle{ID: i + 1}
		for k, idx := range [3]int{f.A, f.B, f.C} {
			tri.Vertices[k] = TriangleVertex{
				TriangleID: tri.ID,
				Index:      k,
				StationID:  kept[idx].ID,
				Position:   kept[idx].Position,
			}
		}
		n.triangles = append(n.triangles, tri)
		n.index.Insert(&indexedTriangle{Polygon: toPolygon(tri.Ring()), tri: tri})
	}

	return n, nil
}

// Triangles returns the triangles ordered by id.
func (n *Network) Triangles() []*Triangle {
	return n.triangles
}

// Vertices returns the exploded vertex records, three per triangle.
func (n *Network) Vertices() []TriangleVertex {
	out := make([]TriangleVertex, 0, 3*len(n.triangles))
	for _, t := range n.triangles {
		out = append(out, t.Vertices[:]...)
	}
	return out
}

// Locate returns every triangle whose closed area contains p, by ascending id.
// A point on a shared edge or vertex belongs to all adjacent triangles.
func (n *Network) Locate(p orb.Point) []*Triangle {
	box := &geom.Bounds{
		Min: geom.Point{X: p[0] - locateEpsilon, Y: p[1] - locateEpsilon},
		Max: geom.Point{X: p[0] + locateEpsilon, Y: p[1] + locateEpsilon},
	}

	var out []*Triangle
	for _, item := range n.index.SearchIntersect(box) {
		it := item.(*indexedTriangle)
		if contains(it.tri, p) {
			out = append(out, it.tri)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// contains is a boundary-inclusive barycentric test on a counter-clockwise
// triangle.
func contains(t *Triangle, p orb.Point) bool {
	a, b, c := t.Vertices[0].Position, t.Vertices[1].Position, t.Vertices[2].Position
	scale := maxAbs(a, b, c, p)
	tol := degenerateTolerance * scale * scale

	return cross(a, b, p) >= -tol && cross(b, c, p) >= -tol && cross(c, a, p) >= -tol
}

func cross(a, b, p orb.Point) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

func maxAbs(points ...orb.Point) float64 {
	m := 1.0
	for _, p := range points {
		for _, v := range p {
			if v < 0 {
				v = -v
			}
			if v > m {
				m = v
			}
		}
	}
	return m
}

func toPolygon(r orb.Ring) geom.Polygon {
	path := make(geom.Path, len(r))
	for i, p := range r {
		path[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return geom.Polygon{path}
}
