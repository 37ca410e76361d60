// Package delaunay computes planar Delaunay triangulations with the Bowyer-Watson
// incremental algorithm.
// See: https://en.wikipedia.org/wiki/Bowyer%E2%80%93Watson_algorithm
package delaunay

import (
	"errors"
	"math"
	"sort"
)

// Triangulation errors.
var (
	ErrTooFewPoints = errors.New("delaunay: at least 3 distinct points required")
	ErrCollinear    = errors.New("delaunay: all points are collinear")
)

// superScale sizes the enclosing triangle relative to the input extent.
const superScale = 1000.0

// Point is a planar coordinate.
type Point struct {
	X float64
	Y float64
}

// Triangle holds indices into the input slice, in counter-clockwise order,
// starting with the smallest index.
type Triangle struct {
	A, B, C int
}

type face struct {
	v [3]int
}

type edge struct {
	from, to int
}

// Triangulate returns the Delaunay triangles of points. Duplicate points are
// ignored: only the first occurrence of a coordinate is referenced.
// The output order is deterministic for a given input.
func Triangulate(points []Point) ([]Triangle, error) {
	unique := firstOccurrences(points)
	if len(unique) < 3 {
		return nil, ErrTooFewPoints
	}
	if collinear(points, unique) {
		return nil, ErrCollinear
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, i := range unique {
		p := points[i]
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	span := math.Max(maxX-minX, maxY-minY)
	midX, midY := (minX+maxX)/2, (minY+maxY)/2

	n := len(points)
	verts := make([]Point, n, n+3)
	copy(verts, points)
	verts = append(verts,
		Point{X: midX - superScale*span, Y: midY - superScale*span},
		Point{X: midX + superScale*span, Y: midY - superScale*span},
		Point{X: midX, Y: midY + superScale*span},
	)

	faces := []face{{v: [3]int{n, n + 1, n + 2}}}

	for _, i := range unique {
		p := verts[i]

		var cavity []face
		kept := faces[:0]
		for _, f := range faces {
			if inCircumcircle(verts[f.v[0]], verts[f.v[1]], verts[f.v[2]], p) {
				cavity = append(cavity, f)
			} else {
				kept = append(kept, f)
			}
		}
		faces = kept

		for _, e := range cavityBoundary(cavity) {
			faces = append(faces, newFace(verts, e.from, e.to, i))
		}
	}

	triangles := make([]Triangle, 0, len(faces))
	for _, f := range faces {
		if f.v[0] >= n || f.v[1] >= n || f.v[2] >= n {
			continue
		}
		if orient(verts[f.v[0]], verts[f.v[1]], verts[f.v[2]]) == 0 {
			continue
		}
		triangles = append(triangles, canonical(f))
	}

	sort.Slice(triangles, func(a, b int) bool {
		ta, tb := triangles[a], triangles[b]
		if ta.A != tb.A {
			return ta.A < tb.A
		}
		if ta.B != tb.B {
			return ta.B < tb.B
		}
		return ta.C < tb.C
	})

	return triangles, nil
}

// cavityBoundary returns the directed edges that belong to exactly one face of
// the cavity. Edge direction follows the counter-clockwise face it came from.
func cavityBoundary(cavity []face) []edge {
	count := make(map[[2]int]int, len(cavity)*3)
	for _, f := range cavity {
		for k := 0; k < 3; k++ {
			count[undirected(f.v[k], f.v[(k+1)%3])]++
		}
	}

	var boundary []edge
	for _, f := range cavity {
		for k := 0; k < 3; k++ {
			a, b := f.v[k], f.v[(k+1)%3]
			if count[undirected(a, b)] == 1 {
				boundary = append(boundary, edge{from: a, to: b})
			}
		}
	}
	return boundary
}

func undirected(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// newFace builds a face with counter-clockwise orientation.
func newFace(verts []Point, a, b, c int) face {
	if orient(verts[a], verts[b], verts[c]) < 0 {
		b, c = c, b
	}
	return face{v: [3]int{a, b, c}}
}

// canonical rotates a counter-clockwise face so its smallest index comes first.
func canonical(f face) Triangle {
	v := f.v
	for v[0] > v[1] || v[0] > v[2] {
		v = [3]int{v[1], v[2], v[0]}
	}
	return Triangle{A: v[0], B: v[1], C: v[2]}
}

// orient is twice the signed area of abc: positive when counter-clockwise.
func orient(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// inCircumcircle reports whether d lies strictly inside the circumcircle of
// the counter-clockwise triangle abc.
func inCircumcircle(a, b, c, d Point) bool {
	adx, ady := a.X-d.X, a.Y-d.Y
	bdx, bdy := b.X-d.X, b.Y-d.Y
	cdx, cdy := c.X-d.X, c.Y-d.Y

	det := (adx*adx+ady*ady)*(bdx*cdy-cdx*bdy) +
		(bdx*bdx+bdy*bdy)*(cdx*ady-adx*cdy) +
		(cdx*cdx+cdy*cdy)*(adx*bdy-bdx*ady)

	return det > 0
}

// InCircumcircle reports whether p lies strictly inside the circumcircle of t.
func InCircumcircle(points []Point, t Triangle, p Point) bool {
	return inCircumcircle(points[t.A], points[t.B], points[t.C], p)
}

func firstOccurrences(points []Point) []int {
	seen := make(map[Point]struct{}, len(points))
	unique := make([]int, 0, len(points))
	for i, p := range points {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, i)
	}
	return unique
}

func collinear(points []Point, unique []int) bool {
	a, b := points[unique[0]], points[unique[1]]
	scale := math.Hypot(b.X-a.X, b.Y-a.Y)
	for _, i := range unique[2:] {
		c := points[i]
		scale = math.Max(scale, math.Hypot(c.X-a.X, c.Y-a.Y))
	}
	tolerance := 1e-12 * scale * scale

	for _, i := range unique[2:] {
		if math.Abs(orient(a, b, points[i])) > tolerance {
			return false
		}
	}
	return true
}
