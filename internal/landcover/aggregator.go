package landcover

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"

	"github.com/veloclimat/veloclimat/internal/errs"
)

// Aggregator overlays site buffers on an indexed land-cover layer.
type Aggregator struct {
	config Config
	index  *rtree.Rtree
	size   int
}

type indexedPolygon struct {
	geom.Polygonal
	class Class
	shape orb.Geometry
}

// bufferOffsets rotate the buffer vertices, in fractions of the angular
// step. The half step keeps the disk symmetric about both axes without a
// vertex on them; the others are irrational and only used when a clip comes
// back implausible.
var bufferOffsets = []float64{0.5, 0.3819660112501051, 0.6180339887498949, 0.2360679774997897}

// maxFraction tolerates rounding above full coverage of a single polygon.
const maxFraction = 1 + 1e-9

// NewAggregator validates config and indexes the layer. Polygons with an
// unsupported or empty geometry are rejected.
func NewAggregator(config Config, polygons []Polygon) (*Aggregator, error) {
	if config.Mapping == nil {
		config.Mapping = DefaultMapping()
	}
	if config.Segments == 0 {
		config.Segments = DefaultConfig().Segments
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a := &Aggregator{config: config, index: rtree.NewTree(25, 50)}
	for i, p := range polygons {
		g := p.Geometry
		if config.Geographic && g != nil {
			g = project.Geometry(orb.Clone(g), project.WGS84.ToMercator)
		}
		shape, err := toPolygonal(g)
		if err != nil {
			return nil, errs.New(errs.ErrInvalidParameter, "index land cover", fmt.Sprintf("polygon %d class %d", i, p.Class), err)
		}
		a.index.Insert(&indexedPolygon{Polygonal: shape, class: p.Class, shape: g})
		a.size++
	}
	return a, nil
}

// Len returns the number of indexed polygons.
func (a *Aggregator) Len() int {
	return a.size
}

// Profile computes the composition of the buffer around site.
func (a *Aggregator) Profile(site Site) Profile {
	center := site.Position
	if a.config.Geographic {
		center = project.WGS84.ToMercator(center)
	}

	primary := a.disk(center, bufferOffsets[0])

	fractions := make(map[Class]float64)
	for _, item := range a.index.SearchIntersect(primary.shape.Bounds()) {
		p := item.(*indexedPolygon)
		if f := a.coverage(center, primary, p); f > 0 {
			fractions[p.class] += f
		}
	}

	profile := Profile{
		Site:      site,
		Fractions: fractions,
		Macro:     make(map[Macro]float64, len(Macros)),
	}
	for _, m := range Macros {
		profile.Macro[m] = 0
	}
	for c, f := range fractions {
		if m, ok := a.config.Mapping.MacroOf(c); ok {
			profile.Macro[m] += f
		}
	}

	ranked := rank(fractions)
	if len(ranked) > 0 {
		profile.Top1 = ranked[0]
	}
	if len(ranked) > 1 {
		profile.Top2 = ranked[1]
	}
	return profile
}

type disk struct {
	ring  orb.Ring
	shape geom.Polygon
	area  float64
}

func (a *Aggregator) disk(center orb.Point, offset float64) disk {
	ring := buffer(center, a.config.Radius, a.config.Segments, offset)
	return disk{ring: ring, shape: geom.Polygon{toPath(ring)}, area: planar.Area(orb.Polygon{ring})}
}

// coverage returns the share of the buffer covered by p. The clip loses
// area when polygon edges run through buffer vertices, so such rotations
// are skipped, and an empty result for overlapping shapes, or more than
// full coverage, is recomputed with the buffer rotated.
func (a *Aggregator) coverage(center orb.Point, primary disk, p *indexedPolygon) float64 {
	tolerance := a.config.Radius * 1e-9
	last := len(bufferOffsets) - 1

	var fraction float64
	for i, offset := range bufferOffsets {
		d := primary
		if i > 0 {
			d = a.disk(center, offset)
		}
		if i < last && grazes(d.ring, p.shape, tolerance) {
			continue
		}

		fraction = 0
		if isect := d.shape.Intersection(p.Polygonal); isect != nil {
			fraction = math.Abs(isect.Area()) / d.area
		}
		if math.IsNaN(fraction) {
			fraction = 0
			continue
		}
		if fraction > maxFraction {
			continue
		}
		if fraction > 0 || !overlaps(d.ring, center, p.shape) {
			return fraction
		}
	}
	return min(fraction, 1)
}

// grazes reports whether an edge of g passes within tolerance of a vertex
// of the buffer ring.
func grazes(ring orb.Ring, g orb.Geometry, tolerance float64) bool {
	var polygons orb.MultiPolygon
	switch v := g.(type) {
	case orb.Polygon:
		polygons = orb.MultiPolygon{v}
	case orb.MultiPolygon:
		polygons = v
	default:
		return false
	}

	bound := ring.Bound().Pad(tolerance)
	vertices := ring[:len(ring)-1]
	for _, poly := range polygons {
		for _, r := range poly {
			for j := 1; j < len(r); j++ {
				a, b := r[j-1], r[j]
				if !bound.Intersects(orb.Bound{Min: a, Max: a}.Extend(b)) {
					continue
				}
				for _, v := range vertices {
					if planar.DistanceFromSegment(a, b, v) <= tolerance {
						return true
					}
				}
			}
		}
	}
	return false
}

// overlaps reports whether the buffer ring and g share interior points, by
// vertex containment both ways. Boundary contact counts.
func overlaps(ring orb.Ring, center orb.Point, g orb.Geometry) bool {
	var polygons orb.MultiPolygon
	switch v := g.(type) {
	case orb.Polygon:
		polygons = orb.MultiPolygon{v}
	case orb.MultiPolygon:
		polygons = v
	default:
		return false
	}

	if planar.MultiPolygonContains(polygons, center) {
		return true
	}
	for _, pt := range ring {
		if planar.MultiPolygonContains(polygons, pt) {
			return true
		}
	}
	for _, poly := range polygons {
		for _, r := range poly {
			for _, pt := range r {
				if planar.RingContains(ring, pt) {
					return true
				}
			}
		}
	}
	return false
}

// ProfileAll profiles every site, keeping input order.
func (a *Aggregator) ProfileAll(sites []Site) []Profile {
	out := make([]Profile, len(sites))
	for i, s := range sites {
		out[i] = a.Profile(s)
	}
	return out
}

// rank orders classes by coverage descending, lower code first on ties.
func rank(fractions map[Class]float64) []Class {
	classes := make([]Class, 0, len(fractions))
	for c := range fractions {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool {
		fi, fj := fractions[classes[i]], fractions[classes[j]]
		if fi != fj {
			return fi > fj
		}
		return classes[i] < classes[j]
	})
	return classes
}

// buffer approximates a disk with 4*segments vertices, counter-clockwise,
// the first one offset steps past angle zero.
func buffer(center orb.Point, radius float64, segments int, offset float64) orb.Ring {
	n := 4 * segments
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * (float64(i) + offset) / float64(n)
		ring = append(ring, orb.Point{
			center[0] + radius*math.Cos(angle),
			center[1] + radius*math.Sin(angle),
		})
	}
	return append(ring, ring[0])
}

func toPolygonal(g orb.Geometry) (geom.Polygonal, error) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil, fmt.Errorf("empty polygon")
		}
		return toGeomPolygon(v), nil
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, fmt.Errorf("empty multipolygon")
		}
		mp := make(geom.MultiPolygon, 0, len(v))
		for _, p := range v {
			mp = append(mp, toGeomPolygon(p))
		}
		return mp, nil
	case nil:
		return nil, fmt.Errorf("missing geometry")
	default:
		return nil, fmt.Errorf("unsupported geometry %s", g.GeoJSONType())
	}
}

func toGeomPolygon(p orb.Polygon) geom.Polygon {
	out := make(geom.Polygon, 0, len(p))
	for _, r := range p {
		out = append(out, toPath(r))
	}
	return out
}

// toPath drops the closing point: clipping works on implicitly closed paths.
func toPath(r orb.Ring) geom.Path {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		r = r[:len(r)-1]
	}
	path := make(geom.Path, len(r))
	for i, p := range r {
		path[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return path
}
