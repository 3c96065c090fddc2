package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Part is one polygon of a region: an outer shell and optional holes.
type Part struct {
	Shell Polygon
	Holes []Polygon
}

// Region is the parsed location of an annotation. A point is inside the
// region when it is inside some shell and not strictly inside one of that
// shell's holes.
type Region struct {
	Parts []Part
}

// Area returns shell area minus hole area, summed over parts.
func (r Region) Area() float64 {
	var a float64
	for _, p := range r.Parts {
		a += p.Shell.Area()
		for _, h := range p.Holes {
			a -= h.Area()
		}
	}
	return a
}

// Contains classifies pt against every part with c.
func (r Region) Contains(c *Classifier, pt Point) (bool, error) {
	if len(r.Parts) == 0 {
		return false, fmt.Errorf("%w: empty region", ErrInvalidPolygon)
	}
	for _, p := range r.Parts {
		in, err := c.Classify(pt, p.Shell)
		if err != nil {
			return false, err
		}
		if !in {
			continue
		}
		if !insideHole(c, pt, p.Holes) {
			return true, nil
		}
	}
	return false, nil
}

// insideHole reports whether pt is strictly inside one of holes. A point on a
// hole's edge is on the region boundary and therefore inside the region.
func insideHole(c *Classifier, pt Point, holes []Polygon) bool {
	for _, h := range holes {
		if onBoundary(pt, h.vertices) {
			continue
		}
		if in, err := c.Classify(pt, h); err == nil && in {
			return true
		}
	}
	return false
}

// ParseRegion parses POLYGON and MULTIPOLYGON WKT. MULTIPOINT is accepted as
// an ordered vertex list, which is how some annotation exports store regions.
func ParseRegion(s string) (Region, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return Region{}, fmt.Errorf("%w: parse wkt: %v", ErrInvalidPolygon, err)
	}

	switch geom := g.(type) {
	case orb.Polygon:
		part, err := partFromOrb(geom)
		if err != nil {
			return Region{}, err
		}
		return Region{Parts: []Part{part}}, nil
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return Region{}, fmt.Errorf("%w: empty multipolygon", ErrInvalidPolygon)
		}
		r := Region{Parts: make([]Part, 0, len(geom))}
		for i, poly := range geom {
			part, err := partFromOrb(poly)
			if err != nil {
				return Region{}, fmt.Errorf("polygon %d: %w", i, err)
			}
			r.Parts = append(r.Parts, part)
		}
		return r, nil
	case orb.MultiPoint:
		shell, err := NewPolygon(fromOrb(geom))
		if err != nil {
			return Region{}, err
		}
		return Region{Parts: []Part{{Shell: shell}}}, nil
	default:
		return Region{}, fmt.Errorf("%w: unsupported geometry %s", ErrInvalidPolygon, g.GeoJSONType())
	}
}

// ParsePoints parses POINT or MULTIPOINT WKT.
func ParsePoints(s string) ([]Point, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: parse wkt: %v", ErrInvalidPoint, err)
	}
	switch geom := g.(type) {
	case orb.Point:
		return []Point{{X: geom[0], Y: geom[1]}}, nil
	case orb.MultiPoint:
		return fromOrb(geom), nil
	default:
		return nil, fmt.Errorf("%w: unsupported geometry %s", ErrInvalidPoint, g.GeoJSONType())
	}
}

// MultiPointWKT renders points as a MULTIPOINT.
func MultiPointWKT(points []Point) string {
	mp := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		mp = append(mp, orb.Point{p.X, p.Y})
	}
	return wkt.MarshalString(mp)
}

// PolygonWKT renders a polygon as a closed POLYGON ring.
func PolygonWKT(p Polygon) string {
	return wkt.MarshalString(orb.Polygon{p.ring})
}

func partFromOrb(poly orb.Polygon) (Part, error) {
	if len(poly) == 0 {
		return Part{}, fmt.Errorf("%w: polygon has no rings", ErrInvalidPolygon)
	}
	shell, err := NewPolygon(fromOrb(poly[0]))
	if err != nil {
		return Part{}, err
	}
	part := Part{Shell: shell}
	for i, ring := range poly[1:] {
		hole, err := NewPolygon(fromOrb(ring))
		if err != nil {
			return Part{}, fmt.Errorf("hole %d: %w", i, err)
		}
		part.Holes = append(part.Holes, hole)
	}
	return part, nil
}

func fromOrb[S ~[]orb.Point](pts S) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: p[0], Y: p[1]}
	}
	return out
}
