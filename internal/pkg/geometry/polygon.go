package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	// ErrInvalidPolygon is returned for degenerate or malformed polygons.
	ErrInvalidPolygon = errors.New("invalid polygon")
	// ErrInvalidPoint is returned for points with non-finite coordinates.
	ErrInvalidPoint = errors.New("invalid point")
)

// Point is a coordinate pair in image pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Validate reports ErrInvalidPoint when a coordinate is NaN or infinite.
func (p Point) Validate() error {
	if !finite(p.X) || !finite(p.Y) {
		return fmt.Errorf("%w: non-finite coordinate (%v, %v)", ErrInvalidPoint, p.X, p.Y)
	}
	return nil
}

// Polygon is a simple, implicitly closed polygon. The zero value is invalid;
// build polygons with NewPolygon.
type Polygon struct {
	vertices []Point
	ring     orb.Ring
}

// NewPolygon validates vertices and returns an immutable polygon.
// A trailing vertex equal to the first one is dropped, since WKT rings are
// written explicitly closed. Rings that enclose no net area are rejected;
// self-intersection is not checked otherwise.
func NewPolygon(vertices []Point) (Polygon, error) {
	vs := make([]Point, len(vertices))
	copy(vs, vertices)
	if len(vs) > 1 && vs[0] == vs[len(vs)-1] {
		vs = vs[:len(vs)-1]
	}

	if len(vs) < 3 {
		return Polygon{}, fmt.Errorf("%w: need at least 3 vertices, got %d", ErrInvalidPolygon, len(vs))
	}
	for i, v := range vs {
		if !finite(v.X) || !finite(v.Y) {
			return Polygon{}, fmt.Errorf("%w: vertex %d is not finite", ErrInvalidPolygon, i)
		}
		next := vs[(i+1)%len(vs)]
		if v == next {
			return Polygon{}, fmt.Errorf("%w: zero-length edge at vertex %d", ErrInvalidPolygon, i)
		}
	}
	if degenerate(vs) {
		return Polygon{}, fmt.Errorf("%w: ring encloses no area", ErrInvalidPolygon)
	}

	return Polygon{vertices: vs, ring: toRing(vs)}, nil
}

// MustPolygon is NewPolygon for fixtures; it panics on invalid input.
func MustPolygon(vertices ...Point) Polygon {
	p, err := NewPolygon(vertices)
	if err != nil {
		panic(err)
	}
	return p
}

// Vertices returns a copy of the vertex ring, without the closing vertex.
func (p Polygon) Vertices() []Point {
	out := make([]Point, len(p.vertices))
	copy(out, p.vertices)
	return out
}

// Len returns the number of distinct vertices.
func (p Polygon) Len() int {
	return len(p.vertices)
}

// Valid reports whether p was built by NewPolygon.
func (p Polygon) Valid() bool {
	return len(p.vertices) >= 3
}

// Area returns the unsigned shoelace area.
func (p Polygon) Area() float64 {
	return math.Abs(signedArea(p.vertices))
}

// Bounds returns min and max corners of the bounding box.
func (p Polygon) Bounds() (lo, hi Point) {
	if len(p.vertices) == 0 {
		return Point{}, Point{}
	}
	lo, hi = p.vertices[0], p.vertices[0]
	for _, v := range p.vertices[1:] {
		lo.X = math.Min(lo.X, v.X)
		lo.Y = math.Min(lo.Y, v.Y)
		hi.X = math.Max(hi.X, v.X)
		hi.Y = math.Max(hi.Y, v.Y)
	}
	return lo, hi
}

func signedArea(vs []Point) float64 {
	var a float64
	for i, v := range vs {
		w := vs[(i+1)%len(vs)]
		a += v.X*w.Y - w.X*v.Y
	}
	return a / 2
}

// degenerate reports whether the ring encloses no area relative to its size.
func degenerate(vs []Point) bool {
	pg := Polygon{vertices: vs}
	lo, hi := pg.Bounds()
	span := math.Max(hi.X-lo.X, hi.Y-lo.Y)
	if span == 0 {
		return true
	}
	return math.Abs(signedArea(vs)) <= 1e-12*span*span
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
