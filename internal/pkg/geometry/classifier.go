package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Rule selects the containment test used by a Classifier.
type Rule string

const (
	// RuleWindingAngle sums signed turning angles; inside iff the winding number is non-zero.
	RuleWindingAngle Rule = "winding_angle"
	// RuleAngleSum sums unsigned arccos angles and compares the rounded sum to 2π.
	// Only reliable on convex polygons; kept to reproduce historical counts.
	RuleAngleSum Rule = "angle_sum"
	// RuleRayCasting is the even-odd crossing test.
	RuleRayCasting Rule = "ray_casting"
	// RulePlanar delegates to orb's planar ring containment.
	RulePlanar Rule = "planar"
)

// BoundaryTolerance is the distance, in pixels, under which a point counts as
// lying on an edge. Points on the boundary are inside.
const BoundaryTolerance = 1e-9

// fullTurn is 2π rounded to 4 decimals, the closing value of the angle-sum test.
const fullTurn = 6.2832

// Rules lists every supported rule.
func Rules() []Rule {
	return []Rule{RuleWindingAngle, RuleAngleSum, RuleRayCasting, RulePlanar}
}

// ParseRule maps a config or request value to a Rule. Empty selects RuleWindingAngle.
func ParseRule(s string) (Rule, error) {
	if s == "" {
		return RuleWindingAngle, nil
	}
	for _, r := range Rules() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown classifier rule %q", s)
}

// Classifier decides point-in-polygon containment. It holds no mutable state
// and is safe for concurrent use.
type Classifier struct {
	rule Rule
}

// NewClassifier returns a Classifier for rule.
func NewClassifier(rule Rule) (*Classifier, error) {
	if _, err := ParseRule(string(rule)); err != nil {
		return nil, err
	}
	if rule == "" {
		rule = RuleWindingAngle
	}
	return &Classifier{rule: rule}, nil
}

// Rule returns the configured rule.
func (c *Classifier) Rule() Rule {
	return c.rule
}

// Classify reports whether pt lies inside poly, boundary included.
func (c *Classifier) Classify(pt Point, poly Polygon) (bool, error) {
	if err := pt.Validate(); err != nil {
		return false, err
	}
	if !poly.Valid() {
		return false, fmt.Errorf("%w: polygon has %d vertices", ErrInvalidPolygon, poly.Len())
	}
	if onBoundary(pt, poly.vertices) {
		return true, nil
	}

	switch c.rule {
	case RuleAngleSum:
		return angleSum(pt, poly.vertices), nil
	case RuleRayCasting:
		return rayCast(pt, poly.vertices), nil
	case RulePlanar:
		return planar.RingContains(poly.ring, orb.Point{pt.X, pt.Y}), nil
	default:
		return windingAngle(pt, poly.vertices), nil
	}
}

// Classify uses the default winding-angle rule.
func Classify(pt Point, poly Polygon) (bool, error) {
	return defaultClassifier.Classify(pt, poly)
}

var defaultClassifier = &Classifier{rule: RuleWindingAngle}

// windingAngle accumulates the signed angle between consecutive
// vertex-to-point vectors. The sum is ±2π inside and 0 outside.
func windingAngle(pt Point, vs []Point) bool {
	var sum float64
	n := len(vs)
	for i := 0; i < n; i++ {
		a, b := vs[i], vs[(i+1)%n]
		ux, uy := a.X-pt.X, a.Y-pt.Y
		wx, wy := b.X-pt.X, b.Y-pt.Y
		sum += math.Atan2(ux*wy-uy*wx, ux*wx+uy*wy)
	}
	return math.Abs(sum) > math.Pi
}

// angleSum is the unsigned variant: arccos of normalised dot products,
// rounded to 4 decimals and compared against a full turn.
func angleSum(pt Point, vs []Point) bool {
	var sum float64
	n := len(vs)
	for i := 0; i < n; i++ {
		a, b := vs[i], vs[(i+1)%n]
		ux, uy := a.X-pt.X, a.Y-pt.Y
		wx, wy := b.X-pt.X, b.Y-pt.Y
		cos := (ux*wx + uy*wy) / (math.Hypot(ux, uy) * math.Hypot(wx, wy))
		sum += math.Acos(math.Max(-1, math.Min(1, cos)))
	}
	return math.Round(sum*1e4)/1e4 == fullTurn
}

// rayCast is the even-odd rule: count edges crossed by a ray towards +X.
func rayCast(pt Point, vs []Point) bool {
	inside := false
	n := len(vs)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := vs[i].X, vs[i].Y
		xj, yj := vs[j].X, vs[j].Y
		if (yi > pt.Y) != (yj > pt.Y) && pt.X < (xj-xi)*(pt.Y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// onBoundary reports whether pt is within BoundaryTolerance of any edge.
func onBoundary(pt Point, vs []Point) bool {
	n := len(vs)
	for i := 0; i < n; i++ {
		if segmentDistance(pt, vs[i], vs[(i+1)%n]) <= BoundaryTolerance {
			return true
		}
	}
	return false
}

func segmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

func toRing(vs []Point) orb.Ring {
	ring := make(orb.Ring, 0, len(vs)+1)
	for _, v := range vs {
		ring = append(ring, orb.Point{v.X, v.Y})
	}
	return append(ring, ring[0])
}
