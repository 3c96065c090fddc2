package geometry_test

import (
	"errors"
	"math"
	"testing"

	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/geometry"
)

func square() geometry.Polygon {
	return geometry.MustPolygon(
		geometry.Point{X: 0, Y: 0},
		geometry.Point{X: 10, Y: 0},
		geometry.Point{X: 10, Y: 10},
		geometry.Point{X: 0, Y: 10},
	)
}

func hexagon(radius float64) geometry.Polygon {
	vs := make([]geometry.Point, 6)
	for i := range vs {
		a := float64(i) * math.Pi / 3
		vs[i] = geometry.Point{X: radius * math.Cos(a), Y: radius * math.Sin(a)}
	}
	return geometry.MustPolygon(vs...)
}

// concave "C" shape opening to the right; (6,5) sits in the notch.
func notched() geometry.Polygon {
	return geometry.MustPolygon(
		geometry.Point{X: 0, Y: 0},
		geometry.Point{X: 10, Y: 0},
		geometry.Point{X: 10, Y: 3},
		geometry.Point{X: 3, Y: 3},
		geometry.Point{X: 3, Y: 7},
		geometry.Point{X: 10, Y: 7},
		geometry.Point{X: 10, Y: 10},
		geometry.Point{X: 0, Y: 10},
	)
}

func classifiers(t *testing.T) []*geometry.Classifier {
	t.Helper()
	var out []*geometry.Classifier
	for _, r := range geometry.Rules() {
		c, err := geometry.NewClassifier(r)
		if err != nil {
			t.Fatalf("new classifier %s: %v", r, err)
		}
		out = append(out, c)
	}
	return out
}

func mustClassify(t *testing.T, c *geometry.Classifier, pt geometry.Point, poly geometry.Polygon) bool {
	t.Helper()
	in, err := c.Classify(pt, poly)
	if err != nil {
		t.Fatalf("[%s] classify %v: %v", c.Rule(), pt, err)
	}
	return in
}

func TestClassify_SquareCenter(t *testing.T) {
	for _, c := range classifiers(t) {
		if !mustClassify(t, c, geometry.Point{X: 5, Y: 5}, square()) {
			t.Errorf("[%s] expected (5,5) inside", c.Rule())
		}
		if mustClassify(t, c, geometry.Point{X: 15, Y: 15}, square()) {
			t.Errorf("[%s] expected (15,15) outside", c.Rule())
		}
	}
}

func TestClassify_CyclicRelisting(t *testing.T) {
	base := hexagon(10).Vertices()
	points := []geometry.Point{{X: 0, Y: 0}, {X: 3, Y: -4}, {X: 9.5, Y: 0.2}, {X: 12, Y: 1}, {X: -20, Y: 5}}

	for _, c := range classifiers(t) {
		want := make([]bool, len(points))
		for i, p := range points {
			want[i] = mustClassify(t, c, p, hexagon(10))
		}
		for k := 1; k < len(base); k++ {
			rotated := append(append([]geometry.Point{}, base[k:]...), base[:k]...)
			poly := geometry.MustPolygon(rotated...)
			for i, p := range points {
				if got := mustClassify(t, c, p, poly); got != want[i] {
					t.Errorf("[%s] offset %d point %v: expected %v, got %v", c.Rule(), k, p, want[i], got)
				}
			}
		}
	}
}

func TestClassify_HexagonRings(t *testing.T) {
	hex := hexagon(10)
	inradius := 10 * math.Cos(math.Pi/6)

	for _, c := range classifiers(t) {
		for deg := 0; deg < 360; deg += 7 {
			a := float64(deg) * math.Pi / 180
			for _, d := range []float64{0, 1, 4.5, 8, inradius - 0.05} {
				pt := geometry.Point{X: d * math.Cos(a), Y: d * math.Sin(a)}
				if !mustClassify(t, c, pt, hex) {
					t.Errorf("[%s] expected inside at angle %d distance %.2f", c.Rule(), deg, d)
				}
			}
			for _, d := range []float64{11.01, 15, 100} {
				pt := geometry.Point{X: d * math.Cos(a), Y: d * math.Sin(a)}
				if mustClassify(t, c, pt, hex) {
					t.Errorf("[%s] expected outside at angle %d distance %.2f", c.Rule(), deg, d)
				}
			}
		}
	}
}

func TestClassify_VertexIsInside(t *testing.T) {
	for _, c := range classifiers(t) {
		for _, v := range square().Vertices() {
			if !mustClassify(t, c, v, square()) {
				t.Errorf("[%s] expected vertex %v inside", c.Rule(), v)
			}
		}
		if !mustClassify(t, c, geometry.Point{X: 10, Y: 4}, square()) {
			t.Errorf("[%s] expected edge point inside", c.Rule())
		}
	}
}

func TestClassify_MonotonicAcrossEdge(t *testing.T) {
	for _, c := range classifiers(t) {
		transitions := 0
		prev := true
		for step := 0; step <= 100; step++ {
			// walk from the centre out through the top edge at y=10
			y := 5 + float64(step)*0.1
			in := mustClassify(t, c, geometry.Point{X: 4, Y: y}, square())
			if in != prev {
				transitions++
				if in {
					t.Errorf("[%s] re-entered polygon at y=%.2f", c.Rule(), y)
				}
			}
			prev = in
		}
		if transitions != 1 {
			t.Errorf("[%s] expected exactly one transition, got %d", c.Rule(), transitions)
		}
	}
}

func TestClassify_ConcaveNotch(t *testing.T) {
	for _, r := range []geometry.Rule{geometry.RuleWindingAngle, geometry.RuleRayCasting, geometry.RulePlanar} {
		c, _ := geometry.NewClassifier(r)
		if mustClassify(t, c, geometry.Point{X: 6, Y: 5}, notched()) {
			t.Errorf("[%s] expected notch point outside", r)
		}
		if !mustClassify(t, c, geometry.Point{X: 1.5, Y: 5}, notched()) {
			t.Errorf("[%s] expected spine point inside", r)
		}
		if !mustClassify(t, c, geometry.Point{X: 8, Y: 1.5}, notched()) {
			t.Errorf("[%s] expected arm point inside", r)
		}
	}
}

func TestClassify_InvalidInput(t *testing.T) {
	c, _ := geometry.NewClassifier(geometry.RuleWindingAngle)

	if _, err := c.Classify(geometry.Point{X: 1, Y: 1}, geometry.Polygon{}); !errors.Is(err, geometry.ErrInvalidPolygon) {
		t.Errorf("expected ErrInvalidPolygon for zero polygon, got %v", err)
	}

	for _, pt := range []geometry.Point{{X: math.NaN(), Y: 1}, {X: 1, Y: math.Inf(1)}} {
		if _, err := c.Classify(pt, square()); !errors.Is(err, geometry.ErrInvalidPoint) {
			t.Errorf("expected ErrInvalidPoint for %v, got %v", pt, err)
		}
	}
}

func TestClassify_PackageDefault(t *testing.T) {
	in, err := geometry.Classify(geometry.Point{X: 2, Y: 2}, square())
	if err != nil || !in {
		t.Fatalf("expected inside, got %v (%v)", in, err)
	}
}

func TestParseRule(t *testing.T) {
	r, err := geometry.ParseRule("")
	if err != nil || r != geometry.RuleWindingAngle {
		t.Errorf("expected default winding_angle, got %q (%v)", r, err)
	}
	if _, err := geometry.ParseRule("crossing_number"); err == nil {
		t.Error("expected error for unknown rule")
	}
	if _, err := geometry.NewClassifier("nope"); err == nil {
		t.Error("expected error from NewClassifier for unknown rule")
	}
}

func BenchmarkClassify_WindingAngle(b *testing.B) {
	hex := hexagon(10)
	c, _ := geometry.NewClassifier(geometry.RuleWindingAngle)
	pt := geometry.Point{X: 3, Y: 2}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = c.Classify(pt, hex)
	}
}
