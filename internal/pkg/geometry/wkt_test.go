package geometry_test

import (
	"errors"
	"testing"

	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/geometry"
)

func TestParseRegion_Polygon(t *testing.T) {
	r, err := geometry.ParseRegion("POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Parts) != 1 || r.Parts[0].Shell.Len() != 4 {
		t.Fatalf("expected one 4-vertex shell, got %+v", r.Parts)
	}
	if r.Area() != 100 {
		t.Errorf("expected area 100, got %v", r.Area())
	}
}

func TestParseRegion_Holes(t *testing.T) {
	r, err := geometry.ParseRegion("POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0), (4 4, 6 4, 6 6, 4 6, 4 4))")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Area() != 96 {
		t.Errorf("expected area 96, got %v", r.Area())
	}

	c, _ := geometry.NewClassifier(geometry.RuleWindingAngle)
	cases := []struct {
		pt   geometry.Point
		want bool
	}{
		{geometry.Point{X: 1, Y: 1}, true},
		{geometry.Point{X: 5, Y: 5}, false},
		{geometry.Point{X: 4, Y: 5}, true}, // on the hole edge
		{geometry.Point{X: 11, Y: 5}, false},
	}
	for _, tc := range cases {
		got, err := r.Contains(c, tc.pt)
		if err != nil {
			t.Fatalf("contains %v: %v", tc.pt, err)
		}
		if got != tc.want {
			t.Errorf("point %v: expected %v, got %v", tc.pt, tc.want, got)
		}
	}
}

func TestParseRegion_MultiPolygon(t *testing.T) {
	r, err := geometry.ParseRegion("MULTIPOLYGON (((0 0, 2 0, 2 2, 0 2, 0 0)), ((5 5, 7 5, 7 7, 5 7, 5 5)))")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, _ := geometry.NewClassifier(geometry.RuleRayCasting)
	for _, pt := range []geometry.Point{{X: 1, Y: 1}, {X: 6, Y: 6}} {
		if in, _ := r.Contains(c, pt); !in {
			t.Errorf("expected %v inside", pt)
		}
	}
	if in, _ := r.Contains(c, geometry.Point{X: 3.5, Y: 3.5}); in {
		t.Error("expected gap point outside")
	}
}

func TestParseRegion_Errors(t *testing.T) {
	for _, s := range []string{
		"POLYGON ((0 0, 1 1, 0 0))",
		"POLYGON EMPTY",
		"MULTIPOLYGON EMPTY",
		"LINESTRING (0 0, 1 1)",
		"not wkt at all",
	} {
		if _, err := geometry.ParseRegion(s); !errors.Is(err, geometry.ErrInvalidPolygon) {
			t.Errorf("%q: expected ErrInvalidPolygon, got %v", s, err)
		}
	}

	var empty geometry.Region
	if _, err := empty.Contains(nil, geometry.Point{}); !errors.Is(err, geometry.ErrInvalidPolygon) {
		t.Errorf("expected ErrInvalidPolygon for empty region, got %v", err)
	}
}

func TestMultiPointWKT_ParsesBack(t *testing.T) {
	in := []geometry.Point{{X: 1.5, Y: 2}, {X: 3, Y: 4.25}}
	out, err := geometry.ParsePoints(geometry.MultiPointWKT(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Errorf("expected %v, got %v", in, out)
	}
}

func TestParsePoints_SinglePoint(t *testing.T) {
	pts, err := geometry.ParsePoints("POINT (7 8)")
	if err != nil || len(pts) != 1 || pts[0] != (geometry.Point{X: 7, Y: 8}) {
		t.Errorf("unexpected result %v (%v)", pts, err)
	}
}
