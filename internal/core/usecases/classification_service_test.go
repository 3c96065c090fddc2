package usecases_test

import (
	"math"
	"testing"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/usecases"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/geometry"
)

const squareWKT = "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))"

func squareRegion(t *testing.T) geometry.Region {
	t.Helper()
	r, err := geometry.ParseRegion(squareWKT)
	if err != nil {
		t.Fatalf("parse region: %v", err)
	}
	return r
}

func TestClassificationService_Count(t *testing.T) {
	svc, err := usecases.NewClassificationService("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	file := domain.NewDetectionFile()
	file.Add("tumor",
		geometry.Point{X: 1, Y: 1},
		geometry.Point{X: 5, Y: 5},
		geometry.Point{X: 20, Y: 20},
		geometry.Point{X: math.NaN(), Y: 2},
	)
	file.Add("immune", geometry.Point{X: 10, Y: 10}, geometry.Point{X: -1, Y: 3})

	stats, err := svc.Count(squareRegion(t), file, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Image.Total != 6 || stats.Image.Counts["tumor"] != 4 || stats.Image.Counts["immune"] != 2 {
		t.Errorf("unexpected image info %+v", stats.Image)
	}
	if stats.Skipped != 1 {
		t.Errorf("expected 1 skipped point, got %d", stats.Skipped)
	}
	if len(stats.Terms) != 2 || stats.Terms[0].Label != "tumor" || stats.Terms[1].Label != "immune" {
		t.Fatalf("expected terms in label order, got %+v", stats.Terms)
	}
	if stats.Terms[0].Count != 2 || stats.Terms[0].Density != 0.02 {
		t.Errorf("unexpected tumor stats %+v", stats.Terms[0])
	}
	// (10,10) is a vertex and counts as inside
	if stats.Terms[1].Count != 1 {
		t.Errorf("expected 1 immune point inside, got %d", stats.Terms[1].Count)
	}
	if stats.Inside == nil || len(stats.Inside.Points("tumor")) != 2 {
		t.Errorf("expected inside points to be kept, got %+v", stats.Inside)
	}
}

func TestClassificationService_Count_ZeroArea(t *testing.T) {
	svc, _ := usecases.NewClassificationService("ray_casting")
	file := domain.NewDetectionFile()
	file.Add("a", geometry.Point{X: 2, Y: 2})

	stats, err := svc.Count(squareRegion(t), file, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Terms[0].Count != 1 || stats.Terms[0].Density != 0 {
		t.Errorf("expected count 1 density 0, got %+v", stats.Terms[0])
	}
}

func TestClassificationService_Count_EmptyRegion(t *testing.T) {
	svc, _ := usecases.NewClassificationService("")
	if _, err := svc.Count(geometry.Region{}, domain.NewDetectionFile(), 1); err == nil {
		t.Error("expected error for empty region")
	}
}

func TestClassificationService_Classify(t *testing.T) {
	svc, _ := usecases.NewClassificationService("planar")
	square := []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}

	in, err := svc.Classify(geometry.Point{X: 5, Y: 5}, square)
	if err != nil || !in {
		t.Errorf("expected inside, got %v (%v)", in, err)
	}
	if _, err := svc.Classify(geometry.Point{X: 5, Y: 5}, square[:2]); err == nil {
		t.Error("expected error for 2-vertex polygon")
	}
}

func TestClassificationService_WithRule(t *testing.T) {
	svc, _ := usecases.NewClassificationService("winding_angle")

	same, err := svc.WithRule("")
	if err != nil || same != svc {
		t.Error("empty rule should return the same service")
	}
	other, err := svc.WithRule("angle_sum")
	if err != nil || other.Rule() != geometry.RuleAngleSum {
		t.Errorf("expected angle_sum service, got %v (%v)", other, err)
	}
	if _, err := svc.WithRule("bogus"); err == nil {
		t.Error("expected error for unknown rule")
	}
	if _, err := usecases.NewClassificationService("bogus"); err == nil {
		t.Error("expected error for unknown rule")
	}
}
