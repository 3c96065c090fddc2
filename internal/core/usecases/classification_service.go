package usecases

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/geometry"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/metrics"
)

// ClassificationService counts detections inside regions.
type ClassificationService struct {
	classifier *geometry.Classifier
}

// NewClassificationService creates a ClassificationService using rule.
// An empty rule selects the default.
func NewClassificationService(rule string) (*ClassificationService, error) {
	r, err := geometry.ParseRule(rule)
	if err != nil {
		return nil, err
	}
	c, err := geometry.NewClassifier(r)
	if err != nil {
		return nil, err
	}
	return &ClassificationService{classifier: c}, nil
}

// Rule returns the containment rule in use.
func (s *ClassificationService) Rule() geometry.Rule {
	return s.classifier.Rule()
}

// WithRule returns a service using rule, or s itself when rule is empty or
// already in use.
func (s *ClassificationService) WithRule(rule string) (*ClassificationService, error) {
	if rule == "" || geometry.Rule(rule) == s.Rule() {
		return s, nil
	}
	return NewClassificationService(rule)
}

// Classify reports whether pt lies inside the polygon given by vertices.
func (s *ClassificationService) Classify(pt geometry.Point, vertices []geometry.Point) (bool, error) {
	poly, err := geometry.NewPolygon(vertices)
	if err != nil {
		return false, err
	}
	return s.classifier.Classify(pt, poly)
}

// ClassifyRegion reports whether pt lies inside region.
func (s *ClassificationService) ClassifyRegion(pt geometry.Point, region geometry.Region) (bool, error) {
	return region.Contains(s.classifier, pt)
}

// Count classifies every point of file against region. Invalid points are
// skipped and counted in the result; area is used for densities.
func (s *ClassificationService) Count(region geometry.Region, file domain.DetectionFile, area float64) (domain.AnnotationStats, error) {
	if len(region.Parts) == 0 {
		return domain.AnnotationStats{}, fmt.Errorf("count: %w", geometry.ErrInvalidPolygon)
	}

	rule := string(s.Rule())
	stats := domain.AnnotationStats{
		Image: domain.ImageInfo{
			Counts:         make(map[string]int, len(file.Labels)),
			AnnotationArea: area,
		},
		Terms: make([]domain.TermStats, 0, len(file.Labels)),
	}
	inside := domain.NewDetectionFile()

	for _, label := range file.Labels {
		pts := file.Points(label)
		stats.Image.Counts[label] = len(pts)
		stats.Image.Total += len(pts)

		var matched []geometry.Point
		for _, pt := range pts {
			in, err := region.Contains(s.classifier, pt)
			if err != nil {
				if errors.Is(err, geometry.ErrInvalidPoint) {
					stats.Skipped++
					metrics.ClassificationErrors.WithLabelValues("invalid_point").Inc()
					slog.Warn("skipping invalid detection", "label", label, "x", pt.X, "y", pt.Y)
					continue
				}
				return domain.AnnotationStats{}, fmt.Errorf("count %s: %w", label, err)
			}
			if in {
				matched = append(matched, pt)
				metrics.PointsClassified.WithLabelValues(rule, "inside").Inc()
			} else {
				metrics.PointsClassified.WithLabelValues(rule, "outside").Inc()
			}
		}

		inside.Add(label, matched...)
		stats.Terms = append(stats.Terms, domain.TermStats{
			Label:   label,
			Count:   len(matched),
			Density: domain.Density(len(matched), area),
		})
	}

	stats.Inside = &inside
	return stats, nil
}
