package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/ports"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/geometry"
)

// AnnotationService handles annotation lookups and multipoint uploads.
type AnnotationService struct {
	annotations ports.AnnotationRepository
}

// NewAnnotationService creates a new AnnotationService.
func NewAnnotationService(annotations ports.AnnotationRepository) *AnnotationService {
	return &AnnotationService{annotations: annotations}
}

// List returns the annotations selected by filter. When AnnotationID is set
// only that annotation is kept.
func (s *AnnotationService) List(ctx context.Context, filter domain.AnnotationFilter) ([]domain.Annotation, error) {
	if filter.ProjectID <= 0 {
		return nil, fmt.Errorf("project id is required")
	}

	anns, err := s.annotations.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	if filter.AnnotationID == 0 {
		return anns, nil
	}

	for _, a := range anns {
		if a.ID == filter.AnnotationID {
			return []domain.Annotation{a}, nil
		}
	}
	return nil, nil
}

// GetByID returns a single annotation.
func (s *AnnotationService) GetByID(ctx context.Context, id int64) (*domain.Annotation, error) {
	return s.annotations.GetByID(ctx, id)
}

// CreateMultipoints creates one MULTIPOINT annotation per label that has at
// least one inside point, tagged with the label's term when known. It returns
// the ids of the annotations created before any failure.
func (s *AnnotationService) CreateMultipoints(ctx context.Context, stats domain.AnnotationStats) ([]int64, error) {
	if stats.Inside == nil {
		return nil, nil
	}

	var created []int64
	for i, label := range stats.Inside.Labels {
		pts := stats.Inside.Points(label)
		if len(pts) == 0 {
			continue
		}

		ann := domain.NewAnnotation{
			ImageID:  stats.ImageID,
			Location: geometry.MultiPointWKT(pts),
		}
		if i < len(stats.Terms) && stats.Terms[i].TermID != 0 {
			ann.TermIDs = []int64{stats.Terms[i].TermID}
		}

		out, err := s.annotations.Create(ctx, ann)
		if err != nil {
			return created, fmt.Errorf("create multipoint %s for annotation %d: %w", label, stats.AnnotationID, err)
		}
		created = append(created, out.ID)
		slog.Debug("multipoint annotation created", "id", out.ID, "label", label, "points", len(pts))
	}
	return created, nil
}

// Delete removes annotations, continuing past failures.
func (s *AnnotationService) Delete(ctx context.Context, ids []int64) error {
	var firstErr error
	for _, id := range ids {
		if err := s.annotations.Delete(ctx, id); err != nil {
			slog.Warn("delete annotation failed", "id", id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("delete annotation %d: %w", id, err)
			}
		}
	}
	return firstErr
}
