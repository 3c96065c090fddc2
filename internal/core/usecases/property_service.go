package usecases

import (
	"context"
	"fmt"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/ports"
)

// PropertyService writes annotation properties.
type PropertyService struct {
	properties ports.PropertyRepository
}

// NewPropertyService creates a new PropertyService.
func NewPropertyService(properties ports.PropertyRepository) *PropertyService {
	return &PropertyService{properties: properties}
}

// Upsert sets every property on the annotation: an existing key is updated,
// a new key is created.
func (s *PropertyService) Upsert(ctx context.Context, annotationID int64, props []domain.Property) (created, updated int, err error) {
	current, err := s.properties.ListByAnnotation(ctx, annotationID)
	if err != nil {
		return 0, 0, fmt.Errorf("list properties of %d: %w", annotationID, err)
	}
	byKey := make(map[string]domain.Property, len(current))
	for _, p := range current {
		byKey[p.Key] = p
	}

	for _, p := range props {
		if old, ok := byKey[p.Key]; ok {
			if old.Value == p.Value {
				continue
			}
			old.Value = p.Value
			if err := s.properties.Update(ctx, annotationID, old); err != nil {
				return created, updated, fmt.Errorf("update property %s: %w", p.Key, err)
			}
			updated++
			continue
		}

		np, err := s.properties.Create(ctx, annotationID, p.Key, p.Value)
		if err != nil {
			return created, updated, fmt.Errorf("create property %s: %w", p.Key, err)
		}
		byKey[p.Key] = *np
		created++
	}
	return created, updated, nil
}
