package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/ports"
)

// defaultTermColor is used for terms created from detection labels.
const defaultTermColor = "#FF0000"

// TermService maps detection labels to ontology terms.
type TermService struct {
	terms ports.TermRepository
}

// NewTermService creates a new TermService.
func NewTermService(terms ports.TermRepository) *TermService {
	return &TermService{terms: terms}
}

// Resolve returns one term id per label, matching term names case-insensitively.
// Missing labels are created when create is set and left as 0 otherwise.
// created lists the ids of terms this call added.
func (s *TermService) Resolve(ctx context.Context, ontologyID int64, labels []string, create bool) (ids, created []int64, err error) {
	if ontologyID <= 0 {
		return nil, nil, fmt.Errorf("ontology id is required to resolve terms")
	}

	existing, err := s.terms.ListByOntology(ctx, ontologyID)
	if err != nil {
		return nil, nil, fmt.Errorf("list terms: %w", err)
	}
	byName := make(map[string]int64, len(existing))
	for _, t := range existing {
		byName[strings.ToLower(t.Name)] = t.ID
	}

	ids = make([]int64, len(labels))
	for i, label := range labels {
		if id, ok := byName[strings.ToLower(label)]; ok {
			ids[i] = id
			continue
		}
		if !create {
			continue
		}

		t, err := s.terms.Create(ctx, domain.Term{Name: label, Color: defaultTermColor, OntologyID: ontologyID})
		if err != nil {
			return nil, created, fmt.Errorf("create term %s: %w", label, err)
		}
		slog.Info("term created", "id", t.ID, "name", label, "ontology", ontologyID)
		byName[strings.ToLower(label)] = t.ID
		ids[i] = t.ID
		created = append(created, t.ID)
	}
	return ids, created, nil
}

// Delete removes terms, continuing past failures.
func (s *TermService) Delete(ctx context.Context, ids []int64) error {
	var firstErr error
	for _, id := range ids {
		if err := s.terms.Delete(ctx, id); err != nil {
			slog.Warn("delete term failed", "id", id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("delete term %d: %w", id, err)
			}
		}
	}
	return firstErr
}
