package cytomine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
)

// TermRepo implements ports.TermRepository over the REST API.
type TermRepo struct {
	c *Client
}

// NewTermRepo creates a new TermRepo.
func NewTermRepo(c *Client) *TermRepo {
	return &TermRepo{c: c}
}

func (r *TermRepo) ListByOntology(ctx context.Context, ontologyID int64) ([]domain.Term, error) {
	var out collection[domain.Term]
	if err := r.c.getJSON(ctx, "term.list", fmt.Sprintf("ontology/%d/term.json", ontologyID), nil, &out); err != nil {
		return nil, fmt.Errorf("list terms of ontology %d: %w", ontologyID, err)
	}
	return out.Collection, nil
}

func (r *TermRepo) Create(ctx context.Context, t domain.Term) (*domain.Term, error) {
	var out struct {
		Term domain.Term `json:"term"`
	}
	if err := r.c.sendJSON(ctx, "term.create", http.MethodPost, "term.json", t, &out); err != nil {
		return nil, fmt.Errorf("create term %s: %w", t.Name, err)
	}
	return &out.Term, nil
}

func (r *TermRepo) Delete(ctx context.Context, id int64) error {
	if err := r.c.sendJSON(ctx, "term.delete", http.MethodDelete, fmt.Sprintf("term/%d.json", id), nil, nil); err != nil {
		return fmt.Errorf("delete term %d: %w", id, err)
	}
	return nil
}
