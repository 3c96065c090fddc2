package cytomine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
)

const annotationClass = "be.cytomine.ontology.UserAnnotation"

// PropertyRepo implements ports.PropertyRepository over the REST API.
type PropertyRepo struct {
	c *Client
}

// NewPropertyRepo creates a new PropertyRepo.
func NewPropertyRepo(c *Client) *PropertyRepo {
	return &PropertyRepo{c: c}
}

type propertyBody struct {
	ID              int64  `json:"id,omitempty"`
	DomainIdent     int64  `json:"domainIdent"`
	DomainClassName string `json:"domainClassName"`
	Key             string `json:"key"`
	Value           string `json:"value"`
}

func (r *PropertyRepo) ListByAnnotation(ctx context.Context, annotationID int64) ([]domain.Property, error) {
	var out collection[domain.Property]
	if err := r.c.getJSON(ctx, "property.list", fmt.Sprintf("annotation/%d/property.json", annotationID), nil, &out); err != nil {
		return nil, fmt.Errorf("list properties of annotation %d: %w", annotationID, err)
	}
	return out.Collection, nil
}

func (r *PropertyRepo) Create(ctx context.Context, annotationID int64, key, value string) (*domain.Property, error) {
	in := propertyBody{DomainIdent: annotationID, DomainClassName: annotationClass, Key: key, Value: value}
	var out struct {
		Property domain.Property `json:"property"`
	}
	path := fmt.Sprintf("annotation/%d/property.json", annotationID)
	if err := r.c.sendJSON(ctx, "property.create", http.MethodPost, path, in, &out); err != nil {
		return nil, fmt.Errorf("create property %s: %w", key, err)
	}
	return &out.Property, nil
}

func (r *PropertyRepo) Update(ctx context.Context, annotationID int64, p domain.Property) error {
	in := propertyBody{ID: p.ID, DomainIdent: annotationID, DomainClassName: annotationClass, Key: p.Key, Value: p.Value}
	path := fmt.Sprintf("annotation/%d/property/%d.json", annotationID, p.ID)
	if err := r.c.sendJSON(ctx, "property.update", http.MethodPut, path, in, nil); err != nil {
		return fmt.Errorf("update property %s: %w", p.Key, err)
	}
	return nil
}
