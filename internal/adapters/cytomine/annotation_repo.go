package cytomine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
)

// AnnotationRepo implements ports.AnnotationRepository over the REST API.
type AnnotationRepo struct {
	c *Client
}

// NewAnnotationRepo creates a new AnnotationRepo.
func NewAnnotationRepo(c *Client) *AnnotationRepo {
	return &AnnotationRepo{c: c}
}

// List returns the annotations of a project with their WKT location.
func (r *AnnotationRepo) List(ctx context.Context, f domain.AnnotationFilter) ([]domain.Annotation, error) {
	q := url.Values{}
	q.Set("project", strconv.FormatInt(f.ProjectID, 10))
	q.Set("showWKT", "true")
	q.Set("showTerm", "true")
	q.Set("showMeta", "true")
	q.Set("showGIS", "true")
	if f.SoftwareID > 0 {
		q.Set("software", strconv.FormatInt(f.SoftwareID, 10))
	}
	if len(f.TermIDs) > 0 {
		q.Set("terms", ids(f.TermIDs))
	}
	if len(f.ImageIDs) > 0 {
		q.Set("images", ids(f.ImageIDs))
	}

	var out collection[domain.Annotation]
	if err := r.c.getJSON(ctx, "annotation.list", "annotation.json", q, &out); err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	return out.Collection, nil
}

func (r *AnnotationRepo) GetByID(ctx context.Context, id int64) (*domain.Annotation, error) {
	var a domain.Annotation
	if err := r.c.getJSON(ctx, "annotation.get", fmt.Sprintf("annotation/%d.json", id), nil, &a); err != nil {
		return nil, fmt.Errorf("get annotation %d: %w", id, err)
	}
	return &a, nil
}

func (r *AnnotationRepo) Create(ctx context.Context, ann domain.NewAnnotation) (*domain.Annotation, error) {
	var out struct {
		Annotation domain.Annotation `json:"annotation"`
	}
	if err := r.c.sendJSON(ctx, "annotation.create", http.MethodPost, "annotation.json", ann, &out); err != nil {
		return nil, fmt.Errorf("create annotation: %w", err)
	}
	return &out.Annotation, nil
}

func (r *AnnotationRepo) Delete(ctx context.Context, id int64) error {
	if err := r.c.sendJSON(ctx, "annotation.delete", http.MethodDelete, fmt.Sprintf("annotation/%d.json", id), nil, nil); err != nil {
		return fmt.Errorf("delete annotation %d: %w", id, err)
	}
	return nil
}
