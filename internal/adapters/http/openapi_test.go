package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"

	handler "github.com/cellsia/S-Show-Region-Stats/internal/adapters/http"
)

// findOpenAPIDoc locates api/openapi.yaml by walking up from the test directory.
func findOpenAPIDoc(t *testing.T) string {
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "api", "openapi.yaml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}

	t.Fatalf("could not find api/openapi.yaml")
	return ""
}

// TestOpenAPIDocument validates the OpenAPI document is valid.
func TestOpenAPIDocument(t *testing.T) {
	docPath := findOpenAPIDoc(t)
	data, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}

	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI document validation failed: %v", err)
	}

	expectedPaths := []string{
		"/v1/health",
		"/v1/ready",
		"/v1/classify",
		"/v1/inside",
		"/v1/count",
		"/v1/annotations",
		"/v1/analyses",
		"/v1/analyses/{id}",
		"/v1/analyses/{id}/stats.csv",
		"/graphql",
	}

	for _, path := range expectedPaths {
		if item := doc.Paths.Find(path); item == nil {
			t.Errorf("expected path %s not found in document", path)
		}
	}

	expectedSchemas := []string{
		"Point",
		"Rule",
		"ClassifyRequest",
		"ClassifyResponse",
		"DetectionFile",
		"CountRequest",
		"AnnotationStats",
		"Annotation",
		"AnalysisBody",
		"AnalysisRun",
		"APIError",
		"Pagination",
	}

	for _, schema := range expectedSchemas {
		if doc.Components.Schemas[schema] == nil {
			t.Errorf("expected schema %s not found", schema)
		}
	}

	t.Logf("OpenAPI document valid: %d paths, %d schemas", len(doc.Paths.Map()), len(doc.Components.Schemas))
}

// TestOpenAPIInfo verifies document metadata.
func TestOpenAPIInfo(t *testing.T) {
	docPath := findOpenAPIDoc(t)
	data, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}

	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}

	if doc.Info.Title != "Region Stats API" {
		t.Errorf("expected title 'Region Stats API', got %q", doc.Info.Title)
	}

	if doc.Info.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %q", doc.Info.Version)
	}

	if doc.Info.Description == "" {
		t.Error("expected non-empty description")
	}

	if len(doc.Servers) == 0 {
		t.Error("expected at least one server")
	}

	t.Logf("OpenAPI Info: %s v%s @ %s", doc.Info.Title, doc.Info.Version, doc.Servers[0].URL)
}

// TestOpenAPIDeprecatedInside checks the alias is flagged for older clients.
func TestOpenAPIDeprecatedInside(t *testing.T) {
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromFile(findOpenAPIDoc(t))
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}

	inside := doc.Paths.Find("/v1/inside")
	if inside == nil || inside.Post == nil {
		t.Fatal("expected POST /v1/inside")
	}
	if !inside.Post.Deprecated {
		t.Error("expected /v1/inside to be deprecated")
	}
	if classify := doc.Paths.Find("/v1/classify"); classify == nil || classify.Post.Deprecated {
		t.Error("expected /v1/classify to be current")
	}

	rule := doc.Components.Schemas["Rule"]
	if rule == nil || len(rule.Value.Enum) != 4 {
		t.Errorf("expected 4 containment rules in schema")
	}
}

// TestDocs_ServesDocument checks /docs serves the validated document as JSON.
func TestDocs_ServesDocument(t *testing.T) {
	orig := handler.OpenAPIPath
	handler.OpenAPIPath = findOpenAPIDoc(t)
	defer func() { handler.OpenAPIPath = orig }()

	app := setupApp(makeDeps())
	resp, err := app.Test(httptest.NewRequest("GET", "/docs/openapi.json", nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var doc struct {
		OpenAPI string `json:"openapi"`
		Info    struct {
			Title string `json:"title"`
		} `json:"info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.OpenAPI != "3.0.3" || doc.Info.Title != "Region Stats API" {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestDocs_MissingDocument(t *testing.T) {
	orig := handler.OpenAPIPath
	handler.OpenAPIPath = filepath.Join(t.TempDir(), "missing.yaml")
	defer func() { handler.OpenAPIPath = orig }()

	app := setupApp(makeDeps())
	resp, err := app.Test(httptest.NewRequest("GET", "/docs/openapi.yaml", nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
