//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/http"
	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/postgres"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/usecases"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/config"
)

// setupTestDB connects to the test database. The migrations must already be
// applied (cmd/migrate up).
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("regionstats-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	return db
}

// setupTestDeps creates dependencies backed by the real run store and a
// recording publisher.
func setupTestDeps(t *testing.T, db *postgres.DB, pub *mockPublisher) *http.Dependencies {
	d := makeDeps()
	d.Analyses = usecases.NewAnalysisService(nil, nil, nil, nil, d.Classification, nil, postgres.NewAnalysisRepo(db), pub)
	d.DB = db
	return d
}

// seedSucceededRun stores a finished run with one annotation's stats.
func seedSucceededRun(t *testing.T, db *postgres.DB) string {
	ctx := context.Background()
	repo := postgres.NewAnalysisRepo(db)

	run := &domain.AnalysisRun{
		ID:        uuid.NewString(),
		ProjectID: 7,
		Status:    domain.RunRunning,
		Request:   domain.AnalysisRequest{ProjectID: 7},
	}
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	inside := domain.NewDetectionFile()
	stats := []domain.AnnotationStats{{
		AnnotationID: 1,
		ImageID:      10,
		Image:        domain.ImageInfo{Counts: map[string]int{"tumor": 3}, Total: 3, AnnotationArea: 100},
		Terms:        []domain.TermStats{{Label: "tumor", Count: 2, Density: 0.02}},
		Inside:       &inside,
	}}
	if err := repo.Complete(ctx, run.ID, stats); err != nil {
		t.Fatalf("complete run: %v", err)
	}
	return run.ID
}

// TestSubmitAnalysis_Integration stores a pending run and reads it back.
func TestSubmitAnalysis_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	pub := &mockPublisher{}
	app := setupApp(setupTestDeps(t, db, pub))

	req := httptest.NewRequest("POST", "/v1/analyses", strings.NewReader(`{"project_id":7,"job_id":12}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	location := resp.Header.Get("Location")

	resp, err = app.Test(httptest.NewRequest("GET", location, nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var run domain.AnalysisRun
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if run.Status != domain.RunPending || run.JobID != 12 {
		t.Errorf("unexpected run %+v", run)
	}
	if run.Request.ProjectID != 7 {
		t.Errorf("expected stored request, got %+v", run.Request)
	}
}

// TestGetAnalysis_Integration reads stored stats and renders them as CSV.
func TestGetAnalysis_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	id := seedSucceededRun(t, db)
	app := setupApp(setupTestDeps(t, db, &mockPublisher{}))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/analyses/"+id, nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var run domain.AnalysisRun
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if run.Status != domain.RunSucceeded || run.Progress != 100 {
		t.Errorf("expected succeeded at 100, got %s at %d", run.Status, run.Progress)
	}
	if len(run.Stats) != 1 || run.Stats[0].Terms[0].Count != 2 {
		t.Fatalf("unexpected stats %+v", run.Stats)
	}
	if run.Stats[0].Inside != nil {
		t.Error("expected inside points to be dropped before storage")
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/analyses/"+id+"/stats.csv", nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

// TestListAnalyses_Integration checks newest-first ordering.
func TestListAnalyses_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	seedSucceededRun(t, db)
	newest := seedSucceededRun(t, db)

	app := setupApp(setupTestDeps(t, db, &mockPublisher{}))
	resp, err := app.Test(httptest.NewRequest("GET", "/v1/analyses?limit=1", nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data []domain.AnalysisRun `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(result.Data) != 1 || result.Data[0].ID != newest {
		t.Errorf("expected newest run %s first, got %+v", newest, result.Data)
	}
}
