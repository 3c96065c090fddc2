package usecases_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/usecases"
)

type pipelineFixture struct {
	annotations *mockAnnotationRepo
	jobs        *mockJobRepo
	properties  *mockPropertyRepo
	terms       *mockTermRepo
	runs        *mockAnalysisRepo
	publisher   *mockPublisher
	svc         *usecases.AnalysisService
}

func newPipeline(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		annotations: &mockAnnotationRepo{
			listFn: func(ctx context.Context, filter domain.AnnotationFilter) ([]domain.Annotation, error) {
				return []domain.Annotation{
					{ID: 1, ImageID: 55, Area: 100, Location: squareWKT},
					{ID: 2, ImageID: 56, Area: 100, Location: squareWKT},
					{ID: 3, ImageID: 55, Area: 100, Location: "POLYGON ((0 0, 1 1, 0 0))"},
				}, nil
			},
		},
		jobs: &mockJobRepo{
			listByProjectFn: func(ctx context.Context, projectID int64) ([]domain.Job, error) {
				return []domain.Job{{ID: 40}}, nil
			},
			listParametersFn: func(ctx context.Context, jobID int64) ([]domain.JobParameter, error) {
				return []domain.JobParameter{
					{Name: domain.ParamImage, Value: "55"},
					{Name: domain.ParamTerms, Value: "[700,701]"},
				}, nil
			},
			listDataFn: func(ctx context.Context, jobID int64) ([]domain.JobData, error) {
				return []domain.JobData{{ID: 400, JobID: jobID, Filename: "detections.json"}}, nil
			},
			files: map[int64]string{
				400: `{"tumor":[{"x":1,"y":1},{"x":50,"y":50}],"immune":[{"x":2,"y":2}]}`,
			},
		},
		properties: &mockPropertyRepo{existing: map[int64][]domain.Property{}},
		terms:      &mockTermRepo{nextID: 900},
		runs:       newMockAnalysisRepo(),
		publisher:  &mockPublisher{},
	}

	clf, err := usecases.NewClassificationService("")
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	f.svc = usecases.NewAnalysisService(
		usecases.NewAnnotationService(f.annotations),
		usecases.NewResultService(f.jobs, newMockCache(), 60),
		usecases.NewTermService(f.terms),
		usecases.NewPropertyService(f.properties),
		clf,
		f.jobs,
		f.runs,
		f.publisher,
	)
	return f
}

func fullRequest() domain.AnalysisRequest {
	return domain.AnalysisRequest{
		ProjectID:         9,
		JobID:             77,
		OutputFormats:     []string{"json", "csv"},
		UploadProperties:  true,
		UploadAnnotations: true,
		CleanupResults:    true,
	}
}

func TestAnalysisService_Run(t *testing.T) {
	f := newPipeline(t)

	rep, err := f.svc.Run(context.Background(), fullRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rep.Stats) != 1 {
		t.Fatalf("expected stats for 1 annotation, got %d", len(rep.Stats))
	}
	st := rep.Stats[0]
	if st.AnnotationID != 1 || st.JobID != 40 || st.Image.Total != 3 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.Terms[0].Label != "tumor" || st.Terms[0].Count != 1 || st.Terms[0].TermID != 700 {
		t.Errorf("unexpected tumor stats %+v", st.Terms[0])
	}
	if st.Terms[1].TermID != 701 {
		t.Errorf("expected immune zipped with term 701, got %d", st.Terms[1].TermID)
	}
	if len(rep.Skipped) != 2 {
		t.Errorf("expected 2 skipped annotations, got %+v", rep.Skipped)
	}

	// progress reported to the platform job in order
	want := []int{0, 15, 30, 60, 65, 70, 80, 90, 100}
	if len(f.jobs.statuses) != len(want) {
		t.Fatalf("expected %d status updates, got %d", len(want), len(f.jobs.statuses))
	}
	for i, p := range want {
		if f.jobs.statuses[i].progress != p {
			t.Errorf("update %d: expected progress %d, got %d", i, p, f.jobs.statuses[i].progress)
		}
	}
	last := f.jobs.statuses[len(f.jobs.statuses)-1]
	if last.status != domain.JobStatusSuccess || last.comment != "Terminated" {
		t.Errorf("unexpected final status %+v", last)
	}

	// stats.json, stats.csv and one inside points file
	names := map[string]string{}
	for _, u := range f.jobs.uploads {
		names[u.filename] = u.key
	}
	if names["stats.json"] != "stats" || names["stats.csv"] != "stats" || names["inside_points_1.json"] != "detections" {
		t.Errorf("unexpected uploads %v", names)
	}

	if len(f.properties.created) != 8 {
		t.Errorf("expected 8 properties, got %d", len(f.properties.created))
	}
	if len(f.annotations.created) != 2 {
		t.Errorf("expected 2 multipoint annotations, got %d", len(f.annotations.created))
	}

	if len(f.publisher.completed) != 1 || f.publisher.completed[0].Status != domain.RunSucceeded {
		t.Errorf("expected a succeeded completion event, got %+v", f.publisher.completed)
	}
	if f.publisher.completed[0].Stats[0].Inside != nil {
		t.Error("inside points must be stripped from the completion event")
	}
}

func TestAnalysisService_Run_SkipsOptionalUploads(t *testing.T) {
	f := newPipeline(t)
	req := fullRequest()
	req.UploadProperties = false
	req.UploadAnnotations = false

	if _, err := f.svc.Run(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.properties.created) != 0 || len(f.annotations.created) != 0 {
		t.Error("expected no properties or annotations")
	}
	for _, s := range f.jobs.statuses {
		if s.progress == 70 || s.progress == 80 {
			t.Errorf("stage %d should not be reported", s.progress)
		}
	}
}

func TestAnalysisService_Run_FailureMarksJobFailed(t *testing.T) {
	f := newPipeline(t)
	f.properties.createErr = errors.New("platform down")

	req := fullRequest()
	req.OntologyID = 3
	req.CreateTerms = true
	// no term parameter: labels resolve to newly created terms
	f.jobs.listParametersFn = func(ctx context.Context, jobID int64) ([]domain.JobParameter, error) {
		return []domain.JobParameter{{Name: domain.ParamImage, Value: "55"}}, nil
	}

	_, err := f.svc.Run(context.Background(), req)
	if err == nil {
		t.Fatal("expected error")
	}

	last := f.jobs.statuses[len(f.jobs.statuses)-1]
	if last.status != domain.JobStatusFailed {
		t.Errorf("expected failed job status, got %+v", last)
	}
	if len(f.terms.deleted) != 2 {
		t.Errorf("expected the 2 created terms to be rolled back, got %v", f.terms.deleted)
	}
	if len(f.publisher.completed) != 1 || f.publisher.completed[0].Status != domain.RunFailed {
		t.Errorf("expected a failed completion event, got %+v", f.publisher.completed)
	}
}

func TestAnalysisService_Run_InvalidRequest(t *testing.T) {
	f := newPipeline(t)
	for _, req := range []domain.AnalysisRequest{
		{},
		{ProjectID: 1, Rule: "bogus"},
		{ProjectID: 1, OutputFormats: []string{"xml"}},
		{ProjectID: 1, CreateTerms: true},
	} {
		if _, err := f.svc.Run(context.Background(), req); !errors.Is(err, usecases.ErrInvalidRequest) {
			t.Errorf("%+v: expected ErrInvalidRequest, got %v", req, err)
		}
	}
}

func TestAnalysisService_Submit(t *testing.T) {
	f := newPipeline(t)

	run, err := f.svc.Submit(context.Background(), fullRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.ID == "" || run.Status != domain.RunPending {
		t.Errorf("unexpected run %+v", run)
	}
	if len(f.publisher.requests) != 1 || f.publisher.requests[0].RunID != run.ID {
		t.Errorf("expected request published with run id, got %+v", f.publisher.requests)
	}

	stored, err := f.svc.Get(context.Background(), run.ID)
	if err != nil || stored.ID != run.ID {
		t.Errorf("expected stored run, got %+v (%v)", stored, err)
	}
}

func TestAnalysisService_Submit_PublishFailure(t *testing.T) {
	f := newPipeline(t)
	f.publisher.requestErr = errors.New("no broker")

	if _, err := f.svc.Submit(context.Background(), fullRequest()); err == nil {
		t.Fatal("expected error")
	}
	runs, _ := f.runs.List(context.Background(), 10, 0)
	if len(runs) != 1 || runs[0].Status != domain.RunFailed {
		t.Errorf("expected the run to be marked failed, got %+v", runs)
	}
}

func TestAnalysisService_Submit_PublishFailure_LogsFailUpdate(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	f := newPipeline(t)
	f.publisher.requestErr = errors.New("no broker")
	f.runs.failErr = errors.New("store down")

	if _, err := f.svc.Submit(context.Background(), fullRequest()); err == nil {
		t.Fatal("expected error")
	}
	out := buf.String()
	if !strings.Contains(out, "run fail update failed") || !strings.Contains(out, "store down") {
		t.Errorf("expected the fail update error to be logged, got %q", out)
	}
}
