package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/ports"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/geometry"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/metrics"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/report"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/telemetry"
)

// Stage is a pipeline step and the progress reported when it starts.
type Stage struct {
	Name    string
	Percent int
	Comment string
}

var (
	StageAnnotations = Stage{"collect_annotations", 0, "Collecting annotations"}
	StageResults     = Stage{"collect_results", 15, "Collecting detection results"}
	StageStats       = Stage{"compute_stats", 30, "Calculating stats"}
	StageStatsFile   = Stage{"write_stats", 60, "Generating stats file"}
	StageInsideFiles = Stage{"write_inside_points", 65, "Generating inside points files"}
	StageProperties  = Stage{"update_properties", 70, "Updating annotation properties"}
	StageMultipoints = Stage{"upload_annotations", 80, "Generating multipoint annotations"}
	StageCleanup     = Stage{"cleanup", 90, "Cleaning up detection results"}
	StageDone        = Stage{"done", 100, "Terminated"}
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid analysis request")

// AnalysisService runs the region stats pipeline: collect annotations and
// detection results, count detections inside each annotation, then write the
// outcome back to the platform.
type AnalysisService struct {
	annotations    *AnnotationService
	results        *ResultService
	terms          *TermService
	properties     *PropertyService
	classification *ClassificationService
	jobs           ports.JobRepository
	runs           ports.AnalysisRepository
	publisher      ports.EventPublisher
}

// NewAnalysisService creates a new AnalysisService. runs and publisher may be
// nil, in which case runs are neither stored nor announced.
func NewAnalysisService(
	annotations *AnnotationService,
	results *ResultService,
	terms *TermService,
	properties *PropertyService,
	classification *ClassificationService,
	jobs ports.JobRepository,
	runs ports.AnalysisRepository,
	publisher ports.EventPublisher,
) *AnalysisService {
	return &AnalysisService{
		annotations:    annotations,
		results:        results,
		terms:          terms,
		properties:     properties,
		classification: classification,
		jobs:           jobs,
		runs:           runs,
		publisher:      publisher,
	}
}

// ValidateRequest checks a request before it is run or queued.
func ValidateRequest(req domain.AnalysisRequest) error {
	if req.ProjectID <= 0 {
		return fmt.Errorf("%w: project id is required", ErrInvalidRequest)
	}
	if _, err := geometry.ParseRule(req.Rule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	for _, f := range req.OutputFormats {
		if f != report.FormatJSON && f != report.FormatCSV {
			return fmt.Errorf("%w: unknown output format %q", ErrInvalidRequest, f)
		}
	}
	if req.CreateTerms && req.OntologyID <= 0 {
		return fmt.Errorf("%w: ontology id is required to create terms", ErrInvalidRequest)
	}
	return nil
}

// Submit stores a pending run and queues it for a worker.
func (s *AnalysisService) Submit(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisRun, error) {
	if s.runs == nil || s.publisher == nil {
		return nil, fmt.Errorf("analysis queue is not configured")
	}
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	req.RunID = uuid.NewString()
	now := time.Now().UTC()
	run := &domain.AnalysisRun{
		ID:        req.RunID,
		JobID:     req.JobID,
		ProjectID: req.ProjectID,
		Status:    domain.RunPending,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	if err := s.publisher.PublishAnalysisRequest(ctx, &req); err != nil {
		if ferr := s.runs.Fail(ctx, run.ID, "queue: "+err.Error()); ferr != nil {
			slog.Warn("run fail update failed", "run", run.ID, "error", ferr)
		}
		return nil, fmt.Errorf("publish analysis request: %w", err)
	}

	slog.Info("analysis submitted", "run", run.ID, "project", req.ProjectID, "job", req.JobID)
	return run, nil
}

// Get returns a stored run.
func (s *AnalysisService) Get(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	if s.runs == nil {
		return nil, ports.ErrNotFound
	}
	return s.runs.GetByID(ctx, id)
}

// List returns stored runs, newest first.
func (s *AnalysisService) List(ctx context.Context, limit, offset int) ([]domain.AnalysisRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.runs.List(ctx, limit, offset)
}

// Begin assigns a run id when missing and records the run as started.
func (s *AnalysisService) Begin(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisRequest, error) {
	if err := ValidateRequest(req); err != nil {
		return req, err
	}
	if req.RunID != "" {
		return req, nil
	}

	req.RunID = uuid.NewString()
	if s.runs == nil {
		return req, nil
	}
	now := time.Now().UTC()
	run := &domain.AnalysisRun{
		ID:        req.RunID,
		JobID:     req.JobID,
		ProjectID: req.ProjectID,
		Status:    domain.RunRunning,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return req, fmt.Errorf("create run: %w", err)
	}
	return req, nil
}

// Progress reports a stage to the platform job, the run store and
// subscribers. Reporting failures are logged and never abort the run.
func (s *AnalysisService) Progress(ctx context.Context, req domain.AnalysisRequest, st Stage) {
	s.notify(ctx, req, domain.RunRunning, domain.JobStatusRunning, st.Percent, st.Comment)
}

func (s *AnalysisService) notify(ctx context.Context, req domain.AnalysisRequest, status domain.RunStatus, jobStatus, percent int, comment string) {
	slog.Info("analysis progress", "run", req.RunID, "job", req.JobID, "status", status, "progress", percent, "comment", comment)

	if req.JobID != 0 && s.jobs != nil {
		if err := s.jobs.UpdateStatus(ctx, req.JobID, jobStatus, percent, comment); err != nil {
			slog.Warn("job status update failed", "job", req.JobID, "error", err)
		}
	}
	if s.runs != nil && req.RunID != "" {
		if err := s.runs.UpdateProgress(ctx, req.RunID, status, percent, comment); err != nil {
			slog.Warn("run progress update failed", "run", req.RunID, "error", err)
		}
	}
	if s.publisher != nil {
		p := &domain.Progress{
			RunID:   req.RunID,
			JobID:   req.JobID,
			Status:  status,
			Percent: percent,
			Comment: comment,
			Time:    time.Now().UTC(),
		}
		if err := s.publisher.PublishProgress(ctx, p); err != nil {
			slog.Warn("progress publish failed", "run", req.RunID, "error", err)
		}
	}
}

// CollectAnnotations fetches the annotations the request selects.
func (s *AnalysisService) CollectAnnotations(ctx context.Context, req domain.AnalysisRequest) (anns []domain.Annotation, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCollectAnnotations, telemetry.AttrProjectID.Int64(req.ProjectID))
	defer func() { telemetry.EndSpan(span, err) }()
	defer metrics.ObserveStage(StageAnnotations.Name, time.Now())

	anns, err = s.annotations.List(ctx, req.Filter())
	if err != nil {
		return nil, err
	}
	if len(anns) == 0 {
		slog.Info("no annotations match the request", "project", req.ProjectID)
	}
	span.SetAttributes(telemetry.AttrCount.Int(len(anns)))
	return anns, nil
}

// CollectResults fetches the detection files of the project's jobs.
func (s *AnalysisService) CollectResults(ctx context.Context, req domain.AnalysisRequest) (results []domain.DetectionResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCollectResults, telemetry.AttrProjectID.Int64(req.ProjectID))
	defer func() { telemetry.EndSpan(span, err) }()
	defer metrics.ObserveStage(StageResults.Name, time.Now())

	results, err = s.results.Collect(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		slog.Info("no detection results found", "project", req.ProjectID)
	}
	span.SetAttributes(telemetry.AttrCount.Int(len(results)))
	return results, nil
}

// ResolveTerms fills in term ids for results whose job did not name any, by
// matching labels against the request's ontology. It returns the ids of the
// terms it created.
func (s *AnalysisService) ResolveTerms(ctx context.Context, req domain.AnalysisRequest, results []domain.DetectionResult) ([]domain.DetectionResult, []int64, error) {
	if req.OntologyID <= 0 || s.terms == nil {
		return results, nil, nil
	}

	var created []int64
	for i := range results {
		if len(results[i].TermIDs) > 0 {
			continue
		}
		ids, added, err := s.terms.Resolve(ctx, req.OntologyID, results[i].File.Labels, req.CreateTerms)
		created = append(created, added...)
		if err != nil {
			return results, created, err
		}
		results[i].TermIDs = ids
	}
	return results, created, nil
}

// ComputeStats counts each annotation's detections. The newest detection
// result of the annotation's image is used. Annotations without results or
// with an unusable region are reported as skipped.
func (s *AnalysisService) ComputeStats(ctx context.Context, req domain.AnalysisRequest, anns []domain.Annotation, results []domain.DetectionResult) (rep domain.AnalysisReport, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanComputeStats, telemetry.AttrRule.String(req.Rule))
	defer func() { telemetry.EndSpan(span, err) }()
	defer metrics.ObserveStage(StageStats.Name, time.Now())

	clf, err := s.classification.WithRule(req.Rule)
	if err != nil {
		return rep, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	latest := latestByImage(results)

	for _, ann := range anns {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		res, ok := latest[ann.ImageID]
		if !ok {
			rep.Skipped = append(rep.Skipped, domain.AnnotationSkip{AnnotationID: ann.ID, Reason: "no detections for image"})
			continue
		}

		region, err := geometry.ParseRegion(ann.Location)
		if err != nil {
			metrics.ClassificationErrors.WithLabelValues("invalid_polygon").Inc()
			slog.Warn("skipping annotation with invalid region", "annotation", ann.ID, "error", err)
			rep.Skipped = append(rep.Skipped, domain.AnnotationSkip{AnnotationID: ann.ID, Reason: err.Error()})
			continue
		}

		area := ann.Area
		if area <= 0 {
			area = region.Area()
		}

		st, err := clf.Count(region, res.File, area)
		if err != nil {
			slog.Warn("skipping annotation", "annotation", ann.ID, "error", err)
			rep.Skipped = append(rep.Skipped, domain.AnnotationSkip{AnnotationID: ann.ID, Reason: err.Error()})
			continue
		}
		st.AnnotationID = ann.ID
		st.ImageID = ann.ImageID
		st.JobID = res.JobID
		for i := range st.Terms {
			st.Terms[i].TermID = res.TermID(i)
		}
		rep.Stats = append(rep.Stats, st)
	}

	span.SetAttributes(telemetry.AttrCount.Int(len(rep.Stats)))
	slog.Info("stats computed", "annotations", len(anns), "counted", len(rep.Stats), "skipped", len(rep.Skipped))
	return rep, nil
}

func latestByImage(results []domain.DetectionResult) map[int64]domain.DetectionResult {
	out := make(map[int64]domain.DetectionResult, len(results))
	for _, r := range results {
		cur, ok := out[r.ImageID]
		if !ok || r.JobID > cur.JobID || (r.JobID == cur.JobID && r.JobDataID > cur.JobDataID) {
			out[r.ImageID] = r
		}
	}
	return out
}

// WriteStats uploads the stats files to the request's job.
func (s *AnalysisService) WriteStats(ctx context.Context, req domain.AnalysisRequest, rep domain.AnalysisReport) error {
	files, err := report.BuildStats(rep.Stats, req.OutputFormats)
	if err != nil {
		return err
	}
	return s.upload(ctx, req, files)
}

// WriteInsidePoints uploads one inside-points file per counted annotation.
func (s *AnalysisService) WriteInsidePoints(ctx context.Context, req domain.AnalysisRequest, rep domain.AnalysisReport) error {
	files, err := report.BuildInsidePoints(rep.Stats)
	if err != nil {
		return err
	}
	return s.upload(ctx, req, files)
}

func (s *AnalysisService) upload(ctx context.Context, req domain.AnalysisRequest, files []report.File) (err error) {
	if req.JobID == 0 {
		slog.Info("no job to attach files to, skipping upload", "files", len(files))
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanWriteReports, telemetry.AttrJobID.Int64(req.JobID))
	defer func() { telemetry.EndSpan(span, err) }()

	for _, f := range files {
		if _, err := s.jobs.UploadData(ctx, req.JobID, f.Key, f.Filename, f.Content); err != nil {
			return fmt.Errorf("upload %s: %w", f.Filename, err)
		}
	}
	return nil
}

// UpdateProperties writes the flattened stats onto each annotation.
func (s *AnalysisService) UpdateProperties(ctx context.Context, rep domain.AnalysisReport) (err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanUpdateProperties)
	defer func() { telemetry.EndSpan(span, err) }()
	defer metrics.ObserveStage(StageProperties.Name, time.Now())

	for _, st := range rep.Stats {
		created, updated, err := s.properties.Upsert(ctx, st.AnnotationID, st.Properties())
		if err != nil {
			return err
		}
		slog.Debug("properties written", "annotation", st.AnnotationID, "created", created, "updated", updated)
	}
	return nil
}

// UploadAnnotations creates the multipoint annotations of every counted
// annotation and returns their ids.
func (s *AnalysisService) UploadAnnotations(ctx context.Context, rep domain.AnalysisReport) (ids []int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanUploadAnnotations)
	defer func() { telemetry.EndSpan(span, err) }()
	defer metrics.ObserveStage(StageMultipoints.Name, time.Now())

	for _, st := range rep.Stats {
		created, err := s.annotations.CreateMultipoints(ctx, st)
		ids = append(ids, created...)
		if err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// Cleanup drops cached detection files.
func (s *AnalysisService) Cleanup(ctx context.Context, results []domain.DetectionResult) {
	_, span := telemetry.StartSpan(ctx, telemetry.SpanCleanup)
	defer span.End()
	s.results.Cleanup(ctx, results)
}

// Run executes the whole pipeline and records its outcome.
func (s *AnalysisService) Run(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisReport, error) {
	req, err := s.Begin(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "analysis.run",
		telemetry.AttrRunID.String(req.RunID),
		telemetry.AttrJobID.Int64(req.JobID),
		telemetry.AttrProjectID.Int64(req.ProjectID),
	)

	rep, err := s.execute(ctx, req)
	telemetry.EndSpan(span, err)

	s.Finish(ctx, req, rep, err)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (s *AnalysisService) execute(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisReport, error) {
	var rep domain.AnalysisReport

	s.Progress(ctx, req, StageAnnotations)
	anns, err := s.CollectAnnotations(ctx, req)
	if err != nil {
		return rep, err
	}

	s.Progress(ctx, req, StageResults)
	results, err := s.CollectResults(ctx, req)
	if err != nil {
		return rep, err
	}
	if req.CleanupResults {
		defer s.Cleanup(context.WithoutCancel(ctx), results)
	}

	var createdTerms []int64
	results, createdTerms, err = s.ResolveTerms(ctx, req, results)
	if err != nil {
		s.rollbackTerms(ctx, createdTerms)
		return rep, err
	}

	s.Progress(ctx, req, StageStats)
	rep, err = s.ComputeStats(ctx, req, anns, results)
	if err != nil {
		s.rollbackTerms(ctx, createdTerms)
		return rep, err
	}

	steps := []struct {
		stage Stage
		on    bool
		fn    func() error
	}{
		{StageStatsFile, true, func() error { return s.WriteStats(ctx, req, rep) }},
		{StageInsideFiles, true, func() error { return s.WriteInsidePoints(ctx, req, rep) }},
		{StageProperties, req.UploadProperties, func() error { return s.UpdateProperties(ctx, rep) }},
		{StageMultipoints, req.UploadAnnotations, func() error {
			_, err := s.UploadAnnotations(ctx, rep)
			return err
		}},
	}
	for _, step := range steps {
		if !step.on {
			continue
		}
		s.Progress(ctx, req, step.stage)
		if err := step.fn(); err != nil {
			s.rollbackTerms(ctx, createdTerms)
			return rep, fmt.Errorf("%s: %w", step.stage.Name, err)
		}
	}

	s.Progress(ctx, req, StageCleanup)
	return rep, nil
}

func (s *AnalysisService) rollbackTerms(ctx context.Context, ids []int64) {
	if len(ids) == 0 || s.terms == nil {
		return
	}
	if err := s.terms.Delete(context.WithoutCancel(ctx), ids); err != nil {
		slog.Warn("term rollback incomplete", "error", err)
	}
}

// Finish marks the run and the platform job as succeeded or failed and
// announces the outcome.
func (s *AnalysisService) Finish(ctx context.Context, req domain.AnalysisRequest, rep domain.AnalysisReport, runErr error) {
	ctx = context.WithoutCancel(ctx)
	stats := stripInside(rep.Stats)

	if runErr != nil {
		metrics.AnalysisRuns.WithLabelValues(string(domain.RunFailed)).Inc()
		slog.Error("analysis failed", "run", req.RunID, "job", req.JobID, "error", runErr)
		if s.runs != nil && req.RunID != "" {
			if err := s.runs.Fail(ctx, req.RunID, runErr.Error()); err != nil {
				slog.Warn("run fail update failed", "run", req.RunID, "error", err)
			}
		}
		s.notify(ctx, req, domain.RunFailed, domain.JobStatusFailed, StageDone.Percent, runErr.Error())
	} else {
		metrics.AnalysisRuns.WithLabelValues(string(domain.RunSucceeded)).Inc()
		if s.runs != nil && req.RunID != "" {
			if err := s.runs.Complete(ctx, req.RunID, stats); err != nil {
				slog.Warn("run complete update failed", "run", req.RunID, "error", err)
			}
		}
		s.notify(ctx, req, domain.RunSucceeded, domain.JobStatusSuccess, StageDone.Percent, StageDone.Comment)
	}

	if s.publisher == nil {
		return
	}
	now := time.Now().UTC()
	run := &domain.AnalysisRun{
		ID:            req.RunID,
		JobID:         req.JobID,
		ProjectID:     req.ProjectID,
		Status:        domain.RunSucceeded,
		Progress:      StageDone.Percent,
		StatusComment: StageDone.Comment,
		Request:       req,
		Stats:         stats,
		UpdatedAt:     now,
		FinishedAt:    &now,
	}
	if runErr != nil {
		run.Status = domain.RunFailed
		run.StatusComment = runErr.Error()
		run.Error = runErr.Error()
	}
	if err := s.publisher.PublishAnalysisCompleted(ctx, run); err != nil {
		slog.Warn("completion publish failed", "run", req.RunID, "error", err)
	}
}

func stripInside(stats []domain.AnnotationStats) []domain.AnnotationStats {
	out := make([]domain.AnnotationStats, len(stats))
	for i, s := range stats {
		s.Inside = nil
		out[i] = s
	}
	return out
}
