package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/usecases"
)

// AnalysisActivities holds the activity implementations for the analysis
// workflow. Each activity is one pipeline stage of usecases.AnalysisService.
type AnalysisActivities struct {
	Analyses    *usecases.AnalysisService
	Terms       *usecases.TermService
	Annotations *usecases.AnnotationService
}

// TermResolution is the outcome of the ResolveTerms activity.
type TermResolution struct {
	Results []domain.DetectionResult
	Created []int64
}

// nonRetryable stops Temporal from retrying requests that can never succeed.
func nonRetryable(err error) error {
	if errors.Is(err, usecases.ErrInvalidRequest) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "InvalidRequest", err)
	}
	return err
}

// BeginAnalysis validates the request and records the run as started.
func (a *AnalysisActivities) BeginAnalysis(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisRequest, error) {
	req, err := a.Analyses.Begin(ctx, req)
	return req, nonRetryable(err)
}

// ReportProgress reports a stage to the job, the run store and subscribers.
func (a *AnalysisActivities) ReportProgress(ctx context.Context, req domain.AnalysisRequest, stage usecases.Stage) error {
	a.Analyses.Progress(ctx, req, stage)
	return nil
}

func (a *AnalysisActivities) CollectAnnotations(ctx context.Context, req domain.AnalysisRequest) ([]domain.Annotation, error) {
	return a.Analyses.CollectAnnotations(ctx, req)
}

func (a *AnalysisActivities) CollectResults(ctx context.Context, req domain.AnalysisRequest) ([]domain.DetectionResult, error) {
	return a.Analyses.CollectResults(ctx, req)
}

// ResolveTerms fills in missing term ids. Terms created by a failed attempt
// are deleted before the error is returned, so a retry starts clean.
func (a *AnalysisActivities) ResolveTerms(ctx context.Context, req domain.AnalysisRequest, results []domain.DetectionResult) (TermResolution, error) {
	results, created, err := a.Analyses.ResolveTerms(ctx, req, results)
	if err != nil {
		if derr := a.deleteTerms(ctx, created); derr != nil {
			slog.Warn("term cleanup after failed resolve incomplete", "run", req.RunID, "error", derr)
		}
		return TermResolution{}, err
	}
	return TermResolution{Results: results, Created: created}, nil
}

func (a *AnalysisActivities) ComputeStats(ctx context.Context, req domain.AnalysisRequest, anns []domain.Annotation, results []domain.DetectionResult) (domain.AnalysisReport, error) {
	rep, err := a.Analyses.ComputeStats(ctx, req, anns, results)
	return rep, nonRetryable(err)
}

func (a *AnalysisActivities) WriteStats(ctx context.Context, req domain.AnalysisRequest, rep domain.AnalysisReport) error {
	return a.Analyses.WriteStats(ctx, req, rep)
}

func (a *AnalysisActivities) WriteInsidePoints(ctx context.Context, req domain.AnalysisRequest, rep domain.AnalysisReport) error {
	return a.Analyses.WriteInsidePoints(ctx, req, rep)
}

func (a *AnalysisActivities) UpdateProperties(ctx context.Context, rep domain.AnalysisReport) error {
	return a.Analyses.UpdateProperties(ctx, rep)
}

// UploadAnnotations creates the multipoint annotations. On failure the ones
// already created are removed so a retry does not duplicate them.
func (a *AnalysisActivities) UploadAnnotations(ctx context.Context, rep domain.AnalysisReport) ([]int64, error) {
	ids, err := a.Analyses.UploadAnnotations(ctx, rep)
	if err != nil {
		if len(ids) > 0 && a.Annotations != nil {
			if derr := a.Annotations.Delete(context.WithoutCancel(ctx), ids); derr != nil {
				slog.Warn("multipoint cleanup incomplete", "error", derr)
			}
		}
		return nil, err
	}
	return ids, nil
}

// CleanupResults drops cached detection files.
func (a *AnalysisActivities) CleanupResults(ctx context.Context, results []domain.DetectionResult) error {
	a.Analyses.Cleanup(ctx, results)
	return nil
}

// DeleteTerms removes terms created by the run (saga compensation).
func (a *AnalysisActivities) DeleteTerms(ctx context.Context, ids []int64) error {
	if err := a.deleteTerms(ctx, ids); err != nil {
		return err
	}
	slog.Info("terms deleted (saga compensation)", "terms", ids)
	return nil
}

func (a *AnalysisActivities) deleteTerms(ctx context.Context, ids []int64) error {
	if len(ids) == 0 || a.Terms == nil {
		return nil
	}
	if err := a.Terms.Delete(context.WithoutCancel(ctx), ids); err != nil {
		return fmt.Errorf("delete terms: %w", err)
	}
	return nil
}

// FinishAnalysis marks the run succeeded, or failed when failure is set.
func (a *AnalysisActivities) FinishAnalysis(ctx context.Context, req domain.AnalysisRequest, rep domain.AnalysisReport, failure string) error {
	var runErr error
	if failure != "" {
		runErr = errors.New(failure)
	}
	a.Analyses.Finish(ctx, req, rep, runErr)
	return nil
}
