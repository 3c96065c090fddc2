package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/usecases"
)

// AnalysisWorkflowName is the registered name the dispatcher starts.
const AnalysisWorkflowName = "AnalysisWorkflow"

// AnalysisInput is the input for the analysis workflow.
type AnalysisInput struct {
	Request domain.AnalysisRequest
}

// AnalysisResult summarises a finished run.
type AnalysisResult struct {
	RunID       string
	Counted     int
	Skipped     int
	Multipoints []int64
}

// WorkflowID is the workflow id used for a run, so a redelivered request
// does not start a second execution.
func WorkflowID(runID string) string {
	return "analysis-" + runID
}

// AnalysisWorkflow runs the pipeline stage by stage: collect annotations and
// detection results, resolve terms, compute stats, then write the outcome
// back to the platform. If a later stage fails, the terms created by the run
// are deleted (saga compensation) and the run is marked failed.
func AnalysisWorkflow(ctx workflow.Context, input AnalysisInput) (*AnalysisResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting analysis workflow", "project", input.Request.ProjectID, "run", input.Request.RunID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Finishing and compensating must happen even when the workflow is cancelled.
	dctx, _ := workflow.NewDisconnectedContext(ctx)

	var req domain.AnalysisRequest
	if err := workflow.ExecuteActivity(ctx, "BeginAnalysis", input.Request).Get(ctx, &req); err != nil {
		if input.Request.RunID != "" {
			_ = workflow.ExecuteActivity(dctx, "FinishAnalysis", input.Request, domain.AnalysisReport{}, err.Error()).Get(dctx, nil)
		}
		return nil, err
	}

	var (
		rep          domain.AnalysisReport
		createdTerms []int64
	)
	result, err := runStages(ctx, dctx, req, &rep, &createdTerms)
	if err != nil {
		if len(createdTerms) > 0 {
			logger.Warn("analysis failed, compensating", "error", err, "terms", createdTerms)
			if cerr := workflow.ExecuteActivity(dctx, "DeleteTerms", createdTerms).Get(dctx, nil); cerr != nil {
				logger.Error("term compensation failed", "error", cerr)
			}
		}
		_ = workflow.ExecuteActivity(dctx, "FinishAnalysis", req, rep, err.Error()).Get(dctx, nil)
		return nil, err
	}

	if err := workflow.ExecuteActivity(dctx, "FinishAnalysis", req, rep, "").Get(dctx, nil); err != nil {
		return nil, err
	}
	logger.Info("Analysis finished", "run", req.RunID, "counted", result.Counted, "skipped", result.Skipped)
	return result, nil
}

func runStages(ctx, dctx workflow.Context, req domain.AnalysisRequest, rep *domain.AnalysisReport, createdTerms *[]int64) (*AnalysisResult, error) {
	progress := func(st usecases.Stage) {
		_ = workflow.ExecuteActivity(ctx, "ReportProgress", req, st).Get(ctx, nil)
	}

	progress(usecases.StageAnnotations)
	var anns []domain.Annotation
	if err := workflow.ExecuteActivity(ctx, "CollectAnnotations", req).Get(ctx, &anns); err != nil {
		return nil, err
	}

	progress(usecases.StageResults)
	var results []domain.DetectionResult
	if err := workflow.ExecuteActivity(ctx, "CollectResults", req).Get(ctx, &results); err != nil {
		return nil, err
	}
	if req.CleanupResults {
		defer func() {
			_ = workflow.ExecuteActivity(dctx, "CleanupResults", results).Get(dctx, nil)
		}()
	}

	var terms TermResolution
	if err := workflow.ExecuteActivity(ctx, "ResolveTerms", req, results).Get(ctx, &terms); err != nil {
		return nil, err
	}
	results = terms.Results
	*createdTerms = terms.Created

	progress(usecases.StageStats)
	if err := workflow.ExecuteActivity(ctx, "ComputeStats", req, anns, results).Get(ctx, rep); err != nil {
		return nil, err
	}

	progress(usecases.StageStatsFile)
	if err := workflow.ExecuteActivity(ctx, "WriteStats", req, *rep).Get(ctx, nil); err != nil {
		return nil, err
	}
	progress(usecases.StageInsideFiles)
	if err := workflow.ExecuteActivity(ctx, "WriteInsidePoints", req, *rep).Get(ctx, nil); err != nil {
		return nil, err
	}

	if req.UploadProperties {
		progress(usecases.StageProperties)
		if err := workflow.ExecuteActivity(ctx, "UpdateProperties", *rep).Get(ctx, nil); err != nil {
			return nil, err
		}
	}

	var multipoints []int64
	if req.UploadAnnotations {
		progress(usecases.StageMultipoints)
		if err := workflow.ExecuteActivity(ctx, "UploadAnnotations", *rep).Get(ctx, &multipoints); err != nil {
			return nil, err
		}
	}

	progress(usecases.StageCleanup)
	return &AnalysisResult{
		RunID:       req.RunID,
		Counted:     len(rep.Stats),
		Skipped:     len(rep.Skipped),
		Multipoints: multipoints,
	}, nil
}
