package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cellsia/S-Show-Region-Stats"

// Span names for the analysis pipeline stages.
const (
	SpanCollectAnnotations = "analysis.collect_annotations"
	SpanCollectResults     = "analysis.collect_results"
	SpanComputeStats       = "analysis.compute_stats"
	SpanWriteReports       = "analysis.write_reports"
	SpanUpdateProperties   = "analysis.update_properties"
	SpanUploadAnnotations  = "analysis.upload_annotations"
	SpanCleanup            = "analysis.cleanup"
)

// Attribute keys attached to pipeline spans.
const (
	AttrRunID     = attribute.Key("analysis.run_id")
	AttrJobID     = attribute.Key("analysis.job_id")
	AttrProjectID = attribute.Key("analysis.project_id")
	AttrRule      = attribute.Key("classification.rule")
	AttrCount     = attribute.Key("analysis.count")
)

// StartSpan starts a child span on the global tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
