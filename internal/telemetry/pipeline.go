package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/veloclimat/veloclimat/internal/pipeline"

// Exclusion reasons reported on veloclimat.samples.excluded.
const (
	ReasonOutsideHull = "outside_hull"
	ReasonMissingJoin = "missing_join"
)

// PipelineMetrics holds the instruments recorded by interpolation runs.
type PipelineMetrics struct {
	stageDuration   metric.Float64Histogram
	rowsWritten     metric.Int64Counter
	samplesExcluded metric.Int64Counter
	runs            metric.Int64Counter
}

// NewPipelineMetrics creates the run instruments on the global meter
// provider.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter(meterName)

	stageDuration, err := meter.Float64Histogram(
		"veloclimat.stage.duration",
		metric.WithDescription("Duration of a pipeline stage in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	rowsWritten, err := meter.Int64Counter(
		"veloclimat.rows.written",
		metric.WithDescription("Rows written to output tables"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, err
	}

	samplesExcluded, err := meter.Int64Counter(
		"veloclimat.samples.excluded",
		metric.WithDescription("Samples without an interpolation result"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter(
		"veloclimat.runs",
		metric.WithDescription("Completed interpolation runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		stageDuration:   stageDuration,
		rowsWritten:     rowsWritten,
		samplesExcluded: samplesExcluded,
		runs:            runs,
	}, nil
}

// RecordStage records the duration of stage for target.
func (m *PipelineMetrics) RecordStage(ctx context.Context, target, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("stage", stage),
	))
}

// RecordRows counts rows written to table.
func (m *PipelineMetrics) RecordRows(ctx context.Context, table string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.rowsWritten.Add(ctx, n, metric.WithAttributes(attribute.String("table", table)))
}

// RecordExcluded counts samples excluded for reason.
func (m *PipelineMetrics) RecordExcluded(ctx context.Context, target, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.samplesExcluded.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("reason", reason),
	))
}

// RecordRun counts a finished run with its status.
func (m *PipelineMetrics) RecordRun(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
