// Package metrics records refinement run metrics through OpenTelemetry.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/hupe1980/refinery/loop"
)

// Run outcomes used as the outcome attribute.
const (
	OutcomeConverged = "converged"
	OutcomeExhausted = "exhausted"
	OutcomeFailed    = "failed"
)

// MeterName is the instrumentation scope of all instruments.
const MeterName = "github.com/hupe1980/refinery"

// Recorder holds the refinement instruments.
type Recorder struct {
	runs         metric.Int64Counter
	iterations   metric.Int64Histogram
	stepDuration metric.Float64Histogram
	stepErrors   metric.Int64Counter
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Recorder, error) {
	runs, err := meter.Int64Counter(
		"refinery_runs_total",
		metric.WithDescription("Total refinement runs by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}

	iterations, err := meter.Int64Histogram(
		"refinery_iterations",
		metric.WithDescription("Completed iterations per run"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 7, 10, 15, 20),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create iterations histogram: %w", err)
	}

	stepDuration, err := meter.Float64Histogram(
		"refinery_step_duration_seconds",
		metric.WithDescription("Critique and refine step duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create step duration histogram: %w", err)
	}

	stepErrors, err := meter.Int64Counter(
		"refinery_step_errors_total",
		metric.WithDescription("Total failed critique and refine steps"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create step errors counter: %w", err)
	}

	return &Recorder{
		runs:         runs,
		iterations:   iterations,
		stepDuration: stepDuration,
		stepErrors:   stepErrors,
	}, nil
}

// NoOp returns a recorder whose instruments discard all measurements.
func NoOp() *Recorder {
	r, _ := New(noop.NewMeterProvider().Meter(MeterName))
	return r
}

// NewPrometheus creates a recorder exporting to a dedicated Prometheus
// registry and the handler serving it.
func NewPrometheus() (*Recorder, http.Handler, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	rec, err := New(provider.Meter(MeterName))
	if err != nil {
		return nil, nil, err
	}
	return rec, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// Outcome classifies a finished run.
func Outcome(res loop.Result, err error) string {
	switch {
	case err != nil:
		return OutcomeFailed
	case res.Converged:
		return OutcomeConverged
	default:
		return OutcomeExhausted
	}
}

// RecordRun records the end of a run.
func (r *Recorder) RecordRun(ctx context.Context, res loop.Result, err error) {
	r.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", Outcome(res, err))))
	r.iterations.Record(ctx, int64(res.Iterations))
}

// RecordStep records one critique or refine call.
func (r *Recorder) RecordStep(ctx context.Context, step string, dur time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("step", step))
	r.stepDuration.Record(ctx, dur.Seconds(), attrs)
	if err != nil {
		r.stepErrors.Add(ctx, 1, attrs)
	}
}

// Observer returns a loop observer that records step metrics.
func (r *Recorder) Observer() loop.Observer {
	return loop.Hooks{
		StepComplete: func(ctx context.Context, info loop.StepInfo) {
			r.RecordStep(ctx, info.Step.String(), info.Duration, info.Err)
		},
	}
}
