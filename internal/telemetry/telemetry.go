// Package telemetry holds the OpenTelemetry instruments shared by the
// reconciliation jobs. A Collector backs them with an SDK MeterProvider;
// spans go through the global tracer provider.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope for traces and metrics.
const ScopeName = "github.com/example/lounge-reconciler"

// Tracer returns the package tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(ScopeName)
}

// Metrics records job level counters.
type Metrics struct {
	matched       metric.Int64Counter
	deliveries    metric.Int64Counter
	chunks        metric.Int64Counter
	transitions   metric.Int64Counter
	runDuration   metric.Float64Histogram
	runsCompleted metric.Int64Counter
}

// New builds Metrics from meter. Instrument creation errors fall back to the
// noop instruments returned alongside them.
func New(meter metric.Meter) *Metrics {
	m := &Metrics{}
	m.matched, _ = meter.Int64Counter("reconciler.records.matched",
		metric.WithDescription("Records selected by a job window scan"),
		metric.WithUnit("{record}"))
	m.deliveries, _ = meter.Int64Counter("reconciler.notifications",
		metric.WithDescription("Push delivery attempts by outcome"),
		metric.WithUnit("{notification}"))
	m.chunks, _ = meter.Int64Counter("reconciler.chunks",
		metric.WithDescription("Batch chunk commits by status"),
		metric.WithUnit("{chunk}"))
	m.transitions, _ = meter.Int64Counter("reconciler.records.marked",
		metric.WithDescription("Records whose idempotency marker was committed"),
		metric.WithUnit("{record}"))
	m.runDuration, _ = meter.Float64Histogram("reconciler.run.duration",
		metric.WithDescription("Duration of a job invocation in seconds"),
		metric.WithUnit("s"))
	m.runsCompleted, _ = meter.Int64Counter("reconciler.runs",
		metric.WithDescription("Job invocations by status"),
		metric.WithUnit("{run}"))
	return m
}

// Matched records n records selected by job.
func (m *Metrics) Matched(ctx context.Context, job string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.matched.Add(ctx, int64(n), metric.WithAttributes(attribute.String("job", job)))
}

// Delivery records one push attempt with its outcome label.
func (m *Metrics) Delivery(ctx context.Context, job, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("outcome", outcome),
	))
}

// Chunk records one chunk commit.
func (m *Metrics) Chunk(ctx context.Context, job string, err error) {
	if m == nil {
		return
	}
	m.chunks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", status(err)),
	))
}

// Marked records n records transitioned by a committed chunk.
func (m *Metrics) Marked(ctx context.Context, job string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.transitions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("job", job)))
}

// Run records a finished invocation.
func (m *Metrics) Run(ctx context.Context, job string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", status(err)),
	)
	m.runDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.runsCompleted.Add(ctx, 1, attrs)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
