// Package jobs composes window scans, notification dispatch and batched
// mutations into the scheduled reconciliation jobs.
//
// Every job follows the same pipeline: collect all candidate records first,
// so that a query failure aborts before anything is written; resolve actor
// profiles and send notifications concurrently; then commit the per-record
// mutations in chunks, each carrying the record's idempotency marker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/lounge-reconciler/internal/logging"
	"github.com/example/lounge-reconciler/internal/telemetry"
	"github.com/example/lounge-reconciler/internal/window"
)

// Job names.
const (
	NameReminder  = "reminder"
	NameAutoClose = "autoclose"
)

var (
	// ErrScan wraps a failed window query. Nothing was mutated.
	ErrScan = errors.New("jobs: scan failed")
	// ErrChunksFailed reports that at least one chunk did not commit. The
	// records in those chunks remain unmarked and are retried next run.
	ErrChunksFailed = errors.New("jobs: one or more chunks failed")
)

// Job is one scheduled reconciliation.
type Job interface {
	Name() string
	Run(ctx context.Context) (Report, error)
}

// Skip reasons recorded on RecordError.
const (
	ReasonMissingField  = "missing_field"
	ReasonActorNotFound = "actor_not_found"
	ReasonActorLookup   = "actor_lookup_failed"
	ReasonNoToken       = "no_token"
	ReasonDelivery      = "delivery_failed"
)

// RecordError explains why one record was left untouched.
type RecordError struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// Error implements the error interface.
func (e RecordError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("record %s: %s", e.RecordID, e.Reason)
	}
	return fmt.Sprintf("record %s: %s: %v", e.RecordID, e.Reason, e.Err)
}

// Unwrap exposes the underlying error.
func (e RecordError) Unwrap() error { return e.Err }

// Report summarises one invocation.
type Report struct {
	Job      string        `json:"job"`
	RunID    string        `json:"run_id"`
	Window   window.Window `json:"window"`
	Boundary time.Time     `json:"boundary,omitzero"`
	Matched  int           `json:"matched"`
	Notified int           `json:"notified"`
	Marked   int           `json:"marked"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Chunks   int           `json:"chunks"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Records  []RecordError `json:"records,omitempty"`
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

func (r *Report) skip(recordID, reason string, err error) {
	r.Skipped++
	r.Records = append(r.Records, RecordError{RecordID: recordID, Reason: reason, Err: err})
}

func (r *Report) fail(recordID, reason string, err error) {
	r.Failed++
	r.Records = append(r.Records, RecordError{RecordID: recordID, Reason: reason, Err: err})
}

// Option configures a job.
type Option func(*base)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator overrides run, history and inbox id generation.
func WithIDGenerator(next func() string) Option {
	return func(b *base) {
		if next != nil {
			b.newID = next
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records run, match and chunk metrics.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(b *base) { b.metrics = metrics }
}

// base holds the collaborators shared by every job.
type base struct {
	name    string
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

func newBase(name string, opts []Option) base {
	b := base{
		name:   name,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
		tracer: telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// run wraps body with the run id, logging, tracing and metrics every job
// shares.
func (b *base) run(ctx context.Context, body func(ctx context.Context, now time.Time, report *Report, logger *slog.Logger) error) (Report, error) {
	now := b.now()
	report := Report{Job: b.name, RunID: b.newID(), Started: now}
	ctx, logger := logging.WithRun(ctx, b.logger, b.name, report.RunID)

	ctx, span := b.tracer.Start(ctx, "jobs."+b.name, trace.WithAttributes(
		attribute.String("job", b.name),
		attribute.String("run_id", report.RunID),
	))
	defer span.End()

	logger.Info("job started")
	err := body(ctx, now, &report, logger)
	report.Finished = b.now()

	span.SetAttributes(
		attribute.Int("matched", report.Matched),
		attribute.Int("marked", report.Marked),
		attribute.Int("skipped", report.Skipped),
		attribute.Int("failed", report.Failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	b.metrics.Run(ctx, b.name, report.Duration(), err)

	attrs := []any{
		slog.String("window", report.Window.String()),
		slog.Int("matched", report.Matched),
		slog.Int("notified", report.Notified),
		slog.Int("marked", report.Marked),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("chunks", report.Chunks),
		slog.Duration("elapsed", report.Duration()),
	}
	if err != nil {
		logger.Error("job finished with errors", append(attrs, slog.String("error", err.Error()))...)
	} else {
		logger.Info("job finished", attrs...)
	}
	return report, err
}
