package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/lounge-reconciler/internal/batcher"
	"github.com/example/lounge-reconciler/internal/docstore"
	"github.com/example/lounge-reconciler/internal/domain"
	"github.com/example/lounge-reconciler/internal/notify"
	"github.com/example/lounge-reconciler/internal/window"
)

// ReminderConfig controls which appointments receive an escort reminder.
type ReminderConfig struct {
	Window window.Rolling
	// RequireNotStarted restricts the scan to appointments whose concierge
	// session has not started.
	RequireNotStarted bool
	// Location formats appointment times in notification bodies.
	Location    *time.Location
	BatchSize   int
	Concurrency int
}

// ReminderJob alerts the assigned concierge of every appointment entering
// the rolling window and marks the appointment so later runs skip it.
type ReminderJob struct {
	base
	cfg        ReminderConfig
	store      docstore.Store
	engine     *window.Engine
	dispatcher *notify.Dispatcher
}

// NewReminderJob wires the reminder pipeline.
func NewReminderJob(cfg ReminderConfig, store docstore.Store, dispatcher *notify.Dispatcher, opts ...Option) *ReminderJob {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = notify.DefaultConcurrency
	}
	b := newBase(NameReminder, opts)
	return &ReminderJob{
		base:       b,
		cfg:        cfg,
		store:      store,
		engine:     window.NewEngine(store, b.logger),
		dispatcher: dispatcher,
	}
}

// Name implements Job.
func (j *ReminderJob) Name() string { return NameReminder }

// Run implements Job.
func (j *ReminderJob) Run(ctx context.Context) (Report, error) {
	return j.run(ctx, j.reconcile)
}

// Scan returns the query the job issues at now.
func (j *ReminderJob) Scan(now time.Time) window.Scan {
	scan := window.Scan{
		Collection: domain.CollectionAppointments,
		Field:      domain.FieldAppointmentTime,
		Window:     j.cfg.Window.Window(now),
		SkipMarked: []string{domain.FieldReminderSent},
	}
	if j.cfg.RequireNotStarted {
		scan.Filters = append(scan.Filters, docstore.Eq(domain.FieldSessionStarted, false))
	}
	return scan
}

func (j *ReminderJob) reconcile(ctx context.Context, now time.Time, report *Report, logger *slog.Logger) error {
	scan := j.Scan(now)
	report.Window = scan.Window

	docs, err := j.engine.Collect(ctx, scan)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrScan, err)
	}
	report.Matched = len(docs)
	j.metrics.Matched(ctx, j.name, len(docs))
	if len(docs) == 0 {
		return nil
	}

	appointments := make([]domain.Appointment, 0, len(docs))
	conciergeIDs := make([]string, 0, len(docs))
	for _, doc := range docs {
		appt, err := domain.DecodeAppointment(doc)
		if err != nil {
			logger.Warn("skipping malformed appointment", slog.String("record_id", doc.ID), slog.String("error", err.Error()))
			report.skip(doc.ID, ReasonMissingField, err)
			continue
		}
		appointments = append(appointments, appt)
		conciergeIDs = append(conciergeIDs, appt.ConciergeID)
	}

	actors, lookupErrs := loadActors(ctx, j.store, conciergeIDs, j.cfg.Concurrency)
	if err := ctx.Err(); err != nil {
		return err
	}

	pending := make([]domain.Appointment, 0, len(appointments))
	deliveries := make([]notify.Delivery, 0, len(appointments))
	for _, appt := range appointments {
		actor, ok := actors[appt.ConciergeID]
		if !ok {
			lookupErr := lookupErrs[appt.ConciergeID]
			logger.Warn("skipping appointment without concierge profile",
				slog.String("record_id", appt.ID),
				slog.String("concierge_id", appt.ConciergeID),
				slog.Any("error", lookupErr))
			report.skip(appt.ID, lookupReason(lookupErr), lookupErr)
			continue
		}
		pending = append(pending, appt)
		deliveries = append(deliveries, notify.Delivery{
			Actor:   actor,
			Payload: notify.EscortReminder(appt, actor, j.cfg.Location),
		})
	}

	outcomes := j.dispatcher.DeliverAll(ctx, deliveries)

	b := batcher.New(j.store, j.cfg.BatchSize, batcher.WithLogger(logger), batcher.WithMetrics(j.metrics, j.name))
	for i, outcome := range outcomes {
		appt := pending[i]
		switch {
		case outcome.Attempted():
			report.Notified++
		case outcome.Status == notify.StatusNoToken:
			report.skip(appt.ID, ReasonNoToken, nil)
			continue
		default:
			report.fail(appt.ID, ReasonDelivery, outcome.Err)
			continue
		}
		err := b.Add(ctx, batcher.Mutation{
			RecordID: appt.ID,
			Writes: []docstore.Write{
				docstore.UpdateDoc(domain.CollectionAppointments, appt.ID,
					docstore.Set(domain.FieldReminderSent, true),
					docstore.Set(domain.FieldReminderSentAt, now.UTC()),
				),
			},
		})
		if err != nil {
			return j.finish(report, b, err)
		}
	}
	return j.finish(report, b, b.Flush(ctx))
}

func (j *ReminderJob) finish(report *Report, b *batcher.Batcher, err error) error {
	return finishBatch(report, b.Result(), err)
}

// finishBatch folds a batcher result into report. Context errors take
// precedence over chunk failures.
func finishBatch(report *Report, result batcher.Result, err error) error {
	report.Chunks = result.Chunks
	report.Marked = len(result.Committed)
	report.Failed += len(result.Failed)
	if err != nil {
		return err
	}
	if chunkErr := result.Err(); chunkErr != nil {
		return errors.Join(ErrChunksFailed, chunkErr)
	}
	return nil
}
