package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/lounge-reconciler/internal/batcher"
	"github.com/example/lounge-reconciler/internal/docstore"
	"github.com/example/lounge-reconciler/internal/domain"
	"github.com/example/lounge-reconciler/internal/notify"
	"github.com/example/lounge-reconciler/internal/window"
)

// Inbox notice copy written alongside each auto-close.
const (
	inboxTitle = "Auto Clock-Out"
)

// AutoCloseConfig controls the daily attendance cutover.
type AutoCloseConfig struct {
	Cutover window.Daily
	// Notify sends a push notice to each closed user after the chunk holding
	// their record commits. The inbox document is written regardless.
	Notify      bool
	BatchSize   int
	Concurrency int
}

// AutoCloseJob closes every attendance record still clocked in at the daily
// cutover. The clocked-in flag is the idempotency marker: closed records no
// longer match the scan.
type AutoCloseJob struct {
	base
	cfg        AutoCloseConfig
	store      docstore.Store
	engine     *window.Engine
	dispatcher *notify.Dispatcher
}

// NewAutoCloseJob wires the auto-close pipeline. dispatcher may be nil when
// cfg.Notify is false.
func NewAutoCloseJob(cfg AutoCloseConfig, store docstore.Store, dispatcher *notify.Dispatcher, opts ...Option) *AutoCloseJob {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = notify.DefaultConcurrency
	}
	b := newBase(NameAutoClose, opts)
	return &AutoCloseJob{
		base:       b,
		cfg:        cfg,
		store:      store,
		engine:     window.NewEngine(store, b.logger),
		dispatcher: dispatcher,
	}
}

// Name implements Job.
func (j *AutoCloseJob) Name() string { return NameAutoClose }

// Run implements Job.
func (j *AutoCloseJob) Run(ctx context.Context) (Report, error) {
	return j.run(ctx, j.reconcile)
}

func (j *AutoCloseJob) reconcile(ctx context.Context, now time.Time, report *Report, logger *slog.Logger) error {
	boundary := j.cfg.Cutover.Boundary(now)
	report.Boundary = boundary
	report.Window = j.cfg.Cutover.Window(now)

	docs, err := j.engine.Collect(ctx, window.Scan{
		Collection: domain.CollectionAttendance,
		Field:      domain.FieldClockInTime,
		Window:     report.Window,
		Filters:    []docstore.Filter{docstore.Eq(domain.FieldIsClockedIn, true)},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrScan, err)
	}
	report.Matched = len(docs)
	j.metrics.Matched(ctx, j.name, len(docs))
	if len(docs) == 0 {
		return nil
	}

	records := make(map[string]domain.Attendance, len(docs))
	var closed []domain.Attendance
	b := batcher.New(j.store, j.cfg.BatchSize,
		batcher.WithLogger(logger),
		batcher.WithMetrics(j.metrics, j.name),
		batcher.OnCommit(func(_ context.Context, committed []batcher.Mutation) {
			for _, m := range committed {
				closed = append(closed, records[m.RecordID])
			}
		}),
	)

	for _, doc := range docs {
		rec, err := domain.DecodeAttendance(doc)
		if err != nil {
			logger.Warn("skipping malformed attendance record", slog.String("record_id", doc.ID), slog.String("error", err.Error()))
			report.skip(doc.ID, ReasonMissingField, err)
			continue
		}
		records[rec.ID] = rec
		if err := b.Add(ctx, j.closeMutation(rec, boundary, now)); err != nil {
			return finishBatch(report, b.Result(), err)
		}
	}
	if err := b.Flush(ctx); err != nil {
		return finishBatch(report, b.Result(), err)
	}
	batchErr := finishBatch(report, b.Result(), nil)

	if j.cfg.Notify && j.dispatcher != nil && len(closed) > 0 {
		report.Notified = j.notifyClosed(ctx, closed, boundary)
	}
	return batchErr
}

// closeMutation builds the state change, audit entry and inbox notice for rec.
// They share one mutation so the batcher commits them atomically.
func (j *AutoCloseJob) closeMutation(rec domain.Attendance, boundary, now time.Time) batcher.Mutation {
	entry := domain.HistoryEntry{
		ID:        j.newID(),
		Event:     domain.EventAutoClockOut,
		Timestamp: boundary,
		Name:      rec.Name,
		Role:      rec.Role,
		UserID:    rec.UserID,
	}
	writes := []docstore.Write{
		docstore.UpdateDoc(domain.CollectionAttendance, rec.ID,
			docstore.Set(domain.FieldIsClockedIn, false),
			docstore.Set(domain.FieldClockOutTime, boundary),
			docstore.Set(domain.FieldIsOnBreak, false),
			docstore.Delete(domain.FieldBreakReason),
			docstore.Delete(domain.FieldBreakStartTime),
			docstore.Delete(domain.FieldBreakEndTime),
			docstore.Set(domain.FieldAutoClockedOut, true),
			docstore.Append(domain.FieldHistory, entry.Fields()),
		),
	}
	if rec.UserID != "" {
		notice := notify.AutoClockOutNotice(rec, boundary, j.cfg.Cutover.Location)
		writes = append(writes, docstore.CreateDoc(domain.CollectionNotifications, j.newID(), map[string]any{
			"userId":                 rec.UserID,
			"title":                  inboxTitle,
			"body":                   notice.Body,
			"type":                   notify.TypeAutoClockOut,
			"attendanceId":           rec.ID,
			"timestamp":              now.UTC(),
			"isRead":                 false,
			"sendAsPushNotification": true,
		}))
	}
	return batcher.Mutation{RecordID: rec.ID, Writes: writes}
}

// notifyClosed sends the push notice for records that were committed. It is
// best effort: failures are logged by the dispatcher and never undo a close.
func (j *AutoCloseJob) notifyClosed(ctx context.Context, closed []domain.Attendance, boundary time.Time) int {
	userIDs := make([]string, 0, len(closed))
	for _, rec := range closed {
		userIDs = append(userIDs, rec.UserID)
	}
	actors, _ := loadActors(ctx, j.store, userIDs, j.cfg.Concurrency)

	deliveries := make([]notify.Delivery, 0, len(closed))
	for _, rec := range closed {
		actor, ok := actors[rec.UserID]
		if !ok {
			continue
		}
		deliveries = append(deliveries, notify.Delivery{
			Actor:   actor,
			Payload: notify.AutoClockOutNotice(rec, boundary, j.cfg.Cutover.Location),
		})
	}

	notified := 0
	for _, outcome := range j.dispatcher.DeliverAll(ctx, deliveries) {
		if outcome.Status == notify.StatusDelivered {
			notified++
		}
	}
	return notified
}
