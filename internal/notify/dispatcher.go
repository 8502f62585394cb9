// Package notify renders domain notifications and delivers them through a
// push.Client. A token-invalid failure triggers a best effort purge of the
// stored token; every other failure is reported to the caller, which leaves
// the originating record unmarked for the next run.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/example/lounge-reconciler/internal/docstore"
	"github.com/example/lounge-reconciler/internal/domain"
	"github.com/example/lounge-reconciler/internal/logging"
	"github.com/example/lounge-reconciler/internal/push"
	"github.com/example/lounge-reconciler/internal/telemetry"
)

// DefaultConcurrency bounds DeliverAll when no limit is given.
const DefaultConcurrency = 8

// Status is the result of one delivery attempt.
type Status string

const (
	StatusDelivered   Status = "delivered"
	StatusTokenPurged Status = "token_purged"
	StatusFailed      Status = "failed"
	StatusNoToken     Status = "no_token"
)

// Outcome describes what happened to one delivery.
type Outcome struct {
	Status Status
	// Kind is set when Status is StatusFailed.
	Kind push.FailureKind
	// Err is the delivery error, if any.
	Err error
	// PurgeErr is set when the token purge that follows a token-invalid
	// failure could not be committed.
	PurgeErr error
}

// Attempted reports whether the notification attempt completed, either by
// delivery or by a permanent token failure. Only attempted records may be
// marked processed.
func (o Outcome) Attempted() bool {
	return o.Status == StatusDelivered || o.Status == StatusTokenPurged
}

// Label is the metric and log label for the outcome.
func (o Outcome) Label() string {
	if o.Status == StatusFailed && o.Kind != "" {
		return string(o.Status) + "_" + string(o.Kind)
	}
	return string(o.Status)
}

// Committer applies the token purge.
type Committer interface {
	Commit(ctx context.Context, writes []docstore.Write) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics records one delivery counter per attempt under job.
func WithMetrics(metrics *telemetry.Metrics, job string) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
		d.job = job
	}
}

// WithConcurrency bounds DeliverAll fan-out.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.limit = n
		}
	}
}

// Dispatcher sends payloads to actor profiles.
type Dispatcher struct {
	client  push.Client
	store   Committer
	logger  *slog.Logger
	metrics *telemetry.Metrics
	job     string
	limit   int
}

// NewDispatcher constructs a Dispatcher. store receives token purges.
func NewDispatcher(client push.Client, store Committer, opts ...Option) *Dispatcher {
	d := &Dispatcher{client: client, store: store, limit: DefaultConcurrency}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver sends payload to actor.
func (d *Dispatcher) Deliver(ctx context.Context, actor domain.ActorProfile, payload Payload) Outcome {
	logger := logging.Or(ctx, d.logger).With(slog.String("actor_id", actor.ID))
	outcome := d.deliver(ctx, logger, actor, payload)
	d.metrics.Delivery(ctx, d.job, outcome.Label())
	return outcome
}

func (d *Dispatcher) deliver(ctx context.Context, logger *slog.Logger, actor domain.ActorProfile, payload Payload) Outcome {
	if !actor.HasToken() {
		logger.Warn("no push token for actor")
		return Outcome{Status: StatusNoToken}
	}

	err := d.client.Send(ctx, payload.Message(actor.Token))
	if err == nil {
		logger.Info("notification delivered", slog.String("type", payload.Data["notificationType"]))
		return Outcome{Status: StatusDelivered}
	}

	kind := push.KindOf(err)
	if kind != push.KindTokenInvalid {
		logger.Warn("notification failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		return Outcome{Status: StatusFailed, Kind: kind, Err: err}
	}

	outcome := Outcome{Status: StatusTokenPurged, Kind: kind, Err: err}
	if purgeErr := d.purge(ctx, actor.ID); purgeErr != nil {
		outcome.PurgeErr = purgeErr
		logger.Error("token purge failed", slog.String("error", purgeErr.Error()))
	} else {
		logger.Info("invalid push token purged")
	}
	return outcome
}

func (d *Dispatcher) purge(ctx context.Context, actorID string) error {
	if d.store == nil {
		return errors.New("notify: no store configured for token purge")
	}
	if actorID == "" {
		return errors.New("notify: actor id is empty")
	}
	return d.store.Commit(ctx, []docstore.Write{
		docstore.UpdateDoc(domain.CollectionUsers, actorID, docstore.Delete(domain.FieldPushToken)),
	})
}

// Delivery is one addressed payload for DeliverAll.
type Delivery struct {
	Actor   domain.ActorProfile
	Payload Payload
}

// DeliverAll sends every delivery with bounded concurrency and returns the
// outcomes in input order.
func (d *Dispatcher) DeliverAll(ctx context.Context, deliveries []Delivery) []Outcome {
	outcomes := make([]Outcome, len(deliveries))
	var g errgroup.Group
	g.SetLimit(d.limit)
	for i, delivery := range deliveries {
		g.Go(func() error {
			outcomes[i] = d.Deliver(ctx, delivery.Actor, delivery.Payload)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
