package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/example/lounge-reconciler/internal/config"
	"github.com/example/lounge-reconciler/internal/docstore"
	"github.com/example/lounge-reconciler/internal/docstore/firestore"
	"github.com/example/lounge-reconciler/internal/docstore/memory"
	"github.com/example/lounge-reconciler/internal/docstore/sqlite"
	"github.com/example/lounge-reconciler/internal/jobs"
	"github.com/example/lounge-reconciler/internal/notify"
	"github.com/example/lounge-reconciler/internal/push"
	"github.com/example/lounge-reconciler/internal/push/fcm"
	"github.com/example/lounge-reconciler/internal/push/logsink"
	"github.com/example/lounge-reconciler/internal/report"
	"github.com/example/lounge-reconciler/internal/scheduler"
	"github.com/example/lounge-reconciler/internal/telemetry"
)

// app holds the wired process dependencies.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     docstore.Store
	scheduler *scheduler.Scheduler
	telemetry *telemetry.Collector
	closers   []func() error
}

// newApp wires stores, clients and jobs from cfg. Close releases whatever
// was opened, also when newApp fails part way.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.store, err = openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	client, err := newPushClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithRunTimeout(cfg.RunTimeout),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, rdb.Close)
		opts = append(opts, scheduler.WithLocker(scheduler.NewRedisLocker(rdb, "reconciler:")))
	}
	sink, err := a.newSink(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, scheduler.WithSink(sink))
	a.scheduler = scheduler.New(opts...)

	a.telemetry = telemetry.NewCollector()
	a.closers = append(a.closers, func() error {
		return a.telemetry.Shutdown(context.Background())
	})
	metrics := a.telemetry.Metrics()
	jobOpts := []jobs.Option{jobs.WithLogger(logger), jobs.WithMetrics(metrics)}

	reminder := jobs.NewReminderJob(jobs.ReminderConfig{
		Window:            cfg.Reminder.Window(),
		RequireNotStarted: cfg.Reminder.RequireNotStarted,
		Location:          cfg.Reminder.Location,
		BatchSize:         cfg.BatchSize,
		Concurrency:       cfg.Concurrency,
	}, a.store, newDispatcher(client, a.store, cfg, logger, metrics, jobs.NameReminder), jobOpts...)
	if err := a.scheduler.Register(reminder, cfg.Reminder.Cron, cfg.Reminder.Location); err != nil {
		return nil, err
	}

	autoClose := jobs.NewAutoCloseJob(jobs.AutoCloseConfig{
		Cutover:     cfg.AutoClose.Cutover(),
		Notify:      cfg.AutoClose.Notify,
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
	}, a.store, newDispatcher(client, a.store, cfg, logger, metrics, jobs.NameAutoClose), jobOpts...)
	if err := a.scheduler.Register(autoClose, cfg.AutoClose.Cron, cfg.AutoClose.Location); err != nil {
		return nil, err
	}

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) newSink(ctx context.Context) (scheduler.Sink, error) {
	sinks := report.Fanout{report.NewLogSink(a.logger)}
	if a.cfg.PubSubTopic == "" {
		return sinks, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSubProject, clientOptions(a.cfg)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	ps, err := report.NewPubSubSink(client, a.cfg.PubSubTopic)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		ps.Stop()
		return nil
	})
	return append(sinks, ps), nil
}

func openStore(ctx context.Context, cfg config.Config) (docstore.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case config.StoreFirestore:
		return firestore.Open(ctx, cfg.FirestoreProject, clientOptions(cfg)...)
	default:
		return memory.New(), nil
	}
}

func newPushClient(ctx context.Context, cfg config.Config, logger *slog.Logger) (push.Client, error) {
	if cfg.Push == config.PushFCM {
		return fcm.New(ctx, cfg.FCMProject, clientOptions(cfg)...)
	}
	return logsink.New(logger), nil
}

func newDispatcher(client push.Client, store docstore.Store, cfg config.Config, logger *slog.Logger, metrics *telemetry.Metrics, job string) *notify.Dispatcher {
	return notify.NewDispatcher(client, store,
		notify.WithLogger(logger),
		notify.WithMetrics(metrics, job),
		notify.WithConcurrency(cfg.Concurrency),
	)
}

func clientOptions(cfg config.Config) []option.ClientOption {
	if cfg.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}
}
