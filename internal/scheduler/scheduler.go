// Package scheduler fires reconciliation jobs on cron cadences in their
// configured time zones. Firing is serialised per job within a process, and
// an optional Locker extends that across replicas.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/example/lounge-reconciler/internal/jobs"
)

var (
	// ErrUnknownJob is returned by RunNow for an unregistered name.
	ErrUnknownJob = errors.New("scheduler: unknown job")
	// ErrJobRunning is returned when the job is already running in this
	// process.
	ErrJobRunning = errors.New("scheduler: job already running")
)

// cronParser supports standard 5-field cron, descriptors like "@every 2m" and
// the CRON_TZ= prefix.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// DefaultRunTimeout bounds a run when no timeout is configured.
const DefaultRunTimeout = 5 * time.Minute

// Sink receives the report of every finished run.
type Sink interface {
	Publish(ctx context.Context, report jobs.Report) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocker enables cross-replica locking.
func WithLocker(locker Locker) Option {
	return func(s *Scheduler) { s.locker = locker }
}

// WithSink publishes run reports.
func WithSink(sink Sink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// WithRunTimeout bounds each run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

type entry struct {
	job      jobs.Job
	spec     string
	location *time.Location
	id       cronlib.EntryID
	mu       sync.Mutex
}

// Scheduler owns the cron runner and the registered jobs.
type Scheduler struct {
	cron    *cronlib.Cron
	logger  *slog.Logger
	locker  Locker
	sink    Sink
	timeout time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
	baseCtx context.Context
}

// New constructs a Scheduler. Jobs are added with Register.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:  slog.Default(),
		timeout: DefaultRunTimeout,
		entries: make(map[string]*entry),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	clog := cronLogger{logger: s.logger}
	s.cron = cronlib.New(
		cronlib.WithParser(cronParser),
		cronlib.WithLogger(clog),
		cronlib.WithChain(cronlib.Recover(clog)),
	)
	return s
}

// Register schedules job on spec evaluated in loc.
func (s *Scheduler) Register(job jobs.Job, spec string, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	full := fmt.Sprintf("CRON_TZ=%s %s", loc.String(), spec)
	if _, err := cronParser.Parse(full); err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", spec, job.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[job.Name()]; exists {
		return fmt.Errorf("scheduler: job %s already registered", job.Name())
	}
	e := &entry{job: job, spec: spec, location: loc}
	name := job.Name()
	wrapped := cronlib.NewChain(cronlib.SkipIfStillRunning(cronLogger{logger: s.logger})).Then(cronlib.FuncJob(func() {
		_, _ = s.execute(s.context(), name)
	}))
	id, err := s.cron.AddJob(full, wrapped)
	if err != nil {
		return fmt.Errorf("scheduler: add %s: %w", name, err)
	}
	e.id = id
	s.entries[name] = e
	s.logger.Info("job scheduled", slog.String("job", name), slog.String("spec", spec), slog.String("tz", loc.String()))
	return nil
}

// Start begins firing jobs. Runs inherit ctx for cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop stops firing and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs name immediately, outside its cadence.
func (s *Scheduler) RunNow(ctx context.Context, name string) (jobs.Report, error) {
	return s.execute(ctx, name)
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string    `json:"name"`
	Spec     string    `json:"spec"`
	Timezone string    `json:"timezone"`
	Next     time.Time `json:"next,omitzero"`
}

// Jobs lists registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		ent := s.cron.Entry(e.id)
		next := ent.Next
		// Next is only populated once cron is running.
		if next.IsZero() && ent.Schedule != nil {
			next = ent.Schedule.Next(time.Now())
		}
		out = append(out, JobInfo{
			Name:     name,
			Spec:     e.spec,
			Timezone: e.location.String(),
			Next:     next,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseCtx
}

func (s *Scheduler) execute(ctx context.Context, name string) (jobs.Report, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return jobs.Report{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !e.mu.TryLock() {
		s.logger.Warn("job already running, skipping", slog.String("job", name))
		return jobs.Report{}, ErrJobRunning
	}
	defer e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, name, s.timeout+time.Minute)
		if err != nil {
			if errors.Is(err, ErrLockHeld) {
				s.logger.Info("job locked by another replica, skipping", slog.String("job", name))
			} else {
				s.logger.Error("job lock failed", slog.String("job", name), slog.String("error", err.Error()))
			}
			return jobs.Report{}, err
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				s.logger.Warn("job lock release failed", slog.String("job", name), slog.String("error", err.Error()))
			}
		}()
	}

	report, err := e.job.Run(ctx)
	if s.sink != nil && report.RunID != "" {
		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if pubErr := s.sink.Publish(publishCtx, report); pubErr != nil {
			s.logger.Warn("report publish failed", slog.String("job", name), slog.String("error", pubErr.Error()))
		}
	}
	return report, err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
