// Package batcher groups per-record mutations into chunks that fit the store's
// atomic commit cap and commits them one chunk at a time.
//
// All writes of one Mutation travel in the same chunk, so an idempotency
// marker is always committed together with the side effects it guards. Chunks
// are independent: a failed chunk leaves earlier chunks applied and its own
// records unmarked, and later chunks are still attempted.
package batcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/lounge-reconciler/internal/docstore"
	"github.com/example/lounge-reconciler/internal/telemetry"
)

// ErrMutationTooLarge is returned when a single record needs more writes than
// fit in one chunk.
var ErrMutationTooLarge = errors.New("batcher: mutation exceeds chunk size")

// Committer is the subset of docstore.Store used by the batcher.
type Committer interface {
	Commit(ctx context.Context, writes []docstore.Write) error
}

// Mutation holds every write required to transition one record.
type Mutation struct {
	RecordID string
	Writes   []docstore.Write
}

// CommitFunc observes each successfully committed chunk.
type CommitFunc func(ctx context.Context, committed []Mutation)

// Result summarises the chunks committed so far.
type Result struct {
	Chunks       int
	FailedChunks int
	Committed    []string
	Failed       []string
	Errors       []error
}

// Err joins every chunk error, or nil when all chunks committed.
func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records chunk outcomes under job.
func WithMetrics(metrics *telemetry.Metrics, job string) Option {
	return func(b *Batcher) {
		b.metrics = metrics
		b.job = job
	}
}

// OnCommit registers fn to run after every successful chunk.
func OnCommit(fn CommitFunc) Option {
	return func(b *Batcher) { b.onCommit = fn }
}

// Batcher accumulates mutations. It is not safe for concurrent use; one
// Batcher serves one job invocation.
type Batcher struct {
	store    Committer
	size     int
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	job      string
	onCommit CommitFunc
	tracer   trace.Tracer

	pending    []Mutation
	pendingOps int
	result     Result
}

// New returns a Batcher that commits at most size writes per chunk. Sizes
// outside (0, docstore.PlatformMaxBatchOps] fall back to the nearest valid
// value, and a store reporting a smaller cap lowers it further.
func New(store Committer, size int, opts ...Option) *Batcher {
	if size <= 0 {
		size = docstore.DefaultChunkSize
	}
	if size > docstore.PlatformMaxBatchOps {
		size = docstore.PlatformMaxBatchOps
	}
	if capped, ok := store.(interface{ MaxBatchOps() int }); ok {
		if limit := capped.MaxBatchOps(); limit > 0 && limit < size {
			size = limit
		}
	}
	b := &Batcher{
		store:  store,
		size:   size,
		logger: slog.Default(),
		tracer: telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Size returns the effective chunk size.
func (b *Batcher) Size() int { return b.size }

// Add queues m, committing the pending chunk first when m would overflow it.
// Only context cancellation is returned; chunk failures are recorded in the
// Result so the caller can keep scanning.
func (b *Batcher) Add(ctx context.Context, m Mutation) error {
	if len(m.Writes) == 0 {
		return nil
	}
	if len(m.Writes) > b.size {
		err := fmt.Errorf("%w: record %s needs %d writes, chunk size %d", ErrMutationTooLarge, m.RecordID, len(m.Writes), b.size)
		b.result.Failed = append(b.result.Failed, m.RecordID)
		b.result.Errors = append(b.result.Errors, err)
		b.logger.Error("mutation rejected", slog.String("record_id", m.RecordID), slog.String("error", err.Error()))
		return nil
	}
	if b.pendingOps+len(m.Writes) > b.size {
		if err := b.flush(ctx); err != nil {
			return err
		}
	}
	b.pending = append(b.pending, m)
	b.pendingOps += len(m.Writes)
	if b.pendingOps == b.size {
		return b.flush(ctx)
	}
	return nil
}

// Flush commits any pending writes. With nothing pending it does nothing.
func (b *Batcher) Flush(ctx context.Context) error {
	return b.flush(ctx)
}

// Result returns the accumulated outcome.
func (b *Batcher) Result() Result {
	out := b.result
	out.Committed = append([]string(nil), b.result.Committed...)
	out.Failed = append([]string(nil), b.result.Failed...)
	out.Errors = append([]error(nil), b.result.Errors...)
	return out
}

func (b *Batcher) flush(ctx context.Context) error {
	if b.pendingOps == 0 {
		b.pending = b.pending[:0]
		return nil
	}
	if err := ctx.Err(); err != nil {
		ids := recordIDs(b.pending)
		b.result.Failed = append(b.result.Failed, ids...)
		b.pending, b.pendingOps = nil, 0
		return err
	}

	chunk := b.pending
	writes := make([]docstore.Write, 0, b.pendingOps)
	for _, m := range chunk {
		writes = append(writes, m.Writes...)
	}
	b.pending, b.pendingOps = nil, 0
	b.result.Chunks++

	ctx, span := b.tracer.Start(ctx, "batcher.commit", trace.WithAttributes(
		attribute.String("job", b.job),
		attribute.Int("chunk", b.result.Chunks),
		attribute.Int("writes", len(writes)),
		attribute.Int("records", len(chunk)),
	))
	err := b.store.Commit(ctx, writes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	b.metrics.Chunk(ctx, b.job, err)

	ids := recordIDs(chunk)
	if err != nil {
		b.result.FailedChunks++
		b.result.Failed = append(b.result.Failed, ids...)
		b.result.Errors = append(b.result.Errors, fmt.Errorf("chunk %d: %w", b.result.Chunks, err))
		b.logger.Error("chunk commit failed",
			slog.Int("chunk", b.result.Chunks),
			slog.Int("writes", len(writes)),
			slog.Int("records", len(chunk)),
			slog.String("error", err.Error()))
		return nil
	}

	b.result.Committed = append(b.result.Committed, ids...)
	b.metrics.Marked(ctx, b.job, len(chunk))
	b.logger.Info("chunk committed",
		slog.Int("chunk", b.result.Chunks),
		slog.Int("writes", len(writes)),
		slog.Int("records", len(chunk)))
	if b.onCommit != nil {
		b.onCommit(ctx, chunk)
	}
	return nil
}

func recordIDs(mutations []Mutation) []string {
	ids := make([]string, 0, len(mutations))
	for _, m := range mutations {
		ids = append(ids, m.RecordID)
	}
	return ids
}
