package batcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/example/lounge-reconciler/internal/docstore"
	"github.com/example/lounge-reconciler/internal/docstore/memory"
)

type committerStub struct {
	calls  [][]docstore.Write
	failOn map[int]error
}

func (c *committerStub) Commit(ctx context.Context, writes []docstore.Write) error {
	c.calls = append(c.calls, writes)
	if err, ok := c.failOn[len(c.calls)]; ok {
		return err
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func markerMutation(id string) Mutation {
	return Mutation{
		RecordID: id,
		Writes:   []docstore.Write{docstore.UpdateDoc("appointments", id, docstore.Set("reminderSent", true))},
	}
}

func TestBatcherSplitsIntoCeilChunks(t *testing.T) {
	t.Parallel()

	cases := []struct {
		records int
		size    int
		want    []int
	}{
		{records: 7, size: 3, want: []int{3, 3, 1}},
		{records: 6, size: 3, want: []int{3, 3}},
		{records: 1, size: 250, want: []int{1}},
		{records: 501, size: 250, want: []int{250, 250, 1}},
	}
	for _, tc := range cases {
		stub := &committerStub{}
		mutations := make([]Mutation, 0, tc.records)
		for i := 0; i < tc.records; i++ {
			mutations = append(mutations, markerMutation(fmt.Sprintf("r%03d", i)))
		}
		result, err := commitAll(context.Background(), stub, tc.size, mutations, WithLogger(quietLogger()))
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if len(stub.calls) != chunkCount(tc.records, tc.size) || len(stub.calls) != len(tc.want) {
			t.Fatalf("%d records/%d: expected %d chunks, got %d", tc.records, tc.size, len(tc.want), len(stub.calls))
		}
		for i, call := range stub.calls {
			if len(call) != tc.want[i] {
				t.Fatalf("chunk %d: expected %d writes, got %d", i, tc.want[i], len(call))
			}
		}
		if result.Chunks != len(tc.want) || len(result.Committed) != tc.records {
			t.Fatalf("unexpected result %+v", result)
		}
	}
}

func TestBatcherEmptyDoesNotCommit(t *testing.T) {
	t.Parallel()

	stub := &committerStub{}
	b := New(stub, 10)
	if err := b.Add(context.Background(), Mutation{RecordID: "noop"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(stub.calls) != 0 {
		t.Fatalf("expected no commit calls, got %d", len(stub.calls))
	}
}

func TestBatcherKeepsRecordWritesTogether(t *testing.T) {
	t.Parallel()

	stub := &committerStub{}
	b := New(stub, 3, WithLogger(quietLogger()))
	for _, id := range []string{"a", "b", "c"} {
		m := Mutation{RecordID: id, Writes: []docstore.Write{
			docstore.UpdateDoc("attendance", id, docstore.Set("isClockedIn", false)),
			docstore.CreateDoc("notifications", "n-"+id, map[string]any{"userId": id}),
		}}
		if err := b.Add(context.Background(), m); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(stub.calls) != 3 {
		t.Fatalf("expected one chunk per record, got %d", len(stub.calls))
	}
	for i, call := range stub.calls {
		if len(call) != 2 || call[0].ID != call[1].Create["userId"] {
			t.Fatalf("chunk %d split a record: %+v", i, call)
		}
	}
}

func TestBatcherFailedChunkDoesNotStopLaterChunks(t *testing.T) {
	t.Parallel()

	boom := errors.New("commit failed")
	stub := &committerStub{failOn: map[int]error{2: boom}}
	mutations := []Mutation{markerMutation("a"), markerMutation("b"), markerMutation("c"), markerMutation("d"), markerMutation("e")}

	result, err := commitAll(context.Background(), stub, 2, mutations, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("commit returned %v", err)
	}
	if len(stub.calls) != 3 {
		t.Fatalf("expected 3 chunk attempts, got %d", len(stub.calls))
	}
	if result.FailedChunks != 1 || !errors.Is(result.Err(), boom) {
		t.Fatalf("unexpected failure accounting %+v", result)
	}
	if fmt.Sprint(result.Committed) != "[a b e]" || fmt.Sprint(result.Failed) != "[c d]" {
		t.Fatalf("unexpected committed=%v failed=%v", result.Committed, result.Failed)
	}
}

func TestBatcherStopsAtChunkBoundaryOnCancel(t *testing.T) {
	t.Parallel()

	stub := &committerStub{}
	ctx, cancel := context.WithCancel(context.Background())
	b := New(stub, 2, WithLogger(quietLogger()))
	if err := b.Add(ctx, markerMutation("a")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.Add(ctx, markerMutation("b")); err != nil {
		t.Fatalf("add: %v", err)
	}
	cancel()
	if err := b.Add(ctx, markerMutation("c")); err != nil {
		t.Fatalf("add before boundary: %v", err)
	}
	if err := b.Flush(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(stub.calls) != 1 {
		t.Fatalf("expected only the first chunk to commit, got %d", len(stub.calls))
	}
	if got := b.Result(); fmt.Sprint(got.Committed) != "[a b]" || fmt.Sprint(got.Failed) != "[c]" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestBatcherRejectsOversizedMutation(t *testing.T) {
	t.Parallel()

	stub := &committerStub{}
	b := New(stub, 1, WithLogger(quietLogger()))
	m := Mutation{RecordID: "big", Writes: []docstore.Write{
		docstore.UpdateDoc("c", "1", docstore.Set("a", 1)),
		docstore.UpdateDoc("c", "2", docstore.Set("a", 1)),
	}}
	if err := b.Add(context.Background(), m); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	result := b.Result()
	if !errors.Is(result.Err(), ErrMutationTooLarge) || len(stub.calls) != 0 {
		t.Fatalf("expected rejection without commit, got %+v", result)
	}
}

func TestBatcherSizeIsClamped(t *testing.T) {
	t.Parallel()

	if got := New(&committerStub{}, 0).Size(); got != docstore.DefaultChunkSize {
		t.Fatalf("expected default size, got %d", got)
	}
	if got := New(&committerStub{}, 10_000).Size(); got != docstore.PlatformMaxBatchOps {
		t.Fatalf("expected platform cap, got %d", got)
	}
	if got := New(memory.New(memory.WithMaxBatchOps(50)), 250).Size(); got != 50 {
		t.Fatalf("expected store cap, got %d", got)
	}
}

func TestBatcherMarkersVisibleAfterCommit(t *testing.T) {
	t.Parallel()

	store := memory.New()
	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		store.Put("appointments", id, map[string]any{"reminderSent": false})
	}

	var observed []string
	_, err := commitAll(context.Background(), store, 2, []Mutation{markerMutation("a"), markerMutation("b"), markerMutation("c")},
		WithLogger(quietLogger()),
		OnCommit(func(ctx context.Context, committed []Mutation) {
			for _, m := range committed {
				doc, err := store.Get(ctx, "appointments", m.RecordID)
				if err != nil || !doc.Flag("reminderSent") {
					t.Errorf("marker for %s not set after commit", m.RecordID)
				}
				observed = append(observed, m.RecordID)
			}
		}))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if fmt.Sprint(observed) != fmt.Sprint(ids) {
		t.Fatalf("expected commit callbacks for %v, got %v", ids, observed)
	}
}

// commitAll adds every mutation and flushes, as the jobs do.
func commitAll(ctx context.Context, store Committer, size int, mutations []Mutation, opts ...Option) (Result, error) {
	b := New(store, size, opts...)
	for _, m := range mutations {
		if err := b.Add(ctx, m); err != nil {
			return b.Result(), err
		}
	}
	err := b.Flush(ctx)
	return b.Result(), err
}

// chunkCount is ⌈ops/size⌉.
func chunkCount(ops, size int) int {
	if ops <= 0 || size <= 0 {
		return 0
	}
	return (ops + size - 1) / size
}
