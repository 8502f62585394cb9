package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/lounge-reconciler/internal/docstore"
)

func TestCommitIsAtomic(t *testing.T) {
	t.Parallel()

	store := New()
	store.Put("appointments", "a1", map[string]any{"sent": false})

	err := store.Commit(context.Background(), []docstore.Write{
		docstore.UpdateDoc("appointments", "a1", docstore.Set("sent", true)),
		docstore.UpdateDoc("appointments", "missing", docstore.Set("sent", true)),
	})
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	doc, err := store.Get(context.Background(), "appointments", "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Flag("sent") {
		t.Fatalf("first write must be rolled back with the failing one")
	}
	if len(store.Commits()) != 0 {
		t.Fatalf("failed commit must not be recorded")
	}
}

func TestCommitRejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	store := New(WithMaxBatchOps(1))
	store.Put("c", "1", map[string]any{})
	store.Put("c", "2", map[string]any{})
	err := store.Commit(context.Background(), []docstore.Write{
		docstore.UpdateDoc("c", "1", docstore.Set("x", 1)),
		docstore.UpdateDoc("c", "2", docstore.Set("x", 1)),
	})
	if !errors.Is(err, docstore.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestCreateAndSequentialWritesInOneCommit(t *testing.T) {
	t.Parallel()

	store := New()
	err := store.Commit(context.Background(), []docstore.Write{
		docstore.CreateDoc("notifications", "n1", map[string]any{"title": "hi"}),
		docstore.UpdateDoc("notifications", "n1", docstore.Set("isRead", false)),
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	doc, err := store.Get(context.Background(), "notifications", "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.StringOr("title", "") != "hi" || !doc.Has("isRead") {
		t.Fatalf("unexpected document %+v", doc.Fields)
	}

	err = store.Commit(context.Background(), []docstore.Write{
		docstore.CreateDoc("notifications", "n1", map[string]any{}),
	})
	if !errors.Is(err, docstore.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestQueryFiltersAndOrders(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)
	store := New()
	store.Put("appointments", "b", map[string]any{"at": base.Add(time.Minute), "started": false})
	store.Put("appointments", "a", map[string]any{"at": base, "started": false})
	store.Put("appointments", "c", map[string]any{"at": base, "started": true})
	store.Put("appointments", "d", map[string]any{"at": base.Add(time.Hour), "started": false})

	q := docstore.Query{
		Collection: "appointments",
		Filters:    []docstore.Filter{docstore.Eq("started", false)},
		Range:      &docstore.Range{Field: "at", Start: base, End: base.Add(10 * time.Minute)},
	}
	var ids []string
	for doc, err := range store.Query(context.Background(), q) {
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		ids = append(ids, doc.ID)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestQueryFailureIsYielded(t *testing.T) {
	t.Parallel()

	store := New()
	boom := errors.New("unreachable")
	store.FailQueries(boom)
	for _, err := range store.Query(context.Background(), docstore.Query{Collection: "x"}) {
		if !errors.Is(err, boom) {
			t.Fatalf("expected query error, got %v", err)
		}
		return
	}
	t.Fatalf("expected the failure to be yielded")
}
