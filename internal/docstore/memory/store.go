// Package memory provides an in-process docstore.Store used by tests and local
// development. It mirrors the production backend's semantics: equality filters
// never match absent fields, ranges are closed-open in UTC, and commits are
// all-or-nothing.
package memory

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/example/lounge-reconciler/internal/docstore"
)

// CommitHook can veto a commit before it is applied.
type CommitHook func(writes []docstore.Write) error

// Store is the in-memory document store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	maxOps      int
	commitHook  CommitHook
	queryErr    error
	commits     [][]docstore.Write
}

// Option configures a Store.
type Option func(*Store)

// WithMaxBatchOps overrides the per-commit operation cap.
func WithMaxBatchOps(n int) Option {
	return func(s *Store) { s.maxOps = n }
}

// WithCommitHook installs a hook consulted before every commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.commitHook = hook }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]map[string]any),
		maxOps:      docstore.PlatformMaxBatchOps,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put seeds a document, replacing any existing one.
func (s *Store) Put(collection, id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectionLocked(collection)[id] = docstore.Document{Fields: fields}.Clone().Fields
}

// FailQueries makes every subsequent Query yield err. Pass nil to reset.
func (s *Store) FailQueries(err error) {
	s.mu.Lock()
	s.queryErr = err
	s.mu.Unlock()
}

// SetCommitHook replaces the commit hook.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	s.commitHook = hook
	s.mu.Unlock()
}

// Commits returns a copy of every successfully applied commit in order.
func (s *Store) Commits() [][]docstore.Write {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]docstore.Write, len(s.commits))
	copy(out, s.commits)
	return out
}

// Query implements docstore.Store. Results are materialised under the read
// lock and yielded in id order.
func (s *Store) Query(ctx context.Context, q docstore.Query) iter.Seq2[docstore.Document, error] {
	return func(yield func(docstore.Document, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(docstore.Document{}, err)
			return
		}
		s.mu.RLock()
		if s.queryErr != nil {
			err := s.queryErr
			s.mu.RUnlock()
			yield(docstore.Document{}, err)
			return
		}
		matches := make([]docstore.Document, 0)
		for id, fields := range s.collections[q.Collection] {
			doc := docstore.Document{ID: id, Fields: fields}
			if docstore.Matches(doc, q) {
				matches = append(matches, doc.Clone())
			}
		}
		s.mu.RUnlock()

		sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
		for _, doc := range matches {
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Fields: fields}.Clone(), nil
}

// Commit implements docstore.Store. Every write is staged against a scratch
// view first so that a failing write leaves the store untouched.
func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := docstore.CheckBatch(writes, s.maxOps); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitHook != nil {
		if err := s.commitHook(writes); err != nil {
			return err
		}
	}

	type key struct{ collection, id string }
	staged := make(map[key]map[string]any)
	lookup := func(k key) (map[string]any, bool) {
		if fields, ok := staged[k]; ok {
			return fields, fields != nil
		}
		fields, ok := s.collections[k.collection][k.id]
		return fields, ok
	}

	for _, w := range writes {
		k := key{w.Collection, w.ID}
		current, exists := lookup(k)
		if w.Create != nil {
			if exists {
				return fmt.Errorf("%w: %s/%s", docstore.ErrAlreadyExists, w.Collection, w.ID)
			}
			current = map[string]any{}
			for field, value := range w.Create {
				current[field] = value
			}
			current = docstore.Document{Fields: current}.Clone().Fields
		} else if !exists {
			return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, w.Collection, w.ID)
		}
		next, err := docstore.Apply(current, w.Updates)
		if err != nil {
			return err
		}
		staged[k] = next
	}

	for k, fields := range staged {
		s.collectionLocked(k.collection)[k.id] = fields
	}
	applied := make([]docstore.Write, len(writes))
	copy(applied, writes)
	s.commits = append(s.commits, applied)
	return nil
}

// MaxBatchOps implements docstore.Store.
func (s *Store) MaxBatchOps() int { return s.maxOps }

// Close implements docstore.Store. No-op for the in-memory implementation.
func (s *Store) Close() error { return nil }

func (s *Store) collectionLocked(name string) map[string]map[string]any {
	docs, ok := s.collections[name]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[name] = docs
	}
	return docs
}
