// Package firestore implements docstore.Store with Cloud Firestore. Equality
// filters and the timestamp range are pushed down to the server; commits run
// inside a Firestore transaction so each chunk is applied atomically.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"iter"

	gcfirestore "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/lounge-reconciler/internal/docstore"
)

// Store wraps a Firestore client. The client is owned by the Store and closed
// with it.
type Store struct {
	client *gcfirestore.Client
	maxOps int
}

// Open creates a Firestore client for projectID.
func Open(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	client, err := gcfirestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: new client: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client *gcfirestore.Client) *Store {
	return &Store{client: client, maxOps: docstore.PlatformMaxBatchOps}
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, q docstore.Query) iter.Seq2[docstore.Document, error] {
	return func(yield func(docstore.Document, error) bool) {
		query := s.client.Collection(q.Collection).Query
		for _, filter := range q.Filters {
			query = query.Where(filter.Field, "==", filter.Value)
		}
		if q.Range != nil {
			if !q.Range.Start.IsZero() {
				query = query.Where(q.Range.Field, ">=", q.Range.Start.UTC())
			}
			if !q.Range.End.IsZero() {
				query = query.Where(q.Range.Field, "<", q.Range.End.UTC())
			}
		}

		it := query.Documents(ctx)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield(docstore.Document{}, fmt.Errorf("firestore: query %s: %w", q.Collection, err))
				return
			}
			if !yield(docstore.Document{ID: snap.Ref.ID, Fields: snap.Data()}, nil) {
				return
			}
		}
	}
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("firestore: get %s/%s: %w", collection, id, err)
	}
	return docstore.Document{ID: snap.Ref.ID, Fields: snap.Data()}, nil
}

// Commit implements docstore.Store. The transaction function may be retried
// by the client on contention; it holds no state across attempts.
func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	if err := docstore.CheckBatch(writes, s.maxOps); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *gcfirestore.Transaction) error {
		for _, w := range writes {
			ref := s.client.Collection(w.Collection).Doc(w.ID)
			if w.Create != nil {
				if err := tx.Create(ref, createData(w)); err != nil {
					return err
				}
				continue
			}
			if err := tx.Update(ref, toUpdates(w.Updates)); err != nil {
				return err
			}
		}
		return nil
	})
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.NotFound:
		return fmt.Errorf("%w: %v", docstore.ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", docstore.ErrAlreadyExists, err)
	}
	return fmt.Errorf("firestore: commit: %w", err)
}

// MaxBatchOps implements docstore.Store.
func (s *Store) MaxBatchOps() int { return s.maxOps }

// Close implements docstore.Store.
func (s *Store) Close() error { return s.client.Close() }

// createData folds follow-up updates of a create into the initial payload,
// since Firestore rejects a create and an update of the same document in one
// transaction.
func createData(w docstore.Write) map[string]any {
	data, err := docstore.Apply(w.Create, w.Updates)
	if err != nil {
		return w.Create
	}
	return data
}

func toUpdates(updates []docstore.FieldUpdate) []gcfirestore.Update {
	out := make([]gcfirestore.Update, 0, len(updates))
	for _, update := range updates {
		switch update.Kind {
		case docstore.UpdateSet:
			out = append(out, gcfirestore.Update{Path: update.Field, Value: update.Value})
		case docstore.UpdateDelete:
			out = append(out, gcfirestore.Update{Path: update.Field, Value: gcfirestore.Delete})
		case docstore.UpdateAppend:
			out = append(out, gcfirestore.Update{Path: update.Field, Value: gcfirestore.ArrayUnion(update.Value)})
		}
	}
	return out
}
