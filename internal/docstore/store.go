// Package docstore defines the document store contract consumed by the
// reconciliation engine: range queries over indexed fields, single document
// reads, and atomic multi-document commits bounded by an operation cap.
package docstore

import (
	"context"
	"fmt"
	"iter"
	"time"
)

const (
	// PlatformMaxBatchOps is the hard per-commit operation cap of the backing
	// platform.
	PlatformMaxBatchOps = 500
	// DefaultChunkSize keeps commits safely below the platform cap.
	DefaultChunkSize = 250
)

// Filter is an equality predicate. A document without the field never matches.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Range selects documents whose timestamp field lies in [Start, End). A zero
// Start or End leaves that side unbounded.
type Range struct {
	Field string
	Start time.Time
	End   time.Time
}

// Query describes a collection scan.
type Query struct {
	Collection string
	Filters    []Filter
	Range      *Range
}

// UpdateKind enumerates field level mutations.
type UpdateKind int

const (
	// UpdateSet overwrites the field.
	UpdateSet UpdateKind = iota
	// UpdateDelete removes the field.
	UpdateDelete
	// UpdateAppend appends the value to an array field, creating it when absent.
	UpdateAppend
)

// FieldUpdate is one field level mutation.
type FieldUpdate struct {
	Field string
	Kind  UpdateKind
	Value any
}

// Set overwrites field with value.
func Set(field string, value any) FieldUpdate {
	return FieldUpdate{Field: field, Kind: UpdateSet, Value: value}
}

// Delete removes field.
func Delete(field string) FieldUpdate {
	return FieldUpdate{Field: field, Kind: UpdateDelete}
}

// Append adds value to the array held by field.
func Append(field string, value any) FieldUpdate {
	return FieldUpdate{Field: field, Kind: UpdateAppend, Value: value}
}

// Write is one operation inside an atomic commit. When Create is non-nil the
// document is created and must not exist; otherwise Updates are applied to an
// existing document.
type Write struct {
	Collection string
	ID         string
	Create     map[string]any
	Updates    []FieldUpdate
}

// UpdateDoc builds an update write.
func UpdateDoc(collection, id string, updates ...FieldUpdate) Write {
	return Write{Collection: collection, ID: id, Updates: updates}
}

// CreateDoc builds a create write.
func CreateDoc(collection, id string, fields map[string]any) Write {
	if fields == nil {
		fields = map[string]any{}
	}
	return Write{Collection: collection, ID: id, Create: fields}
}

// Validate checks structural requirements shared by every store.
func (w Write) Validate() error {
	if w.Collection == "" || w.ID == "" {
		return fmt.Errorf("%w: collection and id are required", ErrInvalidWrite)
	}
	if w.Create == nil && len(w.Updates) == 0 {
		return fmt.Errorf("%w: %s/%s has no updates", ErrInvalidWrite, w.Collection, w.ID)
	}
	return nil
}

// Store is the document store client.
type Store interface {
	// Query returns a lazy sequence of matching documents. A store failure is
	// yielded as a non-nil error, after which the sequence stops.
	Query(ctx context.Context, q Query) iter.Seq2[Document, error]
	// Get returns ErrNotFound when the document is absent.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Commit applies every write atomically: all succeed or none do.
	Commit(ctx context.Context, writes []Write) error
	// MaxBatchOps is the largest number of writes accepted by Commit.
	MaxBatchOps() int
	Close() error
}

// CheckBatch validates a commit against limit.
func CheckBatch(writes []Write, limit int) error {
	if limit > 0 && len(writes) > limit {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(writes), limit)
	}
	for _, w := range writes {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	return nil
}
