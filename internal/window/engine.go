package window

import (
	"context"
	"iter"
	"log/slog"

	"github.com/example/lounge-reconciler/internal/docstore"
)

// Scan selects documents of Collection whose Field lies in Window and that
// satisfy Filters. Documents with any SkipMarked field already true are
// dropped after the fetch; an absent marker counts as unset.
type Scan struct {
	Collection string
	Field      string
	Window     Window
	Filters    []docstore.Filter
	SkipMarked []string
}

// Engine issues window scans against a store.
type Engine struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(store docstore.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Query returns the store query equivalent of s.
func (s Scan) Query() docstore.Query {
	filters := make([]docstore.Filter, len(s.Filters))
	copy(filters, s.Filters)
	return docstore.Query{
		Collection: s.Collection,
		Filters:    filters,
		Range:      &docstore.Range{Field: s.Field, Start: s.Window.Start, End: s.Window.End},
	}
}

// Scan returns a lazy sequence of matching documents. An empty sequence is a
// normal outcome; a store failure is yielded once and ends the sequence.
func (e *Engine) Scan(ctx context.Context, s Scan) iter.Seq2[docstore.Document, error] {
	return func(yield func(docstore.Document, error) bool) {
		for doc, err := range e.store.Query(ctx, s.Query()) {
			if err != nil {
				yield(docstore.Document{}, err)
				return
			}
			if marker, ok := markedBy(doc, s.SkipMarked); ok {
				e.logger.Debug("skipping already processed record",
					slog.String("collection", s.Collection),
					slog.String("record_id", doc.ID),
					slog.String("marker", marker))
				continue
			}
			if ts, ok := doc.Time(s.Field); !ok || !s.Window.Contains(ts) {
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// Collect drains a scan into a slice.
func (e *Engine) Collect(ctx context.Context, s Scan) ([]docstore.Document, error) {
	docs := make([]docstore.Document, 0)
	for doc, err := range e.Scan(ctx, s) {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func markedBy(doc docstore.Document, markers []string) (string, bool) {
	for _, marker := range markers {
		if doc.Flag(marker) {
			return marker, true
		}
	}
	return "", false
}
