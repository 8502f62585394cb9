// Package sqlite implements docstore.Store on top of SQLite, keeping each
// document as a JSON body keyed by (collection, id).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/example/lounge-reconciler/internal/docstore"
	_ "modernc.org/sqlite"
)

// Store is a SQLite backed document store.
type Store struct {
	db     *sql.DB
	maxOps int
	retry  RetryConfig
}

// Open connects to dsn and applies connection pragmas. SQLite allows a single
// writer, so the pool is limited to one connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return &Store{db: db, maxOps: docstore.PlatformMaxBatchOps, retry: DefaultRetryConfig()}, nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Put seeds or replaces a document outside of the batch path.
func (s *Store) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s/%s: %w", collection, id, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		collection, id, string(body), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Query implements docstore.Store. Rows are read and closed before the first
// yield so that callers may issue writes while iterating on the single
// connection.
func (s *Store) Query(ctx context.Context, q docstore.Query) iter.Seq2[docstore.Document, error] {
	return func(yield func(docstore.Document, error) bool) {
		docs, err := s.scan(ctx, q)
		if err != nil {
			yield(docstore.Document{}, err)
			return
		}
		for _, doc := range docs {
			if !yield(doc, nil) {
				return
			}
		}
	}
}

func (s *Store) scan(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE collection = ? ORDER BY id`, q.Collection)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	docs := make([]docstore.Document, 0)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", q.Collection, err)
		}
		fields, err := decode(body)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode %s/%s: %w", q.Collection, id, err)
		}
		doc := docstore.Document{ID: id, Fields: fields}
		if docstore.Matches(doc, q) {
			docs = append(docs, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate %s: %w", q.Collection, err)
	}
	return docs, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("sqlite: get %s/%s: %w", collection, id, err)
	}
	fields, err := decode(body)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("sqlite: decode %s/%s: %w", collection, id, err)
	}
	return docstore.Document{ID: id, Fields: fields}, nil
}

// Commit implements docstore.Store within a single transaction. A commit
// that finds the database locked is rolled back and retried.
func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	if err := docstore.CheckBatch(writes, s.maxOps); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.retry.withRetry(ctx, func() error {
		return s.withTransaction(ctx, func(tx *sql.Tx) error {
			for _, w := range writes {
				if err := applyWrite(ctx, tx, w, now); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func applyWrite(ctx context.Context, tx *sql.Tx, w docstore.Write, now string) error {
	var current map[string]any
	var body string
	err := tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, w.Collection, w.ID).Scan(&body)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if w.Create == nil {
			return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, w.Collection, w.ID)
		}
		current = w.Create
	case err != nil:
		return fmt.Errorf("sqlite: load %s/%s: %w", w.Collection, w.ID, err)
	default:
		if w.Create != nil {
			return fmt.Errorf("%w: %s/%s", docstore.ErrAlreadyExists, w.Collection, w.ID)
		}
		if current, err = decode(body); err != nil {
			return fmt.Errorf("sqlite: decode %s/%s: %w", w.Collection, w.ID, err)
		}
	}

	next, err := docstore.Apply(current, w.Updates)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s/%s: %w", w.Collection, w.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		w.Collection, w.ID, string(encoded), now)
	if err != nil {
		return fmt.Errorf("sqlite: write %s/%s: %w", w.Collection, w.ID, err)
	}
	return nil
}

// MaxBatchOps implements docstore.Store.
func (s *Store) MaxBatchOps() int { return s.maxOps }

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) withTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit transaction: %w", err)
	}
	return nil
}

func decode(body string) (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
