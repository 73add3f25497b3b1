// Package storage keeps JSON documents in a SQL table, grouped by
// collection, on Postgres (pgx) or SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("document not found")

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body TEXT NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (collection, id)
)`

const upsert = `
INSERT INTO documents (collection, id, body, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Store struct {
	db       *sql.DB
	postgres bool
}

// Document is one stored body with its key.
type Document struct {
	ID   string
	Body json.RawMessage
}

// Open connects with driver ("pgx" or "sqlite"), retrying the first ping
// while the database comes up, and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := waitForDB(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, postgres: driver == "pgx"}
	if !s.postgres {
		// One writer at a time; also keeps an in-memory database on a
		// single connection.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

func waitForDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	var err error
	for i := 0; i < 10; i++ {
		var db *sql.DB
		db, err = sql.Open(driver, dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				slog.InfoContext(ctx, "connected to database", "driver", driver)
				return db, nil
			}
			db.Close()
		}
		slog.WarnContext(ctx, "waiting for database", "driver", driver, "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("could not connect to database after retries: %w", err)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Put upserts doc under (collection, id).
func (s *Store) Put(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(upsert), collection, id, string(body), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

// PutMany upserts docs in one transaction. Keys and docs pair by index.
func (s *Store) PutMany(ctx context.Context, collection string, ids []string, docs []any) error {
	if len(ids) != len(docs) {
		return fmt.Errorf("put many %s: %d ids for %d docs", collection, len(ids), len(docs))
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(upsert))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for i, doc := range docs {
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, ids[i], err)
		}
		if _, err := stmt.ExecContext(ctx, collection, ids[i], string(body), now); err != nil {
			return fmt.Errorf("put %s/%s: %w", collection, ids[i], err)
		}
	}
	return tx.Commit()
}

// Get decodes the document into out and reports whether it exists.
func (s *Store) Get(ctx context.Context, collection, id string, out any) (bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM documents WHERE collection = ? AND id = ?`), collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

// List returns every document in collection ordered by id.
func (s *Store) List(ctx context.Context, collection string) ([]Document, error) {
	return s.query(ctx, `SELECT id, body FROM documents WHERE collection = ? ORDER BY id`, collection)
}

// FindBy returns documents whose top-level field equals value, compared as
// text.
func (s *Store) FindBy(ctx context.Context, collection, field, value string) ([]Document, error) {
	if !fieldName.MatchString(field) {
		return nil, fmt.Errorf("find by: invalid field %q", field)
	}
	if s.postgres {
		return s.query(ctx, `SELECT id, body FROM documents WHERE collection = ? AND body::jsonb ->> ? = ? ORDER BY id`,
			collection, field, value)
	}
	return s.query(ctx, `SELECT id, body FROM documents WHERE collection = ? AND CAST(json_extract(body, ?) AS TEXT) = ? ORDER BY id`,
		collection, "$."+field, value)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: id, Body: json.RawMessage(body)})
	}
	return docs, rows.Err()
}

// Merge overwrites the given top-level fields of an existing document and
// leaves the rest untouched. It returns ErrNotFound if there is no document.
func (s *Store) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := s.merge(ctx, collection, id, nil, fields)
	return err
}

// MergeIf is Merge guarded on a top-level string field: fields are written
// only while the stored field still equals want, checked and written in one
// transaction. It reports whether the document was changed.
func (s *Store) MergeIf(ctx context.Context, collection, id, field, want string, fields map[string]any) (bool, error) {
	return s.merge(ctx, collection, id, func(doc map[string]json.RawMessage) bool {
		var got string
		return json.Unmarshal(doc[field], &got) == nil && got == want
	}, fields)
}

func (s *Store) merge(ctx context.Context, collection, id string, guard func(map[string]json.RawMessage) bool, fields map[string]any) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	query := `SELECT body FROM documents WHERE collection = ? AND id = ?`
	if s.postgres {
		query += ` FOR UPDATE`
	}
	var body string
	err = tx.QueryRowContext(ctx, s.rebind(query), collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("merge %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("merge %s/%s: %w", collection, id, err)
	}

	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	if guard != nil && !guard(doc) {
		return false, nil
	}
	for name, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return false, fmt.Errorf("encode %s/%s.%s: %w", collection, id, name, err)
		}
		doc[name] = raw
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, s.rebind(`UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?`),
		string(merged), time.Now().UnixMilli(), collection, id)
	if err != nil {
		return false, fmt.Errorf("merge %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
