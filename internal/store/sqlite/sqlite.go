// Package sqlite implements the document store on an embedded SQLite file
// using the pure Go modernc driver. Index filters use JSON1 expressions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/Shivanand-hulikatti/festreg/internal/store"
)

var _ store.Store = (*Store)(nil)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT    NOT NULL UNIQUE,
	kind       TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	body       TEXT    NOT NULL
)`

// Store persists documents in a single SQLite table.
type Store struct {
	db    *sql.DB
	clock store.Clock
}

// Open creates (if needed) and opens the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "festreg.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the fan-out in the maintainer would otherwise hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		schema,
		`CREATE INDEX IF NOT EXISTS documents_kind_created ON documents (kind, created_at, seq)`,
	}
	for _, kind := range store.Kinds {
		for _, field := range store.Indexes[kind] {
			stmts = append(stmts, fmt.Sprintf(
				`CREATE INDEX IF NOT EXISTS %s_by_%s ON documents (json_extract(body, '$.%s')) WHERE kind = '%s'`,
				kind, field, field, kind,
			))
		}
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return &Store{db: db, clock: store.SystemClock}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores fields under a fresh UUID.
func (s *Store) Insert(ctx context.Context, kind store.Kind, fields any) (string, error) {
	raw, err := store.MarshalFields(fields)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, kind, created_at, body) VALUES (?, ?, ?, ?)`,
		id, string(kind), s.clock().UnixNano(), string(raw),
	); err != nil {
		return "", fmt.Errorf("insert %s: %w", kind, err)
	}
	return id, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (store.Document, error) {
	var (
		d       store.Document
		kind    string
		created int64
		body    string
	)
	if err := row.Scan(&d.ID, &kind, &created, &body); err != nil {
		return store.Document{}, err
	}
	d.Kind = store.Kind(kind)
	d.CreatedAt = time.Unix(0, created).UTC()
	d.Fields = json.RawMessage(body)
	return d, nil
}

// Get returns a single document or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*store.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, kind, created_at, body FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &d, nil
}

// Patch reads, merges and writes the document inside one transaction.
func (s *Store) Patch(ctx context.Context, id string, fields map[string]any) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin patch: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	var body string
	if err := tx.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, id).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("read for patch: %w", err)
	}
	merged, err := store.MergeFields(json.RawMessage(body), fields)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET body = ? WHERE id = ?`, string(merged), id); err != nil {
		return fmt.Errorf("patch document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit patch: %w", err)
	}
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Query filters and orders with json_extract over indexed fields only.
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var sb strings.Builder
	args := []any{string(q.Kind)}
	sb.WriteString(`SELECT id, kind, created_at, body FROM documents WHERE kind = ?`)
	if q.Field != "" {
		fmt.Fprintf(&sb, ` AND json_extract(body, '$.%s') = ?`, q.Field)
		args = append(args, q.Equals)
	}
	dir := "ASC"
	if q.Order == store.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&sb, ` ORDER BY json_extract(body, '$.%s') %s, seq %s`, q.OrderBy, dir, dir)
	} else {
		fmt.Fprintf(&sb, ` ORDER BY created_at %s, seq %s`, dir, dir)
	}
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Kind, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []store.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
