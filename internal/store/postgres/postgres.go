// Package postgres implements the document store on a single JSONB table.
// It uses pgx directly (no ORM); the schema comes from internal/database
// migrations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/festreg/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store persists documents in the `documents` table.
type Store struct {
	db    *pgxpool.Pool
	clock store.Clock
}

// New constructs a Store on an open pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db, clock: store.SystemClock}
}

// Insert stores fields under a fresh UUID.
func (s *Store) Insert(ctx context.Context, kind store.Kind, fields any) (string, error) {
	raw, err := store.MarshalFields(fields)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	_, err = s.db.Exec(ctx,
		`INSERT INTO documents (id, kind, created_at, body)
		 VALUES ($1, $2, $3, $4::jsonb)`,
		id, string(kind), s.clock(), string(raw),
	)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", kind, err)
	}
	return id, nil
}

// Get returns a single document or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*store.Document, error) {
	var (
		d    store.Document
		kind string
		body []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, kind, created_at, body FROM documents WHERE id = $1`,
		id,
	).Scan(&d.ID, &kind, &d.CreatedAt, &body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	d.Kind = store.Kind(kind)
	d.Fields = json.RawMessage(body)
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

// Patch merges fields with the jsonb || operator, which replaces top-level keys.
func (s *Store) Patch(ctx context.Context, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET body = body || $2::jsonb WHERE id = $1`,
		id, string(raw),
	)
	if err != nil {
		return fmt.Errorf("patch document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Query builds a SELECT over the kind, using the partial expression indexes
// for filtering and ordering. Field names come from store.Indexes only.
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	args := []any{string(q.Kind)}
	sb.WriteString(`SELECT id, kind, created_at, body FROM documents WHERE kind = $1`)
	if q.Field != "" {
		args = append(args, q.Equals)
		fmt.Fprintf(&sb, ` AND body->>'%s' = $%d`, q.Field, len(args))
	}
	dir := "ASC"
	if q.Order == store.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&sb, ` ORDER BY body->>'%s' %s, seq %s`, q.OrderBy, dir, dir)
	} else {
		fmt.Fprintf(&sb, ` ORDER BY created_at %s, seq %s`, dir, dir)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Kind, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var (
			d       store.Document
			kind    string
			body    []byte
			created time.Time
		)
		if err := rows.Scan(&d.ID, &kind, &created, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Kind = store.Kind(kind)
		d.CreatedAt = created.UTC()
		d.Fields = json.RawMessage(body)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
