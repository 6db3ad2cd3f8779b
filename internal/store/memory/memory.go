// Package memory is an in-process document store. It backs tests and the
// zero-dependency development mode.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/festreg/internal/store"
)

var _ store.Store = (*Store)(nil)

type entry struct {
	doc store.Document
	seq uint64
}

// Store keeps every document in a map guarded by a RWMutex.
type Store struct {
	mu    sync.RWMutex
	clock store.Clock
	seq   uint64
	docs  map[string]entry
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the creation timestamp source.
func WithClock(c store.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New constructs an empty Store.
func New(opts ...Option) *Store {
	s := &Store{clock: store.SystemClock, docs: map[string]entry{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cloneDoc(d store.Document) store.Document {
	d.Fields = bytes.Clone(d.Fields)
	return d
}

// Insert stores fields under a fresh id.
func (s *Store) Insert(ctx context.Context, kind store.Kind, fields any) (string, error) {
	raw, err := store.MarshalFields(fields)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := uuid.New().String()
	s.docs[id] = entry{
		doc: store.Document{ID: id, Kind: kind, CreatedAt: s.clock(), Fields: raw},
		seq: s.seq,
	}
	return id, nil
}

// Get returns a copy of the document or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	d := cloneDoc(e.doc)
	return &d, nil
}

// Patch merges fields into the stored document.
func (s *Store) Patch(ctx context.Context, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	merged, err := store.MergeFields(e.doc.Fields, fields)
	if err != nil {
		return fmt.Errorf("patch %s: %w", id, err)
	}
	e.doc.Fields = merged
	s.docs[id] = e
	return nil
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

// Query scans the collection, evaluating the index filter in process.
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]entry, 0)
	for _, e := range s.docs {
		if e.doc.Kind != q.Kind {
			continue
		}
		if q.Field != "" && store.FieldString(e.doc.Fields, q.Field) != q.Equals {
			continue
		}
		matched = append(matched, entry{doc: cloneDoc(e.doc), seq: e.seq})
	}
	s.mu.RUnlock()

	less := func(a, b entry) bool {
		if q.OrderBy != "" {
			av, bv := store.FieldString(a.doc.Fields, q.OrderBy), store.FieldString(b.doc.Fields, q.OrderBy)
			if av != bv {
				return av < bv
			}
		} else if !a.doc.CreatedAt.Equal(b.doc.CreatedAt) {
			return a.doc.CreatedAt.Before(b.doc.CreatedAt)
		}
		return a.seq < b.seq
	}
	sort.Slice(matched, func(i, j int) bool {
		if q.Order == store.Desc {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]store.Document, len(matched))
	for i, e := range matched {
		out[i] = e.doc
	}
	return out, nil
}

// Len returns the number of stored documents of kind.
func (s *Store) Len(kind store.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.docs {
		if e.doc.Kind == kind {
			n++
		}
	}
	return n
}
