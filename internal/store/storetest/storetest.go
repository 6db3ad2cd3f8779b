// Package storetest is a conformance suite every store backend runs from its
// own tests.
package storetest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/festreg/internal/store"
)

type eventFields struct {
	Name string   `json:"name"`
	Link string   `json:"link"`
	Fee  int      `json:"fee"`
	Refs []string `json:"registration_refs"`
}

type settingFields struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Run exercises the store contract against the backend returned by open.
// open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("InsertGet", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		id, err := s.Insert(ctx, store.KindEvent, eventFields{Name: "Quiz", Link: "quiz", Fee: 100, Refs: []string{}})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		doc, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, id, doc.ID)
		require.Equal(t, store.KindEvent, doc.Kind)
		require.False(t, doc.CreatedAt.IsZero())

		var got eventFields
		require.NoError(t, doc.Decode(&got))
		require.Equal(t, "Quiz", got.Name)
		require.Equal(t, 100, got.Fee)
		require.Empty(t, got.Refs)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
		require.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("PatchMergesTopLevel", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		id, err := s.Insert(ctx, store.KindEvent, eventFields{Name: "Quiz", Link: "quiz", Fee: 100, Refs: []string{}})
		require.NoError(t, err)

		require.NoError(t, s.Patch(ctx, id, map[string]any{"registration_refs": []string{"r1", "r2"}}))
		require.NoError(t, s.Patch(ctx, id, map[string]any{"fee": 150}))

		doc, err := s.Get(ctx, id)
		require.NoError(t, err)
		var got eventFields
		require.NoError(t, doc.Decode(&got))
		require.Equal(t, "Quiz", got.Name)
		require.Equal(t, 150, got.Fee)
		require.Equal(t, []string{"r1", "r2"}, got.Refs)
	})

	t.Run("PatchDeleteMissing", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		missing := "00000000-0000-0000-0000-000000000001"
		require.True(t, errors.Is(s.Patch(ctx, missing, map[string]any{"fee": 1}), store.ErrNotFound))
		require.True(t, errors.Is(s.Delete(ctx, missing), store.ErrNotFound))
	})

	t.Run("Delete", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		id, err := s.Insert(ctx, store.KindSetting, settingFields{Name: "upi", Value: "fest@bank"})
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, id))
		_, err = s.Get(ctx, id)
		require.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("QueryIndexFilter", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for _, n := range []string{"Dance", "Art", "Quiz"} {
			_, err := s.Insert(ctx, store.KindEvent, eventFields{Name: n, Link: strings.ToLower(n), Refs: []string{}})
			require.NoError(t, err)
		}
		_, err := s.Insert(ctx, store.KindSetting, settingFields{Name: "Art", Value: "x"})
		require.NoError(t, err)

		docs, err := s.Query(ctx, store.Query{Kind: store.KindEvent, Field: "link", Equals: "quiz"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		var got eventFields
		require.NoError(t, docs[0].Decode(&got))
		require.Equal(t, "Quiz", got.Name)

		docs, err = s.Query(ctx, store.Query{Kind: store.KindEvent, Field: "link", Equals: "nope"})
		require.NoError(t, err)
		require.Empty(t, docs)
	})

	t.Run("QueryOrderByIndex", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for _, n := range []string{"Dance", "Art", "Quiz"} {
			_, err := s.Insert(ctx, store.KindEvent, eventFields{Name: n, Link: strings.ToLower(n), Refs: []string{}})
			require.NoError(t, err)
		}

		docs, err := s.Query(ctx, store.Query{Kind: store.KindEvent, OrderBy: "name"})
		require.NoError(t, err)
		require.Equal(t, []string{"Art", "Dance", "Quiz"}, names(t, docs))

		docs, err = s.Query(ctx, store.Query{Kind: store.KindEvent, OrderBy: "name", Order: store.Desc, Limit: 2})
		require.NoError(t, err)
		require.Equal(t, []string{"Quiz", "Dance"}, names(t, docs))
	})

	t.Run("QueryCreationOrder", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		var ids []string
		for _, n := range []string{"first", "second", "third"} {
			id, err := s.Insert(ctx, store.KindRegistration, map[string]any{"participant_name": n})
			require.NoError(t, err)
			ids = append(ids, id)
		}

		docs, err := s.Query(ctx, store.Query{Kind: store.KindRegistration, Order: store.Desc})
		require.NoError(t, err)
		require.Len(t, docs, 3)
		require.Equal(t, ids[2], docs[0].ID)
		require.Equal(t, ids[0], docs[2].ID)
	})

	t.Run("QueryUnindexed", func(t *testing.T) {
		s := open(t)
		_, err := s.Query(context.Background(), store.Query{Kind: store.KindRegistration, Field: "email", Equals: "a@b.c"})
		require.True(t, errors.Is(err, store.ErrNoIndex))
	})
}

func names(t *testing.T, docs []store.Document) []string {
	t.Helper()
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		var f eventFields
		require.NoError(t, d.Decode(&f))
		out = append(out, f.Name)
	}
	return out
}
