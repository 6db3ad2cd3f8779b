package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/festreg/internal/store"
	"github.com/Shivanand-hulikatti/festreg/internal/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fest.db"))
	require.NoError(t, err, "Open should succeed")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTemp(t) })
}

func TestOpen_CreatesNestedDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "fest.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.False(t, info.IsDir())
}

func TestOpen_ReopenKeepsDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fest.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	id, err := s1.Insert(ctx, store.KindSetting, map[string]string{"name": "upi", "value": "fest@bank"})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	docs, err := s2.Query(ctx, store.Query{Kind: store.KindSetting, Field: "name", Equals: "upi"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, id, docs[0].ID)
}

func TestOpen_CreatesIndexes(t *testing.T) {
	s := openTemp(t)
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name IN ('event_by_link', 'event_by_name', 'setting_by_name')`).Scan(&n)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
