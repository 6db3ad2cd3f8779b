package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/festreg/internal/store"
	"github.com/Shivanand-hulikatti/festreg/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestStore_UsesInjectedClock(t *testing.T) {
	at := time.Date(2026, 2, 14, 10, 30, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return at }))

	id, err := s.Insert(context.Background(), store.KindSetting, map[string]string{"name": "upi", "value": "x"})
	require.NoError(t, err)

	doc, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, at, doc.CreatedAt)
	require.Equal(t, 1, s.Len(store.KindSetting))
	require.Equal(t, 0, s.Len(store.KindEvent))
}

func TestStore_EqualTimestampsKeepInsertionOrder(t *testing.T) {
	at := time.Date(2026, 2, 14, 10, 30, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return at }))
	ctx := context.Background()

	a, err := s.Insert(ctx, store.KindRegistration, map[string]string{"participant_name": "a"})
	require.NoError(t, err)
	b, err := s.Insert(ctx, store.KindRegistration, map[string]string{"participant_name": "b"})
	require.NoError(t, err)

	docs, err := s.Query(ctx, store.Query{Kind: store.KindRegistration})
	require.NoError(t, err)
	require.Equal(t, []string{a, b}, []string{docs[0].ID, docs[1].ID})
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, err := s.Insert(ctx, store.KindSetting, map[string]string{"name": "upi", "value": "x"})
	require.NoError(t, err)

	doc, err := s.Get(ctx, id)
	require.NoError(t, err)
	doc.Fields[0] = '['

	again, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, byte('{'), again.Fields[0])
}

func TestStore_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Insert(ctx, store.KindSetting, map[string]string{"name": "upi"})
	require.ErrorIs(t, err, context.Canceled)
}
