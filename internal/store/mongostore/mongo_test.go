package mongostore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Shivanand-hulikatti/festreg/internal/config"
	"github.com/Shivanand-hulikatti/festreg/internal/store"
	"github.com/Shivanand-hulikatti/festreg/internal/store/storetest"
)

func TestToBSON_KeepsIntegers(t *testing.T) {
	d, err := toBSON([]byte(`{"name":"Quiz","fee":100,"registration_refs":["a"]}`))
	require.NoError(t, err)
	require.Len(t, d, 3)
	require.Equal(t, "name", d[0].Key)
	require.Equal(t, int32(100), d[1].Value)
	require.Equal(t, bson.A{"a"}, d[2].Value)
}

func TestRecordDocument_RoundTrip(t *testing.T) {
	d, err := toBSON([]byte(`{"name":"Quiz","fee":150}`))
	require.NoError(t, err)
	raw, err := bson.Marshal(d)
	require.NoError(t, err)

	doc, err := record{ID: "x", Kind: "event", CreatedNS: 42, Fields: raw}.document()
	require.NoError(t, err)
	require.Equal(t, store.KindEvent, doc.Kind)
	require.Equal(t, int64(42), doc.CreatedAt.UnixNano())

	var got struct {
		Name string `json:"name"`
		Fee  int    `json:"fee"`
	}
	require.NoError(t, doc.Decode(&got))
	require.Equal(t, "Quiz", got.Name)
	require.Equal(t, 150, got.Fee)
}

// Needs a reachable server; set FESTREG_TEST_MONGO_URI to run it.
func TestConformance(t *testing.T) {
	uri := os.Getenv("FESTREG_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("FESTREG_TEST_MONGO_URI not set")
	}
	cfg := config.Defaults().Store.Mongo
	cfg.URI = uri
	cfg.Database = "festreg_test"

	ctx := context.Background()
	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	storetest.Run(t, func(t *testing.T) store.Store {
		_, err := s.col.DeleteMany(ctx, bson.D{})
		require.NoError(t, err)
		return s
	})
}
