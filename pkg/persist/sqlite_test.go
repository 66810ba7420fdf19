package persist_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-datalayer/pkg/persist"
)

func TestSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := persist.OpenSQLite(ctx, filepath.Join(t.TempDir(), "datalayer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := backend.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("upsert", func(t *testing.T) {
		require.NoError(t, backend.Set(ctx, "k", []byte("one")))
		require.NoError(t, backend.Set(ctx, "k", []byte("two")))

		got, ok, err := backend.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "two", string(got))
	})

	t.Run("delete many", func(t *testing.T) {
		require.NoError(t, backend.SetMany(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2"), "c": []byte("3")}))
		require.NoError(t, backend.Delete(ctx, "a", "b", "missing"))

		_, ok, err := backend.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
		got, ok, err := backend.Get(ctx, "c")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "3", string(got))
	})

	t.Run("adapter over sqlite", func(t *testing.T) {
		adapter := persist.NewAdapter(backend, persist.WithNamespace(persist.NamespaceCheckout), persist.WithTTL(persist.CheckoutTTL))
		require.NoError(t, adapter.Save(ctx, "luma_checkout_data", map[string]any{"email": "a@b.co"}))

		got, ok := adapter.Load(ctx, "luma_checkout_data", 0)
		require.True(t, ok)
		assert.Equal(t, map[string]any{"email": "a@b.co"}, got)

		_, writtenAt, ok := adapter.Peek(ctx, "luma_checkout_data")
		require.True(t, ok)
		assert.WithinDuration(t, time.Now(), writtenAt, time.Minute)
	})
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := persist.OpenSQLite(context.Background(), "  ")
	assert.Error(t, err)
}
