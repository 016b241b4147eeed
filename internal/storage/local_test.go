package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "trucks/input/truck/truck.parquet", []byte("a")))
	require.NoError(t, store.Put(ctx, "trucks/input/transaction/year=2024/month=1/part-1.parquet", []byte("b")))
	require.NoError(t, store.Put(ctx, "trucks/input/transaction/year=2024/month=1/part-1.parquet", []byte("c")))

	t.Run("get returns the last write", func(t *testing.T) {
		b, err := store.Get(ctx, "trucks/input/transaction/year=2024/month=1/part-1.parquet")
		require.NoError(t, err)
		assert.Equal(t, "c", string(b))
	})

	t.Run("list is scoped and sorted", func(t *testing.T) {
		keys, err := store.List(ctx, "trucks/input/")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"trucks/input/transaction/year=2024/month=1/part-1.parquet",
			"trucks/input/truck/truck.parquet",
		}, keys)

		keys, err = store.List(ctx, "trucks/input/missing/")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("list matches partial key prefixes", func(t *testing.T) {
		keys, err := store.List(ctx, "trucks/input/tr")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"trucks/input/transaction/year=2024/month=1/part-1.parquet",
			"trucks/input/truck/truck.parquet",
		}, keys)

		keys, err = store.List(ctx, "trucks/input/transaction/year=202")
		require.NoError(t, err)
		assert.Equal(t, []string{"trucks/input/transaction/year=2024/month=1/part-1.parquet"}, keys)

		keys, err = store.List(ctx, "trucks/input/truck/truck.p")
		require.NoError(t, err)
		assert.Equal(t, []string{"trucks/input/truck/truck.parquet"}, keys)

		keys, err = store.List(ctx, "trucks/in")
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})

	t.Run("no temp files are left behind", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(root, "trucks", "input", "truck"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("delete and missing objects", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "trucks/input/truck/truck.parquet", "never/existed"))
		_, err := store.Get(ctx, "trucks/input/truck/truck.parquet")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("uri is a local path", func(t *testing.T) {
		assert.Equal(t, filepath.Join(root, "a", "b.parquet"), store.URI("a/b.parquet"))
	})
}

func TestKey(t *testing.T) {
	assert.Equal(t, "trucks/input/truck/truck.parquet", Key("/trucks/input/", "truck", "truck.parquet"))
	assert.Equal(t, "truck", Key("", "truck"))
}
