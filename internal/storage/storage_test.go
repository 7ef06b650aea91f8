package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_GetPut(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, ok, err := store.Get(ctx, "myTrackers")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "myTrackers", []byte(`[]`)))
	require.NoError(t, store.Put(ctx, "myTrackers", []byte(`[{"id":1}]`)))

	value, ok, err := store.Get(ctx, "myTrackers")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"id":1}]`, string(value))

	assert.NoError(t, store.Ping(ctx))
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "k", []byte("v")))
	require.NoError(t, store.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	value, ok, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), value)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	_ = store.Close()

	_, err = Open(ctx, Config{Driver: "postgres"})
	assert.Error(t, err, "postgres without a DSN")

	_, err = Open(ctx, Config{Driver: "redis"})
	assert.Error(t, err)
}
