package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/config"
)

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, err := b.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Set(ctx, "k", []byte("one")))
	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "one", string(v))

	require.NoError(t, b.Set(ctx, "k", []byte("two")))
	v, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(v))

	require.NoError(t, b.Delete(ctx, "k"))
	_, err = b.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend())
}

func TestSQLiteBackend(t *testing.T) {
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "kv.db"))
	require.NoError(t, err)
	defer b.Close()
	exerciseBackend(t, b)
}

func TestLimit_RejectsOversizedWrites(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend()
	b := Limit(inner, 10)

	require.NoError(t, b.Set(ctx, "k", []byte("123456789")))
	err := b.Set(ctx, "k", []byte("1234567890"))
	require.ErrorIs(t, err, apperr.ErrStorageCapacity)

	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "123456789", string(v), "failed write must leave the old value")
}

func TestOpen_MemoryBackend(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := &config.AppConfig{Storage: config.StorageConfig{Backend: "memory"}}
	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	exerciseBackend(t, b)
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := &config.AppConfig{Storage: config.StorageConfig{Backend: "mongo"}}
	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
}
