package blobstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "lmdb")
	s, err := Open(Options{DataDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	t.Run("round_trips_value", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Put("products", "p1", []byte("hello")))

		got, err := s.Get("products", "p1")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), got)
	})

	t.Run("missing_key_returns_not_found", func(t *testing.T) {
		s := open(t)
		_, err := s.Get("products", "missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("overwrite_replaces_value", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Put("products", "p1", []byte("v1")))
		require.NoError(t, s.Put("products", "p1", []byte("v2")))

		got, err := s.Get("products", "p1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})
}

func TestSameKeyDifferentCollectionsAreIsolated(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Put("products", "id", []byte("a")))
	require.NoError(t, s.Put("orders", "id", []byte("b")))

	got, err := s.Get("products", "id")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)

	got, err = s.Get("orders", "id")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func TestDelete(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Put("products", "p1", []byte("hello")))
	require.NoError(t, s.Delete("products", "p1"))

	_, err := s.Get("products", "p1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDeleteMissingKeyIsNotError(t *testing.T) {
	s := open(t)
	assert.NoError(t, s.Delete("products", "missing"))
}

func TestKeysListsOnlyCollectionMembers(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Put("products", "p1", []byte("a")))
	require.NoError(t, s.Put("products", "p2", []byte("b")))
	require.NoError(t, s.Put("orders", "o1", []byte("c")))

	keys, err := s.Keys("products")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, keys)
}

func TestDeleteCollectionRemovesOnlyItsBlobs(t *testing.T) {
	s := open(t)
	require.NoError(t, s.Put("products", "p1", []byte("a")))
	require.NoError(t, s.Put("products", "p2", []byte("b")))
	require.NoError(t, s.Put("orders", "o1", []byte("c")))

	require.NoError(t, s.DeleteCollection("products"))

	keys, err := s.Keys("products")
	require.NoError(t, err)
	assert.Empty(t, keys)

	got, err := s.Get("orders", "o1")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), got)
}
