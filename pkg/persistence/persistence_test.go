package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orneryd/vecdb/pkg/collection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCollections() []CollectionSnapshot {
	return []CollectionSnapshot{
		{
			Name:   "products",
			Config: collection.Config{VectorDim: 4, Distance: collection.Cosine},
			Points: []collection.Point{
				{ID: "p1", Vector: []float32{1, 0, 0, 0}},
				{ID: "p2", Vector: []float32{0, 1, 0, 0}},
			},
		},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(sampleCollections()))

	dump, err := store.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, dump)
	require.Len(t, dump.Collections, 1)
	assert.Len(t, dump.Collections[0].Points, 2)
	assert.True(t, store.LastSaveTime() > 0)
}

func TestLoadSnapshotMissingFileReturnsNil(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	dump, err := store.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, dump)
}

func TestLoadSnapshotQuarantinesMissingVersionMarker(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dump.rdb"), []byte("some bytes without a version marker"), 0o644))

	dump, err := store.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, dump)

	matches, _ := filepath.Glob(filepath.Join(dir, "dump.incomplete.*.bak"))
	assert.Len(t, matches, 1)
}

func TestLoadSnapshotQuarantinesTooSmallFile(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dump.rdb"), []byte("tiny"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dump.rdb.version"), []byte("vecdb:1:4"), 0o644))

	dump, err := store.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, dump)

	matches, _ := filepath.Glob(filepath.Join(dir, "dump.too_small.*.bak"))
	assert.Len(t, matches, 1)
}

func TestLoadSnapshotQuarantinesCorruptBody(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(sampleCollections()))

	// Corrupt the saved file in place, past the header/length prefix.
	path := filepath.Join(dir, "dump.rdb")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for i := len(marker) + 4; i < len(data); i++ {
		data[i] = 0xFF
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	dump, err := store.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, dump)

	matches, _ := filepath.Glob(filepath.Join(dir, "dump.corrupt.*.bak"))
	assert.Len(t, matches, 1)
}

func TestBgsaveSingleFlights(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	block := make(chan struct{})
	started := make(chan struct{})
	firstResult := make(chan bool, 1)
	go func() {
		firstResult <- store.Bgsave(func() []CollectionSnapshot {
			close(started)
			<-block
			return sampleCollections()
		})
	}()

	<-started
	second := store.Bgsave(func() []CollectionSnapshot { return sampleCollections() })
	assert.False(t, second, "a bgsave already in flight should reject a second request")

	close(block)
	assert.True(t, <-firstResult)
	store.Wait()
	assert.False(t, store.InProgress())
}
