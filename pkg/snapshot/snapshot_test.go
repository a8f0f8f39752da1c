package snapshot

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orneryd/vecdb/pkg/encryption"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot(name string) Snapshot {
	return Snapshot{
		Name: name,
		Config: Config{
			VectorDim:  4,
			Distance:   "cosine",
			UseHNSW:    true,
			EnableBM25: false,
		},
		Points: []Point{
			{ID: "p1", Vector: []float32{1, 0, 0, 0}, Payload: map[string]interface{}{"city": "Berlin"}},
			{ID: "p2", Vector: []float32{0, 1, 0, 0}},
		},
		CreatedAt: time.Now().Unix(),
	}
}

func TestCreateAndLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	mgr := New(root)

	info, err := mgr.Create("products", sampleSnapshot("products"))
	require.NoError(t, err)
	assert.NotEmpty(t, info.Checksum)
	assert.True(t, info.SizeBytes > 0)

	loaded, err := mgr.Load("products", info.Name)
	require.NoError(t, err)
	require.Len(t, loaded.Points, 2)
	assert.Equal(t, "p1", loaded.Points[0].ID)
	assert.Equal(t, "Berlin", loaded.Points[0].Payload["city"])
}

func TestListSortsNewestFirst(t *testing.T) {
	root := t.TempDir()
	mgr := New(root)

	// Filenames embed seconds-resolution timestamps, so write distinct
	// names directly to make ordering deterministic without sleeping.
	dir := filepath.Join(root, "products")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, ts := range []string{"2024-01-01-00-00-00", "2024-01-02-00-00-00", "2024-01-03-00-00-00"} {
		path := filepath.Join(dir, "products-"+ts+".snapshot")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	infos, err := mgr.List("products")
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "products-2024-01-03-00-00-00.snapshot", infos[0].Name)
	assert.Equal(t, "products-2024-01-01-00-00-00.snapshot", infos[2].Name)
}

func TestListOnMissingCollectionReturnsEmpty(t *testing.T) {
	mgr := New(t.TempDir())
	infos, err := mgr.List("nonexistent")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestDeleteReportsExistence(t *testing.T) {
	root := t.TempDir()
	mgr := New(root)
	info, err := mgr.Create("products", sampleSnapshot("products"))
	require.NoError(t, err)

	existed, err := mgr.Delete("products", info.Name)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = mgr.Delete("products", info.Name)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestEncryptedRoundTrip(t *testing.T) {
	root := t.TempDir()
	mgr := New(root)
	mgr.Passphrase = "hunter2"

	info, err := mgr.Create("products", sampleSnapshot("products"))
	require.NoError(t, err)

	loaded, err := mgr.Load("products", info.Name)
	require.NoError(t, err)
	require.Len(t, loaded.Points, 2)

	other := New(root)
	_, err = other.Load("products", info.Name)
	assert.Error(t, err, "loading without the passphrase must fail to decode")
}

func TestLoadFromPathRawJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.snapshot")
	data, err := json.Marshal(sampleSnapshot("raw"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	snap, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "raw", snap.Name)
}

func TestLoadFromPathForeignTarSynthesisesEmptyCollection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foreign.snapshot")

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	cfg, err := json.Marshal(Config{VectorDim: 128, Distance: "dot"})
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "config.json", Size: int64(len(cfg)), Mode: 0o644}))
	_, err = tw.Write(cfg)
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	snap, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Empty(t, snap.Points)
	assert.Equal(t, 128, snap.Config.VectorDim)
	assert.Equal(t, "dot", snap.Config.Distance)
}

func TestUploadAndRestore(t *testing.T) {
	root := t.TempDir()
	mgr := New(root)
	data, err := json.Marshal(sampleSnapshot("uploaded"))
	require.NoError(t, err)

	snap, err := mgr.UploadAndRestore("products", data, "")
	require.NoError(t, err)
	assert.Equal(t, "uploaded", snap.Name)
}

func TestUploadAndRestoreDecryptsWithManagerPassphrase(t *testing.T) {
	root := t.TempDir()
	mgr := New(root)
	mgr.Passphrase = "hunter2"

	plain, err := json.Marshal(sampleSnapshot("uploaded-encrypted"))
	require.NoError(t, err)
	encrypted, err := encryption.Encrypt(mgr.Passphrase, plain)
	require.NoError(t, err)

	snap, err := mgr.UploadAndRestore("products", encrypted, "")
	require.NoError(t, err)
	assert.Equal(t, "uploaded-encrypted", snap.Name)

	other := New(root)
	data, err := json.Marshal(sampleSnapshot("other"))
	require.NoError(t, err)
	encryptedOther, err := encryption.Encrypt(mgr.Passphrase, data)
	require.NoError(t, err)
	_, err = other.UploadAndRestore("products", encryptedOther, "")
	assert.Error(t, err, "restoring an encrypted upload without the passphrase must fail to decode")
}
