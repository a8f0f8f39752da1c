// Package snapshot produces and restores self-contained, per-collection
// artifacts: gzip-compressed JSON encoding a collection's config and every
// point it holds. These are independent of the whole-process dump.rdb
// handled by pkg/persistence — a snapshot here targets one collection and
// is meant to be portable (downloadable, uploadable, inspectable).
package snapshot

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/orneryd/vecdb/pkg/encryption"
)

// Config mirrors the subset of a collection's config that a snapshot needs
// to recreate it.
type Config struct {
	VectorDim  int    `json:"vector_dim"`
	Distance   string `json:"distance"`
	UseHNSW    bool   `json:"use_hnsw"`
	EnableBM25 bool   `json:"enable_bm25"`
}

// SparseVector is the serialised form of a named sparse vector.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// Point is the serialised form of a collection point.
type Point struct {
	ID            string                  `json:"id"`
	Vector        []float32               `json:"vector,omitempty"`
	Multivector   [][]float32             `json:"multivector,omitempty"`
	SparseVectors map[string]SparseVector `json:"sparse_vectors,omitempty"`
	Payload       map[string]interface{}  `json:"payload,omitempty"`
}

// Snapshot is the decoded form of a collection artifact.
type Snapshot struct {
	Name      string  `json:"name"`
	Config    Config  `json:"config"`
	Points    []Point `json:"points"`
	CreatedAt int64   `json:"created_at"`
}

// Info describes a stored artifact without decoding its points.
type Info struct {
	Name         string
	CreationTime time.Time
	SizeBytes    int64
	Checksum     string
}

// Manager creates, lists, and restores per-collection snapshot artifacts
// rooted at Root/<collection>/.
type Manager struct {
	Root string
	// Passphrase, if set, wraps every artifact this Manager writes with
	// encryption.Encrypt and expects to unwrap it on load. Off by default.
	Passphrase string
}

// New returns a Manager rooted at root.
func New(root string) *Manager {
	return &Manager{Root: root}
}

func (m *Manager) collectionDir(collection string) string {
	return filepath.Join(m.Root, collection)
}

func fileName(collection string, at time.Time) string {
	return fmt.Sprintf("%s-%s.snapshot", collection, at.Format("2006-01-02-15-04-05"))
}

// Create encodes snap as gzip(JSON), writes it under the collection's
// directory, and returns its Info (computed by reading the file back).
func (m *Manager) Create(collection string, snap Snapshot) (Info, error) {
	dir := m.collectionDir(collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("snapshot: mkdir: %w", err)
	}

	now := time.Now()
	name := fileName(collection, now)
	path := filepath.Join(dir, name)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(snap); err != nil {
		return Info{}, fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := gz.Close(); err != nil {
		return Info{}, fmt.Errorf("snapshot: gzip close: %w", err)
	}

	out := buf.Bytes()
	if m.Passphrase != "" {
		encrypted, err := encryption.Encrypt(m.Passphrase, out)
		if err != nil {
			return Info{}, fmt.Errorf("snapshot: encrypt: %w", err)
		}
		out = encrypted
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return Info{}, fmt.Errorf("snapshot: write: %w", err)
	}

	return m.infoForFile(path)
}

// Load reads and decodes a named artifact, decrypting it first if this
// Manager has a Passphrase configured.
func (m *Manager) Load(collection, name string) (Snapshot, error) {
	path := m.GetPath(collection, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: read: %w", err)
	}
	return m.decryptAndDecode(data)
}

// decryptAndDecode decrypts data with this Manager's Passphrase, if one is
// configured, then decodes it. Shared by every path that reads an artifact
// this Manager itself may have encrypted.
func (m *Manager) decryptAndDecode(data []byte) (Snapshot, error) {
	if m.Passphrase != "" {
		plain, err := encryption.Decrypt(m.Passphrase, data)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: decrypt: %w", err)
		}
		data = plain
	}
	return decode(data)
}

func (m *Manager) infoForFile(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("snapshot: read back: %w", err)
	}
	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("snapshot: stat: %w", err)
	}
	sum := sha256.Sum256(data)
	return Info{
		Name:         filepath.Base(path),
		CreationTime: stat.ModTime(),
		SizeBytes:    stat.Size(),
		Checksum:     hex.EncodeToString(sum[:]),
	}, nil
}

// List enumerates a collection's snapshot artifacts, newest first (by
// name, since names are timestamp-ordered).
func (m *Manager) List(collection string) ([]Info, error) {
	dir := m.collectionDir(collection)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: readdir: %w", err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snapshot") {
			continue
		}
		info, err := m.infoForFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name > infos[j].Name })
	return infos, nil
}

// Delete removes a named snapshot artifact, reporting whether it existed.
func (m *Manager) Delete(collection, name string) (bool, error) {
	path := filepath.Join(m.collectionDir(collection), name)
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("snapshot: delete: %w", err)
	}
	return true, nil
}

// GetPath returns the on-disk path of a named artifact, for download by an
// external transport layer.
func (m *Manager) GetPath(collection, name string) string {
	return filepath.Join(m.collectionDir(collection), name)
}

// DownloadFromURL fetches a snapshot artifact over HTTP and stores it under
// the collection's directory, optionally verifying a SHA-256 checksum.
func (m *Manager) DownloadFromURL(collection, url, expectedChecksum string) (Info, error) {
	resp, err := http.Get(url)
	if err != nil {
		return Info{}, fmt.Errorf("snapshot: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("snapshot: download: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Info{}, fmt.Errorf("snapshot: download read: %w", err)
	}

	if expectedChecksum != "" {
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != expectedChecksum {
			return Info{}, fmt.Errorf("snapshot: checksum mismatch for download from %s", url)
		}
	}

	base := filepath.Base(url)
	var name string
	if strings.HasSuffix(base, ".snapshot") {
		name = base
	} else {
		name = fileName(collection, time.Now())
	}

	dir := m.collectionDir(collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("snapshot: mkdir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Info{}, fmt.Errorf("snapshot: write downloaded: %w", err)
	}
	return m.infoForFile(path)
}

// LoadFromPath reads an artifact and decodes it. Native artifacts are
// gzip(JSON) or raw JSON; foreign tar-formatted artifacts (recognised by
// ustar magic) yield an empty collection seeded only with the dimension and
// distance recovered from their config.json member, since this system
// cannot decode a foreign point encoding.
func LoadFromPath(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: read: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (Snapshot, error) {
	raw := data
	if len(data) >= 2 && data[0] == 0x1F && data[1] == 0x8B {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: gzip: %w", err)
		}
		defer gz.Close()
		raw, err = io.ReadAll(gz)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: gzip read: %w", err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err == nil {
		return snap, nil
	}

	if len(data) >= 262 && string(data[257:262]) == "ustar" {
		return decodeForeignTar(data)
	}

	return Snapshot{}, fmt.Errorf("snapshot: unrecognised artifact format")
}

// decodeForeignTar scans a tar-formatted artifact for a config.json member
// and synthesises an empty collection carrying only its dimension and
// distance. Points in foreign formats are not recoverable.
func decodeForeignTar(data []byte) (Snapshot, error) {
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: tar scan: %w", err)
		}
		if filepath.Base(hdr.Name) != "config.json" {
			continue
		}
		var cfg Config
		if err := json.NewDecoder(tr).Decode(&cfg); err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: foreign config.json: %w", err)
		}
		return Snapshot{
			Config:    cfg,
			Points:    nil,
			CreatedAt: time.Now().Unix(),
		}, nil
	}
	return Snapshot{}, fmt.Errorf("snapshot: foreign tar artifact has no config.json")
}

// UploadAndRestore writes bytes to a snapshot path under collection's
// directory (using filename if given, else a generated timestamp name) and
// decodes the result, decrypting first if this Manager has a Passphrase
// configured — mirrors Load, since an uploaded artifact may be one this
// same Manager produced and encrypted earlier.
func (m *Manager) UploadAndRestore(collection string, data []byte, filename string) (Snapshot, error) {
	dir := m.collectionDir(collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: mkdir: %w", err)
	}
	if filename == "" {
		filename = fileName(collection, time.Now())
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: write upload: %w", err)
	}
	return m.decryptAndDecode(data)
}
