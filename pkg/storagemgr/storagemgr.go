// Package storagemgr is the top-level coordinator for a running vecdb
// instance: it owns the collection map and alias table, reconstructs state
// from the whole-process snapshot at startup, spawns the periodic bgsave
// daemon, and orchestrates per-collection snapshot artifacts and the
// shared background job system.
package storagemgr

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orneryd/vecdb/pkg/collection"
	"github.com/orneryd/vecdb/pkg/config"
	"github.com/orneryd/vecdb/pkg/errs"
	"github.com/orneryd/vecdb/pkg/jobs"
	"github.com/orneryd/vecdb/pkg/persistence"
	"github.com/orneryd/vecdb/pkg/snapshot"
	"github.com/orneryd/vecdb/pkg/wal"
)

// Manager owns every collection in a running instance, plus the
// background machinery that keeps them durable: bgsave, HNSW rebuilds,
// and per-collection snapshot artifacts.
type Manager struct {
	cfg *config.Config

	mu          sync.RWMutex
	collections map[string]*collection.Collection
	aliases     map[string]string // alias -> collection name

	jobs       *jobs.Manager
	persist    *persistence.Store
	snapshots  *snapshot.Manager

	// wal is the write-ahead log covering per-point mutations made between
	// whole-process dumps, enabled by the Persistence.WALEnabled config
	// flag. Save checkpoints it so restart only replays entries recorded
	// since the last successful dump.
	wal     *wal.WAL
	walPath string

	changesSinceSave int64

	stopDaemon chan struct{}
	daemonWG   sync.WaitGroup
}

// New constructs a Manager and loads any existing whole-process snapshot,
// reconstructing each collection it describes. It does not start the
// bgsave daemon; call StartDaemon for that once the caller is ready.
func New(cfg *config.Config) (*Manager, error) {
	persist, err := persistence.New(cfg.Database.DataDir)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:         cfg,
		collections: make(map[string]*collection.Collection),
		aliases:     make(map[string]string),
		persist:     persist,
		snapshots:   snapshot.New(cfg.Snapshot.Dir),
		stopDaemon:  make(chan struct{}),
	}

	m.jobs = jobs.NewManager(m.runRebuild, m.runLazyFree)

	if cfg.Persistence.WALEnabled {
		syncMode := "batch"
		if cfg.Persistence.WALSyncOnWrite {
			syncMode = "immediate"
		}
		walDir := filepath.Join(cfg.Database.DataDir, "wal")
		w, err := wal.New(walDir, &wal.Config{Dir: walDir, SyncMode: syncMode, BatchSyncInterval: 100 * time.Millisecond})
		if err != nil {
			return nil, err
		}
		m.wal = w
		m.walPath = filepath.Join(walDir, "wal.log")
	}

	if err := m.restoreFromSnapshot(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) restoreFromSnapshot() error {
	dump, err := m.persist.LoadSnapshot()
	if err != nil {
		return err
	}
	if dump == nil {
		if m.wal == nil {
			return nil
		}
		return m.replayWAL()
	}

	m.mu.Lock()
	for _, cs := range dump.Collections {
		c := collection.New(cs.Name, cs.Config, m.requestRebuild)
		c.BruteForceThreshold = m.cfg.Database.BruteForceThreshold
		c.RebuildThreshold = m.cfg.Database.RebuildThreshold
		for _, p := range cs.Points {
			_, _ = c.Upsert(p)
		}
		m.collections[cs.Name] = c
	}
	m.mu.Unlock()

	if m.wal == nil {
		return nil
	}
	return m.replayWAL()
}

// replayWAL replays every mutation recorded after the last checkpoint,
// bringing the collection state loaded from dump.rdb forward to the point
// the process last shut down (or crashed) at.
func (m *Manager) replayWAL() error {
	entries, err := wal.ReadEntriesAfter(m.walPath, 0)
	if err != nil {
		return nil // no WAL file yet, nothing to replay
	}

	var checkpointSeq uint64
	for _, e := range entries {
		if e.Operation == wal.OpCheckpoint && e.Sequence > checkpointSeq {
			checkpointSeq = e.Sequence
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.Sequence <= checkpointSeq {
			continue
		}
		m.applyWALEntryLocked(e)
	}
	return nil
}

func (m *Manager) applyWALEntryLocked(e wal.Entry) {
	switch e.Operation {
	case wal.OpCreateCollection:
		var rec struct {
			Name   string            `json:"name"`
			Config collection.Config `json:"config"`
		}
		if err := json.Unmarshal(e.Data, &rec); err != nil {
			return
		}
		if _, exists := m.collections[rec.Name]; exists {
			return
		}
		c := collection.New(rec.Name, rec.Config, m.requestRebuild)
		c.BruteForceThreshold = m.cfg.Database.BruteForceThreshold
		c.RebuildThreshold = m.cfg.Database.RebuildThreshold
		m.collections[rec.Name] = c
	case wal.OpDeleteCollection:
		delete(m.collections, e.Collection)
		for alias, target := range m.aliases {
			if target == e.Collection {
				delete(m.aliases, alias)
			}
		}
	case wal.OpUpsertPoint:
		c, ok := m.collections[e.Collection]
		if !ok {
			return
		}
		var p collection.Point
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return
		}
		_, _ = c.Upsert(p)
	case wal.OpDeletePoint:
		c, ok := m.collections[e.Collection]
		if !ok {
			return
		}
		var rec struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(e.Data, &rec); err != nil {
			return
		}
		c.Delete(rec.ID)
	}
}

func (m *Manager) requestRebuild(name string) {
	m.jobs.RequestRebuild(name)
}

func (m *Manager) runRebuild(name string) {
	if c, ok := m.lookup(name); ok {
		c.RebuildHNSWSync()
	}
}

func (m *Manager) runLazyFree(name string) {
	// Point-slot reclamation is a no-op for vecdb's map-backed primary
	// store (unlike an arena with tombstoned slots); the hook exists so a
	// future storage layout can wire it without changing the call site.
	_ = name
}

// CreateCollection registers a new, empty collection.
func (m *Manager) CreateCollection(name string, cfg collection.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.collections[name]; exists {
		return errs.ErrCollectionExists
	}
	c := collection.New(name, cfg, m.requestRebuild)
	c.BruteForceThreshold = m.cfg.Database.BruteForceThreshold
	c.RebuildThreshold = m.cfg.Database.RebuildThreshold
	m.collections[name] = c

	if m.wal != nil {
		_, _ = m.wal.Append(name, wal.OpCreateCollection, map[string]interface{}{"name": name, "config": cfg})
	}
	return nil
}

// UpsertPoint writes p into the named collection, logging the mutation to
// the WAL (if enabled) before applying it so a crash between the two never
// loses a committed write.
func (m *Manager) UpsertPoint(name string, p collection.Point) (int64, error) {
	c, err := m.Get(name)
	if err != nil {
		return 0, err
	}
	if m.wal != nil {
		if _, err := m.wal.Append(name, wal.OpUpsertPoint, p); err != nil {
			return 0, err
		}
	}
	v, err := c.Upsert(p)
	if err == nil {
		m.NoteChange()
	}
	return v, err
}

// DeletePoint removes a point from the named collection, logging the
// mutation to the WAL (if enabled) before applying it.
func (m *Manager) DeletePoint(name, id string) (bool, error) {
	c, err := m.Get(name)
	if err != nil {
		return false, err
	}
	if m.wal != nil {
		if _, err := m.wal.Append(name, wal.OpDeletePoint, map[string]string{"id": id}); err != nil {
			return false, err
		}
	}
	ok := c.Delete(id)
	if ok {
		m.NoteChange()
	}
	return ok, nil
}

func (m *Manager) lookup(name string) (*collection.Collection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[name]; ok {
		return c, true
	}
	if target, ok := m.aliases[name]; ok {
		c, ok := m.collections[target]
		return c, ok
	}
	return nil, false
}

// Get resolves name (or an alias of it) to its Collection.
func (m *Manager) Get(name string) (*collection.Collection, error) {
	c, ok := m.lookup(name)
	if !ok {
		return nil, errs.ErrCollectionNotFound
	}
	return c, nil
}

// Exists reports whether name (or an alias of it) resolves to a collection.
func (m *Manager) Exists(name string) bool {
	_, ok := m.lookup(name)
	return ok
}

// Delete removes a collection and any aliases pointing to it.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		return errs.ErrCollectionNotFound
	}
	delete(m.collections, name)
	for alias, target := range m.aliases {
		if target == name {
			delete(m.aliases, alias)
		}
	}
	if m.wal != nil {
		_, _ = m.wal.Append(name, wal.OpDeleteCollection, map[string]string{"name": name})
	}
	return nil
}

// List returns every registered collection name.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.collections))
	for name := range m.collections {
		out = append(out, name)
	}
	return out
}

// CreateAlias points alias at an existing collection name.
func (m *Manager) CreateAlias(alias, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[target]; !ok {
		return errs.ErrCollectionNotFound
	}
	if _, exists := m.aliases[alias]; exists {
		return errs.ErrAliasExists
	}
	m.aliases[alias] = target
	return nil
}

// DeleteAlias removes a previously created alias.
func (m *Manager) DeleteAlias(alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.aliases[alias]; !ok {
		return errs.ErrAliasNotFound
	}
	delete(m.aliases, alias)
	return nil
}

// RenameAlias moves an existing alias to a new name, keeping it pointed at
// the same collection.
func (m *Manager) RenameAlias(oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.aliases[oldName]
	if !ok {
		return errs.ErrAliasNotFound
	}
	if _, exists := m.aliases[newName]; exists {
		return errs.ErrAliasExists
	}
	delete(m.aliases, oldName)
	m.aliases[newName] = target
	return nil
}

// ListAliases returns the alias -> collection name mapping.
func (m *Manager) ListAliases() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.aliases))
	for k, v := range m.aliases {
		out[k] = v
	}
	return out
}

// ListCollectionAliases returns every alias name currently pointing at
// collection.
func (m *Manager) ListCollectionAliases(collectionName string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for alias, target := range m.aliases {
		if target == collectionName {
			out = append(out, alias)
		}
	}
	return out
}

func (m *Manager) snapshotAllLocked() []persistence.CollectionSnapshot {
	out := make([]persistence.CollectionSnapshot, 0, len(m.collections))
	for name, c := range m.collections {
		out = append(out, persistence.CollectionSnapshot{
			Name:   name,
			Config: c.Config,
			Points: c.GetAllPoints(),
		})
	}
	return out
}

// Save performs a synchronous whole-process save and, if a WAL is enabled,
// checkpoints it so a future restart only replays entries recorded after
// this point.
func (m *Manager) Save() error {
	m.mu.RLock()
	snap := m.snapshotAllLocked()
	m.mu.RUnlock()
	if err := m.persist.Save(snap); err != nil {
		return err
	}
	if m.wal != nil {
		return m.wal.Checkpoint()
	}
	return nil
}

// Bgsave triggers a best-effort asynchronous save (see pkg/persistence for
// why this isn't POSIX fork-based). Returns false if one is already in
// flight.
func (m *Manager) Bgsave() bool {
	return m.persist.Bgsave(func() []persistence.CollectionSnapshot {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.snapshotAllLocked()
	})
}

// NoteChange increments the bgsave trigger counter; once it reaches the
// configured BgsaveOnChanges threshold, a bgsave is requested and the
// counter resets regardless of whether bgsave actually ran (a rejected
// single-flight attempt will be retried at the next interval tick anyway).
func (m *Manager) NoteChange() {
	if m.cfg.Persistence.BgsaveOnChanges <= 0 {
		return
	}
	n := atomic.AddInt64(&m.changesSinceSave, 1)
	if n >= int64(m.cfg.Persistence.BgsaveOnChanges) {
		atomic.StoreInt64(&m.changesSinceSave, 0)
		m.Bgsave()
	}
}

// StartDaemon spawns the periodic bgsave loop at the configured interval.
func (m *Manager) StartDaemon() {
	if m.cfg.Persistence.BgsaveInterval <= 0 {
		return
	}
	m.daemonWG.Add(1)
	go func() {
		defer m.daemonWG.Done()
		ticker := time.NewTicker(m.cfg.Persistence.BgsaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Bgsave()
			case <-m.stopDaemon:
				return
			}
		}
	}()
}

// Close stops the bgsave daemon and the shared job queues, waiting for
// in-flight work to finish, then closes the WAL if one is open.
func (m *Manager) Close() {
	close(m.stopDaemon)
	m.daemonWG.Wait()
	m.persist.Wait()
	m.jobs.Close()
	if m.wal != nil {
		_ = m.wal.Close()
	}
}

// CreateCollectionSnapshot writes a per-collection snapshot artifact for
// name, to be stored under the shared snapshot root.
func (m *Manager) CreateCollectionSnapshot(name string) (snapshot.Info, error) {
	c, err := m.Get(name)
	if err != nil {
		return snapshot.Info{}, err
	}
	points := c.GetAllPoints()
	snapPoints := make([]snapshot.Point, len(points))
	for i, p := range points {
		snapPoints[i] = snapshot.Point{
			ID:            p.ID,
			Vector:        p.Vector,
			Multivector:   p.Multivector,
			SparseVectors: convertSparseToSnapshot(p.SparseVectors),
			Payload:       p.Payload,
		}
	}
	return m.snapshots.Create(name, snapshot.Snapshot{
		Name: name,
		Config: snapshot.Config{
			VectorDim:  c.Config.VectorDim,
			Distance:   string(c.Config.Distance),
			UseHNSW:    c.Config.UseHNSW,
			EnableBM25: c.Config.EnableBM25,
		},
		Points:    snapPoints,
		CreatedAt: time.Now().Unix(),
	})
}

// ListCollectionSnapshots enumerates a collection's snapshot artifacts.
func (m *Manager) ListCollectionSnapshots(name string) ([]snapshot.Info, error) {
	return m.snapshots.List(name)
}

// DeleteCollectionSnapshot removes a named snapshot artifact.
func (m *Manager) DeleteCollectionSnapshot(name, artifact string) (bool, error) {
	return m.snapshots.Delete(name, artifact)
}

// RecoverFromSnapshot loads a named artifact and recreates the collection
// from it, replacing any existing collection of the same name.
func (m *Manager) RecoverFromSnapshot(name, artifact string) error {
	snap, err := m.snapshots.Load(name, artifact)
	if err != nil {
		return err
	}
	return m.restoreCollectionFromSnapshot(snap)
}

// RecoverFromURL downloads a snapshot artifact and recreates the
// collection from it.
func (m *Manager) RecoverFromURL(name, url, expectedChecksum string) error {
	info, err := m.snapshots.DownloadFromURL(name, url, expectedChecksum)
	if err != nil {
		return err
	}
	return m.RecoverFromSnapshot(name, info.Name)
}

// UploadAndRestoreSnapshot writes uploaded bytes as a snapshot artifact and
// recreates the collection from it.
func (m *Manager) UploadAndRestoreSnapshot(name string, data []byte, filename string) error {
	snap, err := m.snapshots.UploadAndRestore(name, data, filename)
	if err != nil {
		return err
	}
	return m.restoreCollectionFromSnapshot(snap)
}

func (m *Manager) restoreCollectionFromSnapshot(snap snapshot.Snapshot) error {
	cfg := collection.Config{
		VectorDim:  snap.Config.VectorDim,
		Distance:   collection.Distance(snap.Config.Distance),
		UseHNSW:    snap.Config.UseHNSW,
		EnableBM25: snap.Config.EnableBM25,
	}
	c := collection.New(snap.Name, cfg, m.requestRebuild)
	c.BruteForceThreshold = m.cfg.Database.BruteForceThreshold
	c.RebuildThreshold = m.cfg.Database.RebuildThreshold
	for _, p := range snap.Points {
		_, _ = c.Upsert(collection.Point{
			ID:            p.ID,
			Vector:        p.Vector,
			Multivector:   p.Multivector,
			SparseVectors: convertSparseFromSnapshot(p.SparseVectors),
			Payload:       p.Payload,
		})
	}

	m.mu.Lock()
	m.collections[snap.Name] = c
	m.mu.Unlock()
	return nil
}

// ListAllSnapshots enumerates snapshot artifacts across every known
// collection, keyed by collection name.
func (m *Manager) ListAllSnapshots() (map[string][]snapshot.Info, error) {
	out := make(map[string][]snapshot.Info)
	for _, name := range m.List() {
		infos, err := m.snapshots.List(name)
		if err != nil {
			return nil, err
		}
		out[name] = infos
	}
	return out, nil
}

func convertSparseToSnapshot(in map[string]collection.SparseVector) map[string]snapshot.SparseVector {
	if in == nil {
		return nil
	}
	out := make(map[string]snapshot.SparseVector, len(in))
	for name, sv := range in {
		out[name] = snapshot.SparseVector{Indices: sv.Indices, Values: sv.Values}
	}
	return out
}

func convertSparseFromSnapshot(in map[string]snapshot.SparseVector) map[string]collection.SparseVector {
	if in == nil {
		return nil
	}
	out := make(map[string]collection.SparseVector, len(in))
	for name, sv := range in {
		out[name] = collection.SparseVector{Indices: sv.Indices, Values: sv.Values}
	}
	return out
}
