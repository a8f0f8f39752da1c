// Package collection implements the coordinator that owns a named set of
// points together with its optional HNSW and BM25 indexes: upsert, delete,
// search (vector, text, multivector), payload mutation, and the
// batch/rebuild state machine that keeps HNSW eventually consistent under
// heavy write load.
package collection

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/orneryd/vecdb/pkg/bm25"
	"github.com/orneryd/vecdb/pkg/errs"
	"github.com/orneryd/vecdb/pkg/filter"
	"github.com/orneryd/vecdb/pkg/hnsw"
	"github.com/orneryd/vecdb/pkg/multivector"
	"github.com/orneryd/vecdb/pkg/vector"
)

// Distance identifies the scoring function a collection uses for
// similarity ranking.
type Distance string

const (
	Cosine    Distance = "cosine"
	Euclidean Distance = "euclidean"
	Dot       Distance = "dot"
)

// Config is a collection's fixed configuration, set at creation time.
type Config struct {
	VectorDim  int
	Distance   Distance
	UseHNSW    bool
	EnableBM25 bool
}

// SparseVector is a named sparse vector: parallel index/value slices,
// indices assumed ascending and unique. Carried in the point model as a
// forward-compatible hook (spec Q4) — no inverted index is built over
// these, only a dot-product fallback scorer.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Point is the unit of storage: an id, version, vector(s), and payload.
type Point struct {
	ID            string
	Version       int64
	Vector        []float32
	Multivector   [][]float32
	SparseVectors map[string]SparseVector
	Payload       map[string]interface{}
}

func (p *Point) clone() *Point {
	cp := &Point{ID: p.ID, Version: p.Version}
	if p.Vector != nil {
		cp.Vector = append([]float32(nil), p.Vector...)
	}
	if p.Multivector != nil {
		cp.Multivector = make([][]float32, len(p.Multivector))
		for i, row := range p.Multivector {
			cp.Multivector[i] = append([]float32(nil), row...)
		}
	}
	if p.SparseVectors != nil {
		cp.SparseVectors = make(map[string]SparseVector, len(p.SparseVectors))
		for name, sv := range p.SparseVectors {
			cp.SparseVectors[name] = SparseVector{
				Indices: append([]uint32(nil), sv.Indices...),
				Values:  append([]float32(nil), sv.Values...),
			}
		}
	}
	if p.Payload != nil {
		cp.Payload = make(map[string]interface{}, len(p.Payload))
		for k, v := range p.Payload {
			cp.Payload[k] = v
		}
	}
	return cp
}

// SearchResult is one ranked hit.
type SearchResult struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// Collection coordinates a primary point map with optional HNSW and BM25
// indexes. Locks are always acquired in the order primary -> HNSW -> BM25
// to avoid cycles (spec's concurrency model); no path holds more than one
// write lock at a time except the lazy HNSW build inside Search.
type Collection struct {
	Name   string
	Config Config

	// BruteForceThreshold and RebuildThreshold gate the brute-force vs HNSW
	// search routing and the end_batch rebuild policy, respectively.
	// Defaults mirror pkg/config's DatabaseConfig values.
	BruteForceThreshold int
	RebuildThreshold    int

	primaryMu sync.RWMutex
	points    map[string]*Point

	hnswMu    sync.RWMutex
	hnswIndex *hnsw.Index
	hnswBuilt bool

	hnswRebuilding atomic.Bool

	bm25Mu    sync.RWMutex
	bm25Index *bm25.Index

	batchMu   sync.Mutex
	batchMode bool
	pending   []*Point

	payloadIndexMu sync.RWMutex
	payloadIndexes map[string]bool

	opCounter atomic.Int64

	// rebuildRequest, if set, is invoked instead of a background job
	// system to request an asynchronous rebuild. StorageManager wires this
	// to its shared jobs.Manager, keyed by collection name.
	rebuildRequest func(collectionName string)
}

// New creates an empty collection. rebuildRequest may be nil, in which case
// end_batch always rebuilds synchronously regardless of size.
func New(name string, cfg Config, rebuildRequest func(string)) *Collection {
	c := &Collection{
		Name:                name,
		Config:              cfg,
		BruteForceThreshold: 1000,
		RebuildThreshold:    10000,
		points:              make(map[string]*Point),
		payloadIndexes:      make(map[string]bool),
		rebuildRequest:      rebuildRequest,
	}
	if cfg.UseHNSW {
		c.hnswIndex = hnsw.New(cfg.VectorDim)
	}
	if cfg.EnableBM25 {
		c.bm25Index = bm25.New()
	}
	return c
}

func normalized(v []float32) []float32 {
	nv := vector.New(append([]float32(nil), v...))
	nv.NormalizeInPlace()
	return nv.Data
}

// Upsert inserts or replaces point, bumping its version. See spec §4.6's
// upsert state machine.
func (c *Collection) Upsert(p Point) (int64, error) {
	if c.Config.VectorDim > 0 && len(p.Vector) != c.Config.VectorDim {
		return 0, errs.NewDimensionError(c.Config.VectorDim, len(p.Vector))
	}

	c.primaryMu.Lock()
	_, existed := c.points[p.ID]
	if existed {
		p.Version = c.points[p.ID].Version + 1
	} else {
		p.Version = 0
	}
	stored := p.clone()
	c.points[p.ID] = stored

	c.batchMu.Lock()
	inBatch := c.batchMode
	if inBatch {
		c.pending = append(c.pending, stored)
	}
	c.batchMu.Unlock()
	c.primaryMu.Unlock()

	c.opCounter.Add(1)

	if inBatch {
		return stored.Version, nil
	}

	if c.hnswIndex != nil {
		c.hnswMu.Lock()
		if c.hnswBuilt {
			if existed {
				c.hnswIndex.Remove(stored.ID)
			}
			c.hnswIndex.Insert(stored.ID, normalized(stored.Vector))
		}
		c.hnswMu.Unlock()
	}

	if text, ok := textPayload(stored.Payload); ok && c.bm25Index != nil {
		c.bm25Mu.Lock()
		c.bm25Index.Insert(stored.ID, text)
		c.bm25Mu.Unlock()
	}

	return stored.Version, nil
}

func textPayload(payload map[string]interface{}) (string, bool) {
	if payload == nil {
		return "", false
	}
	v, ok := payload["text"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// BatchUpsert inserts points in order, stopping at the first dimension
// error. It returns the number of points successfully inserted.
func (c *Collection) BatchUpsert(points []Point) (int, error) {
	for i, p := range points {
		if _, err := c.Upsert(p); err != nil {
			return i, err
		}
	}
	return len(points), nil
}

// BatchUpsertWithPrewarm behaves like BatchUpsert, then ensures the HNSW
// index (if enabled) is fully built before returning.
func (c *Collection) BatchUpsertWithPrewarm(points []Point) (int, error) {
	n, err := c.BatchUpsert(points)
	if err != nil {
		return n, err
	}
	c.PrewarmIndex()
	return n, nil
}

// StartBatch suspends HNSW updates: upserts land in the primary map and a
// pending buffer, but the graph is not touched until EndBatch.
func (c *Collection) StartBatch() {
	c.batchMu.Lock()
	defer c.batchMu.Unlock()
	c.batchMode = true
	c.pending = c.pending[:0]
}

// EndBatch applies the rebuild policy: small collections rebuild
// synchronously; large ones (> RebuildThreshold) single-flight a
// background rebuild while the previous graph keeps serving reads.
func (c *Collection) EndBatch() {
	c.batchMu.Lock()
	c.batchMode = false
	c.batchMu.Unlock()

	if c.hnswIndex == nil {
		return
	}

	c.primaryMu.RLock()
	n := len(c.points)
	c.primaryMu.RUnlock()

	if n > c.RebuildThreshold && c.rebuildRequest != nil {
		if c.hnswRebuilding.CompareAndSwap(false, true) {
			c.rebuildRequest(c.Name)
		}
		return
	}
	c.RebuildHNSWSync()
}

// PrewarmIndex forces a synchronous full HNSW build from the current
// primary point set.
func (c *Collection) PrewarmIndex() {
	if c.hnswIndex != nil {
		c.RebuildHNSWSync()
	}
}

// RebuildHNSWSync constructs a fresh HNSW graph from the current point set
// and atomically swaps it in. Safe to call directly (cold path, under
// EndBatch below threshold) or from a background rebuild job.
func (c *Collection) RebuildHNSWSync() {
	defer c.hnswRebuilding.Store(false)

	c.primaryMu.RLock()
	snapshot := make([]*Point, 0, len(c.points))
	for _, p := range c.points {
		snapshot = append(snapshot, p)
	}
	c.primaryMu.RUnlock()

	fresh := hnsw.New(c.Config.VectorDim)
	for _, p := range snapshot {
		if len(p.Vector) == c.Config.VectorDim {
			fresh.Insert(p.ID, normalized(p.Vector))
		}
	}

	c.hnswMu.Lock()
	c.hnswIndex = fresh
	c.hnswBuilt = true
	c.hnswMu.Unlock()
}

// Get returns a clone of the current point for id, or false if absent.
func (c *Collection) Get(id string) (Point, bool) {
	c.primaryMu.RLock()
	defer c.primaryMu.RUnlock()
	p, ok := c.points[id]
	if !ok {
		return Point{}, false
	}
	return *p.clone(), true
}

// Count returns the number of points currently stored.
func (c *Collection) Count() int {
	c.primaryMu.RLock()
	defer c.primaryMu.RUnlock()
	return len(c.points)
}

// GetAllPoints returns a clone of every stored point, for snapshotting.
func (c *Collection) GetAllPoints() []Point {
	c.primaryMu.RLock()
	defer c.primaryMu.RUnlock()
	out := make([]Point, 0, len(c.points))
	for _, p := range c.points {
		out = append(out, *p.clone())
	}
	return out
}

// Delete removes id from the primary store, HNSW, and BM25, reporting
// whether it was present.
func (c *Collection) Delete(id string) bool {
	c.primaryMu.Lock()
	_, existed := c.points[id]
	delete(c.points, id)
	c.primaryMu.Unlock()

	if !existed {
		return false
	}

	if c.hnswIndex != nil {
		c.hnswMu.Lock()
		if c.hnswBuilt {
			c.hnswIndex.Remove(id)
		}
		c.hnswMu.Unlock()
	}
	if c.bm25Index != nil {
		c.bm25Mu.Lock()
		c.bm25Index.Delete(id)
		c.bm25Mu.Unlock()
	}
	return true
}

// UpdateVector replaces id's vector in place: the primary entry is
// updated and, if indexed, the HNSW node is removed and reinserted.
func (c *Collection) UpdateVector(id string, v []float32) error {
	if c.Config.VectorDim > 0 && len(v) != c.Config.VectorDim {
		return errs.NewDimensionError(c.Config.VectorDim, len(v))
	}

	c.primaryMu.Lock()
	p, ok := c.points[id]
	if !ok {
		c.primaryMu.Unlock()
		return errs.ErrPointNotFound
	}
	p.Vector = append([]float32(nil), v...)
	p.Version++
	c.primaryMu.Unlock()

	if c.hnswIndex != nil {
		c.hnswMu.Lock()
		if c.hnswBuilt {
			c.hnswIndex.Remove(id)
			c.hnswIndex.Insert(id, normalized(v))
		}
		c.hnswMu.Unlock()
	}
	return nil
}

// SetPayload merges updates into id's payload (creating it if absent).
func (c *Collection) SetPayload(id string, updates map[string]interface{}) bool {
	c.primaryMu.Lock()
	defer c.primaryMu.Unlock()
	p, ok := c.points[id]
	if !ok {
		return false
	}
	if p.Payload == nil {
		p.Payload = make(map[string]interface{})
	}
	for k, v := range updates {
		p.Payload[k] = v
	}
	return true
}

// OverwritePayload replaces id's payload wholesale.
func (c *Collection) OverwritePayload(id string, payload map[string]interface{}) bool {
	c.primaryMu.Lock()
	defer c.primaryMu.Unlock()
	p, ok := c.points[id]
	if !ok {
		return false
	}
	p.Payload = payload
	return true
}

// DeletePayloadKeys removes the named keys from id's payload.
func (c *Collection) DeletePayloadKeys(id string, keys []string) bool {
	c.primaryMu.Lock()
	defer c.primaryMu.Unlock()
	p, ok := c.points[id]
	if !ok {
		return false
	}
	for _, k := range keys {
		delete(p.Payload, k)
	}
	return true
}

// ClearPayload removes all payload keys from id.
func (c *Collection) ClearPayload(id string) bool {
	c.primaryMu.Lock()
	defer c.primaryMu.Unlock()
	p, ok := c.points[id]
	if !ok {
		return false
	}
	p.Payload = nil
	return true
}

// CreatePayloadIndex records field as advisorily indexed, returning
// whether it was already present. Filter evaluation is always uniform
// regardless of this bookkeeping.
func (c *Collection) CreatePayloadIndex(field string) bool {
	c.payloadIndexMu.Lock()
	defer c.payloadIndexMu.Unlock()
	_, existed := c.payloadIndexes[field]
	c.payloadIndexes[field] = true
	return existed
}

// DeletePayloadIndex removes field's advisory index marker, returning
// whether it was present.
func (c *Collection) DeletePayloadIndex(field string) bool {
	c.payloadIndexMu.Lock()
	defer c.payloadIndexMu.Unlock()
	_, existed := c.payloadIndexes[field]
	delete(c.payloadIndexes, field)
	return existed
}

func scoreFor(dist Distance, query, v []float32) float64 {
	switch dist {
	case Euclidean:
		return -float64(vector.L2(query, v))
	case Dot:
		return float64(vector.Dot(query, v))
	default: // Cosine
		return vector.New(query).Cosine(vector.New(v))
	}
}

// Search returns the top-k points by the collection's configured distance,
// filtered post-hoc by f (pass nil, or filter.And() with no children, to
// match everything; a zero filter.Filter with Op "" matches nothing).
func (c *Collection) Search(query []float32, k int, f *filter.Filter) []SearchResult {
	if c.Config.Distance == Cosine {
		query = normalized(query)
	}

	c.primaryMu.RLock()
	n := len(c.points)
	c.primaryMu.RUnlock()

	if n < c.BruteForceThreshold || c.hnswIndex == nil {
		return c.bruteForceSearch(query, k, f)
	}

	c.hnswMu.Lock()
	if !c.hnswBuilt {
		c.hnswMu.Unlock()
		c.RebuildHNSWSync()
		c.hnswMu.Lock()
	}
	idx := c.hnswIndex
	c.hnswMu.Unlock()

	hits := idx.Search(query, k, 0)
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		c.primaryMu.RLock()
		p, ok := c.points[h.ID]
		c.primaryMu.RUnlock()
		if !ok {
			continue
		}
		if f != nil && !filter.Match(*f, p.Payload) {
			continue
		}
		out = append(out, SearchResult{ID: p.ID, Score: h.Similarity, Payload: p.Payload})
	}
	return out
}

func (c *Collection) bruteForceSearch(query []float32, k int, f *filter.Filter) []SearchResult {
	c.primaryMu.RLock()
	defer c.primaryMu.RUnlock()

	out := make([]SearchResult, 0, len(c.points))
	for _, p := range c.points {
		if f != nil && !filter.Match(*f, p.Payload) {
			continue
		}
		score := scoreFor(c.Config.Distance, query, p.Vector)
		out = append(out, SearchResult{ID: p.ID, Score: score, Payload: p.Payload})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// SearchText returns the top-k doc ids by BM25 relevance to query.
func (c *Collection) SearchText(query string, k int) []bm25.Result {
	if c.bm25Index == nil {
		return nil
	}
	c.bm25Mu.RLock()
	defer c.bm25Mu.RUnlock()
	return c.bm25Index.Search(query, k)
}

// scoreSparse computes a dot product between two sparse vectors, assuming
// both index lists are ascending. This is a forward-compatible fallback
// (spec Q4): no inverted index is built over sparse vectors, so this walk
// is O(len(a)+len(b)) per candidate and every point is scanned.
func scoreSparse(query, v SparseVector) float64 {
	var score float64
	i, j := 0, 0
	for i < len(query.Indices) && j < len(v.Indices) {
		switch {
		case query.Indices[i] == v.Indices[j]:
			score += float64(query.Values[i]) * float64(v.Values[j])
			i++
			j++
		case query.Indices[i] < v.Indices[j]:
			i++
		default:
			j++
		}
	}
	return score
}

// SearchSparse ranks points by dot-product similarity of the named sparse
// vector against query, brute-force over every point (no sparse index
// exists). Points lacking the named vector score 0 and are still ranked.
func (c *Collection) SearchSparse(name string, query SparseVector, k int, f *filter.Filter) []SearchResult {
	c.primaryMu.RLock()
	defer c.primaryMu.RUnlock()

	out := make([]SearchResult, 0, len(c.points))
	for _, p := range c.points {
		if f != nil && !filter.Match(*f, p.Payload) {
			continue
		}
		score := scoreSparse(query, p.SparseVectors[name])
		out = append(out, SearchResult{ID: p.ID, Score: score, Payload: p.Payload})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// SearchMultivector returns the top-k points by MaxSim against query,
// filtered post-hoc, using the scorer matching the collection's distance.
func (c *Collection) SearchMultivector(query [][]float32, k int, f *filter.Filter) ([]SearchResult, error) {
	queryMV, err := multivector.New(query)
	if err != nil {
		return nil, err
	}

	c.primaryMu.RLock()
	defer c.primaryMu.RUnlock()

	out := make([]SearchResult, 0, len(c.points))
	for _, p := range c.points {
		if f != nil && !filter.Match(*f, p.Payload) {
			continue
		}
		docMV, err := docMultivector(p)
		if err != nil {
			continue
		}
		score := maxSimFor(c.Config.Distance, queryMV, docMV)
		out = append(out, SearchResult{ID: p.ID, Score: score, Payload: p.Payload})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func docMultivector(p *Point) (multivector.MultiVector, error) {
	if len(p.Multivector) > 0 {
		return multivector.New(p.Multivector)
	}
	return multivector.FromSingle(p.Vector), nil
}

func maxSimFor(dist Distance, query, doc multivector.MultiVector) float64 {
	switch dist {
	case Euclidean:
		return multivector.MaxSimL2(query, doc)
	case Cosine:
		return multivector.MaxSimCosine(query, doc)
	default:
		return multivector.MaxSim(query, doc)
	}
}

// OpCount returns the collection's monotonic operation counter.
func (c *Collection) OpCount() int64 { return c.opCounter.Load() }

// HNSWBuilt reports whether the HNSW graph currently reflects the point
// set (used by tests and diagnostics, not part of the search path).
func (c *Collection) HNSWBuilt() bool {
	c.hnswMu.RLock()
	defer c.hnswMu.RUnlock()
	return c.hnswBuilt
}
