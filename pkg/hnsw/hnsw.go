// Package hnsw implements a hierarchical navigable small-world graph: an
// approximate k-NN index over L2-normalised float32 vectors. Callers are
// responsible for normalising vectors before Insert/Search — the index
// always operates on, and stores, normalised vectors (spec §4.2).
//
// Vectors live in one contiguous arena (node index * dim), not behind
// per-node pointers, so distance evaluation is a direct slice read with no
// pointer chasing. Neighbor lists reference nodes by dense index into that
// same arena.
package hnsw

import (
	"container/heap"
	"math/rand"
	"sort"
	"sync"

	"github.com/orneryd/vecdb/pkg/vector"
)

// Fixed tunables (spec §6: not user-configurable in the core).
const (
	M              = 16  // max outgoing edges per layer before pruning kicks in
	MaxDegree      = 2 * M
	MaxLayers      = 3
	EfConstruction = 200
	bruteForceMax  = 1000 // below this node count, Search uses layer 0 only
)

// node holds a point's id and, per layer it occupies, an explicit neighbor
// list. layers[0] always exists; len(layers) == node's assigned level + 1.
// Per spec §9 open question: only the node's own assigned layer gets an
// explicit neighbor list at insert time — lower layers are populated
// incrementally, only via back-edges added when later nodes pick this node
// as a neighbor at that layer. The graph is intentionally sparser at lower
// layers early on.
type node struct {
	id     string
	layers [][]int32
}

// Result is one hit returned by Search: a point id and its similarity
// (1 - internal distance) in [-1, 1] for normalised cosine vectors.
type Result struct {
	ID         string
	Similarity float64
}

// Index is an HNSW graph plus its backing vector arena.
type Index struct {
	mu      sync.RWMutex
	dim     int
	arena   []float32 // len == len(nodes)*dim
	nodes   []node
	idIndex map[string]int32
	visited *visitedSet
}

// New creates an empty HNSW index over vectors of the given dimension.
func New(dim int) *Index {
	return &Index{
		dim:     dim,
		idIndex: make(map[string]int32),
		visited: newVisitedSet(),
	}
}

// Len returns the number of indexed points.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// Contains reports whether id is currently indexed.
func (idx *Index) Contains(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.idIndex[id]
	return ok
}

func randomLayer() int {
	layer := 0
	for layer < MaxLayers-1 && rand.Float64() < 0.5 {
		layer++
	}
	return layer
}

func (idx *Index) vecAt(nodeIdx int) []float32 {
	start := nodeIdx * idx.dim
	return idx.arena[start : start+idx.dim]
}

// prefetchNeighbors is a best-effort software prefetch hint for the first
// four neighbour vectors in nbrs. Go has no portable prefetch intrinsic, so
// this just touches the first element of each slice to pull its cache line
// in before the distance loop below reads the rest of it.
func (idx *Index) prefetchNeighbors(nbrs []int32) {
	n := len(nbrs)
	if n > 4 {
		n = 4
	}
	for i := 0; i < n; i++ {
		v := idx.vecAt(int(nbrs[i]))
		_ = v[0]
	}
}

// Insert adds id/vec to the graph. vec must already be L2-normalised and
// must match the index's configured dimension.
func (idx *Index) Insert(id string, vec []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	level := randomLayer()
	nodeIdx := int32(len(idx.nodes))

	idx.arena = append(idx.arena, vec...)
	idx.nodes = append(idx.nodes, node{id: id, layers: make([][]int32, level+1)})
	for l := range idx.nodes[nodeIdx].layers {
		idx.nodes[nodeIdx].layers[l] = nil
	}
	idx.idIndex[id] = nodeIdx

	if nodeIdx == 0 {
		return // first node: it is the permanent entry point, no edges yet
	}

	entry := int32(0)
	for l := MaxLayers - 1; l > level; l-- {
		results := idx.searchLayer(vec, entry, 1, l)
		if len(results) > 0 {
			entry = int32(results[0].node)
		}
	}

	// Only layer `level` gets an explicit neighbour assignment here; lower
	// layers are populated solely by back-edges added when later inserts
	// choose this node as one of their neighbours, so the graph is sparser
	// at those layers until more nodes arrive.
	candidates := idx.searchLayer(vec, entry, EfConstruction, level)
	neighbors := selectNeighbors(candidates, M)
	idx.nodes[nodeIdx].layers[level] = neighbors
	for _, nb := range neighbors {
		idx.addBackEdge(nb, nodeIdx, level)
	}
	if len(candidates) > 0 {
		entry = int32(candidates[0].node)
	}

	for l := level - 1; l >= 0; l-- {
		results := idx.searchLayer(vec, entry, 1, l)
		if len(results) > 0 {
			entry = int32(results[0].node)
		}
	}
}

// selectNeighbors keeps the node indices of the first m candidates; it does
// not sort, so candidates must already be in ascending distance order.
func selectNeighbors(candidates []candidate, m int) []int32 {
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]int32, len(candidates))
	for i, c := range candidates {
		out[i] = int32(c.node)
	}
	return out
}

// addBackEdge gives neighborIdx a back-link to newIdx at layer l, pruning
// to MaxDegree by L2 distance if the neighbor's degree overflows. Only
// applies if the neighbor itself occupies layer l.
func (idx *Index) addBackEdge(neighborIdx int32, newIdx int32, l int) {
	n := &idx.nodes[neighborIdx]
	if l >= len(n.layers) {
		return
	}
	n.layers[l] = append(n.layers[l], newIdx)
	if len(n.layers[l]) > MaxDegree {
		idx.pruneToDegree(neighborIdx, l, MaxDegree)
	}
}

// pruneToDegree sorts nodeIdx's layer-l neighbors by L2 distance to
// nodeIdx's own vector and truncates to maxDegree. This is the "simple
// heuristic, not Qdrant's diverse selector" the spec calls for.
func (idx *Index) pruneToDegree(nodeIdx int32, l int, maxDegree int) {
	n := &idx.nodes[nodeIdx]
	self := idx.vecAt(int(nodeIdx))
	nbrs := n.layers[l]
	type scored struct {
		id   int32
		dist float32
	}
	scoredNbrs := make([]scored, len(nbrs))
	for i, nb := range nbrs {
		scoredNbrs[i] = scored{id: nb, dist: vector.L2(self, idx.vecAt(int(nb)))}
	}
	sort.Slice(scoredNbrs, func(i, j int) bool { return scoredNbrs[i].dist < scoredNbrs[j].dist })
	if len(scoredNbrs) > maxDegree {
		scoredNbrs = scoredNbrs[:maxDegree]
	}
	pruned := make([]int32, len(scoredNbrs))
	for i, s := range scoredNbrs {
		pruned[i] = s.id
	}
	n.layers[l] = pruned
}

// searchLayer explores layer l starting from entry and returns up to ef
// best (node, distance) pairs, sorted ascending by distance. Distance is
// 1 - dot(query, node_vec), a monotone transform of cosine similarity.
func (idx *Index) searchLayer(query []float32, entry int32, ef int, l int) []candidate {
	idx.visited.clear()
	idx.visited.insert(int(entry))

	entryDist := 1 - vector.Dot(query, idx.vecAt(int(entry)))

	candidates := &minHeap{{node: int(entry), dist: entryDist}}
	results := &maxHeap{{node: int(entry), dist: entryDist}}
	heap.Init(candidates)
	heap.Init(results)

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(candidate)

		if results.Len() >= ef {
			worst := (*results)[0]
			if closest.dist > worst.dist {
				break
			}
		}

		cur := &idx.nodes[closest.node]
		var neighbors []int32
		if l < len(cur.layers) {
			neighbors = cur.layers[l]
		}
		idx.prefetchNeighbors(neighbors)

		for _, nbIdx := range neighbors {
			if idx.visited.contains(int(nbIdx)) {
				continue
			}
			idx.visited.insert(int(nbIdx))

			dist := 1 - vector.Dot(query, idx.vecAt(int(nbIdx)))
			worstDist := float32(0)
			full := results.Len() >= ef
			if full {
				worstDist = (*results)[0].dist
			}
			if !full || dist < worstDist {
				heap.Push(candidates, candidate{node: int(nbIdx), dist: dist})
				heap.Push(results, candidate{node: int(nbIdx), dist: dist})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

// Search returns up to k approximate nearest neighbors of query. ef, if 0,
// defaults to max(k + k/2, 16); it is otherwise clamped to max(ef, k, 16).
func (idx *Index) Search(query []float32, k int, ef int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.nodes) == 0 {
		return nil
	}
	if ef <= 0 {
		ef = k + k/2
	}
	ef = maxInt(ef, maxInt(k, 16))

	var candidates []candidate
	if len(idx.nodes) < bruteForceMax {
		candidates = idx.searchLayer(query, 0, ef, 0)
	} else {
		entry := int32(0)
		for l := MaxLayers - 1; l > 0; l-- {
			results := idx.searchLayer(query, entry, 1, l)
			if len(results) > 0 {
				entry = int32(results[0].node)
			}
		}
		candidates = idx.searchLayer(query, entry, ef, 0)
	}

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{ID: idx.nodes[c.node].id, Similarity: float64(1 - c.dist)}
	}
	return out
}

// Remove deletes id from the graph. This shifts the arena tail and remaps
// every remaining neighbor index — O(N) — accepted per spec as the price
// of the dense arena layout; remove is expected to be rare relative to
// insert/search.
func (idx *Index) Remove(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	removedIdx, ok := idx.idIndex[id]
	if !ok {
		return false
	}
	ri := int(removedIdx)

	copy(idx.arena[ri*idx.dim:], idx.arena[(ri+1)*idx.dim:])
	idx.arena = idx.arena[:len(idx.arena)-idx.dim]

	idx.nodes = append(idx.nodes[:ri], idx.nodes[ri+1:]...)
	delete(idx.idIndex, id)

	for i := range idx.nodes {
		for l := range idx.nodes[i].layers {
			idx.nodes[i].layers[l] = remapNeighbors(idx.nodes[i].layers[l], removedIdx)
		}
	}
	for nid, i := range idx.idIndex {
		if i > removedIdx {
			idx.idIndex[nid] = i - 1
		}
	}
	return true
}

// remapNeighbors drops any reference to removed and decrements references
// past it, to account for the arena shift.
func remapNeighbors(nbrs []int32, removed int32) []int32 {
	out := nbrs[:0]
	for _, n := range nbrs {
		switch {
		case n == removed:
			continue
		case n > removed:
			out = append(out, n-1)
		default:
			out = append(out, n)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

