package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/coder/hnsw"
)

// Graph parameters tuned for face embeddings of a few hundred dimensions.
const (
	hnswNeighbors = 16  // M, edges per node
	hnswEfSearch  = 100 // candidate list size during search

	// hnswMinCandidates is the floor on K so that the exact re-score still
	// sees the true maximum when the graph recall is imperfect.
	hnswMinCandidates = 32
)

// HNSWIndex wraps an HNSW graph over the reference embeddings of one snapshot.
// Node keys are positions in Snapshot.Embeddings.
type HNSWIndex struct {
	graph   *hnsw.Graph[int]
	version SnapshotVersion
	count   int
	mu      sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{}
}

func newGraph() *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = hnswNeighbors
	g.Ml = 1.0 / float64(hnswNeighbors)
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromSnapshot builds the index from every embedding of the snapshot.
func (h *HNSWIndex) BuildFromSnapshot(s *Snapshot) error {
	if s == nil {
		return errors.New("nil snapshot")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.version = s.Version
	h.count = 0
	if s.Len() == 0 {
		h.graph = nil
		return nil
	}

	g := newGraph()
	nodes := make([]hnsw.Node[int], 0, s.Len())
	for pos := range s.Embeddings {
		if len(s.Embeddings[pos].Vector) == 0 {
			continue
		}
		nodes = append(nodes, hnsw.MakeNode(pos, s.Embeddings[pos].Vector))
	}
	g.Add(nodes...)

	h.graph = g
	h.count = len(nodes)
	return nil
}

// Candidates returns the snapshot positions of up to k approximate nearest
// neighbors of query. Order is not meaningful; callers re-score.
func (h *HNSWIndex) Candidates(query []float32, k int) ([]int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}

	k = max(k, hnswMinCandidates)
	neighbors := h.graph.Search(query, k)

	positions := make([]int, len(neighbors))
	for i, n := range neighbors {
		positions[i] = n.Key
	}
	return positions, nil
}

// Version returns the snapshot version the index was built from.
func (h *HNSWIndex) Version() SnapshotVersion {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Count returns the number of indexed embeddings.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// HNSWIndexCache keeps the index of the latest snapshot and rebuilds it when
// a snapshot with a different version is requested.
type HNSWIndexCache struct {
	mu    sync.Mutex
	index *HNSWIndex
}

// IndexFor returns an index built from s, reusing the cached one when the
// versions match.
func (c *HNSWIndexCache) IndexFor(s *Snapshot) (*HNSWIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index != nil && c.index.Version() == s.Version {
		return c.index, nil
	}

	idx := NewHNSWIndex()
	if err := idx.BuildFromSnapshot(s); err != nil {
		return nil, fmt.Errorf("building HNSW index: %w", err)
	}
	c.index = idx
	return idx, nil
}

// Count returns the number of embeddings in the cached index.
func (c *HNSWIndexCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index == nil {
		return 0
	}
	return c.index.Count()
}
