package database

import (
	"context"
	"sync"
	"sync/atomic"
)

// SnapshotVersion identifies a population state. Reference embeddings are
// append-only, so count and max id change on every write.
type SnapshotVersion struct {
	EmbeddingCount int64 `json:"embedding_count"`
	MaxEmbeddingID int64 `json:"max_embedding_id"`
}

// SnapshotEmbedding is one reference embedding in a snapshot.
// Owner indexes Snapshot.Identities.
type SnapshotEmbedding struct {
	Owner       int
	EmbeddingID int64
	Vector      []float32
}

// Snapshot is an immutable, ordered view of the enrolled population.
// Identities are in enrollment order and Embeddings are flattened so that
// scanning them in order visits every identity's embeddings in insertion order.
type Snapshot struct {
	Version    SnapshotVersion
	Identities []IdentityRef
	Embeddings []SnapshotEmbedding
}

// Len returns the number of reference embeddings.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Embeddings)
}

// Owner returns the identity owning the embedding at position pos.
func (s *Snapshot) Owner(pos int) IdentityRef {
	return s.Identities[s.Embeddings[pos].Owner]
}

// BuildSnapshot flattens identities (in the given order) into a snapshot.
// Vectors are shared with the input, so callers must not mutate them afterwards.
func BuildSnapshot(identities []Identity) *Snapshot {
	s := &Snapshot{
		Identities: make([]IdentityRef, 0, len(identities)),
	}

	for i := range identities {
		identity := &identities[i]
		owner := len(s.Identities)
		s.Identities = append(s.Identities, identity.Ref())
		for _, emb := range identity.Embeddings {
			s.Embeddings = append(s.Embeddings, SnapshotEmbedding{
				Owner:       owner,
				EmbeddingID: emb.ID,
				Vector:      emb.Vector,
			})
			s.Version.EmbeddingCount++
			s.Version.MaxEmbeddingID = max(s.Version.MaxEmbeddingID, emb.ID)
		}
	}

	return s
}

// SnapshotCache holds the last published snapshot and reloads it when the
// storage version moves. Published snapshots are never mutated.
type SnapshotCache struct {
	current atomic.Pointer[Snapshot]
	loadMu  sync.Mutex
}

// Get returns the cached snapshot if its version equals version, otherwise
// calls load and publishes the result. Concurrent misses share one load.
func (c *SnapshotCache) Get(
	ctx context.Context, version SnapshotVersion, load func(context.Context) (*Snapshot, error),
) (*Snapshot, error) {
	if s := c.current.Load(); s != nil && s.Version == version {
		return s, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if s := c.current.Load(); s != nil && s.Version == version {
		return s, nil
	}

	s, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.current.Store(s)
	return s, nil
}

// Invalidate drops the cached snapshot.
func (c *SnapshotCache) Invalidate() {
	c.current.Store(nil)
}
