package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func testIdentities() []Identity {
	return []Identity{
		{ID: "a", Name: "Alice", Embeddings: []ReferenceEmbedding{{ID: 1, Vector: []float32{1, 0}}, {ID: 3, Vector: []float32{1, 1}}}},
		{ID: "b", Name: "Bob", Embeddings: []ReferenceEmbedding{{ID: 2, Vector: []float32{0, 1}}}},
		{ID: "c", Name: "Carol"},
	}
}

func TestBuildSnapshot(t *testing.T) {
	s := BuildSnapshot(testIdentities())

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if len(s.Identities) != 3 {
		t.Errorf("len(Identities) = %d, want 3", len(s.Identities))
	}
	wantIDs := []int64{1, 3, 2}
	wantOwners := []string{"Alice", "Alice", "Bob"}
	for pos := range wantIDs {
		if s.Embeddings[pos].EmbeddingID != wantIDs[pos] {
			t.Errorf("Embeddings[%d].EmbeddingID = %d, want %d", pos, s.Embeddings[pos].EmbeddingID, wantIDs[pos])
		}
		if s.Owner(pos).Name != wantOwners[pos] {
			t.Errorf("Owner(%d) = %s, want %s", pos, s.Owner(pos).Name, wantOwners[pos])
		}
	}
	if s.Version != (SnapshotVersion{EmbeddingCount: 3, MaxEmbeddingID: 3}) {
		t.Errorf("Version = %+v", s.Version)
	}

	var nilSnapshot *Snapshot
	if nilSnapshot.Len() != 0 {
		t.Error("nil snapshot should be empty")
	}
}

func TestSnapshotCache_Get(t *testing.T) {
	var cache SnapshotCache
	var loads atomic.Int32
	v1 := SnapshotVersion{EmbeddingCount: 3, MaxEmbeddingID: 3}
	load := func(context.Context) (*Snapshot, error) {
		loads.Add(1)
		return BuildSnapshot(testIdentities()), nil
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			if _, err := cache.Get(context.Background(), v1, load); err != nil {
				t.Errorf("Get() error = %v", err)
			}
		})
	}
	wg.Wait()
	if loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", loads.Load())
	}

	// a different version forces a reload
	v2 := SnapshotVersion{EmbeddingCount: 4, MaxEmbeddingID: 4}
	_, _ = cache.Get(context.Background(), v2, load)
	if loads.Load() != 2 {
		t.Errorf("loads = %d, want 2", loads.Load())
	}

	cache.Invalidate()
	_, _ = cache.Get(context.Background(), v1, load)
	if loads.Load() != 3 {
		t.Errorf("loads after Invalidate = %d, want 3", loads.Load())
	}
}

func TestSnapshotCache_LoadError(t *testing.T) {
	var cache SnapshotCache
	_, err := cache.Get(context.Background(), SnapshotVersion{}, func(context.Context) (*Snapshot, error) {
		return nil, ErrStorage
	})
	if !errors.Is(err, ErrStorage) {
		t.Errorf("error = %v, want ErrStorage", err)
	}
}

func TestHNSWIndexCache(t *testing.T) {
	var cache HNSWIndexCache
	s := BuildSnapshot(testIdentities())

	idx, err := cache.IndexFor(s)
	if err != nil {
		t.Fatalf("IndexFor() error = %v", err)
	}
	if idx.Count() != 3 {
		t.Errorf("Count() = %d, want 3", idx.Count())
	}

	positions, err := idx.Candidates([]float32{0, 1}, 2)
	if err != nil {
		t.Fatalf("Candidates() error = %v", err)
	}
	found := false
	for _, p := range positions {
		if p == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("Candidates() = %v, want position 2 (Bob)", positions)
	}

	same, _ := cache.IndexFor(s)
	if same != idx {
		t.Error("same version should reuse the index")
	}

	empty, err := cache.IndexFor(BuildSnapshot(nil))
	if err != nil {
		t.Fatalf("IndexFor(empty) error = %v", err)
	}
	if empty.Count() != 0 {
		t.Error("empty snapshot should give an empty index")
	}
	if _, err := empty.Candidates([]float32{1, 0}, 1); err == nil {
		t.Error("expected error searching an empty index")
	}
}
