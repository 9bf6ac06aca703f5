package facematch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/vector"
)

// person is a test fixture: a name with its reference embeddings.
type person struct {
	name       string
	embeddings [][]float32
}

func buildSnapshot(people ...person) *database.Snapshot {
	identities := make([]database.Identity, 0, len(people))
	var nextID int64
	for i, p := range people {
		identity := database.Identity{
			ID:         fmt.Sprintf("id-%d", i),
			Name:       p.name,
			RollNumber: fmt.Sprintf("R%03d", i),
		}
		for _, e := range p.embeddings {
			nextID++
			identity.Embeddings = append(identity.Embeddings, database.ReferenceEmbedding{
				ID:         nextID,
				IdentityID: identity.ID,
				Vector:     e,
			})
		}
		identities = append(identities, identity)
	}
	return database.BuildSnapshot(identities)
}

func randomVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

func randomPopulation(seed uint64, identities, perIdentity, dim int) *database.Snapshot {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	people := make([]person, identities)
	for i := range people {
		people[i].name = fmt.Sprintf("person %d", i)
		for range perIdentity {
			people[i].embeddings = append(people[i].embeddings, randomVector(rng, dim))
		}
	}
	return buildSnapshot(people...)
}

func TestFindBestMatch_Scenario(t *testing.T) {
	// cos(q, v1) = 0.80, cos(q, v2) = 0.40
	alice := person{"Alice", [][]float32{{1, 0, 0}}}
	bob := person{"Bob", [][]float32{{0, 1, 0}}}
	snap := buildSnapshot(alice, bob)
	m := NewMatcher(0.65)

	q := []float32{0.8, 0.4, float32(math.Sqrt(0.2))}
	result, err := m.FindBestMatch(context.Background(), q, snap)
	if err != nil {
		t.Fatalf("FindBestMatch() error = %v", err)
	}
	if !result.Matched {
		t.Fatalf("expected a match, got %+v", result)
	}
	if result.Identity.Name != "Alice" {
		t.Errorf("Identity.Name = %q, want Alice", result.Identity.Name)
	}
	if math.Abs(result.Similarity-0.80) > 1e-6 {
		t.Errorf("Similarity = %v, want 0.80", result.Similarity)
	}

	// max similarity 0.50 against both
	q2 := []float32{0.5, 0.5, float32(math.Sqrt(0.5))}
	result, err = m.FindBestMatch(context.Background(), q2, snap)
	if err != nil {
		t.Fatalf("FindBestMatch() error = %v", err)
	}
	if result.Matched {
		t.Errorf("expected no match, got %+v", result)
	}
	if math.Abs(result.Similarity-0.50) > 1e-6 {
		t.Errorf("Similarity = %v, want 0.50", result.Similarity)
	}
}

func TestFindBestMatch_Threshold(t *testing.T) {
	snap := buildSnapshot(person{"Exact", [][]float32{{1, 0}}})

	tests := []struct {
		name      string
		threshold float64
		matched   bool
	}{
		{"below threshold accepted", 0.65, true},
		{"equal to threshold rejected", 1.0, false},
		{"negative threshold", -0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewMatcher(tt.threshold).FindBestMatch(context.Background(), []float32{2, 0}, snap)
			if err != nil {
				t.Fatalf("FindBestMatch() error = %v", err)
			}
			if result.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v (similarity %v)", result.Matched, tt.matched, result.Similarity)
			}
			if result.Matched && result.Similarity <= tt.threshold {
				t.Errorf("matched with similarity %v <= threshold %v", result.Similarity, tt.threshold)
			}
		})
	}
}

func TestFindBestMatch_GlobalMaximum(t *testing.T) {
	// Carol's second embedding beats Dave's only one; first-above-threshold would pick Dave.
	dave := person{"Dave", [][]float32{{0.9, 0.1}}}
	carol := person{"Carol", [][]float32{{0, 1}, {1, 0.01}}}
	snap := buildSnapshot(dave, carol)

	result, err := NewMatcher(0.5).FindBestMatch(context.Background(), []float32{1, 0}, snap)
	if err != nil {
		t.Fatalf("FindBestMatch() error = %v", err)
	}
	if result.Identity.Name != "Carol" {
		t.Errorf("Identity.Name = %q, want Carol", result.Identity.Name)
	}
	if result.Position != 2 {
		t.Errorf("Position = %d, want 2", result.Position)
	}
}

func TestFindBestMatch_TieGoesToFirstPosition(t *testing.T) {
	v := []float32{0.3, 0.4, 0.5}
	snap := buildSnapshot(
		person{"First", [][]float32{{0, 0, 1}, v}},
		person{"Second", [][]float32{v}},
	)

	for range 10 {
		result, err := NewMatcher(0.65).FindBestMatch(context.Background(), v, snap)
		if err != nil {
			t.Fatalf("FindBestMatch() error = %v", err)
		}
		if result.Identity.Name != "First" || result.Position != 1 {
			t.Fatalf("got %s at %d, want First at 1", result.Identity.Name, result.Position)
		}
	}
}

func TestFindBestMatch_Errors(t *testing.T) {
	snap := buildSnapshot(person{"Alice", [][]float32{{1, 0, 0}}})
	m := NewMatcher(0.65)

	tests := []struct {
		name    string
		query   []float32
		snap    *database.Snapshot
		wantErr error
	}{
		{"empty population", []float32{1, 0, 0}, buildSnapshot(), ErrEmptyPopulation},
		{"nil snapshot", []float32{1, 0, 0}, nil, ErrEmptyPopulation},
		{"dimension mismatch", []float32{1, 0}, snap, vector.ErrDimensionMismatch},
		{"zero vector", []float32{0, 0, 0}, snap, vector.ErrDegenerateVector},
		{"nan", []float32{float32(math.NaN()), 0, 1}, snap, vector.ErrNonFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := m.FindBestMatch(context.Background(), tt.query, tt.snap)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if result.Matched {
				t.Errorf("Matched = true on error")
			}
		})
	}
}

func TestFindBestMatch_ContextCancelled(t *testing.T) {
	snap := buildSnapshot(person{"Alice", [][]float32{{1, 0}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMatcher(0.65).FindBestMatch(ctx, []float32{1, 0}, snap)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestFindBestMatch_ParallelEqualsSequential(t *testing.T) {
	snap := randomPopulation(42, 300, 3, 64)
	rng := rand.New(rand.NewPCG(7, 8))

	sequential := NewMatcher(0.1, WithWorkers(1))
	parallel := NewMatcher(0.1, WithWorkers(7), WithParallelCutoff(10))

	for i := range 50 {
		q := randomVector(rng, 64)
		if i%5 == 0 {
			// duplicate an existing embedding so some queries match
			q = snap.Embeddings[rng.IntN(snap.Len())].Vector
		}

		want, err := sequential.FindBestMatch(context.Background(), q, snap)
		if err != nil {
			t.Fatalf("sequential error = %v", err)
		}
		got, err := parallel.FindBestMatch(context.Background(), q, snap)
		if err != nil {
			t.Fatalf("parallel error = %v", err)
		}
		if got != want {
			t.Fatalf("query %d: parallel %+v != sequential %+v", i, got, want)
		}
	}
}

func TestFindBestMatch_ParallelTie(t *testing.T) {
	v := []float32{1, 2, 3}
	people := make([]person, 40)
	for i := range people {
		people[i] = person{fmt.Sprintf("p%d", i), [][]float32{{-1, 0, 0}}}
	}
	// same best vector in several shards
	people[11].embeddings = [][]float32{v}
	people[25].embeddings = [][]float32{v}
	people[39].embeddings = [][]float32{v}
	snap := buildSnapshot(people...)

	result, err := NewMatcher(0.65, WithWorkers(4), WithParallelCutoff(1)).FindBestMatch(context.Background(), v, snap)
	if err != nil {
		t.Fatalf("FindBestMatch() error = %v", err)
	}
	if result.Identity.Name != "p11" {
		t.Errorf("Identity.Name = %q, want p11", result.Identity.Name)
	}
}

func TestFindBestMatch_ConcurrentCallers(t *testing.T) {
	snap := randomPopulation(3, 100, 2, 32)
	m := NewMatcher(0.5, WithWorkers(4), WithParallelCutoff(50))
	q := snap.Embeddings[57].Vector

	want, err := m.FindBestMatch(context.Background(), q, snap)
	if err != nil {
		t.Fatalf("FindBestMatch() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Go(func() {
			got, err := m.FindBestMatch(context.Background(), q, snap)
			if err != nil {
				errs <- err
				return
			}
			if got != want {
				errs <- fmt.Errorf("got %+v, want %+v", got, want)
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestFindBestMatch_HNSWCandidates(t *testing.T) {
	snap := randomPopulation(11, 200, 2, 64)
	cache := &database.HNSWIndexCache{}
	approx := NewMatcher(0.65, WithCandidateIndex(HNSWCandidates(cache), 16))
	exact := NewMatcher(0.65)

	// Every stored vector must find its owner, however poor the graph recall.
	for pos := range snap.Len() {
		q := snap.Embeddings[pos].Vector
		got, err := approx.FindBestMatch(context.Background(), q, snap)
		if err != nil {
			t.Fatalf("approx error = %v", err)
		}
		want, err := exact.FindBestMatch(context.Background(), q, snap)
		if err != nil {
			t.Fatalf("exact error = %v", err)
		}
		if !got.Matched || got.Identity != want.Identity {
			t.Errorf("position %d: approx %+v, exact %+v", pos, got, want)
		}
		if got.Matched && got.Similarity <= approx.Threshold() {
			t.Errorf("position %d: similarity %v not above threshold", pos, got.Similarity)
		}
	}

	if cache.Count() != snap.Len() {
		t.Errorf("cache.Count() = %d, want %d", cache.Count(), snap.Len())
	}
}

// fixedIndex proposes the same positions for every query.
type fixedIndex []int

func (f fixedIndex) Candidates([]float32, int) ([]int, error) {
	return f, nil
}

func TestFindBestMatch_CandidatesBelowThresholdUseExactScan(t *testing.T) {
	alice := person{"Alice", [][]float32{{1, 0, 0}}}
	bob := person{"Bob", [][]float32{{0, 1, 0}}}
	carol := person{"Carol", [][]float32{{0, 0, 1}}}
	snap := buildSnapshot(alice, bob, carol)

	tests := []struct {
		name       string
		candidates fixedIndex
		query      []float32
		wantMatch  bool
		wantName   string
	}{
		{"true match missing from candidates", fixedIndex{0}, []float32{0, 0.1, 1}, true, "Carol"},
		{"candidates hold the match", fixedIndex{2}, []float32{0, 0.1, 1}, true, "Carol"},
		{"out of range candidates only", fixedIndex{-1, 7}, []float32{0, 1, 0}, true, "Bob"},
		{"nothing above threshold anywhere", fixedIndex{0}, []float32{1, 1, 1}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := func(*database.Snapshot) (CandidateIndex, error) { return tt.candidates, nil }
			m := NewMatcher(0.65, WithCandidateIndex(provider, 1))

			got, err := m.FindBestMatch(context.Background(), tt.query, snap)
			if err != nil {
				t.Fatalf("FindBestMatch() error = %v", err)
			}
			want, err := NewMatcher(0.65).FindBestMatch(context.Background(), tt.query, snap)
			if err != nil {
				t.Fatalf("exact FindBestMatch() error = %v", err)
			}
			if got.Matched != tt.wantMatch || got.Identity.Name != tt.wantName {
				t.Errorf("got %+v, want matched=%v name=%q", got, tt.wantMatch, tt.wantName)
			}
			if got != want {
				t.Errorf("candidate path %+v differs from exact scan %+v", got, want)
			}
		})
	}
}

func TestFindBestMatch_BadReference(t *testing.T) {
	snap := buildSnapshot(
		person{"Alice", [][]float32{{1, 0, 0}}},
		person{"Bob", [][]float32{{0, 1}}},
	)

	_, err := NewMatcher(0.65).FindBestMatch(context.Background(), []float32{1, 0, 0}, snap)
	if !errors.Is(err, ErrBadReference) {
		t.Fatalf("FindBestMatch() error = %v, want ErrBadReference", err)
	}
	if !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Errorf("FindBestMatch() error = %v, want it to wrap ErrDimensionMismatch", err)
	}
}

type failingIndex struct{}

func (failingIndex) Candidates([]float32, int) ([]int, error) {
	return nil, errors.New("index unavailable")
}

func TestFindBestMatch_IndexFailureFallsBack(t *testing.T) {
	snap := buildSnapshot(person{"Alice", [][]float32{{1, 0}}}, person{"Bob", [][]float32{{0, 1}}})
	provider := func(*database.Snapshot) (CandidateIndex, error) { return failingIndex{}, nil }

	result, err := NewMatcher(0.65, WithCandidateIndex(provider, 4)).FindBestMatch(context.Background(), []float32{0, 1}, snap)
	if err != nil {
		t.Fatalf("FindBestMatch() error = %v", err)
	}
	if result.Identity.Name != "Bob" {
		t.Errorf("Identity.Name = %q, want Bob", result.Identity.Name)
	}
}
