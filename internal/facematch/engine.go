package facematch

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/vector"
)

const (
	// DefaultParallelCutoff is the snapshot size from which the scan is sharded.
	DefaultParallelCutoff = 4096

	// DefaultCandidates is the number of candidates requested from an index.
	DefaultCandidates = 64

	// ctxCheckEvery is how many comparisons run between context checks.
	ctxCheckEvery = 1024
)

// Matcher selects the single global best reference embedding and accepts it
// only when its similarity is strictly greater than the threshold. Exact ties
// go to the lowest snapshot position. A Matcher is safe for concurrent use.
type Matcher struct {
	threshold  float64
	workers    int
	cutoff     int
	index      IndexProvider
	candidates int
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithWorkers bounds the number of goroutines used for large snapshots.
// Values below 2 disable sharding.
func WithWorkers(n int) Option {
	return func(m *Matcher) {
		m.workers = n
	}
}

// WithParallelCutoff sets the snapshot size from which the scan is sharded.
func WithParallelCutoff(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.cutoff = n
		}
	}
}

// WithCandidateIndex enables the approximate path: the index proposes k
// candidates which are re-scored with exact cosine similarity.
func WithCandidateIndex(p IndexProvider, k int) Option {
	return func(m *Matcher) {
		m.index = p
		if k > 0 {
			m.candidates = k
		}
	}
}

// NewMatcher creates a Matcher with similarity threshold t.
func NewMatcher(t float64, opts ...Option) *Matcher {
	m := &Matcher{
		threshold:  t,
		workers:    runtime.GOMAXPROCS(0),
		cutoff:     DefaultParallelCutoff,
		candidates: DefaultCandidates,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// best is the running maximum of a scan. pos is -1 until something is seen.
type best struct {
	pos int
	sim float64
}

func (b *best) offer(pos int, sim float64) {
	if b.pos < 0 || sim > b.sim {
		b.pos = pos
		b.sim = sim
	}
}

// FindBestMatch compares query with every reference embedding in s.
func (m *Matcher) FindBestMatch(ctx context.Context, query []float32, s *database.Snapshot) (MatchResult, error) {
	if s.Len() == 0 {
		return MatchResult{Position: -1}, ErrEmptyPopulation
	}
	if err := vector.Validate(query, len(s.Embeddings[0].Vector)); err != nil {
		return MatchResult{Position: -1}, fmt.Errorf("query embedding: %w", err)
	}

	var (
		b   best
		err error
	)
	if m.index != nil {
		b, err = m.scanCandidates(ctx, query, s)
	} else {
		b, err = m.scanAll(ctx, query, s)
	}
	if err != nil {
		return MatchResult{Position: -1}, err
	}

	result := MatchResult{Similarity: b.sim, Position: b.pos}
	if b.pos >= 0 && b.sim > m.threshold {
		result.Matched = true
		result.Identity = s.Owner(b.pos)
	}
	return result, nil
}

// scanAll compares query with every embedding of s.
func (m *Matcher) scanAll(ctx context.Context, query []float32, s *database.Snapshot) (best, error) {
	if m.workers > 1 && s.Len() >= m.cutoff {
		return m.scanParallel(ctx, query, s)
	}
	return scanRange(ctx, query, s.Embeddings, 0, s.Len())
}

func scanRange(ctx context.Context, query []float32, embs []database.SnapshotEmbedding, lo, hi int) (best, error) {
	b := best{pos: -1}
	for i := lo; i < hi; i++ {
		if (i-lo)%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return b, err
			}
		}
		sim, err := vector.Cosine(query, embs[i].Vector)
		if err != nil {
			return b, fmt.Errorf("%w %d: %w", ErrBadReference, embs[i].EmbeddingID, err)
		}
		b.offer(i, sim)
	}
	return b, nil
}

// scanParallel splits the snapshot into contiguous shards and reduces the
// shard maxima in shard order, which gives the same answer as scanRange over
// the whole slice.
func (m *Matcher) scanParallel(ctx context.Context, query []float32, s *database.Snapshot) (best, error) {
	n := s.Len()
	shards := min(m.workers, n)
	size := (n + shards - 1) / shards
	results := make([]best, shards)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := range shards {
		lo := i * size
		hi := min(lo+size, n)
		if lo >= hi {
			results[i] = best{pos: -1}
			continue
		}
		g.Go(func() error {
			b, err := scanRange(gctx, query, s.Embeddings, lo, hi)
			if err != nil {
				return err
			}
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return best{pos: -1}, err
	}

	b := best{pos: -1}
	for _, r := range results {
		if r.pos >= 0 {
			b.offer(r.pos, r.sim)
		}
	}
	return b, nil
}

// scanCandidates re-scores the positions proposed by the index. When the
// index fails, or none of its candidates clears the threshold, the full
// exact scan decides, so a NoMatch never depends on the index recall.
func (m *Matcher) scanCandidates(ctx context.Context, query []float32, s *database.Snapshot) (best, error) {
	idx, err := m.index(s)
	if err != nil {
		return m.scanAll(ctx, query, s)
	}
	positions, err := idx.Candidates(query, m.candidates)
	if err != nil || len(positions) == 0 {
		return m.scanAll(ctx, query, s)
	}

	positions = slices.Clone(positions)
	slices.Sort(positions)

	b := best{pos: -1}
	for _, pos := range positions {
		if pos < 0 || pos >= s.Len() {
			continue
		}
		sim, err := vector.Cosine(query, s.Embeddings[pos].Vector)
		if err != nil {
			return best{pos: -1}, fmt.Errorf("%w %d: %w", ErrBadReference, s.Embeddings[pos].EmbeddingID, err)
		}
		b.offer(pos, sim)
	}
	if err := ctx.Err(); err != nil {
		return best{pos: -1}, err
	}
	if b.pos < 0 || b.sim <= m.threshold {
		return m.scanAll(ctx, query, s)
	}
	return b, nil
}
