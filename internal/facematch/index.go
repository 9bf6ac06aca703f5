package facematch

import "github.com/kozaktomas/face-attendance/internal/database"

// HNSWCandidates adapts an HNSW index cache into an IndexProvider. The index
// is rebuilt whenever the snapshot version changes.
func HNSWCandidates(cache *database.HNSWIndexCache) IndexProvider {
	return func(s *database.Snapshot) (CandidateIndex, error) {
		idx, err := cache.IndexFor(s)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}
