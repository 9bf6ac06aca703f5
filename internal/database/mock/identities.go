// Package mock provides in-memory implementations of the database interfaces.
// They back the test suites and the server when no DATABASE_URL is configured.
package mock

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/vector"
)

// MockIdentityStore is an in-memory implementation of database.IdentityWriter
type MockIdentityStore struct {
	mu              sync.RWMutex
	dim             int
	identities      []*database.Identity // enrollment order
	byID            map[string]*database.Identity
	byEmail         map[string]string
	byRollNumber    map[string]string
	nextEmbeddingID int64
	snapshots       database.SnapshotCache

	// Error injection
	GetError          error
	FindByNameError   error
	CountError        error
	SnapshotError     error
	EnrollError       error
	AddEmbeddingError error
}

// NewMockIdentityStore creates an empty store accepting embeddings of dimension dim
func NewMockIdentityStore(dim int) *MockIdentityStore {
	return &MockIdentityStore{
		dim:          dim,
		byID:         make(map[string]*database.Identity),
		byEmail:      make(map[string]string),
		byRollNumber: make(map[string]string),
	}
}

func cloneIdentity(i *database.Identity) *database.Identity {
	c := *i
	c.Embeddings = slices.Clone(i.Embeddings)
	return &c
}

// Enroll stores a new identity
func (m *MockIdentityStore) Enroll(ctx context.Context, n database.NewIdentity) (*database.Identity, error) {
	if m.EnrollError != nil {
		return nil, m.EnrollError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared, err := database.PrepareIdentity(n, m.dim)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[prepared.Email]; ok {
		return nil, fmt.Errorf("%w: email %s", database.ErrDuplicateIdentity, prepared.Email)
	}
	if _, ok := m.byRollNumber[prepared.RollNumber]; ok {
		return nil, fmt.Errorf("%w: roll number %s", database.ErrDuplicateIdentity, prepared.RollNumber)
	}

	now := time.Now()
	identity := &database.Identity{
		ID:         uuid.NewString(),
		Name:       prepared.Name,
		Email:      prepared.Email,
		RollNumber: prepared.RollNumber,
		Branch:     prepared.Branch,
		Year:       prepared.Year,
		Phone:      prepared.Phone,
		Address:    prepared.Address,
		CreatedAt:  now,
	}
	for _, emb := range prepared.Embeddings {
		m.nextEmbeddingID++
		identity.Embeddings = append(identity.Embeddings, database.ReferenceEmbedding{
			ID:         m.nextEmbeddingID,
			IdentityID: identity.ID,
			Vector:     emb,
			CreatedAt:  now,
		})
	}

	m.identities = append(m.identities, identity)
	m.byID[identity.ID] = identity
	m.byEmail[identity.Email] = identity.ID
	m.byRollNumber[identity.RollNumber] = identity.ID

	return cloneIdentity(identity), nil
}

// AddReferenceEmbedding appends an embedding to an existing identity
func (m *MockIdentityStore) AddReferenceEmbedding(ctx context.Context, identityID string, embedding []float32) (*database.ReferenceEmbedding, error) {
	if m.AddEmbeddingError != nil {
		return nil, m.AddEmbeddingError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := vector.Validate(embedding, m.dim); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.byID[identityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrNotFound, identityID)
	}

	m.nextEmbeddingID++
	emb := database.ReferenceEmbedding{
		ID:         m.nextEmbeddingID,
		IdentityID: identityID,
		Vector:     slices.Clone(embedding),
		CreatedAt:  time.Now(),
	}
	// Published snapshots share the old backing array; append to a copy.
	identity.Embeddings = append(slices.Clip(identity.Embeddings), emb)

	return &emb, nil
}

// Get retrieves an identity by id
func (m *MockIdentityStore) Get(ctx context.Context, id string) (*database.Identity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	identity, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrNotFound, id)
	}
	return cloneIdentity(identity), nil
}

// GetByRollNumber retrieves an identity by roll number
func (m *MockIdentityStore) GetByRollNumber(ctx context.Context, rollNumber string) (*database.Identity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRollNumber[database.NormalizeRollNumber(rollNumber)]
	if !ok {
		return nil, fmt.Errorf("%w: roll number %s", database.ErrNotFound, rollNumber)
	}
	return cloneIdentity(m.byID[id]), nil
}

// FindByName returns identities whose normalized name contains the normalized query
func (m *MockIdentityStore) FindByName(ctx context.Context, name string) ([]database.Identity, error) {
	if m.FindByNameError != nil {
		return nil, m.FindByNameError
	}
	query := database.NormalizeName(name)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []database.Identity
	for _, identity := range m.identities {
		if strings.Contains(database.NormalizeName(identity.Name), query) {
			results = append(results, *cloneIdentity(identity))
		}
	}
	return results, nil
}

// Count returns the number of enrolled identities
func (m *MockIdentityStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// Snapshot returns the cached population view, rebuilt when embeddings were added
func (m *MockIdentityStore) Snapshot(ctx context.Context) (*database.Snapshot, error) {
	if m.SnapshotError != nil {
		return nil, m.SnapshotError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	version := database.SnapshotVersion{
		EmbeddingCount: m.embeddingCount(),
		MaxEmbeddingID: m.nextEmbeddingID,
	}
	m.mu.RUnlock()

	return m.snapshots.Get(ctx, version, func(context.Context) (*database.Snapshot, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		identities := make([]database.Identity, len(m.identities))
		for i, identity := range m.identities {
			identities[i] = *cloneIdentity(identity)
		}
		return database.BuildSnapshot(identities), nil
	})
}

func (m *MockIdentityStore) embeddingCount() int64 {
	var n int64
	for _, identity := range m.identities {
		n += int64(len(identity.Embeddings))
	}
	return n
}
