package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/vector"
)

const identityColumns = `id, name, email, roll_number, branch, year, phone, address, created_at`

// IdentityRepository provides PostgreSQL-backed identity storage with a
// cached population snapshot for matching.
type IdentityRepository struct {
	pool      *Pool
	dim       int
	snapshots database.SnapshotCache
}

// NewIdentityRepository creates a new PostgreSQL identity repository that
// accepts embeddings of dimension dim.
func NewIdentityRepository(pool *Pool, dim int) *IdentityRepository {
	return &IdentityRepository{pool: pool, dim: dim}
}

// Enroll stores the identity and its embeddings in one transaction.
func (r *IdentityRepository) Enroll(ctx context.Context, n database.NewIdentity) (*database.Identity, error) {
	prepared, err := database.PrepareIdentity(n, r.dim)
	if err != nil {
		return nil, err
	}

	identity := &database.Identity{
		ID:         uuid.NewString(),
		Name:       prepared.Name,
		Email:      prepared.Email,
		RollNumber: prepared.RollNumber,
		Branch:     prepared.Branch,
		Year:       prepared.Year,
		Phone:      prepared.Phone,
		Address:    prepared.Address,
	}

	err = r.pool.inTx(ctx, "enroll", nil, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO identities (id, name, email, roll_number, branch, year, phone, address)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at
		`, identity.ID, identity.Name, identity.Email, identity.RollNumber,
			identity.Branch, identity.Year, identity.Phone, identity.Address,
		).Scan(&identity.CreatedAt)
		if err != nil {
			return mapError("insert identity", err, nil, database.ErrDuplicateIdentity)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO reference_embeddings (identity_id, embedding)
			VALUES ($1, $2)
			RETURNING id, created_at
		`)
		if err != nil {
			return storageError("prepare embedding insert", err)
		}
		defer stmt.Close()

		for _, emb := range prepared.Embeddings {
			ref := database.ReferenceEmbedding{IdentityID: identity.ID, Vector: emb}
			if err := stmt.QueryRowContext(ctx, identity.ID, pgvector.NewVector(emb)).Scan(&ref.ID, &ref.CreatedAt); err != nil {
				return storageError("insert embedding", err)
			}
			identity.Embeddings = append(identity.Embeddings, ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return identity, nil
}

// AddReferenceEmbedding appends an embedding to an existing identity.
func (r *IdentityRepository) AddReferenceEmbedding(ctx context.Context, identityID string, embedding []float32) (*database.ReferenceEmbedding, error) {
	if err := vector.Validate(embedding, r.dim); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(identityID); err != nil {
		return nil, fmt.Errorf("%w: %s", database.ErrNotFound, identityID)
	}

	ref := &database.ReferenceEmbedding{
		IdentityID: identityID,
		Vector:     append([]float32(nil), embedding...),
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reference_embeddings (identity_id, embedding)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, identityID, pgvector.NewVector(ref.Vector)).Scan(&ref.ID, &ref.CreatedAt)
	if err != nil {
		return nil, mapError("insert embedding", err, nil, nil)
	}
	return ref, nil
}

// Get retrieves an identity with its embeddings.
func (r *IdentityRepository) Get(ctx context.Context, id string) (*database.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", database.ErrNotFound, id)
	}
	return r.getOne(ctx, "id = $1", id)
}

// GetByRollNumber retrieves an identity by its roll number.
func (r *IdentityRepository) GetByRollNumber(ctx context.Context, rollNumber string) (*database.Identity, error) {
	return r.getOne(ctx, "roll_number = $1", database.NormalizeRollNumber(rollNumber))
}

func (r *IdentityRepository) getOne(ctx context.Context, where string, arg any) (*database.Identity, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+identityColumns+" FROM identities WHERE "+where, arg)

	var identity database.Identity
	if err := scanIdentity(row, &identity); err != nil {
		return nil, mapError("get identity", err, database.ErrNotFound, nil)
	}

	identities := []database.Identity{identity}
	if err := r.loadEmbeddings(ctx, identities); err != nil {
		return nil, err
	}
	return &identities[0], nil
}

// FindByName returns identities whose normalized name contains the
// normalized query. The SQL expression mirrors database.NormalizeName.
func (r *IdentityRepository) FindByName(ctx context.Context, name string) ([]database.Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE strpos(
			btrim(regexp_replace(lower(translate(unaccent(name), '-_', '  ')), '\s+', ' ', 'g')),
			$1
		) > 0
		ORDER BY seq
	`, database.NormalizeName(name))
	if err != nil {
		return nil, storageError("query identities by name", err)
	}
	defer rows.Close()

	identities, err := scanIdentities(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadEmbeddings(ctx, identities); err != nil {
		return nil, err
	}
	return identities, nil
}

// Count returns the number of enrolled identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, storageError("count identities", err)
	}
	return count, nil
}

// Snapshot returns the population view. Reference embeddings are append-only,
// so (count, max id) changes on every write and an unchanged pair reuses the
// cached snapshot.
func (r *IdentityRepository) Snapshot(ctx context.Context) (*database.Snapshot, error) {
	var version database.SnapshotVersion
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*), COALESCE(MAX(id), 0) FROM reference_embeddings",
	).Scan(&version.EmbeddingCount, &version.MaxEmbeddingID)
	if err != nil {
		return nil, storageError("snapshot version", err)
	}

	return r.snapshots.Get(ctx, version, r.loadSnapshot)
}

// loadSnapshot reads identities and embeddings in one repeatable-read
// transaction so both queries see the same state.
func (r *IdentityRepository) loadSnapshot(ctx context.Context) (*database.Snapshot, error) {
	var identities []database.Identity
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := r.pool.inTx(ctx, "snapshot", opts, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT "+identityColumns+" FROM identities ORDER BY seq")
		if err != nil {
			return storageError("snapshot identities", err)
		}
		identities, err = scanIdentities(rows)
		rows.Close()
		if err != nil {
			return err
		}

		byID := make(map[string]int, len(identities))
		for i := range identities {
			byID[identities[i].ID] = i
		}

		rows, err = tx.QueryContext(ctx, "SELECT id, identity_id, embedding, created_at FROM reference_embeddings ORDER BY id")
		if err != nil {
			return storageError("snapshot embeddings", err)
		}
		defer rows.Close()

		for rows.Next() {
			ref, err := scanEmbedding(rows)
			if err != nil {
				return err
			}
			if i, ok := byID[ref.IdentityID]; ok {
				identities[i].Embeddings = append(identities[i].Embeddings, ref)
			}
		}
		if err := rows.Err(); err != nil {
			return storageError("iterate snapshot embeddings", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return database.BuildSnapshot(identities), nil
}

// loadEmbeddings fills the Embeddings of the given identities in insertion order.
func (r *IdentityRepository) loadEmbeddings(ctx context.Context, identities []database.Identity) error {
	if len(identities) == 0 {
		return nil
	}

	ids := make([]string, len(identities))
	byID := make(map[string]int, len(identities))
	for i := range identities {
		ids[i] = identities[i].ID
		byID[identities[i].ID] = i
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, identity_id, embedding, created_at
		FROM reference_embeddings
		WHERE identity_id = ANY($1::uuid[])
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return storageError("query embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		ref, err := scanEmbedding(rows)
		if err != nil {
			return err
		}
		i := byID[ref.IdentityID]
		identities[i].Embeddings = append(identities[i].Embeddings, ref)
	}
	if err := rows.Err(); err != nil {
		return storageError("iterate embeddings", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(s scanner, identity *database.Identity) error {
	return s.Scan(
		&identity.ID, &identity.Name, &identity.Email, &identity.RollNumber,
		&identity.Branch, &identity.Year, &identity.Phone, &identity.Address, &identity.CreatedAt,
	)
}

func scanIdentities(rows *sql.Rows) ([]database.Identity, error) {
	var identities []database.Identity
	for rows.Next() {
		var identity database.Identity
		if err := scanIdentity(rows, &identity); err != nil {
			return nil, storageError("scan identity", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate identities", err)
	}
	return identities, nil
}

func scanEmbedding(rows *sql.Rows) (database.ReferenceEmbedding, error) {
	var ref database.ReferenceEmbedding
	var vec pgvector.Vector
	if err := rows.Scan(&ref.ID, &ref.IdentityID, &vec, &ref.CreatedAt); err != nil {
		return ref, storageError("scan embedding", err)
	}
	ref.Vector = vec.Slice()
	return ref, nil
}
