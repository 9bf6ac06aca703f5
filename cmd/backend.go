package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// backend holds the storage implementations selected by DATABASE_URL.
type backend struct {
	identities database.IdentityWriter
	ledger     database.AttendanceWriter
	ping       func(ctx context.Context) error
	pool       *postgres.Pool
}

// Close releases the database pool, if any.
func (b *backend) Close() error {
	if b.pool == nil {
		return nil
	}
	return b.pool.Close()
}

// openBackend connects to PostgreSQL and applies migrations. Without
// DATABASE_URL it falls back to the in-memory store when allowMemory is set.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, allowMemory bool) (*backend, error) {
	if cfg.Database.URL == "" {
		if !allowMemory {
			return nil, errors.New("DATABASE_URL environment variable is required")
		}
		logger.Warn("DATABASE_URL not set, using in-memory storage; data is lost on exit")
		return &backend{
			identities: mock.NewMockIdentityStore(cfg.Matching.EmbeddingDim),
			ledger:     mock.NewMockLedger(),
		}, nil
	}

	pool, applied, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	for _, name := range applied {
		logger.Info("applied migration", "name", name)
	}
	logger.Debug("using PostgreSQL backend")

	return &backend{
		identities: postgres.NewIdentityRepository(pool, cfg.Matching.EmbeddingDim),
		ledger:     postgres.NewAttendanceRepository(pool),
		ping:       pool.Ping,
		pool:       pool,
	}, nil
}

// newMatcher builds the matcher from the matching configuration.
func newMatcher(cfg *config.MatchingConfig) *facematch.Matcher {
	opts := []facematch.Option{facematch.WithParallelCutoff(cfg.ParallelCutoff)}
	if cfg.Workers > 0 {
		opts = append(opts, facematch.WithWorkers(cfg.Workers))
	}
	if cfg.HNSW {
		opts = append(opts, facematch.WithCandidateIndex(
			facematch.HNSWCandidates(&database.HNSWIndexCache{}), cfg.HNSWCandidates))
	}
	return facematch.NewMatcher(cfg.Threshold, opts...)
}

// newService wires the matching service over the backend.
func newService(cfg *config.Config, b *backend, logger *slog.Logger) (*attendance.Service, error) {
	loc, err := cfg.Attendance.Location()
	if err != nil {
		return nil, err
	}
	return attendance.NewService(
		b.identities,
		b.ledger,
		newMatcher(&cfg.Matching),
		extractor.NewClient(&cfg.Extractor),
		attendance.Config{
			EmbeddingDim: cfg.Matching.EmbeddingDim,
			Method:       cfg.Attendance.Method,
			Location:     loc,
			Logger:       logger,
		},
	), nil
}
