// Package attendance verifies captured faces against the enrolled population
// and records at most one Present event per identity and day.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/vector"
)

// Extractor turns an image into a face embedding.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]float32, error)
}

// qualityExtractor is implemented by extractors that also report the face
// detection score, such as *extractor.Client.
type qualityExtractor interface {
	ExtractWithQuality(ctx context.Context, image []byte) (*extractor.Result, error)
}

// Config holds the service settings. Zero values fall back to defaults.
type Config struct {
	EmbeddingDim int
	Method       string         // recorded as verified_by
	Location     *time.Location // calendar dates are taken in this zone
	Now          func() time.Time
	Logger       *slog.Logger
}

// Service orchestrates matching and ledger writes.
type Service struct {
	identities database.IdentityWriter
	ledger     database.AttendanceWriter
	matcher    *facematch.Matcher
	extractor  Extractor

	dim      int
	method   string
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a service. ext may be nil, which disables image operations.
func NewService(
	identities database.IdentityWriter,
	ledger database.AttendanceWriter,
	matcher *facematch.Matcher,
	ext Extractor,
	cfg Config,
) *Service {
	s := &Service{
		identities: identities,
		ledger:     ledger,
		matcher:    matcher,
		extractor:  ext,
		dim:        cfg.EmbeddingDim,
		method:     cfg.Method,
		location:   cfg.Location,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if s.dim <= 0 {
		s.dim = constants.DefaultEmbeddingDim
	}
	if s.method == "" {
		s.method = constants.VerificationMethodFace
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// EmbeddingDim returns the accepted embedding dimension.
func (s *Service) EmbeddingDim() int {
	return s.dim
}

// VerifyAndRecord matches the embedding against the population and records
// attendance for the best match. Input problems are reported as an
// InvalidInput outcome; storage faults are returned as errors and leave no event.
func (s *Service) VerifyAndRecord(ctx context.Context, embedding []float32) (Outcome, error) {
	start := time.Now()

	if err := vector.Validate(embedding, s.dim); err != nil {
		return s.logOutcome(ctx, invalidInput(err.Error()), start), nil
	}

	snap, err := s.identities.Snapshot(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading population: %w", err)
	}

	match, err := s.matcher.FindBestMatch(ctx, embedding, snap)
	switch {
	case errors.Is(err, facematch.ErrBadReference), errors.Is(err, vector.ErrDimensionMismatch):
		// The query already has the configured dimension, so the stored
		// population is what disagrees.
		return Outcome{}, fmt.Errorf("%w: population does not match embedding dimension %d: %w",
			database.ErrStorage, s.dim, err)
	case errors.Is(err, facematch.ErrEmptyPopulation), vector.IsInputError(err):
		return s.logOutcome(ctx, invalidInput(err.Error()), start), nil
	case err != nil:
		return Outcome{}, fmt.Errorf("matching: %w", err)
	}

	if !match.Matched {
		s.logger.DebugContext(ctx, "best candidate below threshold",
			"similarity", match.Similarity, "threshold", s.matcher.Threshold())
		return s.logOutcome(ctx, Outcome{Kind: OutcomeNoMatch}, start), nil
	}

	capturedAt := s.now()
	res, err := s.ledger.Append(ctx, database.NewAttendance{
		IdentityID: match.Identity.ID,
		Date:       database.DayOf(capturedAt, s.location),
		Confidence: match.Similarity,
		Method:     s.method,
		At:         capturedAt,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("recording attendance: %w", err)
	}

	outcome := Outcome{
		Kind:       OutcomeSuccess,
		Identity:   match.Identity,
		Confidence: match.Similarity,
		Event:      &res.Event,
	}
	if res.AlreadyMarked {
		outcome.Kind = OutcomeAlreadyMarked
	}
	return s.logOutcome(ctx, outcome, start), nil
}

// VerifyImage extracts the embedding from the image and verifies it.
func (s *Service) VerifyImage(ctx context.Context, image []byte) (Outcome, error) {
	embedding, err := s.extract(ctx, image)
	if err != nil {
		if extractor.IsUnusable(err) {
			return s.logOutcome(ctx, invalidInput(err.Error()), time.Now()), nil
		}
		return Outcome{}, err
	}
	return s.VerifyAndRecord(ctx, embedding)
}

func (s *Service) extract(ctx context.Context, image []byte) ([]float32, error) {
	if s.extractor == nil {
		return nil, ErrNoExtractor
	}
	qe, ok := s.extractor.(qualityExtractor)
	if !ok {
		embedding, err := s.extractor.Extract(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("extracting embedding: %w", err)
		}
		return embedding, nil
	}

	res, err := qe.ExtractWithQuality(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("extracting embedding: %w", err)
	}
	s.logger.DebugContext(ctx, "face extracted", "face_quality", res.FaceQuality, "dim", len(res.Embedding))
	return res.Embedding, nil
}

func (s *Service) logOutcome(ctx context.Context, o Outcome, start time.Time) Outcome {
	attrs := []any{
		"outcome", string(o.Kind),
		"latency", time.Since(start),
	}
	switch o.Kind {
	case OutcomeSuccess, OutcomeAlreadyMarked:
		attrs = append(attrs,
			"identity_id", o.Identity.ID,
			"similarity", o.Confidence,
			"date", o.Event.DateString(),
		)
	case OutcomeInvalidInput:
		attrs = append(attrs, "reason", o.Reason)
	}
	s.logger.InfoContext(ctx, "attendance verification", attrs...)
	return o
}

// Enroll registers a new identity with the given reference embeddings.
func (s *Service) Enroll(ctx context.Context, n database.NewIdentity) (*database.Identity, error) {
	identity, err := s.identities.Enroll(ctx, n)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "identity enrolled",
		"identity_id", identity.ID, "roll_number", identity.RollNumber, "embeddings", len(identity.Embeddings))
	return identity, nil
}

// EnrollImage registers a new identity, extracting one reference embedding per image.
func (s *Service) EnrollImage(ctx context.Context, n database.NewIdentity, images ...[]byte) (*database.Identity, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", database.ErrInvalidIdentity)
	}
	for i, img := range images {
		embedding, err := s.extract(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		n.Embeddings = append(n.Embeddings, embedding)
	}
	return s.Enroll(ctx, n)
}

// AddReferenceEmbedding appends an embedding to an enrolled identity.
func (s *Service) AddReferenceEmbedding(ctx context.Context, identityID string, embedding []float32) (*database.ReferenceEmbedding, error) {
	ref, err := s.identities.AddReferenceEmbedding(ctx, identityID, embedding)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "reference embedding added", "identity_id", identityID, "embedding_id", ref.ID)
	return ref, nil
}

// AddReferenceImage extracts an embedding from the image and appends it.
func (s *Service) AddReferenceImage(ctx context.Context, identityID string, image []byte) (*database.ReferenceEmbedding, error) {
	if _, err := s.identities.Get(ctx, identityID); err != nil {
		return nil, err
	}
	embedding, err := s.extract(ctx, image)
	if err != nil {
		return nil, err
	}
	return s.AddReferenceEmbedding(ctx, identityID, embedding)
}

// Identity returns an enrolled identity.
func (s *Service) Identity(ctx context.Context, id string) (*database.Identity, error) {
	return s.identities.Get(ctx, id)
}

// FindByName searches identities by name.
func (s *Service) FindByName(ctx context.Context, name string) ([]database.Identity, error) {
	return s.identities.FindByName(ctx, name)
}

// History returns the attendance events of an identity within the range.
// Bounds are compared as calendar dates; a time of day on either bound is
// ignored.
func (s *Service) History(ctx context.Context, identityID string, r database.DateRange) (iter.Seq2[database.AttendanceEvent, error], error) {
	if _, err := s.identities.Get(ctx, identityID); err != nil {
		return nil, err
	}
	return s.ledger.EventsFor(ctx, identityID, r.Days()), nil
}

// Summary reports how many identities are enrolled and present on a date.
type Summary struct {
	Date     time.Time
	Enrolled int
	Present  int
}

// DailySummary returns the summary for the calendar date; a zero date means today.
func (s *Service) DailySummary(ctx context.Context, date time.Time) (Summary, error) {
	if date.IsZero() {
		date = database.DayOf(s.now(), s.location)
	}
	enrolled, err := s.identities.Count(ctx)
	if err != nil {
		return Summary{}, err
	}
	present, err := s.ledger.CountPresent(ctx, date)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Date: date, Enrolled: enrolled, Present: present}, nil
}

// Today returns the current calendar date in the configured zone.
func (s *Service) Today() time.Time {
	return database.DayOf(s.now(), s.location)
}
