package mock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/vector"
)

var (
	_ database.IdentityWriter   = (*MockIdentityStore)(nil)
	_ database.AttendanceWriter = (*MockLedger)(nil)
)

func newIdentity(name, email, roll string, embeddings ...[]float32) database.NewIdentity {
	return database.NewIdentity{Name: name, Email: email, RollNumber: roll, Embeddings: embeddings}
}

func TestMockIdentityStore_Enroll(t *testing.T) {
	store := NewMockIdentityStore(3)
	ctx := context.Background()

	alice, err := store.Enroll(ctx, newIdentity(" Alice ", "Alice@Example.com", "R1", []float32{1, 0, 0}))
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if alice.ID == "" {
		t.Error("expected generated id")
	}
	if alice.Name != "Alice" || alice.Email != "alice@example.com" {
		t.Errorf("fields not normalized: %+v", alice)
	}
	if len(alice.Embeddings) != 1 || alice.Embeddings[0].ID != 1 {
		t.Errorf("Embeddings = %+v", alice.Embeddings)
	}

	tests := []struct {
		name    string
		input   database.NewIdentity
		wantErr error
	}{
		{"duplicate email case-insensitive", newIdentity("A2", "ALICE@example.com", "R2", []float32{1, 0, 0}), database.ErrDuplicateIdentity},
		{"duplicate roll number", newIdentity("A3", "a3@example.com", " R1 ", []float32{1, 0, 0}), database.ErrDuplicateIdentity},
		{"missing name", newIdentity("", "x@example.com", "R4", []float32{1, 0, 0}), database.ErrInvalidIdentity},
		{"no embeddings", newIdentity("X", "x@example.com", "R4"), database.ErrInvalidIdentity},
		{"wrong dimension", newIdentity("X", "x@example.com", "R4", []float32{1, 0}), vector.ErrDimensionMismatch},
		{"zero embedding", newIdentity("X", "x@example.com", "R4", []float32{0, 0, 0}), vector.ErrDegenerateVector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Enroll(ctx, tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("Enroll() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestMockIdentityStore_AddReferenceEmbedding(t *testing.T) {
	store := NewMockIdentityStore(2)
	ctx := context.Background()
	alice, _ := store.Enroll(ctx, newIdentity("Alice", "a@example.com", "R1", []float32{1, 0}))

	emb, err := store.AddReferenceEmbedding(ctx, alice.ID, []float32{0.5, 0.5})
	if err != nil {
		t.Fatalf("AddReferenceEmbedding() error = %v", err)
	}
	if emb.ID != 2 || emb.IdentityID != alice.ID {
		t.Errorf("unexpected embedding %+v", emb)
	}

	if _, err := store.AddReferenceEmbedding(ctx, "missing", []float32{1, 0}); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("unknown id error = %v, want ErrNotFound", err)
	}
	if _, err := store.AddReferenceEmbedding(ctx, alice.ID, []float32{1, 0, 0}); !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Errorf("bad shape error = %v, want ErrDimensionMismatch", err)
	}

	got, err := store.Get(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Embeddings) != 2 {
		t.Errorf("len(Embeddings) = %d, want 2", len(got.Embeddings))
	}
}

func TestMockIdentityStore_Snapshot(t *testing.T) {
	store := NewMockIdentityStore(2)
	ctx := context.Background()
	alice, _ := store.Enroll(ctx, newIdentity("Alice", "a@example.com", "R1", []float32{1, 0}))
	_, _ = store.Enroll(ctx, newIdentity("Bob", "b@example.com", "R2", []float32{0, 1}, []float32{1, 1}))

	first, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if first.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", first.Len())
	}
	wantOwners := []string{"Alice", "Bob", "Bob"}
	for pos, want := range wantOwners {
		if got := first.Owner(pos).Name; got != want {
			t.Errorf("Owner(%d) = %s, want %s", pos, got, want)
		}
	}

	again, _ := store.Snapshot(ctx)
	if again != first {
		t.Error("unchanged population should return the cached snapshot")
	}

	if _, err := store.AddReferenceEmbedding(ctx, alice.ID, []float32{1, 0.1}); err != nil {
		t.Fatalf("AddReferenceEmbedding() error = %v", err)
	}
	next, _ := store.Snapshot(ctx)
	if next == first {
		t.Fatal("expected a new snapshot after a write")
	}
	if first.Len() != 3 {
		t.Errorf("published snapshot mutated: Len() = %d", first.Len())
	}
	if next.Len() != 4 || next.Owner(1).Name != "Alice" {
		t.Errorf("new snapshot order wrong: len %d, owner(1) %s", next.Len(), next.Owner(1).Name)
	}
	if next.Version.MaxEmbeddingID != 4 || next.Version.EmbeddingCount != 4 {
		t.Errorf("Version = %+v", next.Version)
	}
}

func TestMockIdentityStore_FindByName(t *testing.T) {
	store := NewMockIdentityStore(2)
	ctx := context.Background()
	_, _ = store.Enroll(ctx, newIdentity("Jiří Novák", "j@example.com", "R1", []float32{1, 0}))
	_, _ = store.Enroll(ctx, newIdentity("Anna-Marie Svoboda", "a@example.com", "R2", []float32{0, 1}))

	tests := []struct {
		query string
		want  int
	}{
		{"jiri", 1},
		{"NOVAK", 1},
		{"anna marie", 1},
		{"a", 2},
		{"zdenek", 0},
	}
	for _, tt := range tests {
		got, err := store.FindByName(ctx, tt.query)
		if err != nil {
			t.Fatalf("FindByName(%q) error = %v", tt.query, err)
		}
		if len(got) != tt.want {
			t.Errorf("FindByName(%q) = %d results, want %d", tt.query, len(got), tt.want)
		}
	}
}

func TestMockIdentityStore_GetByRollNumber(t *testing.T) {
	store := NewMockIdentityStore(2)
	ctx := context.Background()
	alice, _ := store.Enroll(ctx, newIdentity("Alice", "a@example.com", "CS-01", []float32{1, 0}))

	got, err := store.GetByRollNumber(ctx, " CS-01 ")
	if err != nil {
		t.Fatalf("GetByRollNumber() error = %v", err)
	}
	if got.ID != alice.ID {
		t.Errorf("ID = %s, want %s", got.ID, alice.ID)
	}
	if _, err := store.GetByRollNumber(ctx, "CS-02"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

var testDay = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func TestMockLedger_AppendOncePerDay(t *testing.T) {
	ledger := NewMockLedger()
	ctx := context.Background()
	entry := database.NewAttendance{IdentityID: "alice", Date: testDay, Confidence: 0.8, Method: "face_recognition"}

	first, err := ledger.Append(ctx, entry)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if first.AlreadyMarked {
		t.Fatal("first append reported AlreadyMarked")
	}

	entry.Confidence = 0.9
	second, err := ledger.Append(ctx, entry)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if !second.AlreadyMarked || second.Event.ID != first.Event.ID {
		t.Errorf("second append = %+v, want AlreadyMarked with event %d", second, first.Event.ID)
	}
	if second.Event.Confidence != 0.8 {
		t.Errorf("existing event changed: confidence %v", second.Event.Confidence)
	}

	entry.Date = testDay.AddDate(0, 0, 1)
	third, _ := ledger.Append(ctx, entry)
	if third.AlreadyMarked {
		t.Error("next day should be recorded")
	}
	if ledger.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ledger.Len())
	}
}

func TestMockLedger_ConcurrentAppend(t *testing.T) {
	ledger := NewMockLedger()
	ctx := context.Background()
	entry := database.NewAttendance{IdentityID: "alice", Date: testDay, Confidence: 0.8}

	const n = 50
	results := make([]database.AppendResult, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			r, err := ledger.Append(ctx, entry)
			if err != nil {
				t.Errorf("Append() error = %v", err)
			}
			results[i] = r
		})
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		if !r.AlreadyMarked {
			created++
		}
	}
	if created != 1 {
		t.Errorf("created %d events, want 1", created)
	}
	if ledger.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ledger.Len())
	}
	if ledger.keys.Len() != 0 {
		t.Errorf("keyed mutex leaked %d entries", ledger.keys.Len())
	}
}

func TestMockLedger_CancelledBeforeCommit(t *testing.T) {
	ledger := NewMockLedger()
	ctx, cancel := context.WithCancel(context.Background())
	ledger.BeforeCommit = func(context.Context) { cancel() }

	_, err := ledger.Append(ctx, database.NewAttendance{IdentityID: "alice", Date: testDay})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if ledger.Len() != 0 {
		t.Errorf("cancelled append left %d events", ledger.Len())
	}
	if e, _ := ledger.EventOn(context.Background(), "alice", testDay); e != nil {
		t.Errorf("EventOn() = %+v, want nil", e)
	}
}

func TestMockLedger_EventsFor(t *testing.T) {
	ledger := NewMockLedger()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range 5 {
		day := testDay.AddDate(0, 0, i)
		_, _ = ledger.Append(ctx, database.NewAttendance{IdentityID: "alice", Date: day, At: base.AddDate(0, 0, i)})
	}
	_, _ = ledger.Append(ctx, database.NewAttendance{IdentityID: "bob", Date: testDay})

	r := database.DateRange{From: testDay.AddDate(0, 0, 1), To: testDay.AddDate(0, 0, 3)}
	seq := ledger.EventsFor(ctx, "alice", r)

	for pass := range 2 {
		var days []string
		for e, err := range seq {
			if err != nil {
				t.Fatalf("EventsFor() error = %v", err)
			}
			days = append(days, e.DateString())
		}
		want := []string{"2026-03-15", "2026-03-16", "2026-03-17"}
		if len(days) != len(want) {
			t.Fatalf("pass %d: days = %v, want %v", pass, days, want)
		}
		for i := range want {
			if days[i] != want[i] {
				t.Errorf("pass %d: days[%d] = %s, want %s", pass, i, days[i], want[i])
			}
		}
	}

	// the sequence sees events appended after it was created
	_, _ = ledger.Append(ctx, database.NewAttendance{IdentityID: "alice", Date: testDay.AddDate(0, 0, 10)})
	count := 0
	for _, err := range ledger.EventsFor(ctx, "alice", database.DateRange{}) {
		if err != nil {
			t.Fatalf("EventsFor() error = %v", err)
		}
		count++
	}
	if count != 6 {
		t.Errorf("open range count = %d, want 6", count)
	}

	if n, _ := ledger.CountPresent(ctx, testDay); n != 2 {
		t.Errorf("CountPresent() = %d, want 2", n)
	}
}

func TestMockLedger_ErrorInjection(t *testing.T) {
	ledger := NewMockLedger()
	ledger.EventsError = database.ErrStorage

	for _, err := range ledger.EventsFor(context.Background(), "alice", database.DateRange{}) {
		if !errors.Is(err, database.ErrStorage) {
			t.Errorf("error = %v, want ErrStorage", err)
		}
	}
}
