package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/relieftext/drilldial/internal/dialog"
	"github.com/relieftext/drilldial/internal/drills"
	"github.com/relieftext/drilldial/internal/registration"
)

const testPhone = "+15551230001"

var testSlugs = []string{"basics", "advanced"}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(
		WithSQLiteDSN(filepath.Join(t.TempDir(), "test.db")),
		WithDrillSlugs(testSlugs),
	)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDrill() drills.Drill {
	return drills.Drill{
		Slug: "basics",
		Name: "Basics",
		Prompts: []drills.Prompt{
			{Slug: "q1", Messages: []drills.PromptMessage{{Text: "Question 1"}}, CorrectResponse: "b"},
			{Slug: "outro", Messages: []drills.PromptMessage{{Text: "Done!"}}},
		},
	}
}

func validPayload() registration.CodeValidationPayload {
	return registration.CodeValidationPayload{Valid: true, AccountInfo: map[string]any{"org": "acme"}}
}

// startedBatch builds a seq-1 batch containing a DrillStarted event for
// testPhone, together with the dialog state it leaves behind.
func startedBatch(t *testing.T) (dialog.EventBatch, *dialog.DialogState) {
	t.Helper()
	state := dialog.NewDialogState(testPhone)
	state.UserProfile.Validated = true
	e := dialog.NewDrillStarted(testPhone, state.UserProfile, testDrill())
	if err := e.Apply(state); err != nil {
		t.Fatalf("apply DrillStarted: %v", err)
	}
	state.Seq = "1"
	return dialog.NewEventBatch(testPhone, "1", []dialog.Event{e}), state
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":   "postgres",
		"postgresql://u:p@localhost/db": "postgres",
		"host=localhost dbname=db":      "postgres",
		"/var/lib/drilldial/db.sqlite":  "sqlite",
		"data.db":                       "sqlite",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %s, want %s", dsn, got, want)
		}
	}
}

func TestNewSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("missing DSN should error")
	}
}

func TestFetchDialogStateUnknownPhone(t *testing.T) {
	s := newTestStore(t)
	state, err := s.FetchDialogState(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("FetchDialogState: %v", err)
	}
	if state.Seq != "0" || state.CurrentDrill != nil {
		t.Errorf("unknown phone should yield a zero state, got %+v", state)
	}
}

func TestPersistDialogStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch, state := startedBatch(t)

	if err := s.PersistDialogState(ctx, batch, state); err != nil {
		t.Fatalf("PersistDialogState: %v", err)
	}

	got, err := s.FetchDialogState(ctx, testPhone)
	if err != nil {
		t.Fatalf("FetchDialogState: %v", err)
	}
	if got.Seq != "1" {
		t.Errorf("seq = %s, want 1", got.Seq)
	}
	if got.CurrentDrill == nil || got.CurrentDrill.Slug != "basics" {
		t.Error("drill not restored")
	}
	if got.CurrentPromptState == nil || got.CurrentPromptState.Slug != "q1" {
		t.Error("prompt state not restored")
	}
	if !got.UserProfile.Validated {
		t.Error("profile not restored")
	}
}

func TestFetchEventBatchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch, state := startedBatch(t)

	if err := s.PersistDialogState(ctx, batch, state); err != nil {
		t.Fatalf("PersistDialogState: %v", err)
	}

	got, err := s.FetchEventBatch(ctx, testPhone, "1")
	if err != nil {
		t.Fatalf("FetchEventBatch: %v", err)
	}
	if got.BatchID != batch.BatchID || got.PhoneNumber != testPhone || got.Seq != "1" {
		t.Errorf("batch = %+v, want %+v", got, batch)
	}
	if len(got.Events) != 1 || got.Events[0].Type != dialog.EventDrillStarted {
		t.Fatalf("events = %+v", got.Events)
	}
	if got.Events[0].EventID != batch.Events[0].EventID {
		t.Error("event identity not preserved")
	}
	if got.Events[0].Drill == nil || got.Events[0].Drill.Slug != "basics" {
		t.Error("event payload not restored")
	}
}

func TestFetchEventBatchUnknownSeqIsEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.FetchEventBatch(context.Background(), testPhone, "7")
	if err != nil {
		t.Fatalf("FetchEventBatch: %v", err)
	}
	if got == nil || len(got.Events) != 0 || got.Seq != "7" {
		t.Errorf("batch = %+v, want empty batch at seq 7", got)
	}
}

func TestPersistDialogStateStaleSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch, state := startedBatch(t)
	if err := s.PersistDialogState(ctx, batch, state); err != nil {
		t.Fatalf("first persist: %v", err)
	}

	// redelivery of the same batch, and a batch from before it
	for _, seq := range []string{"1", "0"} {
		redelivered := batch
		redelivered.Seq = seq
		err := s.PersistDialogState(ctx, redelivered, state)
		if !errors.Is(err, dialog.ErrStaleSequence) {
			t.Errorf("persist seq %s = %v, want ErrStaleSequence", seq, err)
		}
	}

	got, err := s.FetchDialogState(ctx, testPhone)
	if err != nil {
		t.Fatalf("FetchDialogState: %v", err)
	}
	if got.Seq != "1" {
		t.Errorf("stored seq = %s after stale persists, want 1", got.Seq)
	}
}

func TestPersistDialogStateAdvancesSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch, state := startedBatch(t)
	if err := s.PersistDialogState(ctx, batch, state); err != nil {
		t.Fatalf("first persist: %v", err)
	}

	e := dialog.NewDrillCompleted(testPhone, state.UserProfile, *state.DrillInstanceID)
	if err := e.Apply(state); err != nil {
		t.Fatalf("apply: %v", err)
	}
	state.Seq = "2"
	if err := s.PersistDialogState(ctx, dialog.NewEventBatch(testPhone, "2", []dialog.Event{e}), state); err != nil {
		t.Fatalf("second persist: %v", err)
	}

	got, err := s.FetchDialogState(ctx, testPhone)
	if err != nil {
		t.Fatalf("FetchDialogState: %v", err)
	}
	if got.Seq != "2" || got.CurrentDrill != nil {
		t.Errorf("state after completion = seq %s, drill %v", got.Seq, got.CurrentDrill)
	}
}

func TestSeqLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"0", "1", true},
		{"1", "1", false},
		{"2", "1", false},
		{"9", "10", true}, // numeric, not lexicographic
		{"garbage", "1", true},
		{"1", "garbage", false},
	}
	for _, c := range cases {
		if got := seqLess(c.a, c.b); got != c.want {
			t.Errorf("seqLess(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
