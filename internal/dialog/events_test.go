package dialog

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/drills"
	"github.com/relieftext/drilldial/internal/registration"
)

const testPhone = "+15551230001"

func testDrill() drills.Drill {
	return drills.Drill{
		Slug: "basics",
		Name: "Basics",
		Prompts: []drills.Prompt{
			{Slug: "q1", Messages: []drills.PromptMessage{{Text: "Question 1"}}, CorrectResponse: "b"},
			{Slug: "rate", Messages: []drills.PromptMessage{{Text: "Rate 1-10"}}, ResponseUserProfileKey: "self_rating_1"},
			{Slug: "outro", Messages: []drills.PromptMessage{{Text: "Done!"}}},
		},
	}
}

func startedState(t *testing.T) *DialogState {
	t.Helper()
	state := NewDialogState(testPhone)
	state.UserProfile.Validated = true
	e := NewDrillStarted(testPhone, state.UserProfile, testDrill())
	if err := e.Apply(state); err != nil {
		t.Fatalf("apply DrillStarted: %v", err)
	}
	return state
}

func TestApplyDrillStarted(t *testing.T) {
	state := startedState(t)
	if state.CurrentDrill == nil || state.CurrentDrill.Slug != "basics" {
		t.Fatal("drill not set")
	}
	if state.DrillInstanceID == nil {
		t.Fatal("instance id not set")
	}
	if state.CurrentPromptState == nil || state.CurrentPromptState.Slug != "q1" {
		t.Fatalf("prompt state = %+v", state.CurrentPromptState)
	}
	if state.CurrentPromptState.Failures != 0 || state.CurrentPromptState.ReminderTriggered {
		t.Error("fresh prompt state should be zeroed")
	}
}

func TestApplyAdvancedReplacesPromptState(t *testing.T) {
	state := startedState(t)
	state.CurrentPromptState.Failures = 1
	state.CurrentPromptState.ReminderTriggered = true

	next, _ := state.CurrentDrill.PromptAfter("q1")
	e := NewAdvancedToNextPrompt(testPhone, state.UserProfile, next, *state.DrillInstanceID)
	if err := e.Apply(state); err != nil {
		t.Fatalf("apply: %v", err)
	}
	ps := state.CurrentPromptState
	if ps.Slug != "rate" || ps.Failures != 0 || ps.ReminderTriggered || ps.LastResponseTime != nil {
		t.Errorf("prompt state not replaced wholesale: %+v", ps)
	}
}

func TestApplyCompletedPromptStoresAnswer(t *testing.T) {
	state := startedState(t)
	prompt, _ := state.CurrentDrill.GetPrompt("rate")
	e := NewCompletedPrompt(testPhone, state.UserProfile, prompt, *state.DrillInstanceID, "8")
	if err := e.Apply(state); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if state.UserProfile.SelfRating1 != "8" {
		t.Errorf("SelfRating1 = %q, want 8", state.UserProfile.SelfRating1)
	}
	if state.CurrentPromptState != nil {
		t.Error("prompt state should be cleared on completion")
	}
}

func TestApplyCompletedPromptUnknownSlotErrors(t *testing.T) {
	state := startedState(t)
	prompt := drills.Prompt{Slug: "bad", Messages: []drills.PromptMessage{{Text: "x"}}, ResponseUserProfileKey: "nope"}
	e := NewCompletedPrompt(testPhone, state.UserProfile, prompt, *state.DrillInstanceID, "8")
	if err := e.Apply(state); err == nil {
		t.Error("unknown profile slot should error")
	}
}

func TestApplyFailedPrompt(t *testing.T) {
	state := startedState(t)
	prompt, _ := state.CurrentPrompt()

	e := NewFailedPrompt(testPhone, state.UserProfile, prompt, *state.DrillInstanceID, "x", false)
	if err := e.Apply(state); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if state.CurrentPromptState.Failures != 1 {
		t.Errorf("Failures = %d, want 1", state.CurrentPromptState.Failures)
	}
	if state.CurrentPromptState.LastResponseTime == nil {
		t.Error("LastResponseTime should be stamped")
	}

	abandoned := NewFailedPrompt(testPhone, state.UserProfile, prompt, *state.DrillInstanceID, "y", true)
	if err := abandoned.Apply(state); err != nil {
		t.Fatalf("apply abandoned: %v", err)
	}
	if state.CurrentPromptState != nil {
		t.Error("abandonment should clear prompt state")
	}
}

func TestApplyDrillCompleted(t *testing.T) {
	state := startedState(t)
	e := NewDrillCompleted(testPhone, state.UserProfile, *state.DrillInstanceID)
	if err := e.Apply(state); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if state.CurrentDrill != nil || state.DrillInstanceID != nil || state.CurrentPromptState != nil {
		t.Error("completion should clear all drill state")
	}
}

func TestApplyUserValidatedResetsDrill(t *testing.T) {
	state := startedState(t)
	payload := registration.CodeValidationPayload{
		Valid:       true,
		IsDemo:      true,
		AccountInfo: map[string]any{"org": "demo"},
	}
	e := NewUserValidated(testPhone, state.UserProfile, payload)
	if err := e.Apply(state); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !state.UserProfile.Validated || !state.UserProfile.IsDemo {
		t.Error("profile flags not set")
	}
	if state.UserProfile.AccountInfo["org"] != "demo" {
		t.Error("account info not set")
	}
	if state.CurrentDrill != nil {
		t.Error("re-registration should clear the in-flight drill")
	}
}

func TestApplyReminderTriggered(t *testing.T) {
	state := startedState(t)
	e := NewReminderTriggered(testPhone, state.UserProfile)
	if err := e.Apply(state); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !state.CurrentPromptState.ReminderTriggered {
		t.Error("ReminderTriggered flag not set")
	}

	bare := NewDialogState(testPhone)
	if err := e.Apply(bare); err == nil {
		t.Error("reminder without an active prompt should error")
	}
}

func TestApplyOptOutAndOptIn(t *testing.T) {
	state := startedState(t)
	if err := NewOptedOut(testPhone, state.UserProfile).Apply(state); err != nil {
		t.Fatalf("apply opt-out: %v", err)
	}
	if !state.UserProfile.OptedOut || state.CurrentDrill != nil {
		t.Error("opt-out should set the flag and clear the drill")
	}
	if err := NewNextDrillRequested(testPhone, state.UserProfile).Apply(state); err != nil {
		t.Fatalf("apply next-drill: %v", err)
	}
	if state.UserProfile.OptedOut {
		t.Error("next-drill request should clear the opt-out")
	}
}

func TestApplyUnknownTypeErrors(t *testing.T) {
	e := Event{EventID: uuid.New(), Type: EventType("BOGUS"), PhoneNumber: testPhone, CreatedTime: time.Now()}
	if err := e.Apply(NewDialogState(testPhone)); err == nil {
		t.Error("unknown event type should error")
	}
}

func TestEventProfileSnapshotIsolation(t *testing.T) {
	state := NewDialogState(testPhone)
	state.UserProfile.AccountInfo = map[string]any{"k": "v1"}

	e := NewOptedOut(testPhone, state.UserProfile)
	state.UserProfile.AccountInfo["k"] = "v2"

	if e.UserProfile.AccountInfo["k"] != "v1" {
		t.Error("event profile snapshot shares the live account info map")
	}
	if e.UserProfile.OptedOut {
		t.Error("snapshot must be taken before the event's own mutation")
	}
}
