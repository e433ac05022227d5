package outbound

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/dialog"
	"github.com/relieftext/drilldial/internal/drills"
	"github.com/relieftext/drilldial/internal/registration"
)

func registrationPayload() registration.CodeValidationPayload {
	return registration.CodeValidationPayload{Valid: true}
}

const testPhone = "+15551230001"

type fakeSender struct {
	sent    []Message
	failAt  int // 1-based send index to fail on; 0 never fails
	sendErr error
}

func (f *fakeSender) SendMessage(_ context.Context, to, body, mediaURL string) error {
	if f.failAt > 0 && len(f.sent)+1 == f.failAt {
		return f.sendErr
	}
	f.sent = append(f.sent, Message{To: to, Body: body, MediaURL: mediaURL})
	return nil
}

func testLocalizer() *drills.Localizer {
	return drills.NewLocalizer(map[string]map[string]string{
		"en": {
			"match_correct":     "Correct!",
			"try_again":         "Not quite, try again.",
			"corrected_answer":  "The answer was {{.correct_answer}}.",
			"drill_completed":   "Nice work, {{.name}}.",
			"validation_failed": "That code did not match.",
			"drill_reminder":    "Still there?",
			"answer_b":          "option B",
		},
	})
}

func testPrompt() drills.Prompt {
	return drills.Prompt{
		Slug: "q1",
		Messages: []drills.PromptMessage{
			{Text: "Welcome {{.name}}"},
			{Text: "Question 1", MediaURL: "https://cdn.example.com/q1.png"},
		},
		CorrectResponse: "b",
	}
}

func namedProfile() dialog.UserProfile {
	return dialog.UserProfile{Validated: true, Name: "Ada", Language: "en"}
}

func TestMessagesForDrillStarted(t *testing.T) {
	drill := drills.Drill{Slug: "basics", Prompts: []drills.Prompt{testPrompt()}}
	e := dialog.NewDrillStarted(testPhone, namedProfile(), drill)
	batch := dialog.NewEventBatch(testPhone, "1", []dialog.Event{e})

	msgs := MessagesForBatch(batch, testLocalizer())
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Body != "Welcome Ada" {
		t.Errorf("first message = %q", msgs[0].Body)
	}
	if msgs[1].Body != "Question 1" || msgs[1].MediaURL != "https://cdn.example.com/q1.png" {
		t.Errorf("second message = %+v", msgs[1])
	}
	for _, m := range msgs {
		if m.To != testPhone {
			t.Errorf("message addressed to %s", m.To)
		}
	}
}

func TestMessagesForCompletedPrompt(t *testing.T) {
	instanceID := uuid.New()
	loc := testLocalizer()

	graded := dialog.NewCompletedPrompt(testPhone, namedProfile(), testPrompt(), instanceID, "b")
	msgs := messagesForEvent(graded, loc)
	if len(msgs) != 1 || msgs[0].Body != "Correct!" {
		t.Errorf("graded completion = %+v", msgs)
	}

	stored := drills.Prompt{Slug: "rate", Messages: []drills.PromptMessage{{Text: "Rate"}}, ResponseUserProfileKey: "self_rating_1"}
	if msgs := messagesForEvent(dialog.NewCompletedPrompt(testPhone, namedProfile(), stored, instanceID, "9"), loc); len(msgs) != 0 {
		t.Errorf("stored-answer completion should be silent, got %+v", msgs)
	}
}

func TestMessagesForFailedPrompt(t *testing.T) {
	instanceID := uuid.New()
	loc := testLocalizer()

	retry := dialog.NewFailedPrompt(testPhone, namedProfile(), testPrompt(), instanceID, "x", false)
	msgs := messagesForEvent(retry, loc)
	if len(msgs) != 1 || msgs[0].Body != "Not quite, try again." {
		t.Errorf("retry = %+v", msgs)
	}

	// the abandoning failure reveals the localized correct answer
	prompt := testPrompt()
	prompt.CorrectResponse = "{{.answer_b}}"
	abandoned := dialog.NewFailedPrompt(testPhone, namedProfile(), prompt, instanceID, "y", true)
	msgs = messagesForEvent(abandoned, loc)
	if len(msgs) != 1 || msgs[0].Body != "The answer was option B." {
		t.Errorf("abandonment = %+v", msgs)
	}
}

func TestMessagesForLifecycleEvents(t *testing.T) {
	loc := testLocalizer()
	profile := namedProfile()
	instanceID := uuid.New()

	cases := []struct {
		event dialog.Event
		want  string
	}{
		{dialog.NewDrillCompleted(testPhone, profile, instanceID), "Nice work, Ada."},
		{dialog.NewUserValidationFailed(testPhone, profile), "That code did not match."},
		{dialog.NewReminderTriggered(testPhone, profile), "Still there?"},
	}
	for _, c := range cases {
		msgs := messagesForEvent(c.event, loc)
		if len(msgs) != 1 || msgs[0].Body != c.want {
			t.Errorf("%s = %+v, want %q", c.event.Type, msgs, c.want)
		}
	}

	for _, e := range []dialog.Event{
		dialog.NewUserValidated(testPhone, profile, registrationPayload()),
		dialog.NewOptedOut(testPhone, profile),
		dialog.NewNextDrillRequested(testPhone, profile),
	} {
		if msgs := messagesForEvent(e, loc); len(msgs) != 0 {
			t.Errorf("%s should produce no reply, got %+v", e.Type, msgs)
		}
	}
}

func TestDistributeSendsInOrder(t *testing.T) {
	drill := drills.Drill{Slug: "basics", Prompts: []drills.Prompt{testPrompt()}}
	e := dialog.NewDrillStarted(testPhone, namedProfile(), drill)
	batch := dialog.NewEventBatch(testPhone, "1", []dialog.Event{e})

	sender := &fakeSender{}
	d := NewDistributor(sender, testLocalizer())
	if err := d.Distribute(context.Background(), batch); err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if len(sender.sent) != 2 || sender.sent[0].Body != "Welcome Ada" {
		t.Errorf("sent = %+v", sender.sent)
	}
}

func TestDistributeAbortsOnSendFailure(t *testing.T) {
	drill := drills.Drill{Slug: "basics", Prompts: []drills.Prompt{testPrompt()}}
	e := dialog.NewDrillStarted(testPhone, namedProfile(), drill)
	batch := dialog.NewEventBatch(testPhone, "1", []dialog.Event{e})

	sendErr := errors.New("carrier rejected")
	sender := &fakeSender{failAt: 2, sendErr: sendErr}
	d := NewDistributor(sender, testLocalizer())
	err := d.Distribute(context.Background(), batch)
	if !errors.Is(err, sendErr) {
		t.Fatalf("Distribute = %v, want wrapped send error", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d messages after failure, want 1", len(sender.sent))
	}
}
