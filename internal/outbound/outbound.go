// Package outbound derives the SMS messages owed to a user from a persisted
// dialog event batch and hands them to an SMS sender.
//
// Derivation is pure: the same batch always yields the same messages, so a
// redelivered batch re-sends the same texts rather than inventing new ones.
package outbound

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relieftext/drilldial/internal/dialog"
	"github.com/relieftext/drilldial/internal/drills"
)

// Translation labels for the fixed service messages. Drill content carries its
// own text; these cover the graded and lifecycle replies around it.
const (
	labelMatchCorrect    = "{{.match_correct}}"
	labelTryAgain        = "{{.try_again}}"
	labelCorrectedAnswer = "{{.corrected_answer}}"
	labelDrillCompleted  = "{{.drill_completed}}"
	labelInvalidCode     = "{{.validation_failed}}"
	labelReminder        = "{{.drill_reminder}}"
)

// Message is one outbound SMS.
type Message struct {
	To       string
	Body     string
	MediaURL string
}

// Sender delivers a single SMS. *twiliosms.Client satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, to, body, mediaURL string) error
}

// Distributor fans a persisted event batch out to the SMS sender.
type Distributor struct {
	sender    Sender
	localizer *drills.Localizer
}

func NewDistributor(sender Sender, localizer *drills.Localizer) *Distributor {
	return &Distributor{sender: sender, localizer: localizer}
}

// Distribute sends every message the batch implies, in event order. The first
// send failure aborts the rest; the caller retries the whole batch.
func (d *Distributor) Distribute(ctx context.Context, batch dialog.EventBatch) error {
	messages := MessagesForBatch(batch, d.localizer)
	for _, m := range messages {
		if err := d.sender.SendMessage(ctx, m.To, m.Body, m.MediaURL); err != nil {
			return fmt.Errorf("distribute batch %s: %w", batch.BatchID, err)
		}
	}
	slog.Debug("Distributor.Distribute", "phone_number", batch.PhoneNumber, "batch_id", batch.BatchID, "messages", len(messages))
	return nil
}

// MessagesForBatch derives the outbound messages for a batch, localized to the
// user's language as snapshotted on each event.
func MessagesForBatch(batch dialog.EventBatch, loc *drills.Localizer) []Message {
	var out []Message
	for _, e := range batch.Events {
		out = append(out, messagesForEvent(e, loc)...)
	}
	return out
}

func messagesForEvent(e dialog.Event, loc *drills.Localizer) []Message {
	lang := e.UserProfile.Language
	args := map[string]string{"name": e.UserProfile.Name}

	switch e.Type {
	case dialog.EventDrillStarted, dialog.EventAdvancedToNextPrompt:
		return promptMessages(e.PhoneNumber, *e.Prompt, lang, loc, args)

	case dialog.EventCompletedPrompt:
		// Only graded prompts get an explicit confirmation; stored and
		// informational answers advance silently.
		if e.Prompt.CorrectResponse == "" {
			return nil
		}
		return []Message{{To: e.PhoneNumber, Body: loc.Localize(labelMatchCorrect, lang, args)}}

	case dialog.EventFailedPrompt:
		if !e.Abandoned {
			return []Message{{To: e.PhoneNumber, Body: loc.Localize(labelTryAgain, lang, args)}}
		}
		correct := loc.Localize(e.Prompt.CorrectResponse, lang)
		args["correct_answer"] = correct
		return []Message{{To: e.PhoneNumber, Body: loc.Localize(labelCorrectedAnswer, lang, args)}}

	case dialog.EventDrillCompleted:
		return []Message{{To: e.PhoneNumber, Body: loc.Localize(labelDrillCompleted, lang, args)}}

	case dialog.EventUserValidationFailed:
		return []Message{{To: e.PhoneNumber, Body: loc.Localize(labelInvalidCode, lang, args)}}

	case dialog.EventReminderTriggered:
		return []Message{{To: e.PhoneNumber, Body: loc.Localize(labelReminder, lang, args)}}

	default:
		// UserValidated, OptedOut, and NextDrillRequested produce no direct
		// reply. The drill that follows them is its own batch.
		return nil
	}
}

func promptMessages(to string, prompt drills.Prompt, lang string, loc *drills.Localizer, args map[string]string) []Message {
	out := make([]Message, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		out = append(out, Message{
			To:       to,
			Body:     loc.Localize(m.Text, lang, args),
			MediaURL: m.MediaURL,
		})
	}
	return out
}
