package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/drills"
	"github.com/relieftext/drilldial/internal/registration"
)

// Keyword sets recognized ahead of all drill processing. Opt-out keywords
// follow the carrier-mandated STOP list.
var (
	helpKeywords   = map[string]bool{"help": true, "info": true}
	optOutKeywords = map[string]bool{
		"stop": true, "stopall": true, "unsubscribe": true,
		"cancel": true, "end": true, "quit": true,
	}
)

const (
	optInKeyword     = "start"
	nextDrillKeyword = "more"
)

// Command is a request against a single phone number's dialog. Execute is
// pure with respect to the dialog state: it reads the state and returns the
// events that should be applied, without mutating anything.
type Command interface {
	PhoneNumber() string
	Execute(ctx context.Context, state *DialogState) ([]Event, error)
}

// StartDrill begins a new run of the given drill. It always produces exactly
// one DrillStarted event with a fresh drill instance id.
type StartDrill struct {
	Phone string
	Drill drills.Drill
}

func (c StartDrill) PhoneNumber() string { return c.Phone }

func (c StartDrill) Execute(ctx context.Context, state *DialogState) ([]Event, error) {
	return []Event{NewDrillStarted(c.Phone, state.UserProfile, c.Drill)}, nil
}

// TriggerReminder nudges the user about the active prompt. It is idempotent
// by construction: a stale instance id, a stale prompt slug, or a reminder
// already sent for this prompt all produce no events.
type TriggerReminder struct {
	Phone           string
	DrillInstanceID uuid.UUID
	PromptSlug      string
}

func (c TriggerReminder) PhoneNumber() string { return c.Phone }

func (c TriggerReminder) Execute(ctx context.Context, state *DialogState) ([]Event, error) {
	if state.CurrentDrill == nil || state.DrillInstanceID == nil || *state.DrillInstanceID != c.DrillInstanceID {
		return nil, nil
	}
	prompt := state.CurrentPromptState
	if prompt == nil || prompt.Slug != c.PromptSlug {
		return nil, nil
	}
	if prompt.ReminderTriggered {
		return nil, nil
	}
	return []Event{NewReminderTriggered(c.Phone, state.UserProfile)}, nil
}

// ProcessSMSMessage handles one inbound SMS from the user.
type ProcessSMSMessage struct {
	Phone     string
	Content   string
	Validator registration.Validator
	Localizer *drills.Localizer

	content      string
	contentLower string
}

// NewProcessSMSMessage builds the command, trimming the raw content once. The
// localizer is used to grade answers against the localized correct response.
func NewProcessSMSMessage(phone, content string, validator registration.Validator, localizer *drills.Localizer) *ProcessSMSMessage {
	trimmed := strings.TrimSpace(content)
	return &ProcessSMSMessage{
		Phone:        phone,
		Content:      content,
		Validator:    validator,
		Localizer:    localizer,
		content:      trimmed,
		contentLower: strings.ToLower(trimmed),
	}
}

func (c *ProcessSMSMessage) PhoneNumber() string { return c.Phone }

// smsLink is one step of the inbound-SMS decision table. A link either
// decides the outcome (handled=true, possibly with zero events) or defers to
// the next link.
type smsLink struct {
	name    string
	handler func(ctx context.Context, c *ProcessSMSMessage, state *DialogState) (events []Event, handled bool, err error)
}

// smsChain fixes the precedence of inbound message handling: keywords first,
// then opt-out state, then registration, then drill grading, then the
// next-drill request.
var smsChain = []smsLink{
	{"help", handleHelp},
	{"opt-out", handleOptOut},
	{"opted-out-gate", handleOptedOutGate},
	{"validation", handleValidation},
	{"grading", handleGrading},
	{"more", handleMore},
}

func (c *ProcessSMSMessage) Execute(ctx context.Context, state *DialogState) ([]Event, error) {
	for _, link := range smsChain {
		events, handled, err := link.handler(ctx, c, state)
		if err != nil {
			return nil, fmt.Errorf("sms link %s: %w", link.name, err)
		}
		if handled {
			slog.Debug("ProcessSMSMessage handled", "link", link.name, "events", len(events))
			return events, nil
		}
	}
	return nil, nil
}

// handleHelp swallows carrier help keywords; the gateway auto-responds to
// them, so the dialog must not.
func handleHelp(_ context.Context, c *ProcessSMSMessage, _ *DialogState) ([]Event, bool, error) {
	if helpKeywords[c.contentLower] {
		return nil, true, nil
	}
	return nil, false, nil
}

func handleOptOut(_ context.Context, c *ProcessSMSMessage, state *DialogState) ([]Event, bool, error) {
	if optOutKeywords[c.contentLower] {
		return []Event{NewOptedOut(c.Phone, state.UserProfile)}, true, nil
	}
	return nil, false, nil
}

// handleOptedOutGate blocks everything from an opted-out user except the
// opt-in keyword, which requests the next drill and clears the opt-out.
func handleOptedOutGate(_ context.Context, c *ProcessSMSMessage, state *DialogState) ([]Event, bool, error) {
	if !state.UserProfile.OptedOut {
		return nil, false, nil
	}
	if c.contentLower == optInKeyword {
		return []Event{NewNextDrillRequested(c.Phone, state.UserProfile)}, true, nil
	}
	return nil, true, nil
}

// handleValidation treats any message from an unvalidated user as a
// registration code. Demo users stay in this link so they can re-register
// with a different code at any time.
func handleValidation(ctx context.Context, c *ProcessSMSMessage, state *DialogState) ([]Event, bool, error) {
	if state.UserProfile.Validated && !state.UserProfile.IsDemo {
		return nil, false, nil
	}
	payload, err := c.Validator.ValidateCode(ctx, c.contentLower)
	if err != nil {
		return nil, false, fmt.Errorf("code validation: %w", err)
	}
	if payload.Valid {
		return []Event{NewUserValidated(c.Phone, state.UserProfile, payload)}, true, nil
	}
	if !state.UserProfile.Validated {
		return []Event{NewUserValidationFailed(c.Phone, state.UserProfile)}, true, nil
	}
	// a validated demo user sent something that isn't a code: fall through to
	// drill processing
	return nil, false, nil
}

// handleGrading grades the answer against the active prompt and advances the
// drill. A wrong answer past the prompt's failure limit abandons the prompt
// and advances anyway. Reaching the drill's final prompt completes the drill
// immediately: the last prompt is informational and never waits for a reply.
func handleGrading(_ context.Context, c *ProcessSMSMessage, state *DialogState) ([]Event, bool, error) {
	prompt, ok := state.CurrentPrompt()
	if !ok {
		return nil, false, nil
	}
	instanceID := *state.DrillInstanceID

	var events []Event
	var shouldAdvance bool
	if prompt.ShouldAdvanceWith(c.contentLower, state.UserProfile.Language, c.Localizer) {
		events = append(events, NewCompletedPrompt(c.Phone, state.UserProfile, prompt, instanceID, c.content))
		shouldAdvance = true
	} else {
		shouldAdvance = state.CurrentPromptState.Failures >= prompt.FailureLimit()
		events = append(events, NewFailedPrompt(c.Phone, state.UserProfile, prompt, instanceID, c.content, shouldAdvance))
	}

	if shouldAdvance {
		next, ok := state.NextPrompt()
		if !ok {
			events = append(events, NewDrillCompleted(c.Phone, state.UserProfile, instanceID))
			return events, true, nil
		}
		events = append(events, NewAdvancedToNextPrompt(c.Phone, state.UserProfile, next, instanceID))
		if state.IsNextPromptLast() {
			events = append(events, NewDrillCompleted(c.Phone, state.UserProfile, instanceID))
		}
	}
	return events, true, nil
}

func handleMore(_ context.Context, c *ProcessSMSMessage, state *DialogState) ([]Event, bool, error) {
	if c.contentLower == nextDrillKeyword {
		return []Event{NewNextDrillRequested(c.Phone, state.UserProfile)}, true, nil
	}
	return nil, false, nil
}
