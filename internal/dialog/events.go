package dialog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/drills"
	"github.com/relieftext/drilldial/internal/registration"
)

// EventType discriminates the dialog event union.
type EventType string

const (
	EventDrillStarted         EventType = "DRILL_STARTED"
	EventAdvancedToNextPrompt EventType = "ADVANCED_TO_NEXT_PROMPT"
	EventCompletedPrompt      EventType = "COMPLETED_PROMPT"
	EventFailedPrompt         EventType = "FAILED_PROMPT"
	EventDrillCompleted       EventType = "DRILL_COMPLETED"
	EventUserValidated        EventType = "USER_VALIDATED"
	EventUserValidationFailed EventType = "USER_VALIDATION_FAILED"
	EventReminderTriggered    EventType = "REMINDER_TRIGGERED"
	EventOptedOut             EventType = "OPTED_OUT"
	EventNextDrillRequested   EventType = "NEXT_DRILL_REQUESTED"
)

// ErrUnknownEventType indicates an event with a type this build does not
// know. That is a protocol violation, not an expected runtime condition.
var ErrUnknownEventType = errors.New("unknown dialog event type")

// Event is one dialog event. It is a closed tagged union: Type selects which
// of the optional fields are populated. Events are immutable values,
// constructed once and never modified afterwards; UserProfile is the snapshot
// taken *before* the event's own mutation is applied.
type Event struct {
	EventID     uuid.UUID   `json:"event_id"`
	Type        EventType   `json:"event_type"`
	PhoneNumber string      `json:"phone_number"`
	CreatedTime time.Time   `json:"created_time"`
	UserProfile UserProfile `json:"user_profile"`

	Drill           *drills.Drill                       `json:"drill,omitempty"`
	Prompt          *drills.Prompt                      `json:"prompt,omitempty"`
	DrillInstanceID *uuid.UUID                          `json:"drill_instance_id,omitempty"`
	Response        string                              `json:"response,omitempty"`
	Abandoned       bool                                `json:"abandoned,omitempty"`
	Validation      *registration.CodeValidationPayload `json:"code_validation_payload,omitempty"`
}

// EventBatch is the unit of persistence and downstream propagation: all
// events produced by a single command, stamped with the sequence number that
// produced them.
type EventBatch struct {
	BatchID     uuid.UUID `json:"batch_id"`
	PhoneNumber string    `json:"phone_number"`
	Seq         string    `json:"seq"`
	CreatedTime time.Time `json:"created_time"`
	Events      []Event   `json:"events"`
}

// NewEventBatch assembles the batch for one processed command.
func NewEventBatch(phoneNumber, seq string, events []Event) EventBatch {
	return EventBatch{
		BatchID:     uuid.New(),
		PhoneNumber: phoneNumber,
		Seq:         seq,
		CreatedTime: time.Now().UTC(),
		Events:      events,
	}
}

func newEvent(typ EventType, phoneNumber string, profile UserProfile) Event {
	return Event{
		EventID:     uuid.New(),
		Type:        typ,
		PhoneNumber: phoneNumber,
		CreatedTime: time.Now().UTC(),
		UserProfile: profile.Clone(),
	}
}

// NewDrillStarted records the start of a fresh drill instance. The drill is
// snapshotted whole so later catalog edits cannot affect this run.
func NewDrillStarted(phoneNumber string, profile UserProfile, drill drills.Drill) Event {
	e := newEvent(EventDrillStarted, phoneNumber, profile)
	instanceID := uuid.New()
	first := drill.FirstPrompt()
	e.Drill = &drill
	e.Prompt = &first
	e.DrillInstanceID = &instanceID
	return e
}

// NewAdvancedToNextPrompt records advancement to the given prompt.
func NewAdvancedToNextPrompt(phoneNumber string, profile UserProfile, prompt drills.Prompt, instanceID uuid.UUID) Event {
	e := newEvent(EventAdvancedToNextPrompt, phoneNumber, profile)
	e.Prompt = &prompt
	e.DrillInstanceID = &instanceID
	return e
}

// NewCompletedPrompt records an accepted answer to the active prompt.
func NewCompletedPrompt(phoneNumber string, profile UserProfile, prompt drills.Prompt, instanceID uuid.UUID, response string) Event {
	e := newEvent(EventCompletedPrompt, phoneNumber, profile)
	e.Prompt = &prompt
	e.DrillInstanceID = &instanceID
	e.Response = response
	return e
}

// NewFailedPrompt records a rejected answer; abandoned marks the failure that
// exhausts the prompt's failure limit.
func NewFailedPrompt(phoneNumber string, profile UserProfile, prompt drills.Prompt, instanceID uuid.UUID, response string, abandoned bool) Event {
	e := newEvent(EventFailedPrompt, phoneNumber, profile)
	e.Prompt = &prompt
	e.DrillInstanceID = &instanceID
	e.Response = response
	e.Abandoned = abandoned
	return e
}

// NewDrillCompleted records the end of a drill instance.
func NewDrillCompleted(phoneNumber string, profile UserProfile, instanceID uuid.UUID) Event {
	e := newEvent(EventDrillCompleted, phoneNumber, profile)
	e.DrillInstanceID = &instanceID
	return e
}

// NewUserValidated records a successful registration code validation.
func NewUserValidated(phoneNumber string, profile UserProfile, payload registration.CodeValidationPayload) Event {
	e := newEvent(EventUserValidated, phoneNumber, profile)
	e.Validation = &payload
	return e
}

// NewUserValidationFailed records a rejected registration code.
func NewUserValidationFailed(phoneNumber string, profile UserProfile) Event {
	return newEvent(EventUserValidationFailed, phoneNumber, profile)
}

// NewReminderTriggered records that the user was nudged about the active
// prompt.
func NewReminderTriggered(phoneNumber string, profile UserProfile) Event {
	return newEvent(EventReminderTriggered, phoneNumber, profile)
}

// NewOptedOut records an opt-out keyword.
func NewOptedOut(phoneNumber string, profile UserProfile) Event {
	return newEvent(EventOptedOut, phoneNumber, profile)
}

// NewNextDrillRequested records a request for more content, which also clears
// any standing opt-out.
func NewNextDrillRequested(phoneNumber string, profile UserProfile) Event {
	return newEvent(EventNextDrillRequested, phoneNumber, profile)
}

// Apply mutates the dialog state with this event's transition. The event
// itself is never modified. The switch is exhaustive over EventType; an
// unknown type is a protocol violation.
func (e Event) Apply(state *DialogState) error {
	switch e.Type {
	case EventDrillStarted:
		state.CurrentDrill = e.Drill
		state.DrillInstanceID = e.DrillInstanceID
		state.CurrentPromptState = &PromptState{Slug: e.Prompt.Slug, StartTime: e.CreatedTime}

	case EventAdvancedToNextPrompt:
		state.CurrentPromptState = &PromptState{Slug: e.Prompt.Slug, StartTime: e.CreatedTime}

	case EventCompletedPrompt:
		state.CurrentPromptState = nil
		if e.Prompt.StoresAnswer() {
			if err := state.UserProfile.SetAnswerSlot(e.Prompt.ResponseUserProfileKey, e.Response); err != nil {
				return err
			}
		}

	case EventFailedPrompt:
		if e.Abandoned {
			state.CurrentPromptState = nil
		} else {
			state.CurrentPromptState.Failures++
			t := e.CreatedTime
			state.CurrentPromptState.LastResponseTime = &t
		}

	case EventDrillCompleted:
		state.clearDrill()

	case EventUserValidated:
		state.UserProfile.Validated = true
		state.UserProfile.IsDemo = e.Validation.IsDemo
		state.UserProfile.AccountInfo = e.Validation.AccountInfo
		// re-registration restarts any in-flight drill cleanly
		state.clearDrill()

	case EventUserValidationFailed:
		// no state transition; the outcome is carried by the event itself

	case EventReminderTriggered:
		if state.CurrentPromptState == nil {
			return fmt.Errorf("reminder triggered for %s with no active prompt", e.PhoneNumber)
		}
		state.CurrentPromptState.ReminderTriggered = true

	case EventOptedOut:
		state.clearDrill()
		state.UserProfile.OptedOut = true

	case EventNextDrillRequested:
		state.UserProfile.OptedOut = false

	default:
		return fmt.Errorf("%w: %s", ErrUnknownEventType, e.Type)
	}
	return nil
}
