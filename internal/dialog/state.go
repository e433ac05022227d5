// Package dialog implements the event-sourced SMS dialog engine: the
// per-phone-number dialog aggregate, the dialog event model, command
// execution, and the ordering/idempotency gate.
//
// Events are the durable source of truth; DialogState is a derived cache
// rebuilt by applying events in order. Commands are pure with respect to the
// dialog state: executing a command never mutates it, only event application
// does.
package dialog

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/drills"
)

// UserProfile holds per-phone-number attributes. It is mutated only through
// event application. The self-rating slots store raw free-text answers for
// prompts that declare a response_user_profile_key.
type UserProfile struct {
	Validated   bool           `json:"validated"`
	IsDemo      bool           `json:"is_demo,omitempty"`
	OptedOut    bool           `json:"opted_out,omitempty"`
	Name        string         `json:"name,omitempty"`
	Language    string         `json:"language,omitempty"`
	AccountInfo map[string]any `json:"account_info,omitempty"`
	SelfRating1 string         `json:"self_rating_1,omitempty"`
	SelfRating2 string         `json:"self_rating_2,omitempty"`
	SelfRating3 string         `json:"self_rating_3,omitempty"`
	SelfRating4 string         `json:"self_rating_4,omitempty"`
	SelfRating5 string         `json:"self_rating_5,omitempty"`
	SelfRating6 string         `json:"self_rating_6,omitempty"`
	SelfRating7 string         `json:"self_rating_7,omitempty"`
}

// Clone returns a deep copy. Events carry profile snapshots, so the copy must
// not share the account info map with the live aggregate.
func (p UserProfile) Clone() UserProfile {
	out := p
	if p.AccountInfo != nil {
		out.AccountInfo = make(map[string]any, len(p.AccountInfo))
		for k, v := range p.AccountInfo {
			out.AccountInfo[k] = v
		}
	}
	return out
}

// SetAnswerSlot writes a raw answer into the named profile slot.
func (p *UserProfile) SetAnswerSlot(key, value string) error {
	switch key {
	case "self_rating_1":
		p.SelfRating1 = value
	case "self_rating_2":
		p.SelfRating2 = value
	case "self_rating_3":
		p.SelfRating3 = value
	case "self_rating_4":
		p.SelfRating4 = value
	case "self_rating_5":
		p.SelfRating5 = value
	case "self_rating_6":
		p.SelfRating6 = value
	case "self_rating_7":
		p.SelfRating7 = value
	default:
		return fmt.Errorf("unknown user profile answer slot %q", key)
	}
	return nil
}

// PromptState tracks the live prompt of an active drill. It exists only while
// a prompt is waiting on the user and is replaced wholesale on advancement.
type PromptState struct {
	Slug              string     `json:"slug"`
	StartTime         time.Time  `json:"start_time"`
	LastResponseTime  *time.Time `json:"last_response_time,omitempty"`
	Failures          int        `json:"failures"`
	ReminderTriggered bool       `json:"reminder_triggered,omitempty"`
}

// DialogState is the authoritative per-phone-number aggregate.
//
// Invariants: CurrentPromptState and DrillInstanceID are non-nil iff
// CurrentDrill is non-nil. Seq is a string-encoded integer and never
// decreases.
type DialogState struct {
	PhoneNumber        string        `json:"phone_number"`
	Seq                string        `json:"seq"`
	UserProfile        UserProfile   `json:"user_profile"`
	CurrentDrill       *drills.Drill `json:"current_drill,omitempty"`
	DrillInstanceID    *uuid.UUID    `json:"drill_instance_id,omitempty"`
	CurrentPromptState *PromptState  `json:"current_prompt_state,omitempty"`
}

// NewDialogState returns the zero state for a phone number that has never
// been seen before.
func NewDialogState(phoneNumber string) *DialogState {
	return &DialogState{PhoneNumber: phoneNumber, Seq: "0"}
}

// CurrentPrompt resolves the active prompt from the snapshotted drill.
func (s *DialogState) CurrentPrompt() (drills.Prompt, bool) {
	if s.CurrentDrill == nil || s.CurrentPromptState == nil {
		return drills.Prompt{}, false
	}
	p, err := s.CurrentDrill.GetPrompt(s.CurrentPromptState.Slug)
	if err != nil {
		return drills.Prompt{}, false
	}
	return p, true
}

// NextPrompt returns the prompt after the active one, or false at the end of
// the drill.
func (s *DialogState) NextPrompt() (drills.Prompt, bool) {
	if s.CurrentDrill == nil || s.CurrentPromptState == nil {
		return drills.Prompt{}, false
	}
	return s.CurrentDrill.PromptAfter(s.CurrentPromptState.Slug)
}

// IsNextPromptLast reports whether the prompt after the active one is the
// drill's final prompt.
func (s *DialogState) IsNextPromptLast() bool {
	next, ok := s.NextPrompt()
	if !ok {
		return false
	}
	return s.CurrentDrill.IsLastPrompt(next.Slug)
}

// clearDrill drops all in-flight drill state, restoring the no-drill side of
// the aggregate invariant.
func (s *DialogState) clearDrill() {
	s.CurrentDrill = nil
	s.DrillInstanceID = nil
	s.CurrentPromptState = nil
}
