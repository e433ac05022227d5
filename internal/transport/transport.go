// Package transport carries commands into the dialog engine: the durable
// inbound command envelope, the queue-backed publisher, the dispatcher that
// decodes envelopes into engine commands and fans persisted batches out to the
// projections and the SMS distributor, and the polling runner that drains the
// queue.
package transport

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Command types carried on the queue.
const (
	CommandInboundSMS      = "INBOUND_SMS"
	CommandStartDrill      = "START_DRILL"
	CommandTriggerReminder = "TRIGGER_REMINDER"
)

// InboundSMSPayload is the envelope payload for a user's text message.
type InboundSMSPayload struct {
	PhoneNumber string `json:"phone_number"`
	Content     string `json:"content"`
}

// StartDrillPayload asks the engine to begin a catalog drill.
type StartDrillPayload struct {
	PhoneNumber string `json:"phone_number"`
	DrillSlug   string `json:"drill_slug"`
}

// TriggerReminderPayload asks the engine to nudge a stalled prompt.
type TriggerReminderPayload struct {
	PhoneNumber     string    `json:"phone_number"`
	DrillInstanceID uuid.UUID `json:"drill_instance_id"`
	PromptSlug      string    `json:"prompt_slug"`
}

func marshalPayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode command payload failed: %w", err)
	}
	return string(b), nil
}
