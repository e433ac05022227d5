// Package store: ReminderLogRepo is the persisted reminder-trigger log.
package store

import (
	"context"

	"github.com/google/uuid"
)

// ReminderTrigger records that a reminder was published for one prompt of one
// drill instance. The (drill_instance_id, prompt_slug) pair is unique: a
// prompt is never reminded about twice.
type ReminderTrigger struct {
	ID              uuid.UUID `json:"id"`
	DrillInstanceID uuid.UUID `json:"drill_instance_id"`
	PromptSlug      string    `json:"prompt_slug"`
}

// ReminderLogRepo persists reminder triggers.
type ReminderLogRepo interface {
	// ReminderTriggerExists reports whether a trigger was already recorded
	// for the instance/prompt pair.
	ReminderTriggerExists(ctx context.Context, drillInstanceID uuid.UUID, promptSlug string) (bool, error)

	// SaveReminderTriggers records triggers, silently skipping pairs that
	// already exist (publish retries after a crash land here).
	SaveReminderTriggers(ctx context.Context, triggers []ReminderTrigger) error

	// GetReminderTriggers returns every recorded trigger.
	GetReminderTriggers(ctx context.Context) ([]ReminderTrigger, error)
}
