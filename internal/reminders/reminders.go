// Package reminders nudges users who stall mid-drill. A periodic scan finds
// valid incomplete drill instances whose current prompt has been waiting
// between the floor and ceiling windows, publishes a TriggerReminder command
// for each, and records the trigger so the same prompt is never reminded about
// twice.
package reminders

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/store"
	"github.com/relieftext/drilldial/internal/transport"
)

// Default staleness window, in minutes. Below the floor the user is probably
// still typing; above the ceiling the conversation is long dead and a nudge
// would be spam.
const (
	DefaultFloorMinutes = 240
	DefaultCeilMinutes  = 1440
)

// Store is the storage surface the triggerer needs.
type Store interface {
	store.InstanceRepo
	store.ReminderLogRepo
}

// Triggerer runs the reminder scan.
type Triggerer struct {
	store        Store
	publisher    transport.Publisher
	floorMinutes int
	ceilMinutes  int
}

// NewTriggerer creates a reminder triggerer. Non-positive windows fall back to
// the defaults.
func NewTriggerer(st Store, publisher transport.Publisher, floorMinutes, ceilMinutes int) *Triggerer {
	if floorMinutes <= 0 {
		floorMinutes = DefaultFloorMinutes
	}
	if ceilMinutes <= 0 {
		ceilMinutes = DefaultCeilMinutes
	}
	return &Triggerer{store: st, publisher: publisher, floorMinutes: floorMinutes, ceilMinutes: ceilMinutes}
}

// TriggerReminders runs one scan. Triggers are recorded only after the
// corresponding publish succeeds, so a crash between the two redelivers the
// reminder command, which the engine drops as already triggered.
func (t *Triggerer) TriggerReminders(ctx context.Context) error {
	instances, err := t.store.IncompleteDrills(ctx, t.floorMinutes, t.ceilMinutes)
	if err != nil {
		return fmt.Errorf("reminder scan failed: %w", err)
	}

	var triggers []store.ReminderTrigger
	for _, in := range instances {
		if in.CurrentPromptSlug == "" {
			continue
		}
		exists, err := t.store.ReminderTriggerExists(ctx, in.DrillInstanceID, in.CurrentPromptSlug)
		if err != nil {
			return fmt.Errorf("reminder trigger lookup failed: %w", err)
		}
		if exists {
			continue
		}
		if err := t.publisher.PublishTriggerReminder(ctx, in.PhoneNumber, in.DrillInstanceID, in.CurrentPromptSlug); err != nil {
			slog.Error("Triggerer.TriggerReminders: publish failed",
				"error", err, "drill_instance_id", in.DrillInstanceID, "prompt_slug", in.CurrentPromptSlug)
			continue
		}
		triggers = append(triggers, store.ReminderTrigger{
			ID:              uuid.New(),
			DrillInstanceID: in.DrillInstanceID,
			PromptSlug:      in.CurrentPromptSlug,
		})
	}

	if len(triggers) == 0 {
		return nil
	}
	if err := t.store.SaveReminderTriggers(ctx, triggers); err != nil {
		return fmt.Errorf("record reminder triggers failed: %w", err)
	}
	slog.Info("Triggerer.TriggerReminders", "scanned", len(instances), "triggered", len(triggers))
	return nil
}
