package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Compile-time check that SQLiteStore implements ReminderLogRepo.
var _ ReminderLogRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) ReminderTriggerExists(ctx context.Context, drillInstanceID uuid.UUID, promptSlug string) (bool, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM reminder_triggers WHERE drill_instance_id = ? AND prompt_slug = ?`,
		drillInstanceID, promptSlug,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reminder trigger lookup failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) SaveReminderTriggers(ctx context.Context, triggers []ReminderTrigger) error {
	now := time.Now().UTC()
	for _, t := range triggers {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO reminder_triggers (id, drill_instance_id, prompt_slug, created_at)
			 VALUES (?, ?, ?, ?) ON CONFLICT (drill_instance_id, prompt_slug) DO NOTHING`,
			t.ID, t.DrillInstanceID, t.PromptSlug, now,
		)
		if err != nil {
			return fmt.Errorf("save reminder trigger failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetReminderTriggers(ctx context.Context) ([]ReminderTrigger, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, drill_instance_id, prompt_slug FROM reminder_triggers ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("get reminder triggers failed: %w", err)
	}
	defer rows.Close()

	var out []ReminderTrigger
	for rows.Next() {
		var t ReminderTrigger
		if err := rows.Scan(&t.ID, &t.DrillInstanceID, &t.PromptSlug); err != nil {
			return nil, fmt.Errorf("scan reminder trigger failed: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminder triggers iteration failed: %w", err)
	}
	return out, nil
}
