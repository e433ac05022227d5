package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/dialog"
)

// Compile-time check that SQLiteStore implements InstanceRepo.
var _ InstanceRepo = (*SQLiteStore)(nil)

// Per-row updates admit seq equality: events later in a batch carry the same
// seq as earlier ones, and redelivering a whole batch reapplies the same
// values. Only batches older than the row's stored seq are rejected.
func (s *SQLiteStore) UpdateInstances(ctx context.Context, userID uuid.UUID, batch dialog.EventBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin instances transaction failed: %w", err)
	}
	defer tx.Rollback()

	for _, e := range batch.Events {
		switch e.Type {
		case dialog.EventDrillStarted:
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO drill_instances
				 (drill_instance_id, user_id, seq, phone_number, drill_slug, current_prompt_slug, current_prompt_start_time, is_valid)
				 VALUES (?, ?, ?, ?, ?, ?, ?, 1) ON CONFLICT (drill_instance_id) DO NOTHING`,
				e.DrillInstanceID, userID, batch.Seq, batch.PhoneNumber, e.Drill.Slug, e.Prompt.Slug, e.CreatedTime,
			); err != nil {
				return fmt.Errorf("insert drill instance failed: %w", err)
			}

		case dialog.EventAdvancedToNextPrompt:
			if _, err := tx.ExecContext(ctx,
				`UPDATE drill_instances
				 SET seq = ?, current_prompt_slug = ?, current_prompt_start_time = ?, current_prompt_last_response_time = NULL
				 WHERE drill_instance_id = ? AND CAST(seq AS INTEGER) <= CAST(? AS INTEGER)`,
				batch.Seq, e.Prompt.Slug, e.CreatedTime, e.DrillInstanceID, batch.Seq,
			); err != nil {
				return fmt.Errorf("advance drill instance failed: %w", err)
			}

		case dialog.EventCompletedPrompt, dialog.EventFailedPrompt:
			if _, err := tx.ExecContext(ctx,
				`UPDATE drill_instances SET seq = ?, current_prompt_last_response_time = ?
				 WHERE drill_instance_id = ? AND CAST(seq AS INTEGER) <= CAST(? AS INTEGER)`,
				batch.Seq, e.CreatedTime, e.DrillInstanceID, batch.Seq,
			); err != nil {
				return fmt.Errorf("record prompt response failed: %w", err)
			}

		case dialog.EventDrillCompleted:
			if _, err := tx.ExecContext(ctx,
				`UPDATE drill_instances
				 SET seq = ?, completion_time = ?, current_prompt_slug = NULL, current_prompt_start_time = NULL, current_prompt_last_response_time = NULL
				 WHERE drill_instance_id = ? AND CAST(seq AS INTEGER) <= CAST(? AS INTEGER)`,
				batch.Seq, e.CreatedTime, e.DrillInstanceID, batch.Seq,
			); err != nil {
				return fmt.Errorf("complete drill instance failed: %w", err)
			}

		case dialog.EventUserValidated:
			// Re-registration invalidates every prior run.
			if _, err := tx.ExecContext(ctx,
				`UPDATE drill_instances SET is_valid = 0 WHERE user_id = ?`, userID,
			); err != nil {
				return fmt.Errorf("invalidate drill instances failed: %w", err)
			}

		case dialog.EventOptedOut:
			if _, err := tx.ExecContext(ctx,
				`UPDATE drill_instances SET is_valid = 0 WHERE user_id = ? AND completion_time IS NULL`, userID,
			); err != nil {
				return fmt.Errorf("invalidate incomplete drill instances failed: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit instances transaction failed: %w", err)
	}
	slog.Debug("SQLiteStore.UpdateInstances", "phone_number", batch.PhoneNumber, "seq", batch.Seq, "events", len(batch.Events))
	return nil
}

func (s *SQLiteStore) GetDrillInstance(ctx context.Context, drillInstanceID uuid.UUID) (*DrillInstance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT drill_instance_id, user_id, seq, phone_number, drill_slug,
		        current_prompt_slug, current_prompt_start_time, current_prompt_last_response_time, completion_time, is_valid
		 FROM drill_instances WHERE drill_instance_id = ?`, drillInstanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("get drill instance failed: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get drill instance failed: %w", err)
		}
		return nil, nil
	}
	in, err := scanDrillInstance(rows)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *SQLiteStore) IncompleteDrills(ctx context.Context, floorMinutes, ceilMinutes int) ([]DrillInstance, error) {
	now := time.Now().UTC()
	floor := now.Add(-time.Duration(floorMinutes) * time.Minute)
	ceil := now.Add(-time.Duration(ceilMinutes) * time.Minute)
	rows, err := s.db.QueryContext(ctx,
		`SELECT drill_instance_id, user_id, seq, phone_number, drill_slug,
		        current_prompt_slug, current_prompt_start_time, current_prompt_last_response_time, completion_time, is_valid
		 FROM drill_instances
		 WHERE is_valid = 1 AND completion_time IS NULL
		   AND current_prompt_start_time IS NOT NULL
		   AND current_prompt_start_time <= ? AND current_prompt_start_time >= ?`,
		floor, ceil,
	)
	if err != nil {
		return nil, fmt.Errorf("incomplete drills query failed: %w", err)
	}
	defer rows.Close()

	var out []DrillInstance
	for rows.Next() {
		in, err := scanDrillInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("incomplete drills iteration failed: %w", err)
	}
	return out, nil
}
