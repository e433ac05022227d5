package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/dialog"
)

// Compile-time check that SQLiteStore implements dialog.Repository.
var _ dialog.Repository = (*SQLiteStore)(nil)

func (s *SQLiteStore) FetchDialogState(ctx context.Context, phoneNumber string) (*dialog.DialogState, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM dialog_states WHERE phone_number = ?`, phoneNumber,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return dialog.NewDialogState(phoneNumber), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch dialog state failed: %w", err)
	}
	var state dialog.DialogState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("decode dialog state failed: %w", err)
	}
	return &state, nil
}

func (s *SQLiteStore) PersistDialogState(ctx context.Context, batch dialog.EventBatch, state *dialog.DialogState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode dialog state failed: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist transaction failed: %w", err)
	}
	defer tx.Rollback()

	for _, e := range batch.Events {
		eventJSON, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode %s event failed: %w", e.Type, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO dialog_events (event_id, phone_number, batch_id, seq, event_type, created_time, event_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (event_id) DO NOTHING`,
			e.EventID, batch.PhoneNumber, batch.BatchID, batch.Seq, string(e.Type), e.CreatedTime, string(eventJSON),
		)
		if err != nil {
			return fmt.Errorf("insert dialog event failed: %w", err)
		}
	}

	// The sequence check is repeated here at commit time: a concurrent
	// delivery that persisted first leaves the stored seq >= batch.Seq and
	// both statements touch zero rows.
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE dialog_states SET seq = ?, state_json = ?, updated_at = ?
		 WHERE phone_number = ? AND CAST(seq AS INTEGER) < CAST(? AS INTEGER)`,
		batch.Seq, string(stateJSON), now, batch.PhoneNumber, batch.Seq,
	)
	if err != nil {
		return fmt.Errorf("update dialog state failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO dialog_states (phone_number, seq, state_json, updated_at)
			 VALUES (?, ?, ?, ?) ON CONFLICT (phone_number) DO NOTHING`,
			batch.PhoneNumber, batch.Seq, string(stateJSON), now,
		)
		if err != nil {
			return fmt.Errorf("insert dialog state failed: %w", err)
		}
		n, _ = res.RowsAffected()
		if n == 0 {
			return dialog.ErrStaleSequence
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist transaction failed: %w", err)
	}
	slog.Debug("SQLiteStore.PersistDialogState", "phone_number", batch.PhoneNumber, "seq", batch.Seq, "events", len(batch.Events))
	return nil
}

func (s *SQLiteStore) FetchEventBatch(ctx context.Context, phoneNumber, seq string) (*dialog.EventBatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, created_time, event_json FROM dialog_events
		 WHERE phone_number = ? AND seq = ? ORDER BY created_time, rowid`,
		phoneNumber, seq,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch event batch failed: %w", err)
	}
	defer rows.Close()

	batch := &dialog.EventBatch{PhoneNumber: phoneNumber, Seq: seq}
	for rows.Next() {
		var (
			batchID   uuid.UUID
			created   time.Time
			eventJSON string
		)
		if err := rows.Scan(&batchID, &created, &eventJSON); err != nil {
			return nil, fmt.Errorf("scan dialog event failed: %w", err)
		}
		var e dialog.Event
		if err := json.Unmarshal([]byte(eventJSON), &e); err != nil {
			return nil, fmt.Errorf("decode dialog event failed: %w", err)
		}
		if len(batch.Events) == 0 {
			batch.BatchID = batchID
			batch.CreatedTime = created
		}
		batch.Events = append(batch.Events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch event batch failed: %w", err)
	}
	return batch, nil
}
