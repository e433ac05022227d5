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

// Compile-time check that PostgresStore implements ProgressRepo.
var _ ProgressRepo = (*PostgresStore)(nil)

func (s *PostgresStore) UpdateProgress(ctx context.Context, batch dialog.EventBatch) (uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin progress transaction failed: %w", err)
	}
	defer tx.Rollback()

	userID, err := s.ensureUserTx(ctx, tx, batch.PhoneNumber)
	if err != nil {
		return uuid.Nil, err
	}

	// FOR UPDATE serializes concurrent batches for the same user.
	var storedSeq string
	if err := tx.QueryRowContext(ctx, `SELECT seq FROM users WHERE user_id = $1 FOR UPDATE`, userID).Scan(&storedSeq); err != nil {
		return uuid.Nil, fmt.Errorf("read user seq failed: %w", err)
	}
	if !seqLess(storedSeq, batch.Seq) {
		slog.Debug("PostgresStore.UpdateProgress: skipping stale batch",
			"phone_number", batch.PhoneNumber, "batch_seq", batch.Seq, "user_seq", storedSeq)
		if err := tx.Commit(); err != nil {
			return uuid.Nil, fmt.Errorf("commit progress transaction failed: %w", err)
		}
		return userID, nil
	}

	for _, e := range batch.Events {
		switch e.Type {
		case dialog.EventUserValidated:
			accountJSON, err := json.Marshal(e.Validation.AccountInfo)
			if err != nil {
				return uuid.Nil, fmt.Errorf("encode account info failed: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET account_info = $1, last_interacted_time = $2 WHERE user_id = $3`,
				string(accountJSON), e.CreatedTime, userID,
			); err != nil {
				return uuid.Nil, fmt.Errorf("update user account info failed: %w", err)
			}
			// Re-registration restarts the catalog from the top.
			if _, err := tx.ExecContext(ctx,
				`UPDATE drill_statuses SET drill_instance_id = NULL, started_time = NULL, completed_time = NULL WHERE user_id = $1`,
				userID,
			); err != nil {
				return uuid.Nil, fmt.Errorf("reset drill statuses failed: %w", err)
			}

		case dialog.EventDrillStarted:
			if _, err := tx.ExecContext(ctx,
				`UPDATE drill_statuses SET drill_instance_id = $1, started_time = $2, completed_time = NULL
				 WHERE user_id = $3 AND drill_slug = $4`,
				e.DrillInstanceID, e.CreatedTime, userID, e.Drill.Slug,
			); err != nil {
				return uuid.Nil, fmt.Errorf("mark drill started failed: %w", err)
			}

		case dialog.EventDrillCompleted:
			if _, err := tx.ExecContext(ctx,
				`UPDATE drill_statuses SET completed_time = $1
				 WHERE user_id = $2 AND drill_instance_id = $3`,
				e.CreatedTime, userID, e.DrillInstanceID,
			); err != nil {
				return uuid.Nil, fmt.Errorf("mark drill completed failed: %w", err)
			}

		case dialog.EventCompletedPrompt, dialog.EventFailedPrompt,
			dialog.EventUserValidationFailed, dialog.EventOptedOut, dialog.EventNextDrillRequested:
			// Inbound user activity. Reminders and drill starts are
			// system-initiated and do not count.
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET last_interacted_time = $1 WHERE user_id = $2`,
				e.CreatedTime, userID,
			); err != nil {
				return uuid.Nil, fmt.Errorf("update last interacted failed: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET seq = $1 WHERE user_id = $2`, batch.Seq, userID); err != nil {
		return uuid.Nil, fmt.Errorf("update user seq failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit progress transaction failed: %w", err)
	}
	slog.Debug("PostgresStore.UpdateProgress", "phone_number", batch.PhoneNumber, "seq", batch.Seq, "user_id", userID)
	return userID, nil
}

// ensureUserTx resolves the internal user id for a phone number, creating the
// user row and its catalog-ordered drill statuses on first contact.
func (s *PostgresStore) ensureUserTx(ctx context.Context, tx *sql.Tx, phoneNumber string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := tx.QueryRowContext(ctx, `SELECT user_id FROM phone_numbers WHERE phone_number = $1`, phoneNumber).Scan(&userID)
	if err == nil {
		return userID, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("resolve user failed: %w", err)
	}

	userID = uuid.New()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (user_id, seq, account_info) VALUES ($1, '0', '{}')`, userID,
	); err != nil {
		return uuid.Nil, fmt.Errorf("create user failed: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO phone_numbers (id, phone_number, user_id, is_primary) VALUES ($1, $2, $3, TRUE)`,
		uuid.New(), phoneNumber, userID,
	); err != nil {
		return uuid.Nil, fmt.Errorf("create phone number failed: %w", err)
	}
	for i, slug := range s.drillSlugs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO drill_statuses (id, user_id, drill_slug, place_in_sequence) VALUES ($1, $2, $3, $4)`,
			uuid.New(), userID, slug, i,
		); err != nil {
			return uuid.Nil, fmt.Errorf("seed drill status failed: %w", err)
		}
	}
	slog.Debug("PostgresStore.ensureUserTx: created user", "phone_number", phoneNumber, "user_id", userID, "drills", len(s.drillSlugs))
	return userID, nil
}

func (s *PostgresStore) UserIDForPhone(ctx context.Context, phoneNumber string) (uuid.UUID, bool, error) {
	var userID uuid.UUID
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM phone_numbers WHERE phone_number = $1`, phoneNumber).Scan(&userID)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("resolve user failed: %w", err)
	}
	return userID, true, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	var u User
	var accountJSON string
	var lastInteracted sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, seq, account_info, last_interacted_time FROM users WHERE user_id = $1`, userID,
	).Scan(&u.UserID, &u.Seq, &accountJSON, &lastInteracted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	if err := json.Unmarshal([]byte(accountJSON), &u.AccountInfo); err != nil {
		return nil, fmt.Errorf("decode account info failed: %w", err)
	}
	u.LastInteractedTime = timePtr(lastInteracted)
	return &u, nil
}

func (s *PostgresStore) GetDrillStatuses(ctx context.Context, userID uuid.UUID) ([]DrillStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, drill_instance_id, drill_slug, place_in_sequence, started_time, completed_time
		 FROM drill_statuses WHERE user_id = $1 ORDER BY place_in_sequence ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get drill statuses failed: %w", err)
	}
	defer rows.Close()

	var statuses []DrillStatus
	for rows.Next() {
		st, err := scanDrillStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("drill statuses iteration failed: %w", err)
	}
	return statuses, nil
}

func (s *PostgresStore) ProgressForUser(ctx context.Context, userID uuid.UUID) (*DrillProgress, error) {
	var phoneNumber string
	err := s.db.QueryRowContext(ctx,
		`SELECT phone_number FROM phone_numbers WHERE user_id = $1 AND is_primary = TRUE`, userID,
	).Scan(&phoneNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve phone number failed: %w", err)
	}
	statuses, err := s.GetDrillStatuses(ctx, userID)
	if err != nil {
		return nil, err
	}
	return progressFromStatuses(phoneNumber, statuses), nil
}

func (s *PostgresStore) UsersWhoNeedDrills(ctx context.Context, inactivityMinutes int) ([]DrillProgress, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(inactivityMinutes) * time.Minute)
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.user_id FROM users u
		 WHERE u.last_interacted_time IS NULL OR u.last_interacted_time < $1`, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("users who need drills query failed: %w", err)
	}
	defer rows.Close()

	var userIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id failed: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users who need drills iteration failed: %w", err)
	}

	var out []DrillProgress
	for _, id := range userIDs {
		progress, err := s.ProgressForUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if progress != nil && progress.NextDrillSlugToTrigger() != "" {
			out = append(out, *progress)
		}
	}
	return out, nil
}
