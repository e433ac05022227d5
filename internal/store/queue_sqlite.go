package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Compile-time check that SQLiteStore implements CommandQueue.
var _ CommandQueue = (*SQLiteStore)(nil)

func (s *SQLiteStore) EnqueueCommand(ctx context.Context, phoneNumber, commandType, payloadJSON string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin enqueue transaction failed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO phone_sequences (phone_number, next_seq) VALUES (?, 1)
		 ON CONFLICT (phone_number) DO UPDATE SET next_seq = next_seq + 1`,
		phoneNumber,
	); err != nil {
		return "", fmt.Errorf("advance phone sequence failed: %w", err)
	}
	var nextSeq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT next_seq FROM phone_sequences WHERE phone_number = ?`, phoneNumber,
	).Scan(&nextSeq); err != nil {
		return "", fmt.Errorf("read phone sequence failed: %w", err)
	}
	seq := strconv.FormatInt(nextSeq, 10)

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO command_outbox (phone_number, seq, command_type, payload_json, status, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?)`,
		phoneNumber, seq, commandType, payloadJSON, now, now,
	); err != nil {
		return "", fmt.Errorf("enqueue command failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit enqueue transaction failed: %w", err)
	}
	slog.Debug("SQLiteStore.EnqueueCommand", "phone_number", phoneNumber, "seq", seq, "command_type", commandType)
	return seq, nil
}

func (s *SQLiteStore) ClaimQueuedCommands(ctx context.Context, limit int) ([]QueuedCommand, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone_number, seq, command_type, payload_json, status, attempts, last_error, created_at
		 FROM command_outbox WHERE status = 'queued' ORDER BY id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim commands query failed: %w", err)
	}
	defer rows.Close()

	var commands []QueuedCommand
	for rows.Next() {
		c, err := scanQueuedCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim commands iteration failed: %w", err)
	}

	now := time.Now().UTC()
	for i := range commands {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE command_outbox SET status = 'processing', locked_at = ?, updated_at = ? WHERE id = ?`,
			now, now, commands[i].ID,
		); err != nil {
			return nil, fmt.Errorf("mark command processing failed: %w", err)
		}
		commands[i].Status = CommandStatusProcessing
	}
	return commands, nil
}

func (s *SQLiteStore) MarkCommandDone(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE command_outbox SET status = 'done', locked_at = NULL, updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("mark command done failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailCommand(ctx context.Context, id int64, errMsg string) error {
	now := time.Now().UTC()

	var attempts int
	if err := s.db.QueryRowContext(ctx, `SELECT attempts FROM command_outbox WHERE id = ?`, id).Scan(&attempts); err != nil {
		return fmt.Errorf("fail command lookup failed: %w", err)
	}

	attempts++
	var err error
	if attempts >= DefaultCommandMaxAttempts {
		_, err = s.db.ExecContext(ctx,
			`UPDATE command_outbox SET status = 'failed', attempts = ?, last_error = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now, id,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE command_outbox SET status = 'queued', attempts = ?, last_error = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("fail command update failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleCommands(ctx context.Context, staleBefore time.Time) (int, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE command_outbox SET status = 'queued', locked_at = NULL, updated_at = ?
		 WHERE status = 'processing' AND locked_at < ?`,
		now, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale commands failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleCommands", "requeued", n)
	}
	return int(n), nil
}
