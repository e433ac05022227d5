package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Compile-time check that PostgresStore implements CommandQueue.
var _ CommandQueue = (*PostgresStore)(nil)

func (s *PostgresStore) EnqueueCommand(ctx context.Context, phoneNumber, commandType, payloadJSON string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin enqueue transaction failed: %w", err)
	}
	defer tx.Rollback()

	var nextSeq int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO phone_sequences (phone_number, next_seq) VALUES ($1, 1)
		 ON CONFLICT (phone_number) DO UPDATE SET next_seq = phone_sequences.next_seq + 1
		 RETURNING next_seq`,
		phoneNumber,
	).Scan(&nextSeq); err != nil {
		return "", fmt.Errorf("advance phone sequence failed: %w", err)
	}
	seq := strconv.FormatInt(nextSeq, 10)

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO command_outbox (phone_number, seq, command_type, payload_json, status, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'queued', 0, $5, $6)`,
		phoneNumber, seq, commandType, payloadJSON, now, now,
	); err != nil {
		return "", fmt.Errorf("enqueue command failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit enqueue transaction failed: %w", err)
	}
	slog.Debug("PostgresStore.EnqueueCommand", "phone_number", phoneNumber, "seq", seq, "command_type", commandType)
	return seq, nil
}

func (s *PostgresStore) ClaimQueuedCommands(ctx context.Context, limit int) ([]QueuedCommand, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction failed: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, phone_number, seq, command_type, payload_json, status, attempts, last_error, created_at
		 FROM command_outbox WHERE status = 'queued' ORDER BY id ASC LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit,
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
	rows.Close()

	now := time.Now().UTC()
	for i := range commands {
		if _, err := tx.ExecContext(ctx,
			`UPDATE command_outbox SET status = 'processing', locked_at = $1, updated_at = $2 WHERE id = $3`,
			now, now, commands[i].ID,
		); err != nil {
			return nil, fmt.Errorf("mark command processing failed: %w", err)
		}
		commands[i].Status = CommandStatusProcessing
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim transaction failed: %w", err)
	}
	return commands, nil
}

func (s *PostgresStore) MarkCommandDone(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE command_outbox SET status = 'done', locked_at = NULL, updated_at = $1 WHERE id = $2`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("mark command done failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailCommand(ctx context.Context, id int64, errMsg string) error {
	now := time.Now().UTC()

	var attempts int
	if err := s.db.QueryRowContext(ctx, `SELECT attempts FROM command_outbox WHERE id = $1`, id).Scan(&attempts); err != nil {
		return fmt.Errorf("fail command lookup failed: %w", err)
	}

	attempts++
	var err error
	if attempts >= DefaultCommandMaxAttempts {
		_, err = s.db.ExecContext(ctx,
			`UPDATE command_outbox SET status = 'failed', attempts = $1, last_error = $2, locked_at = NULL, updated_at = $3 WHERE id = $4`,
			attempts, errMsg, now, id,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE command_outbox SET status = 'queued', attempts = $1, last_error = $2, locked_at = NULL, updated_at = $3 WHERE id = $4`,
			attempts, errMsg, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("fail command update failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequeueStaleCommands(ctx context.Context, staleBefore time.Time) (int, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE command_outbox SET status = 'queued', locked_at = NULL, updated_at = $1
		 WHERE status = 'processing' AND locked_at < $2`,
		now, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale commands failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleCommands", "requeued", n)
	}
	return int(n), nil
}
