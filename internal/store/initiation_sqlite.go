package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Compile-time check that SQLiteStore implements InitiationRepo.
var _ InitiationRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) WasRecentlyInitiated(ctx context.Context, phoneNumber, drillSlug string) (bool, error) {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM drill_initiations WHERE phone_number = ? AND drill_slug = ?`,
		phoneNumber, drillSlug,
	).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("initiation lookup failed: %w", err)
	}
	return expiresAt.After(time.Now().UTC()), nil
}

func (s *SQLiteStore) RecordInitiation(ctx context.Context, phoneNumber, drillSlug string, ttl time.Duration) error {
	expiresAt := time.Now().UTC().Add(ttl)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drill_initiations (phone_number, drill_slug, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (phone_number, drill_slug) DO UPDATE SET expires_at = excluded.expires_at`,
		phoneNumber, drillSlug, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("record initiation failed: %w", err)
	}
	return nil
}
