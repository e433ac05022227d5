// Package store: InitiationRepo holds short-lived drill-initiation records.
package store

import (
	"context"
	"time"
)

// InitiationRepo deduplicates StartDrill publishes. Overlapping initiation
// scans may pick the same user; a record with a short TTL suppresses the
// second publish without blocking a legitimate re-initiation later.
type InitiationRepo interface {
	// WasRecentlyInitiated reports whether an unexpired initiation record
	// exists for the phone number and drill slug.
	WasRecentlyInitiated(ctx context.Context, phoneNumber, drillSlug string) (bool, error)

	// RecordInitiation writes (or refreshes) the initiation record with the
	// given TTL.
	RecordInitiation(ctx context.Context, phoneNumber, drillSlug string, ttl time.Duration) error
}
