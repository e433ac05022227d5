// Package store: ProgressRepo is the per-user drill progress projection.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/dialog"
)

// User is the projection's per-user rollup row.
type User struct {
	UserID             uuid.UUID      `json:"user_id"`
	Seq                string         `json:"seq"`
	AccountInfo        map[string]any `json:"account_info"`
	LastInteractedTime *time.Time     `json:"last_interacted_time,omitempty"`
}

// DrillStatus is one user's standing for one catalog drill. A user has
// exactly one row per catalog slug, in catalog order.
type DrillStatus struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	DrillInstanceID *uuid.UUID `json:"drill_instance_id,omitempty"`
	DrillSlug       string     `json:"drill_slug"`
	PlaceInSequence int        `json:"place_in_sequence"`
	StartedTime     *time.Time `json:"started_time,omitempty"`
	CompletedTime   *time.Time `json:"completed_time,omitempty"`
}

// DrillProgress summarizes where a user stands in the fixed catalog order.
type DrillProgress struct {
	PhoneNumber              string `json:"phone_number"`
	FirstIncompleteDrillSlug string `json:"first_incomplete_drill_slug,omitempty"`
	FirstUnstartedDrillSlug  string `json:"first_unstarted_drill_slug,omitempty"`
}

// NextDrillSlugToTrigger is the slug the user should get next: the first
// drill never started, or failing that the first not yet completed. Empty
// when the user has completed everything.
func (p DrillProgress) NextDrillSlugToTrigger() string {
	if p.FirstUnstartedDrillSlug != "" {
		return p.FirstUnstartedDrillSlug
	}
	return p.FirstIncompleteDrillSlug
}

// ProgressRepo maintains the per-user progress projection. UpdateProgress
// must tolerate redelivery of the same batch: batches whose seq is not newer
// than the user's stored seq are skipped.
type ProgressRepo interface {
	// UpdateProgress applies a dialog event batch to the projection,
	// resolving (or creating) the internal user id for the batch's phone
	// number. Returns that user id even when the batch is skipped as stale.
	UpdateProgress(ctx context.Context, batch dialog.EventBatch) (uuid.UUID, error)

	// GetUser returns the rollup row, or nil if the user is unknown.
	GetUser(ctx context.Context, userID uuid.UUID) (*User, error)

	// UserIDForPhone resolves the internal user id for a phone number.
	// Returns false if the phone number has never been seen.
	UserIDForPhone(ctx context.Context, phoneNumber string) (uuid.UUID, bool, error)

	// GetDrillStatuses returns the user's drill statuses in catalog order.
	GetDrillStatuses(ctx context.Context, userID uuid.UUID) ([]DrillStatus, error)

	// ProgressForUser computes the catalog-ordered progress summary.
	ProgressForUser(ctx context.Context, userID uuid.UUID) (*DrillProgress, error)

	// UsersWhoNeedDrills returns progress for users with an incomplete drill
	// whose last interaction is older than the inactivity window.
	UsersWhoNeedDrills(ctx context.Context, inactivityMinutes int) ([]DrillProgress, error)
}
