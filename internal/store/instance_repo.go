// Package store: InstanceRepo is the per-drill-instance status projection.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/dialog"
)

// DrillInstance is the live status of one run of a drill, keyed by the
// instance id and independent of catalog order. Seq records the newest batch
// applied to the row; older batches are rejected.
type DrillInstance struct {
	DrillInstanceID               uuid.UUID  `json:"drill_instance_id"`
	UserID                        uuid.UUID  `json:"user_id"`
	Seq                           string     `json:"seq"`
	PhoneNumber                   string     `json:"phone_number"`
	DrillSlug                     string     `json:"drill_slug"`
	CurrentPromptSlug             string     `json:"current_prompt_slug,omitempty"`
	CurrentPromptStartTime        *time.Time `json:"current_prompt_start_time,omitempty"`
	CurrentPromptLastResponseTime *time.Time `json:"current_prompt_last_response_time,omitempty"`
	CompletionTime                *time.Time `json:"completion_time,omitempty"`
	IsValid                       bool       `json:"is_valid"`
}

// InstanceRepo maintains the drill-instance projection.
type InstanceRepo interface {
	// UpdateInstances applies a dialog event batch. Redelivered batches and
	// batches older than a row's stored seq are skipped per instance.
	UpdateInstances(ctx context.Context, userID uuid.UUID, batch dialog.EventBatch) error

	// GetDrillInstance returns the row for an instance id, or nil.
	GetDrillInstance(ctx context.Context, drillInstanceID uuid.UUID) (*DrillInstance, error)

	// IncompleteDrills returns valid, uncompleted instances whose current
	// prompt started between ceil and floor minutes ago. The ceiling keeps
	// long-abandoned conversations out of the reminder scan.
	IncompleteDrills(ctx context.Context, floorMinutes, ceilMinutes int) ([]DrillInstance, error)
}
