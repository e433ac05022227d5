// Package store: CommandQueue is the durable inbound command queue.
package store

import (
	"context"
	"time"
)

// CommandStatus is the lifecycle state of a queued command.
type CommandStatus string

const (
	CommandStatusQueued     CommandStatus = "queued"
	CommandStatusProcessing CommandStatus = "processing"
	CommandStatusDone       CommandStatus = "done"
	CommandStatusFailed     CommandStatus = "failed"
)

// DefaultCommandMaxAttempts bounds redelivery of a failing command.
const DefaultCommandMaxAttempts = 5

// QueuedCommand is one durable inbound command. Seq is assigned at enqueue
// time from a per-phone-number monotonic counter; it is the sequence number
// the dialog engine's ordering gate runs on.
type QueuedCommand struct {
	ID          int64         `json:"id"`
	PhoneNumber string        `json:"phone_number"`
	Seq         string        `json:"seq"`
	CommandType string        `json:"command_type"`
	PayloadJSON string        `json:"payload_json"`
	Status      CommandStatus `json:"status"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// CommandQueue persists inbound commands and assigns per-phone sequence
// numbers. Delivery is at-least-once: a crash between claim and completion
// redelivers the command, and the engine's seq gate makes that safe.
type CommandQueue interface {
	// EnqueueCommand assigns the phone number's next sequence number and
	// inserts the command in one transaction. Returns the assigned seq.
	EnqueueCommand(ctx context.Context, phoneNumber, commandType, payloadJSON string) (string, error)

	// ClaimQueuedCommands marks up to limit queued commands as processing
	// and returns them in enqueue order.
	ClaimQueuedCommands(ctx context.Context, limit int) ([]QueuedCommand, error)

	// MarkCommandDone finishes a claimed command.
	MarkCommandDone(ctx context.Context, id int64) error

	// FailCommand records a processing failure. The command is requeued
	// until it exhausts DefaultCommandMaxAttempts, then marked failed.
	FailCommand(ctx context.Context, id int64, errMsg string) error

	// RequeueStaleCommands resets commands stuck in processing since before
	// staleBefore back to queued (crash recovery).
	RequeueStaleCommands(ctx context.Context, staleBefore time.Time) (int, error)
}
