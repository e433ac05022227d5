package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

// ErrStaleSequence is returned by Repository implementations when a
// commit-time sequence check fails: another delivery won the race for this
// aggregate. The caller should let the transport redeliver the command.
var ErrStaleSequence = errors.New("dialog state sequence is stale")

// Repository is the persistence boundary for the dialog aggregate.
type Repository interface {
	// FetchDialogState returns the state for a phone number, synthesizing a
	// zero state with seq "0" if none has been persisted yet.
	FetchDialogState(ctx context.Context, phoneNumber string) (*DialogState, error)

	// PersistDialogState writes the event batch and the new state as one
	// atomic unit, re-verifying at commit time that the stored sequence is
	// still older than batch.Seq. Returns ErrStaleSequence on a lost race.
	PersistDialogState(ctx context.Context, batch EventBatch, state *DialogState) error

	// FetchEventBatch reconstructs a persisted batch from the event log by
	// phone number and sequence number. A sequence that produced no events
	// yields an empty batch, never nil. The transport uses this to repeat
	// the downstream fan-out when a command is redelivered after the batch
	// was already persisted.
	FetchEventBatch(ctx context.Context, phoneNumber, seq string) (*EventBatch, error)
}

// ProcessCommand runs one command through the dialog engine: fetch state,
// drop the command if its sequence number was already applied, execute it,
// apply the resulting events, and persist the batch and new state atomically.
//
// The returned batch is nil when the command was dropped as a
// duplicate/out-of-order delivery. Any error before persistence leaves the
// stored state untouched, so the transport can safely redeliver.
func ProcessCommand(ctx context.Context, cmd Command, seq string, repo Repository) (*EventBatch, error) {
	state, err := repo.FetchDialogState(ctx, cmd.PhoneNumber())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dialog state: %w", err)
	}

	commandSeq, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed command sequence number %q: %w", seq, err)
	}
	stateSeq, err := strconv.ParseInt(state.Seq, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed stored sequence number %q: %w", state.Seq, err)
	}
	if commandSeq <= stateSeq {
		slog.Info("Dropping already processed command",
			"phone_number", cmd.PhoneNumber(), "command_seq", seq, "state_seq", state.Seq)
		return nil, nil
	}

	events, err := cmd.Execute(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("command execution failed: %w", err)
	}
	for _, event := range events {
		if err := event.Apply(state); err != nil {
			return nil, fmt.Errorf("failed to apply %s event: %w", event.Type, err)
		}
	}
	state.Seq = seq

	batch := NewEventBatch(cmd.PhoneNumber(), seq, events)
	if err := repo.PersistDialogState(ctx, batch, state); err != nil {
		return nil, fmt.Errorf("failed to persist dialog state: %w", err)
	}
	slog.Debug("ProcessCommand persisted batch",
		"phone_number", cmd.PhoneNumber(), "seq", seq, "events", len(events), "batch_id", batch.BatchID)
	return &batch, nil
}
