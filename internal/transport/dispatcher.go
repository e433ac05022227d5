package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/relieftext/drilldial/internal/dialog"
	"github.com/relieftext/drilldial/internal/drills"
	"github.com/relieftext/drilldial/internal/outbound"
	"github.com/relieftext/drilldial/internal/registration"
	"github.com/relieftext/drilldial/internal/store"
)

// ErrUnknownCommandType reports an envelope whose command_type is not part of
// the command taxonomy. These are protocol violations, not transient failures.
var ErrUnknownCommandType = errors.New("unknown command type")

// DispatcherStore is the storage surface the dispatcher needs: the dialog
// aggregate plus both projections.
type DispatcherStore interface {
	dialog.Repository
	store.ProgressRepo
	store.InstanceRepo
}

// Dispatcher decodes queued command envelopes, runs them through the dialog
// engine, and fans the persisted batch out to the projections and the SMS
// distributor. Every step downstream of the engine is idempotent, so a crash
// mid-fan-out is repaired by redelivering the command.
type Dispatcher struct {
	store       DispatcherStore
	catalog     *drills.Catalog
	localizer   *drills.Localizer
	validator   registration.Validator
	distributor *outbound.Distributor
}

// NewDispatcher wires the dispatcher. The distributor may be nil, which
// processes commands without sending SMS (useful in tests and backfills).
func NewDispatcher(st DispatcherStore, catalog *drills.Catalog, localizer *drills.Localizer, validator registration.Validator, distributor *outbound.Distributor) *Dispatcher {
	return &Dispatcher{
		store:       st,
		catalog:     catalog,
		localizer:   localizer,
		validator:   validator,
		distributor: distributor,
	}
}

// Dispatch processes one queued command end to end.
func (d *Dispatcher) Dispatch(ctx context.Context, qc store.QueuedCommand) error {
	cmd, err := d.decodeCommand(qc)
	if err != nil {
		return err
	}

	batch, err := dialog.ProcessCommand(ctx, cmd, qc.Seq, d.store)
	if err != nil {
		return fmt.Errorf("process %s command failed: %w", qc.CommandType, err)
	}
	if batch == nil {
		// The engine already persisted this sequence. A delivery that failed
		// downstream of persistence still needs its batch fanned out, so the
		// batch is re-derived from the event log and the fan-out repeated.
		// The projections gate on seq themselves; the distributor may resend,
		// which at-least-once delivery already allows.
		batch, err = d.store.FetchEventBatch(ctx, qc.PhoneNumber, qc.Seq)
		if err != nil {
			return fmt.Errorf("refetch event batch failed: %w", err)
		}
		slog.Info("Dispatcher.Dispatch: repeating fan-out for persisted batch",
			"phone_number", qc.PhoneNumber, "seq", qc.Seq, "events", len(batch.Events))
	}

	userID, err := d.store.UpdateProgress(ctx, *batch)
	if err != nil {
		return fmt.Errorf("update progress projection failed: %w", err)
	}
	if err := d.store.UpdateInstances(ctx, userID, *batch); err != nil {
		return fmt.Errorf("update instance projection failed: %w", err)
	}

	if d.distributor != nil {
		if err := d.distributor.Distribute(ctx, *batch); err != nil {
			return fmt.Errorf("distribute batch failed: %w", err)
		}
	}
	slog.Debug("Dispatcher.Dispatch completed", "command_type", qc.CommandType, "phone_number", qc.PhoneNumber, "seq", qc.Seq)
	return nil
}

func (d *Dispatcher) decodeCommand(qc store.QueuedCommand) (dialog.Command, error) {
	switch qc.CommandType {
	case CommandInboundSMS:
		var p InboundSMSPayload
		if err := json.Unmarshal([]byte(qc.PayloadJSON), &p); err != nil {
			return nil, fmt.Errorf("decode inbound sms payload failed: %w", err)
		}
		return dialog.NewProcessSMSMessage(p.PhoneNumber, p.Content, d.validator, d.localizer), nil

	case CommandStartDrill:
		var p StartDrillPayload
		if err := json.Unmarshal([]byte(qc.PayloadJSON), &p); err != nil {
			return nil, fmt.Errorf("decode start drill payload failed: %w", err)
		}
		drill, err := d.catalog.Get(p.DrillSlug)
		if err != nil {
			return nil, fmt.Errorf("start drill command: %w", err)
		}
		return dialog.StartDrill{Phone: p.PhoneNumber, Drill: drill}, nil

	case CommandTriggerReminder:
		var p TriggerReminderPayload
		if err := json.Unmarshal([]byte(qc.PayloadJSON), &p); err != nil {
			return nil, fmt.Errorf("decode trigger reminder payload failed: %w", err)
		}
		return dialog.TriggerReminder{
			Phone:           p.PhoneNumber,
			DrillInstanceID: p.DrillInstanceID,
			PromptSlug:      p.PromptSlug,
		}, nil

	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommandType, qc.CommandType)
	}
}
