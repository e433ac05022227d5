package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/store"
)

// Publisher enqueues commands for the dialog engine. The reminder and
// initiation loops publish through it rather than calling the engine directly,
// so every command passes the same per-phone sequencing.
type Publisher interface {
	PublishInboundSMS(ctx context.Context, phoneNumber, content string) error
	PublishStartDrill(ctx context.Context, phoneNumber, drillSlug string) error
	PublishTriggerReminder(ctx context.Context, phoneNumber string, drillInstanceID uuid.UUID, promptSlug string) error
}

// QueuePublisher publishes onto the store-backed command queue.
type QueuePublisher struct {
	queue store.CommandQueue
}

// Compile-time check that QueuePublisher implements Publisher.
var _ Publisher = (*QueuePublisher)(nil)

func NewQueuePublisher(queue store.CommandQueue) *QueuePublisher {
	return &QueuePublisher{queue: queue}
}

func (p *QueuePublisher) PublishInboundSMS(ctx context.Context, phoneNumber, content string) error {
	return p.publish(ctx, phoneNumber, CommandInboundSMS, InboundSMSPayload{PhoneNumber: phoneNumber, Content: content})
}

func (p *QueuePublisher) PublishStartDrill(ctx context.Context, phoneNumber, drillSlug string) error {
	return p.publish(ctx, phoneNumber, CommandStartDrill, StartDrillPayload{PhoneNumber: phoneNumber, DrillSlug: drillSlug})
}

func (p *QueuePublisher) PublishTriggerReminder(ctx context.Context, phoneNumber string, drillInstanceID uuid.UUID, promptSlug string) error {
	return p.publish(ctx, phoneNumber, CommandTriggerReminder, TriggerReminderPayload{
		PhoneNumber:     phoneNumber,
		DrillInstanceID: drillInstanceID,
		PromptSlug:      promptSlug,
	})
}

func (p *QueuePublisher) publish(ctx context.Context, phoneNumber, commandType string, payload any) error {
	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	seq, err := p.queue.EnqueueCommand(ctx, phoneNumber, commandType, payloadJSON)
	if err != nil {
		return fmt.Errorf("publish %s failed: %w", commandType, err)
	}
	slog.Debug("QueuePublisher.publish", "command_type", commandType, "phone_number", phoneNumber, "seq", seq)
	return nil
}
