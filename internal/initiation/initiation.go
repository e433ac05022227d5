// Package initiation starts the next drill for users who have gone quiet. A
// periodic scan asks the progress projection which users are inactive with
// catalog drills still ahead of them and publishes a StartDrill for each,
// deduplicated by a short-lived initiation record per (phone, drill slug).
package initiation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relieftext/drilldial/internal/store"
	"github.com/relieftext/drilldial/internal/transport"
)

// DefaultInactivityMinutes is how long a user must be quiet before the next
// drill is offered.
const DefaultInactivityMinutes = 720

// DefaultInitiationTTL guards against overlapping scans double-starting the
// same drill. It only needs to outlive one scan interval.
const DefaultInitiationTTL = 2 * time.Hour

// Store is the storage surface the initiator needs.
type Store interface {
	store.ProgressRepo
	store.InitiationRepo
}

// Initiator runs the next-drill scan.
type Initiator struct {
	store             Store
	publisher         transport.Publisher
	inactivityMinutes int
	ttl               time.Duration
}

// NewInitiator creates an initiator. Non-positive settings fall back to the
// defaults.
func NewInitiator(st Store, publisher transport.Publisher, inactivityMinutes int, ttl time.Duration) *Initiator {
	if inactivityMinutes <= 0 {
		inactivityMinutes = DefaultInactivityMinutes
	}
	if ttl <= 0 {
		ttl = DefaultInitiationTTL
	}
	return &Initiator{store: st, publisher: publisher, inactivityMinutes: inactivityMinutes, ttl: ttl}
}

// TriggerNextDrills runs one scan. The initiation record is written after a
// successful publish; a crash between the two can double-publish, which the
// engine's sequence gate turns into one drill start.
func (i *Initiator) TriggerNextDrills(ctx context.Context) error {
	users, err := i.store.UsersWhoNeedDrills(ctx, i.inactivityMinutes)
	if err != nil {
		return fmt.Errorf("initiation scan failed: %w", err)
	}

	started := 0
	for _, p := range users {
		slug := p.NextDrillSlugToTrigger()
		if slug == "" {
			continue
		}
		recent, err := i.store.WasRecentlyInitiated(ctx, p.PhoneNumber, slug)
		if err != nil {
			return fmt.Errorf("initiation dedup lookup failed: %w", err)
		}
		if recent {
			continue
		}
		if err := i.publisher.PublishStartDrill(ctx, p.PhoneNumber, slug); err != nil {
			slog.Error("Initiator.TriggerNextDrills: publish failed",
				"error", err, "phone_number", p.PhoneNumber, "drill_slug", slug)
			continue
		}
		if err := i.store.RecordInitiation(ctx, p.PhoneNumber, slug, i.ttl); err != nil {
			return fmt.Errorf("record initiation failed: %w", err)
		}
		started++
	}

	if started > 0 {
		slog.Info("Initiator.TriggerNextDrills", "candidates", len(users), "started", started)
	}
	return nil
}
