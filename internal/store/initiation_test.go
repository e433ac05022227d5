package store

import (
	"context"
	"testing"
	"time"
)

func TestInitiationRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recent, err := s.WasRecentlyInitiated(ctx, testPhone, "basics")
	if err != nil {
		t.Fatalf("WasRecentlyInitiated: %v", err)
	}
	if recent {
		t.Error("unknown pair should not be recent")
	}

	if err := s.RecordInitiation(ctx, testPhone, "basics", time.Hour); err != nil {
		t.Fatalf("RecordInitiation: %v", err)
	}
	recent, err = s.WasRecentlyInitiated(ctx, testPhone, "basics")
	if err != nil {
		t.Fatalf("WasRecentlyInitiated: %v", err)
	}
	if !recent {
		t.Error("unexpired record should be recent")
	}
	if recent, _ := s.WasRecentlyInitiated(ctx, testPhone, "advanced"); recent {
		t.Error("a different drill should not be recent")
	}

	// refreshing the record with an already-expired TTL clears the dedup
	if err := s.RecordInitiation(ctx, testPhone, "basics", -time.Minute); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	recent, err = s.WasRecentlyInitiated(ctx, testPhone, "basics")
	if err != nil {
		t.Fatalf("WasRecentlyInitiated: %v", err)
	}
	if recent {
		t.Error("expired record should not be recent")
	}
}
