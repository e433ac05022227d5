package reminders

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/relieftext/drilldial/internal/dialog"
	"github.com/relieftext/drilldial/internal/store"
)

type fakeStore struct {
	incomplete []store.DrillInstance
	scanErr    error
	existing   map[string]bool // "instanceID/prompt" pairs already triggered
	saved      []store.ReminderTrigger
}

func (f *fakeStore) UpdateInstances(context.Context, uuid.UUID, dialog.EventBatch) error {
	return errors.New("not used")
}

func (f *fakeStore) GetDrillInstance(context.Context, uuid.UUID) (*store.DrillInstance, error) {
	return nil, errors.New("not used")
}

func (f *fakeStore) IncompleteDrills(_ context.Context, _, _ int) ([]store.DrillInstance, error) {
	return f.incomplete, f.scanErr
}

func (f *fakeStore) ReminderTriggerExists(_ context.Context, id uuid.UUID, promptSlug string) (bool, error) {
	return f.existing[id.String()+"/"+promptSlug], nil
}

func (f *fakeStore) SaveReminderTriggers(_ context.Context, triggers []store.ReminderTrigger) error {
	f.saved = append(f.saved, triggers...)
	return nil
}

func (f *fakeStore) GetReminderTriggers(context.Context) ([]store.ReminderTrigger, error) {
	return f.saved, nil
}

type fakePublisher struct {
	reminders  []string // "phone/instanceID/prompt"
	publishErr error
}

func (f *fakePublisher) PublishInboundSMS(context.Context, string, string) error {
	return errors.New("not used")
}

func (f *fakePublisher) PublishStartDrill(context.Context, string, string) error {
	return errors.New("not used")
}

func (f *fakePublisher) PublishTriggerReminder(_ context.Context, phoneNumber string, id uuid.UUID, promptSlug string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.reminders = append(f.reminders, phoneNumber+"/"+id.String()+"/"+promptSlug)
	return nil
}

func stalledInstance(phone, promptSlug string) store.DrillInstance {
	return store.DrillInstance{
		DrillInstanceID:   uuid.New(),
		UserID:            uuid.New(),
		Seq:               "1",
		PhoneNumber:       phone,
		DrillSlug:         "basics",
		CurrentPromptSlug: promptSlug,
		IsValid:           true,
	}
}

func TestTriggerRemindersPublishesAndRecords(t *testing.T) {
	fresh := stalledInstance("+15551230001", "q1")
	triggered := stalledInstance("+15551230002", "q2")
	betweenPrompts := stalledInstance("+15551230003", "")

	st := &fakeStore{
		incomplete: []store.DrillInstance{fresh, triggered, betweenPrompts},
		existing:   map[string]bool{triggered.DrillInstanceID.String() + "/q2": true},
	}
	pub := &fakePublisher{}

	if err := NewTriggerer(st, pub, 240, 1440).TriggerReminders(context.Background()); err != nil {
		t.Fatalf("TriggerReminders: %v", err)
	}

	want := "+15551230001/" + fresh.DrillInstanceID.String() + "/q1"
	if len(pub.reminders) != 1 || pub.reminders[0] != want {
		t.Errorf("published = %v, want [%s]", pub.reminders, want)
	}
	if len(st.saved) != 1 || st.saved[0].DrillInstanceID != fresh.DrillInstanceID || st.saved[0].PromptSlug != "q1" {
		t.Errorf("saved = %+v", st.saved)
	}
}

func TestTriggerRemindersPublishFailureSkipsRecord(t *testing.T) {
	st := &fakeStore{incomplete: []store.DrillInstance{stalledInstance("+15551230001", "q1")}}
	pub := &fakePublisher{publishErr: errors.New("queue down")}

	// a failed publish is logged and retried on the next scan, not recorded
	if err := NewTriggerer(st, pub, 240, 1440).TriggerReminders(context.Background()); err != nil {
		t.Fatalf("TriggerReminders: %v", err)
	}
	if len(st.saved) != 0 {
		t.Errorf("saved = %+v, want none", st.saved)
	}
}

func TestTriggerRemindersScanErrorPropagates(t *testing.T) {
	scanErr := errors.New("db gone")
	st := &fakeStore{scanErr: scanErr}
	err := NewTriggerer(st, &fakePublisher{}, 240, 1440).TriggerReminders(context.Background())
	if !errors.Is(err, scanErr) {
		t.Errorf("err = %v, want wrapped scan error", err)
	}
}

func TestNewTriggererDefaults(t *testing.T) {
	tr := NewTriggerer(&fakeStore{}, &fakePublisher{}, 0, -5)
	if tr.floorMinutes != DefaultFloorMinutes || tr.ceilMinutes != DefaultCeilMinutes {
		t.Errorf("windows = %d/%d, want %d/%d", tr.floorMinutes, tr.ceilMinutes, DefaultFloorMinutes, DefaultCeilMinutes)
	}
}
