package twiliosms

import (
	"context"
	"testing"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("missing credentials should error")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Error("missing from number should error")
	}
}

func TestNewClientEnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550001111")

	c, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.fromNumber != "+15550001111" {
		t.Errorf("fromNumber = %s", c.fromNumber)
	}

	// explicit options win over the environment
	c, err = NewClient(WithFromNumber("+15550002222"))
	if err != nil {
		t.Fatalf("NewClient with option: %v", err)
	}
	if c.fromNumber != "+15550002222" {
		t.Errorf("fromNumber = %s", c.fromNumber)
	}
}

func TestMockClientRecordsMessages(t *testing.T) {
	m := NewMockClient()
	if err := m.SendMessage(context.Background(), "+15551230001", "hello", "https://cdn.example.com/a.png"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(m.SentMessages) != 1 {
		t.Fatalf("recorded %d messages, want 1", len(m.SentMessages))
	}
	got := m.SentMessages[0]
	if got.To != "+15551230001" || got.Body != "hello" || got.MediaURL != "https://cdn.example.com/a.png" {
		t.Errorf("recorded = %+v", got)
	}
}
