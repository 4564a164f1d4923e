package twiliowhatsapp

import (
	"context"
	"testing"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("NewClient without credentials must fail")
	}
}

func TestNewClientRequiresFromNumber(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	_, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token"))
	if err == nil {
		t.Fatal("NewClient without from number must fail")
	}
}

func TestNewClientWithOptions(t *testing.T) {
	c, err := NewClient(
		WithAccountSID("AC123"),
		WithAuthToken("token"),
		WithFromWhats("whatsapp:+5511999999999"),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.fromWhats != "whatsapp:+5511999999999" {
		t.Errorf("fromWhats = %q", c.fromWhats)
	}
}

func TestMockClientRecordsSends(t *testing.T) {
	m := NewMockClient()
	ctx := context.Background()

	if err := m.SendMessage(ctx, "+5511999990001", "oi"); err != nil {
		t.Fatal(err)
	}
	if err := m.SendTypingIndicator(ctx, "+5511999990001", true); err != nil {
		t.Fatal(err)
	}

	if len(m.SentMessages) != 1 || m.SentMessages[0].Body != "oi" {
		t.Errorf("SentMessages = %v", m.SentMessages)
	}
	if len(m.TypingEvents) != 1 || !m.TypingEvents[0].Typing {
		t.Errorf("TypingEvents = %v", m.TypingEvents)
	}
}

func TestMockClientFailNext(t *testing.T) {
	m := NewMockClient()
	m.FailNext = true

	if err := m.SendMessage(context.Background(), "+55", "x"); err == nil {
		t.Fatal("expected failure")
	}
	if err := m.SendMessage(context.Background(), "+55", "x"); err != nil {
		t.Fatalf("second send should succeed: %v", err)
	}
}
