package notify

import (
	"strings"
	"testing"
)

func TestHandoffSubject(t *testing.T) {
	if got := HandoffSubject("Acme"); !strings.Contains(got, "Acme") {
		t.Errorf("subject missing business name: %q", got)
	}
	if got := HandoffSubject(""); got == "" {
		t.Error("empty business name should still produce a subject")
	}
}

func TestHandoffBody(t *testing.T) {
	body := HandoffBody("jane@example.com", "room-1")
	if !strings.Contains(body, "jane@example.com") || !strings.Contains(body, "room-1") {
		t.Errorf("body missing details: %q", body)
	}
	anon := HandoffBody("", "room-2")
	if !strings.Contains(anon, "A visitor") {
		t.Errorf("anonymous body should name a visitor: %q", anon)
	}
}

func TestNewSMTPSenderValidation(t *testing.T) {
	if _, err := NewSMTPSender(nil, "", 0, "u", "p", ""); err == nil {
		t.Fatal("expected error for missing host")
	}
	sender, err := NewSMTPSender(nil, "smtp.example.com", 0, "ops@example.com", "secret", "")
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	if sender.port != 587 {
		t.Errorf("default port = %d, want 587", sender.port)
	}
	if sender.from != "ops@example.com" {
		t.Errorf("from should default to username, got %q", sender.from)
	}
}

func TestNewMailgunSenderValidation(t *testing.T) {
	if _, err := NewMailgunSender(nil, "", "key", "us"); err == nil {
		t.Fatal("expected error for missing domain")
	}
	if _, err := NewMailgunSender(nil, "mg.example.com", "", "us"); err == nil {
		t.Fatal("expected error for missing api key")
	}
	sender, err := NewMailgunSender(nil, "mg.example.com", "key", "eu")
	if err != nil {
		t.Fatalf("NewMailgunSender: %v", err)
	}
	if sender.from != "noreply@mg.example.com" {
		t.Errorf("from = %q", sender.from)
	}
}
