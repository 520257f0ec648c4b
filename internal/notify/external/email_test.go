package external

import (
	"strings"
	"testing"
	"time"

	"github.com/overcode/overcode/internal/events"
)

func TestEmailNotifier_Name(t *testing.T) {
	if n := NewEmailNotifier(EmailConfig{}); n.Name() != "email" {
		t.Errorf("expected name 'email', got %q", n.Name())
	}
}

func TestEmailNotifier_Send_MissingConfigFails(t *testing.T) {
	if err := (&EmailNotifier{}).Send(events.Event{}); err == nil {
		t.Fatal("expected an error with no smtp host configured")
	}

	n := NewEmailNotifier(EmailConfig{SMTPHost: "localhost", SMTPPort: 2525})
	if err := n.Send(events.Event{}); err == nil {
		t.Fatal("expected an error with no from address configured")
	}

	n = NewEmailNotifier(EmailConfig{SMTPHost: "localhost", SMTPPort: 2525, From: "overcode@example.com"})
	if err := n.Send(events.Event{}); err == nil {
		t.Fatal("expected an error with no recipients configured")
	}
}

func TestEmailNotifier_BuildSubjectAndBody(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{
		SMTPHost: "localhost", SMTPPort: 2525,
		From: "overcode@example.com", To: []string{"ops@example.com"},
	})
	event := events.Event{
		ID: "e1", Type: events.TypeBudgetExceeded, Source: "monitor",
		Priority: events.PriorityCritical, CreatedAt: time.Now(),
		Payload: map[string]interface{}{"agent": "x"},
	}

	subject := n.buildSubject(event)
	if !strings.Contains(subject, "[CRITICAL]") || !strings.Contains(subject, "budget_exceeded") {
		t.Errorf("unexpected subject: %q", subject)
	}

	body := n.buildBody(event)
	if !strings.Contains(body, "Event ID: e1") || !strings.Contains(body, "agent: x") {
		t.Errorf("unexpected body: %q", body)
	}
}
