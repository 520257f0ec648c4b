package external

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/overcode/overcode/internal/events"
)

func TestSlackNotifier_Name(t *testing.T) {
	if n := NewSlackNotifier(SlackConfig{}); n.Name() != "slack" {
		t.Errorf("expected name 'slack', got %q", n.Name())
	}
}

func TestSlackNotifier_ShouldNotify_PriorityFilter(t *testing.T) {
	event := events.Event{Type: events.TypeAttention, Priority: events.PriorityNormal}

	n := NewSlackNotifier(SlackConfig{MinPriority: events.PriorityHigh})
	if n.ShouldNotify(event) {
		t.Error("expected normal-priority event to be filtered out by a high-priority minimum")
	}

	event.Priority = events.PriorityCritical
	if !n.ShouldNotify(event) {
		t.Error("expected critical-priority event to pass a high-priority minimum")
	}
}

func TestSlackNotifier_ShouldNotify_TypeFilter(t *testing.T) {
	n := NewSlackNotifier(SlackConfig{EventTypes: []events.Type{events.TypeBudgetExceeded}})

	if n.ShouldNotify(events.Event{Type: events.TypeAttention}) {
		t.Error("expected attention event to be filtered out by a budget_exceeded-only filter")
	}
	if !n.ShouldNotify(events.Event{Type: events.TypeBudgetExceeded}) {
		t.Error("expected budget_exceeded event to pass its own filter")
	}
}

func TestSlackNotifier_Send_PostsToWebhook(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL, Channel: "#overcode"})
	err := n.Send(events.Event{
		ID:        "evt-1",
		Type:      events.TypeAttention,
		Source:    "monitor",
		Priority:  events.PriorityNormal,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(gotBody) == 0 {
		t.Fatal("expected a non-empty request body to reach the webhook")
	}
}

func TestSlackNotifier_Send_MissingWebhookURL(t *testing.T) {
	n := NewSlackNotifier(SlackConfig{})
	if err := n.Send(events.Event{}); err == nil {
		t.Fatal("expected an error when no webhook url is configured")
	}
}
