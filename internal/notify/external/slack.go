// Package external holds the off-process notification channels
// (Slack, Discord, email) that notify.Router fans attention events out
// to.
package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/overcode/overcode/internal/events"
)

// SlackConfig configures a SlackNotifier.
type SlackConfig struct {
	WebhookURL  string       `json:"webhook_url"`
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	EventTypes  []events.Type `json:"event_types,omitempty"`
	MinPriority int          `json:"min_priority,omitempty"`
}

// SlackNotifier posts attention events to a Slack incoming webhook.
type SlackNotifier struct {
	config SlackConfig
	client *http.Client
}

// NewSlackNotifier constructs a SlackNotifier.
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{config: config, client: &http.Client{Timeout: 10 * time.Second}}
}

// Name identifies this channel to the Router.
func (s *SlackNotifier) Name() string { return "slack" }

// ShouldNotify applies the priority and event-type filters.
func (s *SlackNotifier) ShouldNotify(event events.Event) bool {
	return passesFilter(event, s.config.MinPriority, s.config.EventTypes)
}

// Send posts event as a Slack attachment.
func (s *SlackNotifier) Send(event events.Event) error {
	if s.config.WebhookURL == "" {
		return fmt.Errorf("slack webhook url not configured")
	}

	color := "good"
	switch event.Priority {
	case events.PriorityCritical:
		color = "danger"
	case events.PriorityHigh:
		color = "warning"
	}

	fields := []map[string]interface{}{
		{"title": "Type", "value": string(event.Type), "short": true},
		{"title": "Source", "value": event.Source, "short": true},
		{"title": "Priority", "value": priorityString(event.Priority), "short": true},
	}
	if event.Target != "" {
		fields = append(fields, map[string]interface{}{"title": "Target", "value": event.Target, "short": true})
	}
	for k, v := range event.Payload {
		fields = append(fields, map[string]interface{}{"title": k, "value": fmt.Sprintf("%v", v), "short": false})
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("Overcode event: %s", event.ID),
		"attachments": []map[string]interface{}{
			{"color": color, "title": fmt.Sprintf("%s event", event.Type), "fields": fields, "ts": event.CreatedAt.Unix()},
		},
	}
	if s.config.Channel != "" {
		payload["channel"] = s.config.Channel
	}
	if s.config.Username != "" {
		payload["username"] = s.config.Username
	}
	if s.config.IconEmoji != "" {
		payload["icon_emoji"] = s.config.IconEmoji
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	resp, err := s.client.Post(s.config.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func priorityString(p int) string {
	switch p {
	case events.PriorityCritical:
		return "Critical"
	case events.PriorityHigh:
		return "High"
	case events.PriorityNormal:
		return "Normal"
	case events.PriorityLow:
		return "Low"
	default:
		return fmt.Sprintf("Unknown (%d)", p)
	}
}

func passesFilter(event events.Event, minPriority int, types []events.Type) bool {
	if minPriority > 0 && event.Priority > minPriority {
		return false
	}
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == event.Type {
			return true
		}
	}
	return false
}
