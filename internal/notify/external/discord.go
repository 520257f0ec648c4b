package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/overcode/overcode/internal/events"
)

// DiscordConfig configures a DiscordNotifier.
type DiscordConfig struct {
	WebhookURL  string        `json:"webhook_url"`
	Username    string        `json:"username,omitempty"`
	AvatarURL   string        `json:"avatar_url,omitempty"`
	EventTypes  []events.Type `json:"event_types,omitempty"`
	MinPriority int           `json:"min_priority,omitempty"`
}

// DiscordNotifier posts attention events to a Discord webhook.
type DiscordNotifier struct {
	config DiscordConfig
	client *http.Client
}

// NewDiscordNotifier constructs a DiscordNotifier.
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{config: config, client: &http.Client{Timeout: 10 * time.Second}}
}

// Name identifies this channel to the Router.
func (d *DiscordNotifier) Name() string { return "discord" }

// ShouldNotify applies the priority and event-type filters.
func (d *DiscordNotifier) ShouldNotify(event events.Event) bool {
	return passesFilter(event, d.config.MinPriority, d.config.EventTypes)
}

// Send posts event as a Discord embed.
func (d *DiscordNotifier) Send(event events.Event) error {
	if d.config.WebhookURL == "" {
		return fmt.Errorf("discord webhook url not configured")
	}

	color := 0x2ECC71
	switch event.Priority {
	case events.PriorityCritical:
		color = 0xE74C3C
	case events.PriorityHigh:
		color = 0xE67E22
	}

	fields := []map[string]interface{}{
		{"name": "Type", "value": string(event.Type), "inline": true},
		{"name": "Source", "value": event.Source, "inline": true},
		{"name": "Priority", "value": priorityString(event.Priority), "inline": true},
	}
	if event.Target != "" {
		fields = append(fields, map[string]interface{}{"name": "Target", "value": event.Target, "inline": true})
	}
	for k, v := range event.Payload {
		fields = append(fields, map[string]interface{}{"name": k, "value": fmt.Sprintf("%v", v), "inline": false})
	}

	embed := map[string]interface{}{
		"title":       fmt.Sprintf("%s event", event.Type),
		"description": fmt.Sprintf("Event ID: %s", event.ID),
		"color":       color,
		"timestamp":   event.CreatedAt.Format(time.RFC3339),
		"fields":      fields,
	}
	payload := map[string]interface{}{"embeds": []map[string]interface{}{embed}}
	if d.config.Username != "" {
		payload["username"] = d.config.Username
	}
	if d.config.AvatarURL != "" {
		payload["avatar_url"] = d.config.AvatarURL
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.config.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send discord notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}
