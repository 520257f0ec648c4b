package external

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/overcode/overcode/internal/events"
)

// EmailConfig configures an EmailNotifier.
type EmailConfig struct {
	SMTPHost    string        `json:"smtp_host"`
	SMTPPort    int           `json:"smtp_port"`
	Username    string        `json:"username"`
	Password    string        `json:"password"`
	From        string        `json:"from"`
	To          []string      `json:"to"`
	EventTypes  []events.Type `json:"event_types,omitempty"`
	MinPriority int           `json:"min_priority,omitempty"`
}

// EmailNotifier sends attention events via SMTP.
type EmailNotifier struct {
	config EmailConfig
}

// NewEmailNotifier constructs an EmailNotifier.
func NewEmailNotifier(config EmailConfig) *EmailNotifier {
	return &EmailNotifier{config: config}
}

// Name identifies this channel to the Router.
func (e *EmailNotifier) Name() string { return "email" }

// ShouldNotify applies the priority and event-type filters.
func (e *EmailNotifier) ShouldNotify(event events.Event) bool {
	return passesFilter(event, e.config.MinPriority, e.config.EventTypes)
}

// Send emails event to every configured recipient.
func (e *EmailNotifier) Send(event events.Event) error {
	if e.config.SMTPHost == "" {
		return fmt.Errorf("smtp host not configured")
	}
	if e.config.From == "" {
		return fmt.Errorf("from address not configured")
	}
	if len(e.config.To) == 0 {
		return fmt.Errorf("no recipient addresses configured")
	}

	message := e.buildMessage(e.buildSubject(event), e.buildBody(event))

	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)
	var auth smtp.Auth
	if e.config.Username != "" && e.config.Password != "" {
		auth = smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, e.config.From, e.config.To, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (e *EmailNotifier) buildSubject(event events.Event) string {
	prefix := ""
	switch event.Priority {
	case events.PriorityCritical:
		prefix = "[CRITICAL] "
	case events.PriorityHigh:
		prefix = "[HIGH] "
	}
	return fmt.Sprintf("%sOvercode %s event - %s", prefix, event.Type, event.ID)
}

func (e *EmailNotifier) buildBody(event events.Event) string {
	var body strings.Builder
	body.WriteString("Overcode event notification\n")
	body.WriteString("============================\n\n")
	fmt.Fprintf(&body, "Event ID: %s\n", event.ID)
	fmt.Fprintf(&body, "Type: %s\n", event.Type)
	fmt.Fprintf(&body, "Source: %s\n", event.Source)
	if event.Target != "" {
		fmt.Fprintf(&body, "Target: %s\n", event.Target)
	}
	fmt.Fprintf(&body, "Priority: %s\n", priorityString(event.Priority))
	fmt.Fprintf(&body, "Timestamp: %s\n", event.CreatedAt.Format(time.RFC3339))

	if len(event.Payload) > 0 {
		body.WriteString("\nPayload:\n--------\n")
		for k, v := range event.Payload {
			fmt.Fprintf(&body, "%s: %v\n", k, v)
		}
	}
	body.WriteString("\n--\nThis is an automated notification from Overcode\n")
	return body.String()
}

func (e *EmailNotifier) buildMessage(subject, body string) string {
	var message strings.Builder
	fmt.Fprintf(&message, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&message, "To: %s\r\n", strings.Join(e.config.To, ", "))
	fmt.Fprintf(&message, "Subject: %s\r\n", subject)
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	message.WriteString(body)
	return message.String()
}
