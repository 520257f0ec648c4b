package notify

import (
	"log"
	"sync"

	"github.com/overcode/overcode/internal/events"
)

// Channel is an external notification destination (Slack, Discord,
// email, ...).
type Channel interface {
	Name() string
	ShouldNotify(event events.Event) bool
	Send(event events.Event) error
}

// Router fans one event out to every registered external Channel
// concurrently, fire-and-forget.
type Router struct {
	mu       sync.RWMutex
	channels []Channel
}

// NewRouter constructs a Router over the given channels.
func NewRouter(channels []Channel) *Router {
	if channels == nil {
		channels = []Channel{}
	}
	return &Router{channels: channels}
}

// AddChannel registers a new external channel.
func (r *Router) AddChannel(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, ch)
}

// Route sends event to every channel that opts in, each in its own
// goroutine; failures are logged, not returned.
func (r *Router) Route(event events.Event) {
	r.mu.RLock()
	channels := make([]Channel, len(r.channels))
	copy(channels, r.channels)
	r.mu.RUnlock()

	for _, ch := range channels {
		go func(channel Channel) {
			if !channel.ShouldNotify(event) {
				return
			}
			if err := channel.Send(event); err != nil {
				log.Printf("[NOTIFY-ROUTER] channel %s failed for event %s: %v", channel.Name(), event.ID, err)
			}
		}(ch)
	}
}

// Channels lists the registered channel names.
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.channels))
	for i, ch := range r.channels {
		names[i] = ch.Name()
	}
	return names
}
