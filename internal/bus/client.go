package bus

import (
	"encoding/json"
	"fmt"
	"time"

	nc "github.com/nats-io/nats.go"

	"github.com/overcode/overcode/internal/types"
)

// Client wraps a NATS connection with the publish/subscribe helpers
// the Monitor Loop and dashboard bridge actually need.
type Client struct {
	conn *nc.Conn
}

// NewClient connects to url with indefinite reconnect, matching the
// teacher's nats.Client dial options.
func NewClient(url string) (*Client, error) {
	opts := []nc.Option{
		nc.ReconnectWait(2 * time.Second),
		nc.MaxReconnects(-1),
	}
	conn, err := nc.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: failed to connect: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// PublishMonitorState publishes a tick snapshot.
func (c *Client) PublishMonitorState(state types.MonitorState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("bus: failed to marshal monitor state: %w", err)
	}
	if err := c.conn.Publish(SubjectMonitorState, data); err != nil {
		return fmt.Errorf("bus: failed to publish monitor state: %w", err)
	}
	return nil
}

// PublishAttention publishes a coalesced attention bell message.
func (c *Client) PublishAttention(message string) error {
	if err := c.conn.Publish(SubjectAttention, []byte(message)); err != nil {
		return fmt.Errorf("bus: failed to publish attention bell: %w", err)
	}
	return nil
}

// SubscribeMonitorState invokes handler for every published snapshot.
func (c *Client) SubscribeMonitorState(handler func(types.MonitorState)) (*nc.Subscription, error) {
	sub, err := c.conn.Subscribe(SubjectMonitorState, func(msg *nc.Msg) {
		var state types.MonitorState
		if err := json.Unmarshal(msg.Data, &state); err != nil {
			return
		}
		handler(state)
	})
	if err != nil {
		return nil, fmt.Errorf("bus: failed to subscribe to monitor state: %w", err)
	}
	return sub, nil
}

// SubscribeAttention invokes handler for every attention bell message.
func (c *Client) SubscribeAttention(handler func(string)) (*nc.Subscription, error) {
	sub, err := c.conn.Subscribe(SubjectAttention, func(msg *nc.Msg) {
		handler(string(msg.Data))
	})
	if err != nil {
		return nil, fmt.Errorf("bus: failed to subscribe to attention: %w", err)
	}
	return sub, nil
}

// IsConnected reports whether the underlying connection is live.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
