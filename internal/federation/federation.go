// Package federation implements the Federation Poller: for
// each configured peer, concurrently pulls /api/status and merges the
// result into the local Session Registry as read-only remote sessions.
package federation

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/overcode/overcode/internal/registry"
	"github.com/overcode/overcode/internal/types"
)

// DefaultPollInterval mirrors the Monitor Loop's default tick.
const DefaultPollInterval = 5 * time.Second

// statusEnvelope is the wire shape of a peer's /api/status response.
type statusEnvelope struct {
	OK    bool              `json:"ok"`
	Error string            `json:"error,omitempty"`
	Data  types.MonitorState `json:"data"`
}

// Poller polls every configured peer once per interval and merges
// reachable results into the registry.
type Poller struct {
	Registry *registry.Registry
	Peers    []types.PeerConfig
	Client   *http.Client
	Interval time.Duration

	mu     sync.Mutex
	states map[string]types.PeerState
}

// New constructs a Poller with an HTTP client configured the way the
// teacher's own cross-instance client is: bounded timeout, TLS 1.2
// floor, idle-connection reuse across polls.
func New(reg *registry.Registry, peers []types.PeerConfig) *Poller {
	return &Poller{
		Registry: reg,
		Peers:    peers,
		Interval: DefaultPollInterval,
		Client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		states: make(map[string]types.PeerState),
	}
}

// Run blocks, polling every Interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fans out one GET /api/status per peer concurrently.
// Unreachable peers record reachable=false without clearing their
// prior merged snapshot.
func (p *Poller) PollOnce(ctx context.Context) {
	if len(p.Peers) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range p.Peers {
		peer := peer
		g.Go(func() error {
			p.pollPeer(gctx, peer)
			return nil
		})
	}
	_ = g.Wait() // pollPeer never returns an error; failures are recorded per-peer
}

func (p *Poller) pollPeer(ctx context.Context, peer types.PeerConfig) {
	sessions, err := p.fetchStatus(ctx, peer)
	now := time.Now()

	if err != nil {
		p.recordState(types.PeerState{
			Name:         peer.Name,
			Reachable:    false,
			LastError:    err.Error(),
			LastPolledAt: now,
		})
		log.Printf("[FEDERATION] peer %s unreachable: %v", peer.Name, err)
		return
	}

	if err := p.Registry.MergeRemote(peer.Name, sessions); err != nil {
		p.recordState(types.PeerState{
			Name:         peer.Name,
			Reachable:    false,
			LastError:    err.Error(),
			LastPolledAt: now,
		})
		return
	}

	p.recordState(types.PeerState{
		Name:         peer.Name,
		Reachable:    true,
		LastPolledAt: now,
	})
}

func (p *Poller) fetchStatus(ctx context.Context, peer types.PeerConfig) ([]*types.AgentSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer.URL+"/api/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if peer.APIKey != "" {
		req.Header.Set("X-API-Key", peer.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("peer returned %d: %s", resp.StatusCode, string(body))
	}

	var envelope statusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("peer reported error: %s", envelope.Error)
	}

	sessions := make([]*types.AgentSession, 0, len(envelope.Data.Sessions))
	for i := range envelope.Data.Sessions {
		s := envelope.Data.Sessions[i].AgentSession
		sessions = append(sessions, &s)
	}
	return sessions, nil
}

func (p *Poller) recordState(state types.PeerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[state.Name] = state
}

// States returns a snapshot of every peer's last-known reachability.
func (p *Poller) States() map[string]types.PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]types.PeerState, len(p.states))
	for k, v := range p.states {
		out[k] = v
	}
	return out
}
