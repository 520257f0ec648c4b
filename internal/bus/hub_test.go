package bus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/overcode/overcode/internal/types"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	go hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r); err != nil {
			t.Errorf("ServeWS: %v", err)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClientCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", want, hub.ClientCount())
}

func TestHub_BroadcastMonitorStateReachesClient(t *testing.T) {
	hub, srv := newTestServer(t)
	conn := dial(t, srv)
	waitForClientCount(t, hub, 1)

	hub.BroadcastMonitorState(types.MonitorState{LoopCounter: 42})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), `"monitor_state"`) || !strings.Contains(string(data), `"loop_counter":42`) {
		t.Fatalf("unexpected broadcast payload: %s", data)
	}
}

func TestHub_BroadcastAttentionReachesClient(t *testing.T) {
	hub, srv := newTestServer(t)
	conn := dial(t, srv)
	waitForClientCount(t, hub, 1)

	hub.BroadcastAttention("agent-1 needs a decision")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), `"attention"`) || !strings.Contains(string(data), "agent-1 needs a decision") {
		t.Fatalf("unexpected broadcast payload: %s", data)
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub, srv := newTestServer(t)
	conn := dial(t, srv)
	waitForClientCount(t, hub, 1)

	conn.Close()
	waitForClientCount(t, hub, 0)
}

func TestHub_MultipleClientsAllReceiveBroadcast(t *testing.T) {
	hub, srv := newTestServer(t)
	connA := dial(t, srv)
	connB := dial(t, srv)
	waitForClientCount(t, hub, 2)

	hub.BroadcastAttention("fan-out check")

	for _, conn := range []*websocket.Conn{connA, connB} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if !strings.Contains(string(data), "fan-out check") {
			t.Fatalf("unexpected payload: %s", data)
		}
	}
}
