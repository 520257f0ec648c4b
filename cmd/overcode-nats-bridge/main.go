// Command overcode-nats-bridge is a standalone websocket front for a
// daemon's embedded message broker: it subscribes to monitor-state
// snapshots and attention bells over NATS and re-serves them over its
// own websocket endpoint, for dashboard consumers that would rather
// not authenticate against the full Control API.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/overcode/overcode/internal/bus"
)

func main() {
	natsURL := flag.String("nats-url", "nats://127.0.0.1:4222", "URL of the daemon's embedded message broker")
	addr := flag.String("addr", ":7733", "address to serve the bridged websocket on")
	flag.Parse()

	client, err := bus.NewClient(*natsURL)
	if err != nil {
		log.Fatalf("[NATS-BRIDGE] failed to connect to %s: %v", *natsURL, err)
	}
	defer client.Close()

	hub := bus.NewHub()
	go hub.Run()

	if _, err := client.SubscribeMonitorState(hub.BroadcastMonitorState); err != nil {
		log.Fatalf("[NATS-BRIDGE] failed to subscribe to monitor state: %v", err)
	}
	if _, err := client.SubscribeAttention(hub.BroadcastAttention); err != nil {
		log.Fatalf("[NATS-BRIDGE] failed to subscribe to attention bells: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r); err != nil {
			log.Printf("[NATS-BRIDGE] websocket upgrade failed: %v", err)
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := "connected"
		if !client.IsConnected() {
			status = "disconnected"
		}
		fmt.Fprintf(w, `{"nats":%q,"clients":%d}`, status, hub.ClientCount())
	})

	log.Printf("[NATS-BRIDGE] bridging %s -> ws://%s/ws", *natsURL, *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatalf("[NATS-BRIDGE] server error: %v", err)
	}
}
