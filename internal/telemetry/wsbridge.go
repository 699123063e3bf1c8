package telemetry

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader mirrors the teacher's web hub: permissive origin check, since the
// telemetry bridge is meant for a trusted local dashboard, not a public API.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSBridge serves telemetry events to websocket clients, draining a
// ChannelSink subscription per connection.
type WSBridge struct {
	sink *ChannelSink
}

// NewWSBridge creates a bridge that fans ChannelSink events out over
// websocket connections.
func NewWSBridge(sink *ChannelSink) *WSBridge {
	return &WSBridge{sink: sink}
}

// ServeHTTP upgrades the request and streams telemetry events as JSON frames
// until the client disconnects.
func (b *WSBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Telemetry] websocket upgrade failed: %v", err)
		return
	}

	events, unsubscribe := b.sink.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() { close(done) })
	}

	// Reader goroutine: discards client input but detects disconnect via
	// read errors, same pattern as the teacher's Client.readPump.
	go func() {
		defer closeConn()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
