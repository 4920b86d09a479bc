// Package busweb exposes a read-only WebSocket tail of the bus, so an
// operator can observe every envelope as it is published without
// participating in the bus itself.
package busweb

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wasmind-run/fabric/internal/bus"
	"github.com/wasmind-run/fabric/internal/fabscope"
)

const (
	// writeWait is the time allowed to write a single frame to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufferSize is the size of each tail client's outbound buffer.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP connections into bus-tail WebSocket clients,
// subscribing each one to the given Bus for as long as the connection
// stays open.
type Handler struct {
	bus *bus.Bus
}

// NewHandler returns a Handler that tails b.
func NewHandler(b *bus.Bus) *Handler {
	return &Handler{bus: b}
}

// ServeHTTP implements http.Handler, upgrading the request to a WebSocket
// and streaming envelopes to it until the connection closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := h.bus.Subscribe(fabscope.Scope(""), "busweb-tail:"+r.RemoteAddr)
	go h.writePump(conn, sub)
	go readDiscard(conn, sub)
}

// writePump relays envelopes from the subscription to the WebSocket
// connection, sending a periodic ping to detect dead peers.
func (h *Handler) writePump(conn *websocket.Conn, sub *bus.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Unsubscribe()
		conn.Close()
	}()

	for {
		select {
		case e, ok := <-sub.Envelopes():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(e)
			if err != nil {
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readDiscard drains and discards anything the peer sends; the tail is
// read-only but a read pump is still required to observe the peer's close
// frame and keep pong handling alive.
func readDiscard(conn *websocket.Conn, sub *bus.Subscription) {
	defer sub.Unsubscribe()

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
}
