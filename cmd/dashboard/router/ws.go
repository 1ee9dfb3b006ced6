package router

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleWebSocket streams the session's view model: once on connect and once
// per state change. A connected socket keeps its session alive.
func (h *handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sid, v, cookie, err := h.resolve(r)
	if err != nil {
		h.logger.Error("failed to open session", "error", err)
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}

	var header http.Header
	if cookie != nil {
		header = http.Header{"Set-Cookie": {cookie.String()}}
	}
	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := v.Subscribe()
	defer unsubscribe()

	// The reader only consumes control frames; it ends when the peer goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			h.sessions.Touch(sid)
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v.Model(r.Context()))
	}
	if err := send(); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case _, ok := <-updates:
			if !ok {
				h.closeSocket(conn, "session closed")
				return
			}
			h.sessions.Touch(sid)
			if err := send(); err != nil {
				h.logger.Debug("websocket write failed", "session", sid, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *handler) closeSocket(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
