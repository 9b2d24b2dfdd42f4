package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/normanking/gravitas/internal/bus"
)

const (
	// writeWait is the timeout for writing to a WebSocket.
	writeWait = 10 * time.Second

	// pongWait is the timeout for pong responses.
	pongWait = 60 * time.Second

	// pingPeriod is how often to send ping frames.
	pingPeriod = (pongWait * 9) / 10

	// maxStreamMessageSize bounds incoming client frames; the stream is
	// one-directional so clients send nothing but control frames.
	maxStreamMessageSize = 512

	// streamSendBuffer is the per-client outbound queue. A client that
	// falls this far behind is disconnected.
	streamSendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream upgrades the connection and forwards every bus event to the
// client as JSON text frames. Query parameters: replay=false to skip the
// history replay, count=N to bound it, request_id=X to filter to one request.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream disabled")
		return
	}

	replay := r.URL.Query().Get("replay") != "false"
	count := 100
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}
	// The replay is queued before the write pump starts, so it must fit
	// the send buffer.
	if count > streamSendBuffer {
		count = streamSendBuffer
	}
	requestFilter := r.URL.Query().Get("request_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed: %v", err)
		return
	}

	send := make(chan []byte, streamSendBuffer)

	if replay {
		for _, event := range s.recentEvents(requestFilter, count) {
			if data, err := json.Marshal(event); err == nil {
				send <- data
			}
		}
	}

	subID := s.events.Subscribe("", func(event bus.Event) {
		if requestFilter != "" && event.RequestID != requestFilter {
			return
		}
		data, err := json.Marshal(event)
		if err != nil {
			return
		}
		select {
		case send <- data:
		default:
			// Client too slow, drop the event
		}
	})

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, send, done)

	s.events.Unsubscribe(subID)
	conn.Close()
}

// recentEvents returns the replayable tail of the bus history.
func (s *Server) recentEvents(requestFilter string, count int) []bus.Event {
	var history []bus.Event
	if requestFilter != "" {
		history = s.events.HistoryFor(requestFilter)
	} else {
		history = s.events.History()
	}
	if len(history) > count {
		history = history[len(history)-count:]
	}
	return history
}

// readPump drains client frames so pong handlers run, and signals when the
// client goes away.
func (s *Server) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(maxStreamMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read error: %v", err)
			}
			return
		}
	}
}

// writePump sends queued events and keepalive pings until the client
// disconnects.
func (s *Server) writePump(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
