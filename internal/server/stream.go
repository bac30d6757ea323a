package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/devicewatch/internal/inventory"
)

const (
	// EventName is the name of status change events on both push streams.
	EventName = "deviceStatusUpdate"

	// streamWriteTimeout bounds a single write to a push client so a stalled
	// client cannot pin its handler past shutdown.
	streamWriteTimeout = 5 * time.Second

	// heartbeatInterval is how often idle streams are pinged.
	heartbeatInterval = 25 * time.Second

	// wsPongWait is how long a WebSocket client may stay silent, pongs included.
	wsPongWait = 2 * heartbeatInterval
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// token auth replaces origin checks; browsers on any origin may connect
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsMessage is the envelope written to WebSocket clients.
type wsMessage struct {
	Event string                      `json:"event"`
	Data  inventory.StatusChangeEvent `json:"data"`
}

// handleSSE streams status changes via Server-Sent Events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	write := func(format string, args ...any) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, format, args...); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.events.Subscribe()
	defer s.events.Unsubscribe(ch)

	// comment line commits the headers so clients see the stream open
	if err := write(": connected\n\n"); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := write("event: %s\ndata: %s\n\n", EventName, data); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := write(": ping\n\n"); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown via BaseContext
			return
		}
	}
}

// handleWebSocket streams status changes to a WebSocket client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("remote_addr", r.RemoteAddr)
	if c := claimsFromContext(r.Context()); c != nil {
		logger = logger.With("user", c.Username)
	}
	logger.Debug("websocket client connected")
	defer logger.Debug("websocket client disconnected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go readUntilClosed(conn, cancel)

	ch := s.events.Subscribe()
	defer s.events.Unsubscribe(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(wsMessage{Event: EventName, Data: ev}); err != nil {
				return
			}

		case <-heartbeat.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}

		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// readUntilClosed drains client frames so control messages are processed,
// and calls cancel once the connection fails or the client goes quiet.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
