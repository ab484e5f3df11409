package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"

	"github.com/talgya/mind-lab/internal/engine"
)

const heartbeatInterval = 15 * time.Second

// handleStream provides an SSE endpoint streaming one simulation's events.
// The first event is a snapshot of the current state; the stream ends when
// the simulation is deleted or the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if !s.acquireStream(w) {
		return
	}
	defer s.releaseStream()

	subID, ch := sim.Bus().Subscribe()
	defer sim.Bus().Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, string(engine.KindStateUpdate), engine.Event{
		SimulationID: sim.ID(),
		Payload:      engine.StateUpdate{Snapshot: sim.State()},
		Timestamp:    time.Now(),
	})
	flusher.Flush()

	log := logrus.WithFields(logrus.Fields{"simulation_id": sim.ID(), "sub_id": subID})
	log.Info("SSE client connected")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, string(e.Kind()), e)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			log.Info("SSE client disconnected")
			return
		}
	}
}

// writeSSE writes a single event in SSE format.
func writeSSE(w io.Writer, name string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b)
}

// wsMessage is a control frame exchanged over the WebSocket. Simulation
// events are sent as their own JSON shape, which carries the same "type"
// key.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type wsInbound struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if !s.acquireStream(w) {
		return
	}
	defer s.releaseStream()

	websocket.Handler(func(conn *websocket.Conn) {
		serveWS(conn, sim)
	}).ServeHTTP(w, r)
}

// serveWS forwards the simulation's events to conn and answers pings until
// either side closes.
func serveWS(conn *websocket.Conn, sim *engine.Simulation) {
	defer conn.Close()

	subID, ch := sim.Bus().Subscribe()
	defer sim.Bus().Unsubscribe(subID)

	log := logrus.WithFields(logrus.Fields{"simulation_id": sim.ID(), "sub_id": subID})
	if err := websocket.JSON.Send(conn, wsMessage{
		Type: "connection_established",
		Data: map[string]string{
			"simulation_id": sim.ID(),
			"message":       "Connected to simulation stream",
		},
	}); err != nil {
		return
	}
	log.Info("WebSocket client connected")

	// Only this goroutine writes after the handshake; the reader hands its
	// replies over.
	replies := make(chan wsMessage, 8)
	done := make(chan struct{})
	defer close(done)
	go readWS(conn, replies, done)

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(conn, e); err != nil {
				log.WithError(err).Debug("WebSocket send failed")
				return
			}
		case msg, ok := <-replies:
			if !ok {
				log.Info("WebSocket client disconnected")
				return
			}
			if err := websocket.JSON.Send(conn, msg); err != nil {
				return
			}
		}
	}
}

// readWS decodes client frames until the connection fails or done is
// closed, then closes replies.
func readWS(conn *websocket.Conn, replies chan<- wsMessage, done <-chan struct{}) {
	defer close(replies)
	reply := func(m wsMessage) bool {
		select {
		case replies <- m:
			return true
		case <-done:
			return false
		}
	}
	for {
		var in wsInbound
		err := websocket.JSON.Receive(conn, &in)
		var syntaxErr *json.SyntaxError
		switch {
		case err == nil:
		case errors.As(err, &syntaxErr):
			if !reply(wsMessage{Type: "error", Data: map[string]string{"message": "Invalid JSON"}}) {
				return
			}
			continue
		default:
			return
		}

		msg := wsMessage{Type: "error", Data: map[string]string{"message": "unsupported message type"}}
		if in.Type == "ping" {
			msg = wsMessage{Type: "pong", Data: map[string]json.RawMessage{"timestamp": in.Timestamp}}
		}
		if !reply(msg) {
			return
		}
	}
}
