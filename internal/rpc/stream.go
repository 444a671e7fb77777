package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Upgrader is shared by the manager's Report endpoint and the worker's
// Connect endpoint. Origin checking is deliberately permissive here: this
// is an internal service-to-service and client-to-worker protocol, not a
// browser-facing API with third-party origins to police.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// pingInterval/pongWait establish a keepalive so a half-open TCP
// connection (peer vanished without a clean close) is detected instead
// of stalling a stream's pumps forever.
const (
	pingInterval = 20 * time.Second
	pongWait     = 60 * time.Second
)

// Stream wraps a *websocket.Conn with JSON framing and a write mutex,
// since gorilla/websocket connections support at most one concurrent
// writer. Both pumps of a Connect session, and the two concurrent loops
// of a Report session, share one Stream and must go through SendJSON
// rather than touching the underlying connection directly.
type Stream struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	closeOne sync.Once
}

// NewStream wraps conn and starts its keepalive ping loop, stopping it
// when the stream is closed.
func NewStream(conn *websocket.Conn) *Stream {
	s := &Stream{conn: conn}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.pingLoop()
	return s
}

func (s *Stream) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.writeMu.Lock()
		err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		s.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// SendJSON marshals v and writes it as one text frame. Safe to call
// concurrently from multiple goroutines.
func (s *Stream) SendJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpc: marshal frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// RecvJSON blocks for the next text frame and unmarshals it into v. Not
// safe to call concurrently with itself — each Stream has exactly one
// reader, matching gorilla/websocket's single-reader requirement.
func (s *Stream) RecvJSON(v interface{}) error {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Close closes the underlying connection exactly once.
func (s *Stream) Close() error {
	var err error
	s.closeOne.Do(func() { err = s.conn.Close() })
	return err
}
