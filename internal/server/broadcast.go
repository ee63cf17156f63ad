package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 8
)

// upgrader allows all origins: the server binds to localhost and serves
// a single operator.
var upgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

// client is one connected WebSocket consumer. Messages are fanned out
// through send; a slow client that fills its buffer is dropped rather
// than allowed to stall the broadcast.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) close() {
	close(c.send)
}

// handleWebSocket upgrades the connection, registers the client, and
// immediately sends the current ref state so the client does not wait
// for the first repository change.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "err", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error("Failed to set read deadline", "err", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	s.mu.Lock()
	s.clients[c] = true
	initial := s.lastState
	s.mu.Unlock()

	if initial == nil {
		if state, err := s.currentState(r.Context()); err == nil {
			if payload, err := json.Marshal(state); err == nil {
				initial = payload
				s.mu.Lock()
				s.lastState = payload
				s.mu.Unlock()
			}
		}
	}
	if initial != nil {
		select {
		case c.send <- initial:
		default:
		}
	}

	s.wg.Add(2)
	go s.writePump(c)
	go s.readPump(c)
}

// broadcast fans payload out to every connected client. Clients whose
// buffers are full are disconnected.
func (s *Server) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			delete(s.clients, c)
			c.close()
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.close()
	}
	s.mu.Unlock()
}

// writePump drains the client's send channel and keeps the connection
// alive with pings.
func (s *Server) writePump(c *client) {
	defer s.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer func() {
		if err := c.conn.Close(); err != nil {
			s.logger.Debug("Failed to close WebSocket", "err", err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck // closing anyway
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages; its job is to surface disconnects
// and answer pings via the pong handler.
func (s *Server) readPump(c *client) {
	defer s.wg.Done()
	defer s.unregister(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
