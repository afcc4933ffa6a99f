package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024

	// Send buffer size per client.
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The control surface binds to loopback; any local UI may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client represents a WebSocket client connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	connID string
	topics map[string]bool
	logger *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// request is an upstream control message.
type request struct {
	Type  string  `json:"type"` // join, leave, ping
	Topic string  `json:"topic,omitempty"`
	AckID *uint64 `json:"ack_id,omitempty"`
}

type ack struct {
	AckID   uint64 `json:"ack_id"`
	Success bool   `json:"success"`
}

type connected struct {
	ConnID string   `json:"conn_id"`
	Topics []string `json:"topics"`
}

// ServeHTTP upgrades the request and subscribes the connection to the
// comma-separated topics in the "topics" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var topics []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !h.Allowed(t) {
			http.Error(w, "unknown topic: "+t, http.StatusBadRequest)
			return
		}
		topics = append(topics, t)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		connID: uuid.New().String(),
		topics: make(map[string]bool),
		logger: h.logger,
	}

	if !h.add(client) {
		_ = conn.Close()
		return
	}
	for _, t := range topics {
		h.Join(client, t)
	}

	client.enqueue(frame("connected", connected{ConnID: client.connID, Topics: topics}))

	// Start read/write pumps
	go client.writePump()
	go client.readPump()
}

// enqueue queues msg without blocking. It reports false when the buffer is
// full or the client is closed.
func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, send close message
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming upstream message.
func (c *Client) handleMessage(data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		c.logger.Debug("failed to parse upstream message",
			zap.String("connID", c.connID),
			zap.Error(err),
		)
		return
	}

	switch req.Type {
	case "join":
		c.reply(req.AckID, c.hub.Join(c, req.Topic))
	case "leave":
		c.hub.Leave(c, req.Topic)
		c.reply(req.AckID, true)
	case "ping":
		c.enqueue(frame("pong", nil))
	default:
		c.reply(req.AckID, false)
	}
}

func (c *Client) reply(ackID *uint64, success bool) {
	if ackID == nil {
		return
	}
	c.enqueue(frame("ack", ack{AckID: *ackID, Success: success}))
}

func frame(typ string, payload any) []byte {
	ev := Event{Type: typ, At: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			ev.Data = data
		}
	}
	msg, _ := json.Marshal(ev)
	return msg
}
