// Package ws streams sync events to local UI clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is the JSON frame sent to clients.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	At   time.Time       `json:"at"`
}

// Hub manages WebSocket connections and topic subscriptions.
type Hub struct {
	name       string
	topics     map[string]bool // allowed topics
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool // topic -> clients
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a hub that accepts subscriptions to the given topics.
func NewHub(name string, topics []string, logger *zap.Logger) *Hub {
	allowed := make(map[string]bool, len(topics))
	for _, t := range topics {
		allowed[t] = true
	}
	return &Hub{
		name:       name,
		topics:     allowed,
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down", zap.String("hub", h.name))
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered",
				zap.String("hub", h.name),
				zap.String("connID", client.connID),
			)

		case client := <-h.unregister:
			h.drop(client)
			h.logger.Debug("client unregistered",
				zap.String("hub", h.name),
				zap.String("connID", client.connID),
			)
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for topic := range client.topics {
		if clients, ok := h.groups[topic]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.groups, topic)
			}
		}
	}
	client.close()
}

// remove asks Run to drop client, unless the hub already shut down.
func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// add hands client to Run. It reports false once the hub shut down.
func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// shutdown gracefully closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(h.done)
	for client := range h.clients {
		client.close()
		delete(h.clients, client)
	}
	h.groups = make(map[string]map[*Client]bool)
}

// Allowed reports whether clients may subscribe to topic.
func (h *Hub) Allowed(topic string) bool {
	return h.topics[topic]
}

// Join subscribes a client to a topic.
func (h *Hub) Join(client *Client, topic string) bool {
	if !h.Allowed(topic) {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groups[topic] == nil {
		h.groups[topic] = make(map[*Client]bool)
	}
	h.groups[topic][client] = true
	client.topics[topic] = true

	h.logger.Debug("client joined topic",
		zap.String("hub", h.name),
		zap.String("connID", client.connID),
		zap.String("topic", topic),
	)
	return true
}

// Leave unsubscribes a client from a topic.
func (h *Hub) Leave(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.groups[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groups, topic)
		}
	}
	delete(client.topics, topic)
}

// ActiveTopics returns all topics with at least one subscriber.
func (h *Hub) ActiveTopics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var topics []string
	for topic, clients := range h.groups {
		if len(clients) > 0 {
			topics = append(topics, topic)
		}
	}
	return topics
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish encodes payload as an Event of type topic and sends it to every
// subscriber. Slow clients are disconnected. It returns the number of
// clients the event was queued for.
func (h *Hub) Publish(topic string, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("encoding event", zap.String("topic", topic), zap.Error(err))
		return 0
	}
	frame, err := json.Marshal(Event{Type: topic, Data: data, At: time.Now().UTC()})
	if err != nil {
		return 0
	}

	h.mu.RLock()
	clients, ok := h.groups[topic]
	if !ok {
		h.mu.RUnlock()
		return 0
	}
	// Copy clients to avoid holding lock during send
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clientList {
		if client.enqueue(frame) {
			sent++
			continue
		}
		// Buffer full, schedule disconnect
		go h.remove(client)
	}
	return sent
}
