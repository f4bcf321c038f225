// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types.
const (
	MessageTypeTransition = "transition"
	MessageTypeSnapshot   = "snapshot"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
)

// SnapshotSource returns the live sessions a viewer starts from.
type SnapshotSource func() []models.Session

const defaultBroadcastBuffer = 256

// Message is one frame sent to a client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans session transitions out to connected live-activity clients.
// It is registered on the transition fanout as a best-effort handler and
// runs under the pipeline supervisor.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	snapshot SnapshotSource
}

// NewHub creates a hub. A non-positive buffer uses 256.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBroadcastBuffer
	}
	return &Hub{
		broadcast:  make(chan Message, buffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// SetSnapshotSource makes the hub greet every new client with the current
// session table. Call before Serve.
func (h *Hub) SetSnapshotSource(src SnapshotSource) {
	h.snapshot = src
}

func (h *Hub) snapshotMessage() (Message, bool) {
	if h.snapshot == nil {
		return Message{}, false
	}
	sessions := h.snapshot()
	if sessions == nil {
		sessions = []models.Session{}
	}
	return Message{Type: MessageTypeSnapshot, Data: sessions}, true
}

// Serve implements suture.Service. Lifecycle events are handled before
// broadcasts so a client registered before a transition always receives it.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.stop(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.stop(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (h *Hub) String() string { return "websocket-hub" }

// Name implements dispatch.Handler.
func (h *Hub) Name() string { return "websocket" }

// HandleTransition queues t for every client. A full buffer drops it.
func (h *Hub) HandleTransition(_ context.Context, t models.SessionTransition) {
	select {
	case h.broadcast <- Message{Type: MessageTypeTransition, Data: t}:
	default:
		logging.Warn().
			Str("transition", string(t.Kind)).
			Str("session_key", t.Session.SessionKey).
			Msg("websocket broadcast buffer full, dropping transition")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// add greets the client with the snapshot before it can see any broadcast,
// so a viewer never applies a transition to a table it has not loaded.
func (h *Hub) add(client *Client) {
	if msg, ok := h.snapshotMessage(); ok {
		select {
		case client.send <- msg:
		default:
		}
	}
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", n).Msg("websocket client disconnected")
}

func (h *Hub) stop(ctx context.Context) {
	n := h.ClientCount()
	h.closeAllClients()

	reason := ShutdownReasonContextCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ShutdownReasonContextDeadline
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(reason)).
		Int("clients_closed", n).
		Msg("websocket hub stopped")
}

// sortedClients must be called with mu held.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// broadcastToClients delivers in client id order. Clients whose send buffer
// is full are disconnected.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for _, client := range h.sortedClients() {
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.sortedClients() {
		close(client.send)
		delete(h.clients, client)
	}
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
