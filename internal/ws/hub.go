// Package ws streams workspace events to connected browser clients.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"oficiogen/backend/internal/chat"
	"oficiogen/backend/pkg/logger"
)

// Message is the envelope written to clients
type Message struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content"`
}

type delivery struct {
	profileID string
	payload   []byte
}

// Hub fans workspace events out to the clients of the owning profile
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	deliveries chan delivery
	done       chan struct{}
	mu         sync.RWMutex
	log        *logger.Logger
}

// NewHub creates a hub; Run must be started before clients connect
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliveries: make(chan delivery, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run processes registrations and deliveries until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.ProfileID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.ProfileID] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("Client registered", "client_id", client.ID, "profile_id", client.ProfileID)

		case client := <-h.unregister:
			h.remove(client)

		case d := <-h.deliveries:
			h.mu.Lock()
			for client := range h.clients[d.profileID] {
				select {
				case client.Send <- d.payload:
				default:
					h.dropLocked(client)
					h.log.Warn("Client removed due to blocked channel", "client_id", client.ID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register attaches a client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister detaches a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues a workspace event for the profile's clients. It never blocks.
func (h *Hub) Publish(ev chat.Event) {
	payload, err := json.Marshal(Message{Type: ev.Type, Content: ev})
	if err != nil {
		h.log.LogError(err, "Failed to encode event", "type", ev.Type)
		return
	}

	select {
	case h.deliveries <- delivery{profileID: ev.ProfileID, payload: payload}:
	default:
		h.log.Warn("Event dropped, hub queue full", "type", ev.Type, "profile_id", ev.ProfileID)
	}
}

// ActiveConnections returns the number of connected clients
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ProfileID][client]; ok {
		h.dropLocked(client)
		h.log.Debug("Client unregistered", "client_id", client.ID)
	}
}

func (h *Hub) dropLocked(client *Client) {
	set := h.clients[client.ProfileID]
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.ProfileID)
	}
	close(client.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, set := range h.clients {
		for client := range set {
			h.dropLocked(client)
		}
	}
}
