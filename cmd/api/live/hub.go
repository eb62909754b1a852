// Package live pushes ticket events to connected wallets over websocket.
package live

import (
	"context"
	"sync"

	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
)

// Hub maintains active WebSocket connections and broadcasts messages
type Hub struct {
	// Map: wallet address → []*Client
	connections map[string][]*Client
	mutex       sync.RWMutex

	// Channel for registering clients
	register chan *Client

	// Channel for unregistering clients
	unregister chan *Client

	// Channel for broadcasting messages
	broadcast chan *Message

	// Closed when Run returns
	done chan struct{}

	log *logger.Logger
}

// Message is a payload addressed to one wallet
type Message struct {
	Address string
	Data    []byte
}

// NewHub creates a new Hub instance
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		connections: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		done:        make(chan struct{}),
		log:         log,
	}
}

// Run owns the connection map until ctx is done, then closes every client
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("live hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.log.Info("live hub stopped")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Send queues data for every connection of address. It never blocks the caller;
// messages are dropped when the hub is saturated.
func (h *Hub) Send(address string, data []byte) bool {
	select {
	case h.broadcast <- &Message{Address: models.NormalizeAddress(address), Data: data}:
		return true
	default:
		h.log.Warn("live hub saturated, dropping message", "address", address)
		return false
	}
}

// Register hands a client to the hub; false once the hub has stopped
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client; safe to call after the hub has stopped
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.connections[client.address] = append(h.connections[client.address], client)
	h.log.Debug("client registered",
		"address", client.address,
		"total_for_address", len(h.connections[client.address]))
}

// removeClient drops a client and closes its send channel exactly once
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients := h.connections[client.address]
	for i, c := range clients {
		if c != client {
			continue
		}
		h.connections[client.address] = append(clients[:i], clients[i+1:]...)
		close(client.send)

		if len(h.connections[client.address]) == 0 {
			delete(h.connections, client.address)
		}

		h.log.Debug("client unregistered",
			"address", client.address,
			"remaining_for_address", len(h.connections[client.address]))
		return
	}
}

// deliver sends a message to all connections for its address. Clients that
// cannot keep up are disconnected.
func (h *Hub) deliver(message *Message) {
	h.mutex.RLock()
	clients := append([]*Client(nil), h.connections[message.Address]...)
	h.mutex.RUnlock()

	var slow []*Client
	for _, client := range clients {
		select {
		case client.send <- message.Data:
		default:
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		h.log.Warn("client send buffer full, closing connection", "address", client.address)
		h.removeClient(client)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for address, clients := range h.connections {
		for _, c := range clients {
			close(c.send)
		}
		delete(h.connections, address)
	}
}

// ConnectionCount returns the total number of active connections
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	count := 0
	for _, clients := range h.connections {
		count += len(clients)
	}
	return count
}

// AddressCount returns the number of unique wallets connected
func (h *Hub) AddressCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.connections)
}
