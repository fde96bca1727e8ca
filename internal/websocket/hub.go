package websocket

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans hierarchy change events out to the websocket clients of each
// owner. Owners never see each other's events.
type Hub struct {
	clients    map[string]map[*Client]bool
	mu         sync.RWMutex
	Register   chan *Client
	Unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.OwnerID]; !ok {
		h.clients[client.OwnerID] = make(map[*Client]bool)
	}
	h.clients[client.OwnerID][client] = true
	log.Printf("Client for owner %s registered", client.OwnerID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ownerClients, ok := h.clients[client.OwnerID]; ok {
		if _, ok := ownerClients[client]; ok {
			delete(ownerClients, client)
			close(client.send)
			if len(ownerClients) == 0 {
				delete(h.clients, client.OwnerID)
			}
			log.Printf("Client for owner %s unregistered", client.OwnerID)
		}
	}
}

func (h *Hub) PublishEvent(ownerID string, eventData []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if ownerClients, ok := h.clients[ownerID]; ok {
		for client := range ownerClients {
			select {
			case client.send <- eventData:
			default:
				log.Printf("WARN: Client for owner %s send buffer is full. Dropping message.", ownerID)
			}
		}
	}
}
