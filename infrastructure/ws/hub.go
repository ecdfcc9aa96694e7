package ws

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub is the node-local registry of connected users, one client per
// user id. A reconnect replaces the previous connection.
type Hub struct {
	clients            map[string]*UserClient
	broadcast          chan []byte
	Register           chan *UserClient
	Unregister         chan *UserClient
	mu                 sync.RWMutex
	OnClientUnregister func(client *UserClient) error
	log                zerolog.Logger
}

func NewHub(log zerolog.Logger) IHub {
	return &Hub{
		clients:    make(map[string]*UserClient),
		broadcast:  make(chan []byte, 256),
		Register:   make(chan *UserClient),
		Unregister: make(chan *UserClient),
		log:        log.With().Str("component", "ws.hub").Logger(),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if prev, ok := h.clients[client.UserId]; ok && prev != client {
				close(prev.send)
			}
			h.clients[client.UserId] = client
			h.mu.Unlock()
			h.log.Info().Str("userId", client.UserId).Msg("client connected")

		case client := <-h.Unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.UserId]; ok && current == client {
				delete(h.clients, client.UserId)
				close(client.send)
				h.log.Info().Str("userId", client.UserId).Msg("client disconnected")
			}
			h.mu.Unlock()

			if h.OnClientUnregister != nil {
				if err := h.OnClientUnregister(client); err != nil {
					h.log.Error().Err(err).Str("userId", client.UserId).Msg("unregister callback failed")
				}
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			for userId, client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.log.Warn().Str("userId", userId).Msg("slow client, dropping broadcast")
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Broadcast(message []byte) {
	h.broadcast <- message
}

func (h *Hub) SendToClient(userId string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[userId]
	if exists {
		select {
		case client.send <- message:
		default:
			h.log.Warn().Str("userId", userId).Msg("send buffer full, dropping message")
		}
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegisterClient(client *UserClient) {
	h.Register <- client
}

func (h *Hub) UnregisterClient(client *UserClient) {
	h.Unregister <- client
}

func (h *Hub) SetOnClientUnregister(callback func(client *UserClient) error) {
	h.OnClientUnregister = callback
}
