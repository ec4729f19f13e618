package live

import (
	"log/slog"
	"sync"

	"github.com/furnivision/furnivision/internal/design"
)

// Room groups the clients watching one editing session.
type Room struct {
	sessionID string
	clients   map[string]*Client // clientID -> client
}

func NewRoom(sessionID string) *Room {
	return &Room{
		sessionID: sessionID,
		clients:   make(map[string]*Client),
	}
}

// Hub fans store changes out to the websocket clients of each session.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]*Room // sessionID -> room
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.stop:
			h.closeAll()
			return
		}
	}
}

// Stop disconnects every client and waits for Run to return.
func (h *Hub) Stop() {
	close(h.stop)
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.SessionID]
	if !ok {
		room = NewRoom(client.SessionID)
		h.rooms[client.SessionID] = room
	}
	room.clients[client.ClientID] = client
	h.mu.Unlock()

	client.Send(&Message{Type: TypeHello, SessionID: client.SessionID})
	slog.Info("watcher joined", "client", client.ClientID, "session", client.SessionID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[client.SessionID]
	if !ok {
		return
	}
	if _, ok := room.clients[client.ClientID]; !ok {
		return
	}

	delete(room.clients, client.ClientID)
	close(client.send)
	if len(room.clients) == 0 {
		delete(h.rooms, client.SessionID)
	}
	slog.Info("watcher left", "client", client.ClientID, "session", client.SessionID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.rooms {
		for _, c := range room.clients {
			close(c.send)
		}
		delete(h.rooms, id)
	}
}

// Watchers reports how many clients follow sessionID.
func (h *Hub) Watchers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[sessionID]; ok {
		return len(room.clients)
	}
	return 0
}

// Publish broadcasts a committed change to the session's watchers.
func (h *Hub) Publish(sessionID string, c design.Change) {
	h.broadcastToRoom(sessionID, changeMessage(sessionID, c))
}

// Closed tells the session's watchers that it is gone.
func (h *Hub) Closed(sessionID string) {
	h.broadcastToRoom(sessionID, &Message{Type: TypeSessionClosed, SessionID: sessionID})
}

func (h *Hub) broadcastToRoom(sessionID string, msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	// Send never blocks, so holding the read lock keeps removeClient from
	// closing a channel mid-send.
	for _, c := range room.clients {
		c.Send(msg)
	}
}
