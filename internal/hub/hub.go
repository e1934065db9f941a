// Package hub tracks the websocket connections of this process and the
// chat rooms each is joined to, and fans events out to them. One hub per
// server process; cross-process delivery is the bus bridge's job.
package hub

import "sync"

// Sender delivers one named event to a single connection. The websocket
// session implements it with a buffered channel and drops on
// backpressure, so hub broadcasts never block.
type Sender interface {
	Deliver(event string, payload any)
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]Sender            // userName -> connection
	rooms   map[string]map[string]Sender // chatID -> userName -> connection
}

func New() *Hub {
	return &Hub{
		clients: make(map[string]Sender),
		rooms:   make(map[string]map[string]Sender),
	}
}

func (h *Hub) Register(userName string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[userName] = s
}

// Unregister drops the user's connection and removes it from every room.
// A non-nil s unregisters only while it is still the registered handle,
// so a replaced connection's late disconnect leaves the live one alone.
func (h *Hub) Unregister(userName string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s != nil && h.clients[userName] != s {
		return
	}
	delete(h.clients, userName)
	for chatID, members := range h.rooms {
		delete(members, userName)
		if len(members) == 0 {
			delete(h.rooms, chatID)
		}
	}
}

func (h *Hub) Join(chatID, userName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.clients[userName]
	if !ok {
		return
	}
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[string]Sender)
	}
	h.rooms[chatID][userName] = s
}

func (h *Hub) Leave(chatID, userName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[chatID]; ok {
		delete(members, userName)
		if len(members) == 0 {
			delete(h.rooms, chatID)
		}
	}
}

// Broadcast delivers an event to every connection joined to the chat.
func (h *Hub) Broadcast(chatID, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.rooms[chatID] {
		s.Deliver(event, payload)
	}
}

// BroadcastAll delivers an event to every connection in this process,
// regardless of room. Used for userStatus presence updates.
func (h *Hub) BroadcastAll(event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.clients {
		s.Deliver(event, payload)
	}
}

// SendToUser delivers an event to one user's connection, if connected.
func (h *Hub) SendToUser(userName, event string, payload any) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.clients[userName]
	if !ok {
		return false
	}
	s.Deliver(event, payload)
	return true
}

// RoomSize reports how many local connections are joined to the chat.
func (h *Hub) RoomSize(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}
