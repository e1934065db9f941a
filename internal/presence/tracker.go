// Package presence tracks which users are connected to this process and
// which chat each of them is currently in. Nothing here is persisted or
// shared across processes; cross-process presence travels over the bus.
package presence

import "sync"

// Conn is the minimal handle the tracker keeps per connected user. The
// websocket session satisfies it; tests use stubs.
type Conn interface {
	Deliver(event string, payload any)
}

// Tracker holds per-process connection state as a struct owned by the
// server instance. All methods are safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	conns map[string]Conn   // userName -> live connection
	chats map[string]string // userName -> current chat ID
}

func NewTracker() *Tracker {
	return &Tracker{
		conns: make(map[string]Conn),
		chats: make(map[string]string),
	}
}

// Register binds a username to its live connection, replacing any
// previous handle for the same user.
func (t *Tracker) Register(userName string, c Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[userName] = c
}

// Associate records the chat a user is currently in.
func (t *Tracker) Associate(userName, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chats[userName] = chatID
}

// Dissociate clears the user's current-chat association only.
func (t *Tracker) Dissociate(userName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.chats, userName)
}

// Lookup returns the live connection for a user, if any.
func (t *Tracker) Lookup(userName string) (Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[userName]
	return c, ok
}

// CurrentChat returns the chat the user is associated with, if any.
func (t *Tracker) CurrentChat(userName string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.chats[userName]
	return id, ok
}

// Remove clears every entry for a disconnected user and reports the chat
// the user was in so the caller can run membership cleanup. A non-nil c
// removes only when it is still the tracked handle: a reconnect replaces
// the handle, and the old socket's late disconnect must not tear down the
// live session. removed is false when the handle check fails.
func (t *Tracker) Remove(userName string, c Conn) (chatID string, wasInChat bool, removed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c != nil && t.conns[userName] != c {
		return "", false, false
	}
	chatID, wasInChat = t.chats[userName]
	delete(t.chats, userName)
	delete(t.conns, userName)
	return chatID, wasInChat, true
}

// Connected reports how many users this process currently tracks.
func (t *Tracker) Connected() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
