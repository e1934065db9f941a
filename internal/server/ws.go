package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/juhwano/backend-challenge-chat-server/internal/apperr"
	"github.com/juhwano/backend-challenge-chat-server/internal/models"
	"github.com/juhwano/backend-challenge-chat-server/internal/router"
)

const (
	maxFrameSize  = 64 * 1024
	readWait      = 60 * time.Second
	writeWait     = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendQueueSize = 256
)

// envelope is the websocket wire format in both directions.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageSender is the send entry point a session forwards to: the
// message router directly, or the queue producer front in queue mode.
type MessageSender interface {
	Send(ctx context.Context, req router.SendRequest) (*models.Message, error)
}

// GroupChatLister serves the requestGroupChats event.
type GroupChatLister interface {
	GroupChats(ctx context.Context, page, limit int64) ([]models.Chat, int64, error)
}

// session is one connected client. It implements presence.Conn and
// hub.Sender: Deliver marshals an event onto the buffered send queue and
// drops when the client cannot keep up, so broadcasts never block.
type session struct {
	conn   *websocket.Conn
	send   chan []byte
	coord  *Coordinator
	sender MessageSender
	chats  GroupChatLister
	log    *zap.SugaredLogger

	mu       sync.Mutex // guards userName, closed and the send-vs-close race
	userName string
	closed   bool
}

func (s *session) Deliver(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Warnw("event payload marshal failed", "event", event, "err", err)
		return
	}
	b, _ := json.Marshal(envelope{Event: event, Payload: raw})

	// the closed check and the send share the mutex with closeSend, so a
	// straggling registry entry can never hit a closed channel
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- b:
	default:
		s.log.Debugw("dropping event for slow client", "event", event, "user", s.userName)
	}
}

// bind rebinds the session to a username. Binding a new name first runs
// full disconnect cleanup for the previous one, so no registry keeps a
// stale entry pointing at this session under the abandoned name.
func (s *session) bind(ctx context.Context, userName string) {
	s.mu.Lock()
	prev := s.userName
	s.userName = userName
	s.mu.Unlock()
	if prev != "" && prev != userName {
		s.coord.Disconnect(ctx, prev, s)
	}
}

// teardown runs disconnect cleanup for the bound name and closes the
// send queue. closeSend must come last: Disconnect broadcasts userStatus,
// which re-enters Deliver on this session.
func (s *session) teardown(ctx context.Context) {
	s.mu.Lock()
	userName := s.userName
	s.mu.Unlock()
	if userName != "" {
		s.coord.Disconnect(ctx, userName, s)
	}
	s.closeSend()
}

func (s *session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

func (s *session) deliverError(msg string) {
	s.Deliver("error", msg)
}

// WebsocketHandler upgrades connections and runs the session loops.
func WebsocketHandler(coord *Coordinator, sender MessageSender, chats GroupChatLister, log *zap.SugaredLogger) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		s := &session{
			conn:   conn,
			send:   make(chan []byte, sendQueueSize),
			coord:  coord,
			sender: sender,
			chats:  chats,
			log:    log,
		}
		go s.writePump()
		s.readPump()
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case b, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *session) readPump() {
	defer s.teardown(context.Background())

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		s.dispatch(context.Background(), env)
	}
}

func (s *session) dispatch(ctx context.Context, env envelope) {
	switch env.Event {
	case "register":
		var p struct {
			UserName string `json:"userName"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.UserName == "" {
			s.deliverError("invalid register payload")
			return
		}
		s.bind(ctx, p.UserName)
		s.coord.Register(p.UserName, s)

	case "joinChat":
		var p struct {
			Number   int64  `json:"number"`
			UserName string `json:"userName"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.deliverError("invalid joinChat payload")
			return
		}
		if p.UserName != "" {
			s.bind(ctx, p.UserName)
		}
		chat, err := s.coord.JoinChat(ctx, p.Number, p.UserName, s)
		if err != nil {
			s.deliverError(userMessage(err))
			return
		}
		s.Deliver("joinedChat", chat)

	case "leaveChat":
		var p struct {
			Number   int64  `json:"number"`
			UserName string `json:"userName"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.deliverError("invalid leaveChat payload")
			return
		}
		if err := s.coord.LeaveChat(ctx, p.Number, p.UserName); err != nil {
			s.deliverError(userMessage(err))
		}

	case "sendMessage":
		var p struct {
			From     string `json:"from"`
			To       string `json:"to"`
			Content  string `json:"content"`
			ChatType string `json:"chatType"`
			Number   int64  `json:"number"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.deliverError("invalid sendMessage payload")
			return
		}
		_, err := s.sender.Send(ctx, router.SendRequest{
			From:       p.From,
			To:         p.To,
			ChatNumber: p.Number,
			Content:    p.Content,
			ChatKind:   p.ChatType,
		})
		if err != nil {
			s.deliverError(userMessage(err))
		}

	case "requestGroupChats":
		chats, _, err := s.chats.GroupChats(ctx, 1, 100)
		if err != nil {
			s.deliverError(userMessage(err))
			return
		}
		s.Deliver("groupChatsList", chats)

	default:
		s.log.Debugw("ignoring unknown client event", "event", env.Event)
	}
}

// userMessage maps internal errors to the strings clients display.
func userMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrInvalidContent):
		return "Message content cannot be empty or longer than 1000 characters"
	case errors.Is(err, apperr.ErrChatNotFound):
		return "Chat not found"
	case errors.Is(err, apperr.ErrCapacityExceeded):
		return "Group chat limit reached. Max 100 users."
	case errors.Is(err, apperr.ErrUserNotFound):
		return "User not found"
	default:
		return "Internal Server Error"
	}
}
