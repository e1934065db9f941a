// Package router accepts outbound messages and drives them through
// validation, sequencing, persistence and fan-out. Local delivery never
// depends on bus health; a store failure before persistence aborts the
// send with nothing applied.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/juhwano/backend-challenge-chat-server/internal/apperr"
	"github.com/juhwano/backend-challenge-chat-server/internal/bus"
	"github.com/juhwano/backend-challenge-chat-server/internal/models"
	"github.com/juhwano/backend-challenge-chat-server/internal/sequence"
)

const (
	// MaxContentLength bounds message content in Unicode code points.
	MaxContentLength = 1000
	// SoftGroupCapacity is the fail-fast participant bound checked
	// against local room size; the membership manager is authoritative.
	SoftGroupCapacity = 100
)

// Store is the slice of the document store the router needs.
type Store interface {
	ChatByNumber(ctx context.Context, number int64) (*models.Chat, error)
	SaveMessage(ctx context.Context, m *models.Message) error
	UserByName(ctx context.Context, userName string) (*models.User, error)
	SetActive(ctx context.Context, userName string, active bool) error
}

// Local delivers to the connections of this process.
type Local interface {
	Broadcast(chatID, event string, payload any)
	RoomSize(chatID string) int
}

// Bus fans events out to the other processes, best-effort.
type Bus interface {
	PublishMessage(ctx context.Context, m *models.Message, chatKind string)
}

// Presence refreshes the sender's fast-path active key.
type Presence interface {
	MarkUserActive(ctx context.Context, userName string)
}

// SendRequest is one outbound message. To is set only for 1:1 chats.
type SendRequest struct {
	From       string
	To         string
	ChatNumber int64
	Content    string
	ChatKind   string // bus.ChatKindPersonal or bus.ChatKindGroup
}

type Router struct {
	store    Store
	seq      sequence.Sequencer
	local    Local
	bus      Bus
	presence Presence
	log      *zap.SugaredLogger

	maxContent int
	capacity   int
}

func New(store Store, seq sequence.Sequencer, local Local, b Bus, presence Presence, log *zap.SugaredLogger) *Router {
	return &Router{
		store:      store,
		seq:        seq,
		local:      local,
		bus:        b,
		presence:   presence,
		log:        log,
		maxContent: MaxContentLength,
		capacity:   SoftGroupCapacity,
	}
}

// SetLimits overrides the content-length and soft-capacity bounds.
func (r *Router) SetLimits(maxContent, capacity int) {
	if maxContent > 0 {
		r.maxContent = maxContent
	}
	if capacity > 0 {
		r.capacity = capacity
	}
}

// Prepare runs the side-effect-free head of the pipeline: content
// validation, chat resolution, the fail-fast group capacity check and
// sender/recipient resolution. Both the direct path and the durable
// queue path start here; a rejection leaves nothing behind.
func (r *Router) Prepare(ctx context.Context, req SendRequest) (*models.Message, error) {
	content, err := r.validate(req.Content)
	if err != nil {
		return nil, err
	}

	chat, err := r.store.ChatByNumber(ctx, req.ChatNumber)
	if err != nil {
		return nil, err
	}

	// fail fast on local room size; authoritative enforcement happens in
	// the membership manager at join time
	if req.ChatKind == bus.ChatKindGroup && r.local.RoomSize(chat.ID) > r.capacity {
		return nil, apperr.ErrCapacityExceeded
	}

	m := &models.Message{
		ChatID:       chat.ID,
		FromUserName: models.SystemUserName,
		Content:      content,
		Timestamp:    time.Now().UTC(),
	}
	if fromUser, err := r.store.UserByName(ctx, req.From); err == nil {
		m.From = fromUser.ID
		m.FromUserName = fromUser.UserName
	} else if !errors.Is(err, apperr.ErrUserNotFound) {
		return nil, err
	}
	if req.To != "" {
		toUser, err := r.store.UserByName(ctx, req.To)
		if err != nil && !errors.Is(err, apperr.ErrUserNotFound) {
			return nil, err
		}
		if err == nil {
			m.To = toUser.ID
			m.ToUserName = toUser.UserName
		}
	}
	return m, nil
}

// Send runs the full send pipeline and returns the persisted message.
// Errors before sequencing leave no side effects at all; a sequencing or
// persistence failure aborts the send before any delivery.
func (r *Router) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	m, err := r.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := r.PersistAndFanOut(ctx, m, req.ChatKind); err != nil {
		return nil, err
	}

	// presence side effect, non-fatal
	if m.From != "" {
		if err := r.store.SetActive(ctx, req.From, true); err != nil {
			r.log.Warnw("mark sender active failed", "user", req.From, "err", err)
		}
		if r.presence != nil {
			r.presence.MarkUserActive(ctx, req.From)
		}
	}
	return m, nil
}

// SendSystem emits a sequenced system message into a chat, used for
// join/leave notifications. System messages have no sender record.
func (r *Router) SendSystem(ctx context.Context, chat *models.Chat, content, chatKind string) (*models.Message, error) {
	m := &models.Message{
		ChatID:       chat.ID,
		FromUserName: models.SystemUserName,
		Content:      content,
		Timestamp:    time.Now().UTC(),
	}
	if err := r.PersistAndFanOut(ctx, m, chatKind); err != nil {
		return nil, err
	}
	return m, nil
}

// PersistAndFanOut assigns the sequence number, persists the message and
// delivers it: locally first, then to the other processes over the bus.
// The queue consumer reuses this for dequeued persist jobs, which keeps
// sequence assignment inside the consumer as redelivery requires.
func (r *Router) PersistAndFanOut(ctx context.Context, m *models.Message, chatKind string) error {
	seq, err := r.seq.NextSequence(ctx, m.ChatID)
	if err != nil {
		return fmt.Errorf("assign sequence: %w", err)
	}
	m.Sequence = seq

	if err := r.store.SaveMessage(ctx, m); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	r.local.Broadcast(m.ChatID, bus.EventNewMessage, m)
	r.bus.PublishMessage(ctx, m, chatKind)
	return nil
}

func (r *Router) validate(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content", apperr.ErrInvalidContent)
	}
	if utf8.RuneCountInString(content) > r.maxContent {
		return "", fmt.Errorf("%w: content exceeds %d characters", apperr.ErrInvalidContent, r.maxContent)
	}
	return content, nil
}
