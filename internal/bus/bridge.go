package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/juhwano/backend-challenge-chat-server/internal/apperr"
	"github.com/juhwano/backend-challenge-chat-server/internal/models"
)

// Publisher pushes one payload to a named channel. The Redis client
// adapter in this package implements it.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Local is the in-process delivery surface the bridge re-dispatches
// remote events onto. The hub implements it.
type Local interface {
	Broadcast(chatID, event string, payload any)
	BroadcastAll(event string, payload any)
	SendToUser(userName, event string, payload any) bool
}

type Bridge struct {
	origin  string
	channel string
	pub     Publisher
	local   Local
	log     *zap.SugaredLogger
}

// NewBridge builds a bridge identified by origin, a per-process UUID.
func NewBridge(origin, channel string, pub Publisher, local Local, log *zap.SugaredLogger) *Bridge {
	return &Bridge{origin: origin, channel: channel, pub: pub, local: local, log: log}
}

func (b *Bridge) Origin() string { return b.origin }

// PublishMessage fans a persisted message out to the other processes.
// Best-effort: a bus failure is logged and swallowed so local delivery
// and the caller's success are unaffected.
func (b *Bridge) PublishMessage(ctx context.Context, m *models.Message, chatKind string) {
	to := ""
	if chatKind == ChatKindPersonal {
		to = m.ToUserName
	}
	b.publish(ctx, Event{
		Type:     EventNewMessage,
		ChatID:   m.ChatID,
		ChatKind: chatKind,
		To:       to,
	}, m)
}

// PublishMembership pushes the post-change member presence list.
func (b *Bridge) PublishMembership(ctx context.Context, chatID string, users []models.ChatUser) {
	b.publish(ctx, Event{
		Type:   EventMembershipChanged,
		ChatID: chatID,
	}, users)
}

// PublishPresence announces a connect/disconnect so other processes can
// reflect the user's status.
func (b *Bridge) PublishPresence(ctx context.Context, userName string, active bool) {
	b.publish(ctx, Event{
		Type: EventPresenceChanged,
	}, PresencePayload{UserName: userName, Active: active})
}

func (b *Bridge) publish(ctx context.Context, ev Event, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Errorw("bus payload marshal failed", "type", ev.Type, "err", err)
		return
	}
	ev.Origin = b.origin
	ev.Payload = raw

	data, _ := json.Marshal(ev)
	if err := b.pub.Publish(ctx, b.channel, data); err != nil {
		err = fmt.Errorf("%w: %v", apperr.ErrBusUnavailable, err)
		b.log.Warnw("bus publish failed, remote processes will miss this event",
			"type", ev.Type, "chatId", ev.ChatID, "err", err)
	}
}

// Dispatch applies one raw bus event to local connections. Events this
// process published are dropped: their sockets were served by direct
// local dispatch already, and delivering twice would break the
// once-per-subscriber contract.
func (b *Bridge) Dispatch(raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		b.log.Warnw("bus event decode failed", "err", err)
		return
	}
	if ev.Origin == b.origin {
		return
	}

	switch ev.Type {
	case EventNewMessage:
		if ev.ChatKind == ChatKindPersonal && ev.To != "" {
			b.local.SendToUser(ev.To, EventNewMessage, ev.Payload)
			return
		}
		b.local.Broadcast(ev.ChatID, EventNewMessage, ev.Payload)
	case EventMembershipChanged:
		b.local.Broadcast(ev.ChatID, "connectedUsers", ev.Payload)
	case EventPresenceChanged:
		b.local.BroadcastAll("userStatus", ev.Payload)
	default:
		b.log.Debugw("ignoring unknown bus event", "type", ev.Type)
	}
}
