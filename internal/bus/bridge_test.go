package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/juhwano/backend-challenge-chat-server/internal/models"
)

type fakePublisher struct {
	published [][]byte
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, payload)
	return nil
}

type dispatchCall struct {
	mode   string // "room", "all", "direct"
	target string // chatID or userName
	event  string
}

type fakeLocal struct{ calls []dispatchCall }

func (l *fakeLocal) Broadcast(chatID, event string, _ any) {
	l.calls = append(l.calls, dispatchCall{mode: "room", target: chatID, event: event})
}

func (l *fakeLocal) BroadcastAll(event string, _ any) {
	l.calls = append(l.calls, dispatchCall{mode: "all", event: event})
}

func (l *fakeLocal) SendToUser(userName, event string, _ any) bool {
	l.calls = append(l.calls, dispatchCall{mode: "direct", target: userName, event: event})
	return true
}

func newTestBridge(origin string, pub Publisher, local Local) *Bridge {
	return NewBridge(origin, "chat_messages", pub, local, zap.NewNop().Sugar())
}

func TestPublishMessageTagsOrigin(t *testing.T) {
	pub := &fakePublisher{}
	b := newTestBridge("proc-1", pub, &fakeLocal{})

	b.PublishMessage(context.Background(), &models.Message{
		ChatID:       "chat-1",
		FromUserName: "alice",
		Content:      "hi",
		Sequence:     1,
	}, ChatKindGroup)

	require.Len(t, pub.published, 1)
	var ev Event
	require.NoError(t, json.Unmarshal(pub.published[0], &ev))
	require.Equal(t, "proc-1", ev.Origin)
	require.Equal(t, EventNewMessage, ev.Type)
	require.Equal(t, "chat-1", ev.ChatID)
	require.Empty(t, ev.To)
}

func TestPublishPersonalMessageCarriesRecipient(t *testing.T) {
	pub := &fakePublisher{}
	b := newTestBridge("proc-1", pub, &fakeLocal{})

	b.PublishMessage(context.Background(), &models.Message{
		ChatID:       "chat-1",
		FromUserName: "alice",
		ToUserName:   "bob",
	}, ChatKindPersonal)

	var ev Event
	require.NoError(t, json.Unmarshal(pub.published[0], &ev))
	require.Equal(t, "bob", ev.To)
	require.Equal(t, ChatKindPersonal, ev.ChatKind)
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	b := newTestBridge("proc-1", pub, &fakeLocal{})

	// must not panic and must not surface the failure
	b.PublishMessage(context.Background(), &models.Message{ChatID: "chat-1"}, ChatKindGroup)
	b.PublishPresence(context.Background(), "alice", false)
}

func TestDispatchSuppressesOwnEcho(t *testing.T) {
	local := &fakeLocal{}
	b := newTestBridge("proc-1", &fakePublisher{}, local)

	raw, _ := json.Marshal(Event{
		Origin: "proc-1",
		Type:   EventNewMessage,
		ChatID: "chat-1",
	})
	b.Dispatch(raw)

	require.Empty(t, local.calls, "events from the local origin must not be re-dispatched")
}

func TestDispatchRemoteGroupMessage(t *testing.T) {
	local := &fakeLocal{}
	b := newTestBridge("proc-1", &fakePublisher{}, local)

	raw, _ := json.Marshal(Event{
		Origin:   "proc-2",
		Type:     EventNewMessage,
		ChatID:   "chat-1",
		ChatKind: ChatKindGroup,
	})
	b.Dispatch(raw)

	require.Equal(t, []dispatchCall{{mode: "room", target: "chat-1", event: EventNewMessage}}, local.calls)
}

func TestDispatchRemotePersonalMessageIsDirect(t *testing.T) {
	local := &fakeLocal{}
	b := newTestBridge("proc-1", &fakePublisher{}, local)

	raw, _ := json.Marshal(Event{
		Origin:   "proc-2",
		Type:     EventNewMessage,
		ChatID:   "chat-1",
		ChatKind: ChatKindPersonal,
		To:       "bob",
	})
	b.Dispatch(raw)

	require.Equal(t, []dispatchCall{{mode: "direct", target: "bob", event: EventNewMessage}}, local.calls)
}

func TestDispatchMembershipAndPresence(t *testing.T) {
	local := &fakeLocal{}
	b := newTestBridge("proc-1", &fakePublisher{}, local)

	raw, _ := json.Marshal(Event{Origin: "proc-2", Type: EventMembershipChanged, ChatID: "chat-1"})
	b.Dispatch(raw)
	raw, _ = json.Marshal(Event{Origin: "proc-2", Type: EventPresenceChanged})
	b.Dispatch(raw)

	require.Equal(t, []dispatchCall{
		{mode: "room", target: "chat-1", event: "connectedUsers"},
		{mode: "all", event: "userStatus"},
	}, local.calls)
}

func TestDispatchMalformedEvent(t *testing.T) {
	local := &fakeLocal{}
	b := newTestBridge("proc-1", &fakePublisher{}, local)

	b.Dispatch([]byte("not json"))
	require.Empty(t, local.calls)
}
