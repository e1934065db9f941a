package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSession(f *fixture) *session {
	return &session{
		send:  make(chan []byte, 16),
		coord: f.coord,
		log:   zap.NewNop().Sugar(),
	}
}

func registerEnvelope(userName string) envelope {
	return envelope{
		Event:   "register",
		Payload: json.RawMessage(`{"userName":"` + userName + `"}`),
	}
}

// A client that re-registers under a new name must not leave the old
// name in any registry: after the session closes, a broadcast to all
// connections would otherwise reach the closed session and panic.
func TestReregisterLeavesNoStaleBinding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.state.addUser("alice")
	f.state.addUser("bob")
	f.state.addUser("carol")

	s1 := newTestSession(f)
	s1.dispatch(ctx, registerEnvelope("alice"))
	s1.dispatch(ctx, registerEnvelope("bob"))

	// the abandoned name is gone from both registries
	_, ok := f.tracker.Lookup("alice")
	require.False(t, ok)
	require.False(t, f.hub.SendToUser("alice", "ping", nil))

	got, ok := f.tracker.Lookup("bob")
	require.True(t, ok)
	require.Same(t, s1, got.(*session))

	s1.teardown(ctx)

	// another user's disconnect broadcasts userStatus to every
	// connection; no registry entry may still point at the closed session
	s2 := newTestSession(f)
	s2.dispatch(ctx, registerEnvelope("carol"))
	f.coord.Disconnect(ctx, "carol", s2)

	// delivery to a closed session is a silent no-op, never a panic
	s1.Deliver("userStatus", map[string]any{"userName": "carol"})
}

func TestTeardownIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.state.addUser("alice")

	s := newTestSession(f)
	s.dispatch(ctx, registerEnvelope("alice"))
	s.teardown(ctx)
	s.teardown(ctx)
}

// A reconnect replaces the user's session; the old socket's late close
// must not tear down the live one or pull the user's membership.
func TestStaleSocketCloseKeepsLiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.state.addUser("alice")
	f.state.addUser("bob")

	chat, err := f.members.FindOrCreatePersonal(ctx, "alice", "bob")
	require.NoError(t, err)

	s1 := newTestSession(f)
	s1.dispatch(ctx, registerEnvelope("alice"))

	s2 := newTestSession(f)
	s2.dispatch(ctx, registerEnvelope("alice"))
	_, err = f.coord.JoinChat(ctx, chat.Number, "alice", s2)
	require.NoError(t, err)

	s1.teardown(ctx)

	got, ok := f.tracker.Lookup("alice")
	require.True(t, ok)
	require.Same(t, s2, got.(*session))
	require.True(t, f.hub.SendToUser("alice", "ping", nil))

	current, err := f.state.ChatByID(ctx, chat.ID)
	require.NoError(t, err)
	require.Contains(t, current.Users, "alice")
}
