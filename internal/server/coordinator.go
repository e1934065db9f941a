// Package server is the client-facing surface: websocket sessions, HTTP
// routes and the coordinator that orchestrates join/leave/disconnect
// across the membership manager, presence tracker, hub and bus bridge.
package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/juhwano/backend-challenge-chat-server/internal/bus"
	"github.com/juhwano/backend-challenge-chat-server/internal/hub"
	"github.com/juhwano/backend-challenge-chat-server/internal/membership"
	"github.com/juhwano/backend-challenge-chat-server/internal/models"
	"github.com/juhwano/backend-challenge-chat-server/internal/presence"
)

// Store is the document-store slice the coordinator reads and updates.
type Store interface {
	ChatByID(ctx context.Context, chatID string) (*models.Chat, error)
	ChatByNumber(ctx context.Context, number int64) (*models.Chat, error)
	SetActive(ctx context.Context, userName string, active bool) error
	UsersByNames(ctx context.Context, names []string) ([]models.ChatUser, error)
}

// SystemSender emits sequenced system messages; the message router
// implements it.
type SystemSender interface {
	SendSystem(ctx context.Context, chat *models.Chat, content, chatKind string) (*models.Message, error)
}

// Bridge is the cross-process notification surface of the bus bridge.
type Bridge interface {
	PublishMembership(ctx context.Context, chatID string, users []models.ChatUser)
	PublishPresence(ctx context.Context, userName string, active bool)
}

// PresenceKeys maintains the fast-path active keys; nil disables them.
type PresenceKeys interface {
	MarkUserActive(ctx context.Context, userName string)
	MarkUserInactive(ctx context.Context, userName string)
}

// Coordinator applies one client lifecycle event at a time: join, leave,
// disconnect. Each is idempotent, so a duplicate join request or a
// redelivered disconnect cleanup converges on the same state.
type Coordinator struct {
	store   Store
	members *membership.Manager
	system  SystemSender
	hub     *hub.Hub
	tracker *presence.Tracker
	bridge  Bridge
	keys    PresenceKeys
	log     *zap.SugaredLogger
}

func NewCoordinator(
	store Store,
	members *membership.Manager,
	system SystemSender,
	h *hub.Hub,
	tracker *presence.Tracker,
	bridge Bridge,
	keys PresenceKeys,
	log *zap.SugaredLogger,
) *Coordinator {
	return &Coordinator{
		store:   store,
		members: members,
		system:  system,
		hub:     h,
		tracker: tracker,
		bridge:  bridge,
		keys:    keys,
		log:     log,
	}
}

// Register binds a connected user to its session.
func (c *Coordinator) Register(userName string, conn presence.Conn) {
	c.tracker.Register(userName, conn)
	c.hub.Register(userName, conn)
}

// JoinChat joins the user to the chat identified by display number:
// membership add (authoritative capacity check), room join, system
// message, and the post-change member list pushed to every participant.
func (c *Coordinator) JoinChat(ctx context.Context, number int64, userName string, conn presence.Conn) (*models.Chat, error) {
	chat, err := c.store.ChatByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	chat, err = c.members.AddMember(ctx, chat.ID, userName)
	if err != nil {
		return nil, err
	}

	c.Register(userName, conn)
	c.hub.Join(chat.ID, userName)
	c.tracker.Associate(userName, chat.ID)

	if err := c.store.SetActive(ctx, userName, true); err != nil {
		c.log.Warnw("mark user active failed", "user", userName, "err", err)
	}
	if c.keys != nil {
		c.keys.MarkUserActive(ctx, userName)
	}

	if _, err := c.system.SendSystem(ctx, chat, fmt.Sprintf("%s has joined the chat.", userName), chatKind(chat)); err != nil {
		c.log.Warnw("join system message failed", "chat", chat.ID, "err", err)
	}
	c.notifyMembership(ctx, chat)
	return chat, nil
}

// LeaveChat removes the user from the chat. The membership manager
// soft-deletes the chat when it empties.
func (c *Coordinator) LeaveChat(ctx context.Context, number int64, userName string) error {
	chat, err := c.store.ChatByNumber(ctx, number)
	if err != nil {
		return err
	}
	return c.removeFromChat(ctx, chat, userName)
}

// Disconnect clears all process-local state for the user and runs the
// same idempotent membership cleanup a leave would. Called from the
// socket close path; an in-flight operation for this user may still
// complete afterwards, which is why removal tolerates a non-member.
// conn scopes the cleanup to the session that disconnected: when the
// user reconnected and a newer session owns the identity, the stale
// socket's close is a no-op. A nil conn cleans up unconditionally.
func (c *Coordinator) Disconnect(ctx context.Context, userName string, conn presence.Conn) {
	chatID, wasInChat, removed := c.tracker.Remove(userName, conn)
	if !removed {
		return
	}
	c.hub.Unregister(userName, conn)

	if wasInChat {
		if chat, err := c.store.ChatByID(ctx, chatID); err == nil {
			if err := c.removeFromChat(ctx, chat, userName); err != nil {
				c.log.Warnw("disconnect membership cleanup failed", "user", userName, "chat", chatID, "err", err)
			}
		} else {
			c.log.Warnw("disconnect chat lookup failed", "user", userName, "chat", chatID, "err", err)
		}
	}

	if err := c.store.SetActive(ctx, userName, false); err != nil {
		c.log.Warnw("mark user inactive failed", "user", userName, "err", err)
	}
	if c.keys != nil {
		c.keys.MarkUserInactive(ctx, userName)
	}

	status := bus.PresencePayload{UserName: userName, Active: false}
	c.hub.BroadcastAll("userStatus", status)
	c.bridge.PublishPresence(ctx, userName, false)
}

func (c *Coordinator) removeFromChat(ctx context.Context, chat *models.Chat, userName string) error {
	c.hub.Leave(chat.ID, userName)
	c.tracker.Dissociate(userName)

	updated, err := c.members.RemoveMember(ctx, chat.ID, userName)
	if err != nil {
		return err
	}

	if _, err := c.system.SendSystem(ctx, updated, fmt.Sprintf("%s has left the chat.", userName), chatKind(updated)); err != nil {
		c.log.Warnw("leave system message failed", "chat", updated.ID, "err", err)
	}
	c.notifyMembership(ctx, updated)
	return nil
}

// notifyMembership pushes the fresh member presence list to local
// participants and to the other processes.
func (c *Coordinator) notifyMembership(ctx context.Context, chat *models.Chat) {
	users, err := c.store.UsersByNames(ctx, chat.Users)
	if err != nil {
		c.log.Warnw("member list lookup failed", "chat", chat.ID, "err", err)
		return
	}
	c.hub.Broadcast(chat.ID, "connectedUsers", users)
	c.bridge.PublishMembership(ctx, chat.ID, users)
}

func chatKind(chat *models.Chat) string {
	if chat.IsPersonal {
		return bus.ChatKindPersonal
	}
	return bus.ChatKindGroup
}
