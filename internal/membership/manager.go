// Package membership owns authoritative chat-membership state: idempotent
// add/remove, the group capacity limit, personal-chat pair identity, and
// the active/soft-deleted chat state machine.
package membership

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/juhwano/backend-challenge-chat-server/internal/apperr"
	"github.com/juhwano/backend-challenge-chat-server/internal/models"
)

// Store is the set of atomic chat-store primitives the manager builds on.
// Implementations must make each call atomic across processes sharing the
// store ($addToSet, $pull, findOneAndUpdate equivalents), never
// read-modify-write.
type Store interface {
	ChatByID(ctx context.Context, chatID string) (*models.Chat, error)

	// AppendMember atomically adds the user to the chat's member set and
	// reactivates the chat. Adding an existing member is a no-op that
	// still returns the current chat. For group chats the add must fail
	// with apperr.ErrCapacityExceeded, without mutating, when the member
	// set already holds capacity users and the user is not among them.
	AppendMember(ctx context.Context, chatID, userName string, capacity int) (*models.Chat, error)

	// PullMember atomically removes the user and returns the updated
	// chat. Removing a non-member is a no-op.
	PullMember(ctx context.Context, chatID, userName string) (*models.Chat, error)

	// SoftDeleteChat marks the chat inactive with a deletion timestamp.
	SoftDeleteChat(ctx context.Context, chatID string, at time.Time) error

	// ReactivateChat clears the deletion mark, sets the chat active and
	// resets its member set, returning the updated chat.
	ReactivateChat(ctx context.Context, chatID string, users []string) (*models.Chat, error)

	// PersonalChatByPair finds the personal chat for a pair key,
	// soft-deleted or not. apperr.ErrChatNotFound when none exists.
	PersonalChatByPair(ctx context.Context, pairKey string) (*models.Chat, error)

	// InsertChat persists a new chat, failing with apperr.ErrDuplicate
	// on a display-number or pair-key uniqueness conflict.
	InsertChat(ctx context.Context, chat *models.Chat) error

	// NextChatNumber atomically allocates the next display number.
	NextChatNumber(ctx context.Context) (int64, error)
}

// GroupCapacity is the default concurrent-participant limit per group chat.
const GroupCapacity = 100

type Manager struct {
	store    Store
	capacity int
}

func NewManager(store Store, capacity int) *Manager {
	if capacity <= 0 {
		capacity = GroupCapacity
	}
	return &Manager{store: store, capacity: capacity}
}

// AddMember joins a user to a chat. Idempotent; a join also reactivates a
// soft-deleted chat.
func (m *Manager) AddMember(ctx context.Context, chatID, userName string) (*models.Chat, error) {
	return m.store.AppendMember(ctx, chatID, userName, m.capacity)
}

// RemoveMember removes a user from a chat. Idempotent. When the member
// set reaches zero the chat transitions to inactive + soft-deleted.
func (m *Manager) RemoveMember(ctx context.Context, chatID, userName string) (*models.Chat, error) {
	chat, err := m.store.PullMember(ctx, chatID, userName)
	if err != nil {
		return nil, err
	}
	if len(chat.Users) == 0 && chat.DeletedAt == nil {
		now := time.Now().UTC()
		if err := m.store.SoftDeleteChat(ctx, chat.ID, now); err != nil {
			return nil, err
		}
		chat.Active = false
		chat.DeletedAt = &now
	}
	return chat, nil
}

// FindOrCreatePersonal returns the one personal chat for the unordered
// {owner, other} pair, reactivating a soft-deleted one or creating a new
// chat with a freshly allocated display number. A creation race against
// another process resolves to the winner's chat.
func (m *Manager) FindOrCreatePersonal(ctx context.Context, owner, other string) (*models.Chat, error) {
	key := PairKey(owner, other)

	chat, err := m.store.PersonalChatByPair(ctx, key)
	switch {
	case err == nil:
		return m.reactivateIfDeleted(ctx, chat, owner, other)
	case !errors.Is(err, apperr.ErrChatNotFound):
		return nil, err
	}

	number, err := m.store.NextChatNumber(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	chat = &models.Chat{
		ChatName:   other,
		Number:     number,
		Active:     true,
		IsPersonal: true,
		PairKey:    key,
		Owner:      owner,
		Users:      []string{owner, other},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.InsertChat(ctx, chat); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			existing, err2 := m.store.PersonalChatByPair(ctx, key)
			if err2 != nil {
				return nil, err2
			}
			return m.reactivateIfDeleted(ctx, existing, owner, other)
		}
		return nil, err
	}
	return chat, nil
}

// CreateGroup creates a group chat with a freshly allocated display
// number and the owner as its first member.
func (m *Manager) CreateGroup(ctx context.Context, chatName, owner string) (*models.Chat, error) {
	number, err := m.store.NextChatNumber(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	chat := &models.Chat{
		ChatName:   chatName,
		Number:     number,
		Active:     true,
		IsPersonal: false,
		Owner:      owner,
		Users:      []string{owner},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.InsertChat(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (m *Manager) reactivateIfDeleted(ctx context.Context, chat *models.Chat, owner, other string) (*models.Chat, error) {
	if chat.DeletedAt == nil {
		return chat, nil
	}
	return m.store.ReactivateChat(ctx, chat.ID, []string{owner, other})
}

// PairKey builds the canonical identity of a personal chat: the two
// usernames sorted and joined, so (a,b) and (b,a) collide.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}
