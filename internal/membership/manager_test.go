package membership

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juhwano/backend-challenge-chat-server/internal/apperr"
	"github.com/juhwano/backend-challenge-chat-server/internal/models"
)

// memStore implements Store with the same atomicity contract the Mongo
// repository provides, guarded by one mutex.
type memStore struct {
	mu         sync.Mutex
	chats      map[string]*models.Chat
	nextID     int
	nextNumber int64

	// invoked after number allocation, before the lock is reacquired for
	// InsertChat; lets tests interleave a competing creation.
	onNumberAllocated func()
}

func newMemStore() *memStore {
	return &memStore{chats: map[string]*models.Chat{}}
}

func (s *memStore) addChat(chat *models.Chat) *models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	chat.ID = fmt.Sprintf("chat-%d", s.nextID)
	s.chats[chat.ID] = chat
	return chat
}

func (s *memStore) ChatByID(_ context.Context, chatID string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, apperr.ErrChatNotFound
	}
	cp := *chat
	return &cp, nil
}

func (s *memStore) AppendMember(_ context.Context, chatID, userName string, capacity int) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, apperr.ErrChatNotFound
	}
	member := false
	for _, u := range chat.Users {
		if u == userName {
			member = true
			break
		}
	}
	if !member {
		if !chat.IsPersonal && len(chat.Users) >= capacity {
			return nil, apperr.ErrCapacityExceeded
		}
		chat.Users = append(chat.Users, userName)
	}
	chat.Active = true
	chat.DeletedAt = nil
	cp := *chat
	return &cp, nil
}

func (s *memStore) PullMember(_ context.Context, chatID, userName string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, apperr.ErrChatNotFound
	}
	users := chat.Users[:0:0]
	for _, u := range chat.Users {
		if u != userName {
			users = append(users, u)
		}
	}
	chat.Users = users
	cp := *chat
	return &cp, nil
}

func (s *memStore) SoftDeleteChat(_ context.Context, chatID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return apperr.ErrChatNotFound
	}
	chat.Active = false
	chat.DeletedAt = &at
	return nil
}

func (s *memStore) ReactivateChat(_ context.Context, chatID string, users []string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, apperr.ErrChatNotFound
	}
	chat.Active = true
	chat.DeletedAt = nil
	chat.Users = append([]string(nil), users...)
	cp := *chat
	return &cp, nil
}

func (s *memStore) PersonalChatByPair(_ context.Context, pairKey string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chat := range s.chats {
		if chat.IsPersonal && chat.PairKey == pairKey {
			cp := *chat
			return &cp, nil
		}
	}
	return nil, apperr.ErrChatNotFound
}

func (s *memStore) InsertChat(_ context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.chats {
		if existing.Number == chat.Number ||
			(chat.PairKey != "" && existing.PairKey == chat.PairKey) {
			return apperr.ErrDuplicate
		}
	}
	s.nextID++
	chat.ID = fmt.Sprintf("chat-%d", s.nextID)
	s.chats[chat.ID] = chat
	return nil
}

func (s *memStore) NextChatNumber(_ context.Context) (int64, error) {
	s.mu.Lock()
	s.nextNumber++
	n := s.nextNumber
	s.mu.Unlock()
	if s.onNumberAllocated != nil {
		s.onNumberAllocated()
	}
	return n, nil
}

func groupChat(store *memStore, users ...string) *models.Chat {
	return store.addChat(&models.Chat{
		ChatName:   "room",
		Number:     99,
		Active:     true,
		IsPersonal: false,
		Owner:      "alice",
		Users:      users,
	})
}

func TestAddMemberIdempotent(t *testing.T) {
	store := newMemStore()
	chat := groupChat(store, "alice")
	m := NewManager(store, 0)
	ctx := context.Background()

	first, err := m.AddMember(ctx, chat.ID, "bob")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, first.Users)

	second, err := m.AddMember(ctx, chat.ID, "bob")
	require.NoError(t, err)
	require.ElementsMatch(t, first.Users, second.Users)
}

func TestAddMemberCapacity(t *testing.T) {
	store := newMemStore()
	users := make([]string, 100)
	for i := range users {
		users[i] = fmt.Sprintf("user-%d", i)
	}
	chat := groupChat(store, users...)
	m := NewManager(store, 0)
	ctx := context.Background()

	_, err := m.AddMember(ctx, chat.ID, "user-101")
	require.ErrorIs(t, err, apperr.ErrCapacityExceeded)

	got, err := store.ChatByID(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, got.Users, 100)

	// an existing member is still a no-op, not a capacity failure
	_, err = m.AddMember(ctx, chat.ID, "user-0")
	require.NoError(t, err)
}

func TestAddMemberReactivatesChat(t *testing.T) {
	store := newMemStore()
	chat := groupChat(store, "alice")
	m := NewManager(store, 0)
	ctx := context.Background()

	_, err := m.RemoveMember(ctx, chat.ID, "alice")
	require.NoError(t, err)

	got, err := m.AddMember(ctx, chat.ID, "bob")
	require.NoError(t, err)
	require.True(t, got.Active)
	require.Nil(t, got.DeletedAt)
}

func TestRemoveMemberIdempotent(t *testing.T) {
	store := newMemStore()
	chat := groupChat(store, "alice", "bob")
	m := NewManager(store, 0)
	ctx := context.Background()

	got, err := m.RemoveMember(ctx, chat.ID, "carol")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, got.Users)
}

func TestRemoveLastMemberSoftDeletes(t *testing.T) {
	store := newMemStore()
	chat := groupChat(store, "alice")
	m := NewManager(store, 0)
	ctx := context.Background()

	got, err := m.RemoveMember(ctx, chat.ID, "alice")
	require.NoError(t, err)
	require.Empty(t, got.Users)
	require.False(t, got.Active)
	require.NotNil(t, got.DeletedAt)
}

func TestFindOrCreatePersonalPairIsUnordered(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, 0)
	ctx := context.Background()

	ab, err := m.FindOrCreatePersonal(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, int64(1), ab.Number)
	require.True(t, ab.IsPersonal)

	ba, err := m.FindOrCreatePersonal(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, ab.ID, ba.ID)
}

func TestFindOrCreatePersonalReactivatesSameChat(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, 0)
	ctx := context.Background()

	chat, err := m.FindOrCreatePersonal(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = m.RemoveMember(ctx, chat.ID, "alice")
	require.NoError(t, err)
	got, err := m.RemoveMember(ctx, chat.ID, "bob")
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)

	revived, err := m.FindOrCreatePersonal(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, chat.ID, revived.ID, "reactivation must reuse the chat identity")
	require.True(t, revived.Active)
	require.Nil(t, revived.DeletedAt)
	require.ElementsMatch(t, []string{"alice", "bob"}, revived.Users)
}

func TestFindOrCreatePersonalLosesRaceGracefully(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, 0)
	ctx := context.Background()

	// another process inserts the pair chat between our lookup miss and
	// our insert; the duplicate-key path must return that chat.
	var winner *models.Chat
	store.onNumberAllocated = func() {
		winner = store.addChat(&models.Chat{
			ChatName:   "bob",
			Number:     100,
			Active:     true,
			IsPersonal: true,
			PairKey:    PairKey("alice", "bob"),
			Owner:      "bob",
			Users:      []string{"alice", "bob"},
		})
	}

	got, err := m.FindOrCreatePersonal(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, winner.ID, got.ID)
}

func TestCreateGroupAllocatesDistinctNumbers(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, 0)
	ctx := context.Background()

	first, err := m.CreateGroup(ctx, "gophers", "alice")
	require.NoError(t, err)
	second, err := m.CreateGroup(ctx, "rustaceans", "bob")
	require.NoError(t, err)

	require.Equal(t, int64(1), first.Number)
	require.Equal(t, int64(2), second.Number)
	require.False(t, first.IsPersonal)
	require.Equal(t, []string{"alice"}, first.Users)
}

func TestPairKey(t *testing.T) {
	require.Equal(t, PairKey("bob", "alice"), PairKey("alice", "bob"))
	require.Equal(t, "alice|bob", PairKey("bob", "alice"))
}
