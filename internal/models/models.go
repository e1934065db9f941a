package models

import "time"

// User identity is the username; records are upserted on login and only
// ever soft-deleted.
type User struct {
	ID        string     `bson:"_id,omitempty" json:"id"`
	UserName  string     `bson:"user_name" json:"userName"`
	Active    bool       `bson:"active" json:"active"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updatedAt"`
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deletedAt,omitempty"`
}

// Chat is a conversation, personal (two fixed users) or group.
// Number is the human-facing display number, unique per deployment.
// PairKey is set only for personal chats: the two usernames sorted and
// joined, so the unordered pair maps to exactly one chat.
type Chat struct {
	ID         string     `bson:"_id,omitempty" json:"id"`
	ChatName   string     `bson:"chat_name" json:"chatName"`
	Number     int64      `bson:"number" json:"number"`
	Active     bool       `bson:"active" json:"active"`
	IsPersonal bool       `bson:"is_personal" json:"isPersonal"`
	PairKey    string     `bson:"pair_key,omitempty" json:"-"`
	Owner      string     `bson:"owner" json:"owner"`
	Users      []string   `bson:"users" json:"users"`
	CreatedAt  time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updatedAt"`
	DeletedAt  *time.Time `bson:"deleted_at,omitempty" json:"deletedAt,omitempty"`
}

// Counter is the per-chat sequence allocator. One document per chat,
// mutated only via atomic increment-and-fetch.
type Counter struct {
	ChatID   string `bson:"chat_id,omitempty" json:"chatId"`
	Sequence int64  `bson:"sequence" json:"sequence"`
}

// Message is immutable once persisted except for soft-delete marking.
// From is empty for system messages. Sequence establishes display order;
// never sort by timestamp.
type Message struct {
	ID           string     `bson:"_id,omitempty" json:"id"`
	ChatID       string     `bson:"chat_id" json:"chatId"`
	From         string     `bson:"from,omitempty" json:"from,omitempty"`
	FromUserName string     `bson:"from_user_name" json:"fromUserName"`
	To           string     `bson:"to,omitempty" json:"to,omitempty"`
	ToUserName   string     `bson:"to_user_name,omitempty" json:"toUserName,omitempty"`
	Content      string     `bson:"content" json:"content"`
	Sequence     int64      `bson:"sequence" json:"sequence"`
	Timestamp    time.Time  `bson:"timestamp" json:"timestamp"`
	DeletedAt    *time.Time `bson:"deleted_at,omitempty" json:"deletedAt,omitempty"`
}

// ChatUser is the presence view of one chat member pushed to clients
// after every membership change.
type ChatUser struct {
	UserName string `bson:"user_name" json:"userName"`
	Active   bool   `bson:"active" json:"active"`
}

// SystemUserName is the sender recorded on join/leave system messages.
const SystemUserName = "System"
