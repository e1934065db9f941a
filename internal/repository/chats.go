package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/juhwano/backend-challenge-chat-server/internal/apperr"
	"github.com/juhwano/backend-challenge-chat-server/internal/models"
)

func (r *MongoRepository) ChatByID(ctx context.Context, chatID string) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var chat models.Chat
	if err := r.chats.FindOne(ctx, bson.M{"_id": chatID}).Decode(&chat); err != nil {
		if isNoDocuments(err) {
			return nil, apperr.ErrChatNotFound
		}
		return nil, storeErr("chat by id", err)
	}
	return &chat, nil
}

// ChatByNumber resolves a chat by its display number, soft-deleted or not.
func (r *MongoRepository) ChatByNumber(ctx context.Context, number int64) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var chat models.Chat
	if err := r.chats.FindOne(ctx, bson.M{"number": number}).Decode(&chat); err != nil {
		if isNoDocuments(err) {
			return nil, apperr.ErrChatNotFound
		}
		return nil, storeErr("chat by number", err)
	}
	return &chat, nil
}

// AppendMember adds the user to the member set with one atomic update.
// The filter admits the chat when the user is already a member (idempotent
// no-op), when the chat is personal, or when a group still has room; a
// full group therefore never matches, and nothing is mutated.
func (r *MongoRepository) AppendMember(ctx context.Context, chatID, userName string, capacity int) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{
		"_id": chatID,
		"$or": []bson.M{
			{"users": userName},
			{"is_personal": true},
			{"$expr": bson.M{"$lt": bson.A{bson.M{"$size": "$users"}, capacity}}},
		},
	}
	update := bson.M{
		"$addToSet": bson.M{"users": userName},
		"$set": bson.M{
			"active":     true,
			"deleted_at": nil,
			"updated_at": time.Now().UTC(),
		},
	}
	res := r.chats.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After))

	var chat models.Chat
	err := res.Decode(&chat)
	if err == nil {
		return &chat, nil
	}
	if !isNoDocuments(err) {
		return nil, storeErr("append member", err)
	}
	// distinguish a missing chat from a full one
	if _, lookupErr := r.ChatByID(ctx, chatID); lookupErr != nil {
		return nil, lookupErr
	}
	return nil, apperr.ErrCapacityExceeded
}

func (r *MongoRepository) PullMember(ctx context.Context, chatID, userName string) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res := r.chats.FindOneAndUpdate(
		ctx,
		bson.M{"_id": chatID},
		bson.M{
			"$pull": bson.M{"users": userName},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var chat models.Chat
	if err := res.Decode(&chat); err != nil {
		if isNoDocuments(err) {
			return nil, apperr.ErrChatNotFound
		}
		return nil, storeErr("pull member", err)
	}
	return &chat, nil
}

func (r *MongoRepository) SoftDeleteChat(ctx context.Context, chatID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.chats.UpdateOne(
		ctx,
		bson.M{"_id": chatID},
		bson.M{"$set": bson.M{"active": false, "deleted_at": at, "updated_at": at}},
	)
	if err != nil {
		return storeErr("soft delete chat", err)
	}
	return nil
}

func (r *MongoRepository) ReactivateChat(ctx context.Context, chatID string, users []string) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res := r.chats.FindOneAndUpdate(
		ctx,
		bson.M{"_id": chatID},
		bson.M{"$set": bson.M{
			"active":     true,
			"deleted_at": nil,
			"users":      users,
			"updated_at": time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var chat models.Chat
	if err := res.Decode(&chat); err != nil {
		if isNoDocuments(err) {
			return nil, apperr.ErrChatNotFound
		}
		return nil, storeErr("reactivate chat", err)
	}
	return &chat, nil
}

func (r *MongoRepository) PersonalChatByPair(ctx context.Context, pairKey string) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var chat models.Chat
	err := r.chats.FindOne(ctx, bson.M{"is_personal": true, "pair_key": pairKey}).Decode(&chat)
	if err != nil {
		if isNoDocuments(err) {
			return nil, apperr.ErrChatNotFound
		}
		return nil, storeErr("personal chat by pair", err)
	}
	return &chat, nil
}

// InsertChat persists a new chat and creates its companion message
// counter at zero. The counter upsert is idempotent, so a crash between
// the two writes self-heals on the sequencer's first increment.
func (r *MongoRepository) InsertChat(ctx context.Context, chat *models.Chat) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if chat.ID == "" {
		chat.ID = primitive.NewObjectID().Hex()
	}
	if _, err := r.chats.InsertOne(ctx, chat); err != nil {
		return storeErr("insert chat", err)
	}
	_, _ = r.counters.UpdateOne(
		ctx,
		bson.M{"chat_id": chat.ID},
		bson.M{"$setOnInsert": bson.M{"chat_id": chat.ID, "sequence": 0}},
		options.Update().SetUpsert(true),
	)
	return nil
}

// GroupChats lists active group chats, newest first.
func (r *MongoRepository) GroupChats(ctx context.Context, page, limit int64) ([]models.Chat, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"is_personal": false, "active": true}
	total, err := r.chats.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, storeErr("count group chats", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "number", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cur, err := r.chats.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, storeErr("group chats", err)
	}
	chats := []models.Chat{}
	if err := cur.All(ctx, &chats); err != nil {
		return nil, 0, storeErr("group chats", err)
	}
	return chats, total, nil
}

// ChatsByUser lists chats of one kind a user belongs to, newest first.
func (r *MongoRepository) ChatsByUser(ctx context.Context, userName string, personal bool, page, limit int64) ([]models.Chat, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"is_personal": personal, "users": userName}
	total, err := r.chats.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, storeErr("count chats by user", err)
	}
	opts := options.Find().SetSort(bson.D{{Key: "number", Value: -1}})
	if limit > 0 {
		opts = opts.SetSkip((page - 1) * limit).SetLimit(limit)
	}
	cur, err := r.chats.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, storeErr("chats by user", err)
	}
	chats := []models.Chat{}
	if err := cur.All(ctx, &chats); err != nil {
		return nil, 0, storeErr("chats by user", err)
	}
	return chats, total, nil
}
