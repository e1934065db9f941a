package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/juhwano/backend-challenge-chat-server/internal/models"
)

// SaveMessage persists a message idempotently: redelivered persist jobs
// carry the same ID and collapse into one document via $setOnInsert.
func (r *MongoRepository) SaveMessage(ctx context.Context, m *models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if m.ID == "" {
		m.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.messages.UpdateOne(
		ctx,
		bson.M{"_id": m.ID},
		bson.M{"$setOnInsert": m},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return storeErr("save message", err)
	}
	return nil
}

// MessagesByChat returns the chat's messages ordered by sequence number.
// Never sorted by timestamp: issuance order is the display contract even
// when persistence completed out of order.
func (r *MongoRepository) MessagesByChat(ctx context.Context, chatID string) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}})
	cur, err := r.messages.Find(ctx, bson.M{"chat_id": chatID, "deleted_at": nil}, opts)
	if err != nil {
		return nil, storeErr("messages by chat", err)
	}
	out := []models.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeErr("messages by chat", err)
	}
	return out, nil
}

// SoftDeleteMessage marks one message deleted without removing it.
func (r *MongoRepository) SoftDeleteMessage(ctx context.Context, messageID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.messages.UpdateOne(
		ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"deleted_at": time.Now().UTC()}},
	)
	if err != nil {
		return storeErr("soft delete message", err)
	}
	return nil
}
