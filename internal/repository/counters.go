package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/juhwano/backend-challenge-chat-server/internal/models"
)

// chatNumberKey is the _id of the allocator document for chat display
// numbers. It lives in the counters collection next to the per-chat
// message counters, which are keyed by chat_id instead.
const chatNumberKey = "chat_number"

// NextSequence atomically increments and returns the chat's message
// counter, creating it at zero on first use. Implements
// sequence.Sequencer. On any store failure the caller must abort the
// send; nothing may be persisted or broadcast with an unissued number.
func (r *MongoRepository) NextSequence(ctx context.Context, chatID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res := r.counters.FindOneAndUpdate(
		ctx,
		bson.M{"chat_id": chatID},
		bson.M{"$inc": bson.M{"sequence": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var counter models.Counter
	if err := res.Decode(&counter); err != nil {
		return 0, storeErr("next sequence", err)
	}
	return counter.Sequence, nil
}

// NextChatNumber atomically allocates the next chat display number. This
// replaces the racy find-max-plus-one allocation: two concurrent chat
// creations can never draw the same number.
func (r *MongoRepository) NextChatNumber(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res := r.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": chatNumberKey},
		bson.M{"$inc": bson.M{"sequence": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var counter models.Counter
	if err := res.Decode(&counter); err != nil {
		return 0, storeErr("next chat number", err)
	}
	return counter.Sequence, nil
}
