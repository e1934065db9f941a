// Package repository is the Mongo-backed document store for users, chats,
// counters and messages. Shared state (member sets, counters) is mutated
// only through atomic update operators, never read-modify-write.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/juhwano/backend-challenge-chat-server/internal/apperr"
)

const opTimeout = 5 * time.Second

type MongoRepository struct {
	client   *mongo.Client
	db       *mongo.Database
	users    *mongo.Collection
	chats    *mongo.Collection
	counters *mongo.Collection
	messages *mongo.Collection
}

func NewMongoRepository(ctx context.Context, uri, dbName string) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	r := &MongoRepository{
		client:   client,
		db:       db,
		users:    db.Collection("users"),
		chats:    db.Collection("chats"),
		counters: db.Collection("counters"),
		messages: db.Collection("messages"),
	}
	r.ensureIndexes(ctx)
	return r, nil
}

func (r *MongoRepository) ensureIndexes(ctx context.Context) {
	_, _ = r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	_, _ = r.chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"pair_key": bson.M{"$exists": true}}),
		},
	})
	_, _ = r.counters.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}},
		Options: options.Index().SetUnique(true).
			SetPartialFilterExpression(bson.M{"chat_id": bson.M{"$exists": true}}),
	})
	_, _ = r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "sequence", Value: 1}},
	})
}

func (r *MongoRepository) Disconnect(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// storeErr maps driver failures onto the shared taxonomy. Not-found is
// mapped per call site since it depends on the entity being looked up.
func storeErr(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, apperr.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w: %v", op, apperr.ErrStoreUnavailable, err)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
