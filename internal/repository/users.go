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

// UpsertLogin creates or reactivates a user on login and marks it
// connected. Usernames are immutable identities; re-login reuses the
// record.
func (r *MongoRepository) UpsertLogin(ctx context.Context, userName string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	res := r.users.FindOneAndUpdate(
		ctx,
		bson.M{"user_name": userName},
		bson.M{
			"$set": bson.M{"active": true, "deleted_at": nil, "updated_at": now},
			"$setOnInsert": bson.M{
				"_id":        primitive.NewObjectID().Hex(),
				"user_name":  userName,
				"created_at": now,
			},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var user models.User
	if err := res.Decode(&user); err != nil {
		return nil, storeErr("upsert login", err)
	}
	return &user, nil
}

// SetActive flips the user's connection flag. Missing users are a no-op:
// disconnect cleanup may race an account that never logged in.
func (r *MongoRepository) SetActive(ctx context.Context, userName string, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.users.UpdateOne(
		ctx,
		bson.M{"user_name": userName},
		bson.M{"$set": bson.M{"active": active, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return storeErr("set active", err)
	}
	return nil
}

func (r *MongoRepository) UserByName(ctx context.Context, userName string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var user models.User
	if err := r.users.FindOne(ctx, bson.M{"user_name": userName}).Decode(&user); err != nil {
		if isNoDocuments(err) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, storeErr("user by name", err)
	}
	return &user, nil
}

// ActiveUserNames lists the usernames currently marked connected.
func (r *MongoRepository) ActiveUserNames(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := r.users.Find(ctx, bson.M{"active": true},
		options.Find().SetProjection(bson.M{"user_name": 1}))
	if err != nil {
		return nil, storeErr("active users", err)
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, storeErr("active users", err)
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.UserName)
	}
	return names, nil
}

// SearchUsers matches usernames case-insensitively on a substring.
func (r *MongoRepository) SearchUsers(ctx context.Context, query string) ([]models.ChatUser, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"user_name": bson.M{"$regex": query, "$options": "i"}}
	cur, err := r.users.Find(ctx, filter,
		options.Find().SetProjection(bson.M{"user_name": 1, "active": 1}))
	if err != nil {
		return nil, storeErr("search users", err)
	}
	out := []models.ChatUser{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeErr("search users", err)
	}
	return out, nil
}

// UsersByNames returns the presence view of the given members, pushed to
// clients as the connectedUsers payload after membership changes.
func (r *MongoRepository) UsersByNames(ctx context.Context, names []string) ([]models.ChatUser, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if len(names) == 0 {
		return []models.ChatUser{}, nil
	}
	cur, err := r.users.Find(ctx, bson.M{"user_name": bson.M{"$in": names}},
		options.Find().SetProjection(bson.M{"user_name": 1, "active": 1}))
	if err != nil {
		return nil, storeErr("users by names", err)
	}
	out := []models.ChatUser{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeErr("users by names", err)
	}
	return out, nil
}
