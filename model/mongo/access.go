package mongo

import (
	"context"
	"errors"

	"github.com/girafe-ai/keeper-bot/logger"
	"github.com/girafe-ai/keeper-bot/model"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type accessService struct {
	users  *mongo.Collection
	groups *mongo.Collection
	chats  *mongo.Collection
	log    zerolog.Logger
}

func NewAccessService(db *mongo.Database) *accessService {
	return &accessService{
		users:  db.Collection("users"),
		groups: db.Collection("groups"),
		chats:  db.Collection("chats"),
		log:    logger.New("accessService"),
	}
}

func (db *accessService) FindUser(ctx context.Context, handle string) (*model.User, error) {
	var user model.User
	err := db.users.FindOne(ctx, bson.M{"_id": handle}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *accessService) FindGroupsContaining(ctx context.Context, handle string) ([]model.Group, error) {
	cur, err := db.groups.Find(ctx, bson.M{"user_ids": handle})
	if err != nil {
		return nil, err
	}

	var groups []model.Group
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (db *accessService) FindChatsAuthorizedFor(ctx context.Context, handle string, groupNames []string) ([]model.Chat, error) {
	if groupNames == nil {
		groupNames = []string{}
	}

	filter := bson.M{"$or": bson.A{
		bson.M{"allowed_users": handle},
		bson.M{"allowed_groups": bson.M{"$in": groupNames}},
	}}

	cur, err := db.chats.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	var chats []model.Chat
	if err := cur.All(ctx, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (db *accessService) FindChat(ctx context.Context, telegramID int64) (*model.Chat, error) {
	var chat model.Chat
	err := db.chats.FindOne(ctx, bson.M{"tg_id": telegramID}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// UpsertChatManaged marks the chat as gatekept and records its Telegram ID.
// Keyed on the chat title, so replaying the same event is a no-op.
func (db *accessService) UpsertChatManaged(ctx context.Context, title string, telegramID int64) error {
	_, err := db.chats.UpdateOne(ctx,
		bson.M{"_id": title},
		bson.M{"$set": bson.M{
			"tg_id":   telegramID,
			"managed": true,
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return err
	}

	db.log.Info().
		Str("chat", title).
		Int64("chat_id", telegramID).
		Msg("Chat is now managed")
	return nil
}

func (db *accessService) ListManagedChats(ctx context.Context) ([]model.Chat, error) {
	filter := bson.M{
		"managed": true,
		"tg_id":   bson.M{"$exists": true, "$ne": int64(0)},
	}

	cur, err := db.chats.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	var chats []model.Chat
	if err := cur.All(ctx, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (db *accessService) GroupMembers(ctx context.Context, groupName string) ([]int64, error) {
	var group model.Group
	err := db.groups.FindOne(ctx, bson.M{"_id": groupName}).Decode(&group)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return group.MemberIDs, nil
}

func (db *accessService) ChatCurrentMembers(ctx context.Context, telegramID int64) ([]int64, error) {
	chat, err := db.FindChat(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return chat.CurrentMembers, nil
}

func (db *accessService) ChatAllowedGroupsAndUsers(ctx context.Context, telegramID int64) ([]string, []int64, error) {
	chat, err := db.FindChat(ctx, telegramID)
	if err != nil {
		return nil, nil, err
	}
	return chat.AllowedGroups, chat.AllowedUserIDs, nil
}
