package model

import "context"

type (
	// AccessService is the query surface of the access-control store.
	// Documents are keyed by handle (users), group name (groups) and chat
	// title (chats); Telegram IDs are attached as the bot learns them.
	AccessService interface {
		FindUser(ctx context.Context, handle string) (*User, error)
		FindGroupsContaining(ctx context.Context, handle string) ([]Group, error)
		FindChatsAuthorizedFor(ctx context.Context, handle string, groupNames []string) ([]Chat, error)
		FindChat(ctx context.Context, telegramID int64) (*Chat, error)
		UpsertChatManaged(ctx context.Context, title string, telegramID int64) error
		ListManagedChats(ctx context.Context) ([]Chat, error)
		GroupMembers(ctx context.Context, groupName string) ([]int64, error)
		ChatCurrentMembers(ctx context.Context, telegramID int64) ([]int64, error)
		ChatAllowedGroupsAndUsers(ctx context.Context, telegramID int64) ([]string, []int64, error)
	}

	User struct {
		Handle     string `bson:"_id"`
		TelegramID int64  `bson:"tgid,omitempty"`
	}

	Group struct {
		Name      string   `bson:"_id"`
		UserNames []string `bson:"user_ids,omitempty"`
		MemberIDs []int64  `bson:"members_tgids,omitempty"`
	}

	Chat struct {
		Title          string   `bson:"_id"`
		TelegramID     int64    `bson:"tg_id,omitempty"`
		Managed        bool     `bson:"managed,omitempty"`
		AllowedUsers   []string `bson:"allowed_users,omitempty"`
		AllowedGroups  []string `bson:"allowed_groups,omitempty"`
		AllowedUserIDs []int64  `bson:"allowed_users_tgids,omitempty"`
		CurrentMembers []int64  `bson:"current_members,omitempty"`
	}
)
