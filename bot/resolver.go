package bot

import (
	"context"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/girafe-ai/keeper-bot/logger"
	"github.com/girafe-ai/keeper-bot/model"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"
)

// Authorizer answers whether a user belongs in a chat, either directly via
// the chat's allowed_users or transitively through one of its allowed_groups.
// Every verdict is recomputed from the store; the access list is small and
// changes rarely, so correctness wins over latency. Any lookup failure is a
// fail-closed "not authorized".
type Authorizer struct {
	access model.AccessService
	log    zerolog.Logger
}

func NewAuthorizer(access model.AccessService) *Authorizer {
	return &Authorizer{
		access: access,
		log:    logger.New("authorizer"),
	}
}

// AuthorizedChats returns every chat the user is entitled to join.
func (a *Authorizer) AuthorizedChats(ctx context.Context, user *gotgbot.User) ([]model.Chat, error) {
	groups, err := a.access.FindGroupsContaining(ctx, user.Username)
	if err != nil {
		return nil, err
	}

	groupNames := make([]string, 0, len(groups))
	for _, group := range groups {
		groupNames = append(groupNames, group.Name)
	}

	return a.access.FindChatsAuthorizedFor(ctx, user.Username, groupNames)
}

func (a *Authorizer) IsAuthorized(ctx context.Context, user *gotgbot.User, chat *gotgbot.Chat) bool {
	chats, err := a.AuthorizedChats(ctx, user)
	if err != nil {
		a.log.Err(err).
			Int64("user_id", user.Id).
			Int64("chat_id", chat.Id).
			Msg("Authorization lookup failed, treating as not authorized")
		return false
	}

	for _, dbChat := range chats {
		if dbChat.TelegramID == chat.Id {
			return true
		}
	}
	return false
}

// SuspiciousMembers returns the current members of the chat that are not in
// its authorized population: current \ (direct allowed ∪ allowed group
// members). A true set difference, so duplicates and ordering are irrelevant.
func (a *Authorizer) SuspiciousMembers(ctx context.Context, telegramID int64) ([]int64, error) {
	current, err := a.access.ChatCurrentMembers(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	groupNames, allowedIDs, err := a.access.ChatAllowedGroupsAndUsers(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	allowed := make(map[int64]struct{}, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = struct{}{}
	}
	for _, groupName := range groupNames {
		memberIDs, err := a.access.GroupMembers(ctx, groupName)
		if err != nil {
			return nil, err
		}
		for _, id := range memberIDs {
			allowed[id] = struct{}{}
		}
	}

	var suspicious []int64
	for _, id := range current {
		if _, ok := allowed[id]; !ok && !slices.Contains(suspicious, id) {
			suspicious = append(suspicious, id)
		}
	}

	slices.Sort(suspicious)
	return suspicious, nil
}
