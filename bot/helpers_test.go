package bot

import (
	"context"
	"fmt"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/girafe-ai/keeper-bot/model"
	"golang.org/x/exp/slices"
)

// fakeAccess is an in-memory AccessService with optional error injection.
type fakeAccess struct {
	users   map[string]*model.User
	groups  []model.Group
	chats   []model.Chat
	upserts []upsertCall
	err     error
}

type upsertCall struct {
	title      string
	telegramID int64
}

func newFakeAccess() *fakeAccess {
	return &fakeAccess{
		users: make(map[string]*model.User),
	}
}

func (f *fakeAccess) FindUser(_ context.Context, handle string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	user, ok := f.users[handle]
	if !ok {
		return nil, model.ErrNotFound
	}
	return user, nil
}

func (f *fakeAccess) FindGroupsContaining(_ context.Context, handle string) ([]model.Group, error) {
	if f.err != nil {
		return nil, f.err
	}
	var groups []model.Group
	for _, group := range f.groups {
		if slices.Contains(group.UserNames, handle) {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

func (f *fakeAccess) FindChatsAuthorizedFor(_ context.Context, handle string, groupNames []string) ([]model.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	var chats []model.Chat
	for _, chat := range f.chats {
		if slices.Contains(chat.AllowedUsers, handle) {
			chats = append(chats, chat)
			continue
		}
		for _, groupName := range chat.AllowedGroups {
			if slices.Contains(groupNames, groupName) {
				chats = append(chats, chat)
				break
			}
		}
	}
	return chats, nil
}

func (f *fakeAccess) FindChat(_ context.Context, telegramID int64) (*model.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.chats {
		if f.chats[i].TelegramID == telegramID {
			return &f.chats[i], nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeAccess) UpsertChatManaged(_ context.Context, title string, telegramID int64) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, upsertCall{title: title, telegramID: telegramID})
	for i := range f.chats {
		if f.chats[i].Title == title {
			f.chats[i].TelegramID = telegramID
			f.chats[i].Managed = true
			return nil
		}
	}
	f.chats = append(f.chats, model.Chat{Title: title, TelegramID: telegramID, Managed: true})
	return nil
}

func (f *fakeAccess) ListManagedChats(_ context.Context) ([]model.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	var managed []model.Chat
	for _, chat := range f.chats {
		if chat.Managed && chat.TelegramID != 0 {
			managed = append(managed, chat)
		}
	}
	return managed, nil
}

func (f *fakeAccess) GroupMembers(_ context.Context, groupName string) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, group := range f.groups {
		if group.Name == groupName {
			return group.MemberIDs, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeAccess) ChatCurrentMembers(ctx context.Context, telegramID int64) ([]int64, error) {
	chat, err := f.FindChat(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return chat.CurrentMembers, nil
}

func (f *fakeAccess) ChatAllowedGroupsAndUsers(ctx context.Context, telegramID int64) ([]string, []int64, error) {
	chat, err := f.FindChat(ctx, telegramID)
	if err != nil {
		return nil, nil, err
	}
	return chat.AllowedGroups, chat.AllowedUserIDs, nil
}

// fakeTelegram records outbound Bot API calls and can fail sends to chosen
// recipients.
type fakeTelegram struct {
	sent       []sentMessage
	failSendTo map[int64]bool
	admins     map[int64][]gotgbot.ChatMember
	members    map[int64]map[int64]gotgbot.ChatMember
	invites    map[int64]string
	failInvite map[int64]bool
	banned     []int64
}

type sentMessage struct {
	chatID int64
	text   string
}

func newFakeTelegram() *fakeTelegram {
	return &fakeTelegram{
		failSendTo: make(map[int64]bool),
		admins:     make(map[int64][]gotgbot.ChatMember),
		members:    make(map[int64]map[int64]gotgbot.ChatMember),
		invites:    make(map[int64]string),
		failInvite: make(map[int64]bool),
	}
}

func (f *fakeTelegram) SendMessage(chatId int64, text string, _ *gotgbot.SendMessageOpts) (*gotgbot.Message, error) {
	if f.failSendTo[chatId] {
		return nil, fmt.Errorf("send to %d failed", chatId)
	}
	f.sent = append(f.sent, sentMessage{chatID: chatId, text: text})
	return &gotgbot.Message{}, nil
}

func (f *fakeTelegram) CreateChatInviteLink(chatId int64, _ *gotgbot.CreateChatInviteLinkOpts) (*gotgbot.ChatInviteLink, error) {
	if f.failInvite[chatId] {
		return nil, fmt.Errorf("invite link for %d failed", chatId)
	}
	link, ok := f.invites[chatId]
	if !ok {
		link = fmt.Sprintf("https://t.me/+chat%d", chatId)
	}
	return &gotgbot.ChatInviteLink{InviteLink: link}, nil
}

func (f *fakeTelegram) GetChatAdministrators(chatId int64, _ *gotgbot.GetChatAdministratorsOpts) ([]gotgbot.ChatMember, error) {
	return f.admins[chatId], nil
}

func (f *fakeTelegram) GetChatMember(chatId int64, userId int64, _ *gotgbot.GetChatMemberOpts) (gotgbot.ChatMember, error) {
	member, ok := f.members[chatId][userId]
	if !ok {
		return nil, fmt.Errorf("member %d not found in %d", userId, chatId)
	}
	return member, nil
}

func (f *fakeTelegram) BanChatMember(chatId int64, userId int64, _ *gotgbot.BanChatMemberOpts) (bool, error) {
	f.banned = append(f.banned, userId)
	return true, nil
}

func (f *fakeTelegram) sentTo(chatID int64) []sentMessage {
	var msgs []sentMessage
	for _, msg := range f.sent {
		if msg.chatID == chatID {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}
