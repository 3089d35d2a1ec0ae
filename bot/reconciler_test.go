package bot

import (
	"path/filepath"
	"testing"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/girafe-ai/keeper-bot/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T, access *fakeAccess, ban bool) (*Reconciler, *Registry) {
	t.Helper()
	registry := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	return NewReconciler(access, NewAuthorizer(access), registry, ban), registry
}

func memberUpdate(chat gotgbot.Chat, actor gotgbot.User, oldMember, newMember gotgbot.ChatMember) *ext.Context {
	return &ext.Context{
		Update: &gotgbot.Update{
			ChatMember: &gotgbot.ChatMemberUpdated{
				Chat:          chat,
				From:          actor,
				OldChatMember: oldMember,
				NewChatMember: newMember,
			},
		},
	}
}

func selfUpdate(chat gotgbot.Chat, actor gotgbot.User, oldMember, newMember gotgbot.ChatMember) *ext.Context {
	return &ext.Context{
		Update: &gotgbot.Update{
			MyChatMember: &gotgbot.ChatMemberUpdated{
				Chat:          chat,
				From:          actor,
				OldChatMember: oldMember,
				NewChatMember: newMember,
			},
		},
	}
}

func TestAuthorizedJoinIsWelcomed(t *testing.T) {
	access := newFakeAccess()
	access.chats = []model.Chat{
		{Title: "ml-course", TelegramID: -100, Managed: true, AllowedUsers: []string{"alice"}},
	}

	reconciler, _ := newTestReconciler(t, access, false)
	tg := newFakeTelegram()
	tg.admins[-100] = []gotgbot.ChatMember{
		gotgbot.ChatMemberAdministrator{User: gotgbot.User{Id: 500}},
	}

	alice := gotgbot.User{Id: 1, Username: "alice", FirstName: "Alice"}
	actor := gotgbot.User{Id: 7, FirstName: "Ivan"}
	chat := gotgbot.Chat{Id: -100, Type: gotgbot.ChatTypeSupergroup, Title: "ml-course"}

	err := reconciler.HandleChatMember(tg, memberUpdate(chat, actor,
		gotgbot.ChatMemberLeft{User: alice},
		gotgbot.ChatMemberMember{User: alice},
	))
	require.NoError(t, err)

	// Exactly one welcome into the chat, zero admin alerts.
	require.Len(t, tg.sent, 1)
	assert.Equal(t, int64(-100), tg.sent[0].chatID)
	assert.Contains(t, tg.sent[0].text, "welcome")
	assert.Empty(t, tg.sentTo(500))
	assert.Empty(t, tg.banned)
}

func TestUnauthorizedJoinAlertsEveryAdmin(t *testing.T) {
	access := newFakeAccess()
	access.chats = []model.Chat{
		{Title: "ml-course", TelegramID: -100, Managed: true, AllowedUsers: []string{"alice"}},
	}

	reconciler, _ := newTestReconciler(t, access, false)
	tg := newFakeTelegram()
	tg.admins[-100] = []gotgbot.ChatMember{
		gotgbot.ChatMemberOwner{User: gotgbot.User{Id: 500}},
		gotgbot.ChatMemberAdministrator{User: gotgbot.User{Id: 501}},
		gotgbot.ChatMemberAdministrator{User: gotgbot.User{Id: 502}},
		gotgbot.ChatMemberAdministrator{User: gotgbot.User{Id: 900, IsBot: true}},
	}
	// One unreachable admin must not abort the rest.
	tg.failSendTo[501] = true

	bob := gotgbot.User{Id: 2, Username: "bob", FirstName: "Bob"}
	actor := gotgbot.User{Id: 7, FirstName: "Ivan"}
	chat := gotgbot.Chat{Id: -100, Type: gotgbot.ChatTypeSupergroup, Title: "ml-course"}

	err := reconciler.HandleChatMember(tg, memberUpdate(chat, actor,
		gotgbot.ChatMemberLeft{User: bob},
		gotgbot.ChatMemberMember{User: bob},
	))
	require.NoError(t, err)

	// No welcome into the chat itself.
	assert.Empty(t, tg.sentTo(-100))

	require.Len(t, tg.sentTo(500), 1)
	require.Len(t, tg.sentTo(502), 1)
	assert.Empty(t, tg.sentTo(900))
	assert.Contains(t, tg.sentTo(500)[0].text, "not allowed")

	// Report-only by default.
	assert.Empty(t, tg.banned)
}

func TestUnauthorizedJoinBanPolicy(t *testing.T) {
	access := newFakeAccess()
	access.chats = []model.Chat{
		{Title: "ml-course", TelegramID: -100, Managed: true},
	}

	reconciler, _ := newTestReconciler(t, access, true)
	tg := newFakeTelegram()

	bob := gotgbot.User{Id: 2, Username: "bob", FirstName: "Bob"}
	chat := gotgbot.Chat{Id: -100, Type: gotgbot.ChatTypeSupergroup, Title: "ml-course"}

	err := reconciler.HandleChatMember(tg, memberUpdate(chat, gotgbot.User{Id: 7},
		gotgbot.ChatMemberLeft{User: bob},
		gotgbot.ChatMemberMember{User: bob},
	))
	require.NoError(t, err)

	assert.Equal(t, []int64{2}, tg.banned)
}

func TestDepartureIsAnnounced(t *testing.T) {
	access := newFakeAccess()
	reconciler, _ := newTestReconciler(t, access, false)
	tg := newFakeTelegram()

	alice := gotgbot.User{Id: 1, Username: "alice", FirstName: "Alice"}
	chat := gotgbot.Chat{Id: -100, Type: gotgbot.ChatTypeSupergroup, Title: "ml-course"}

	err := reconciler.HandleChatMember(tg, memberUpdate(chat, gotgbot.User{Id: 7, FirstName: "Ivan"},
		gotgbot.ChatMemberMember{User: alice},
		gotgbot.ChatMemberLeft{User: alice},
	))
	require.NoError(t, err)

	require.Len(t, tg.sent, 1)
	assert.Equal(t, int64(-100), tg.sent[0].chatID)
	assert.Contains(t, tg.sent[0].text, "no longer with us")
}

func TestPromotionIsIgnored(t *testing.T) {
	access := newFakeAccess()
	reconciler, _ := newTestReconciler(t, access, false)
	tg := newFakeTelegram()

	alice := gotgbot.User{Id: 1, Username: "alice"}
	chat := gotgbot.Chat{Id: -100, Type: gotgbot.ChatTypeSupergroup}

	err := reconciler.HandleChatMember(tg, memberUpdate(chat, gotgbot.User{Id: 7},
		gotgbot.ChatMemberMember{User: alice},
		gotgbot.ChatMemberAdministrator{User: alice},
	))
	require.NoError(t, err)
	assert.Empty(t, tg.sent)
}

func TestSelfJoinMarksChatManaged(t *testing.T) {
	access := newFakeAccess()
	reconciler, registry := newTestReconciler(t, access, false)

	bot := gotgbot.User{Id: 999, IsBot: true, FirstName: "keeper"}
	chat := gotgbot.Chat{Id: -200, Type: gotgbot.ChatTypeSupergroup, Title: "new-course"}
	upd := selfUpdate(chat, gotgbot.User{Id: 7, FirstName: "Ivan"},
		gotgbot.ChatMemberLeft{User: bot},
		gotgbot.ChatMemberAdministrator{User: bot},
	)

	require.NoError(t, reconciler.HandleMyChatMember(upd))

	require.Len(t, access.upserts, 1)
	assert.Equal(t, upsertCall{title: "new-course", telegramID: -200}, access.upserts[0])
	assert.True(t, registry.HasGroup(-200))

	// Replaying the same event is safe: same fields, same values.
	require.NoError(t, reconciler.HandleMyChatMember(upd))

	require.Len(t, access.chats, 1)
	assert.Equal(t, model.Chat{Title: "new-course", TelegramID: -200, Managed: true}, access.chats[0])
	assert.True(t, registry.HasGroup(-200))
}

func TestSelfRemovalKeepsStoreRecord(t *testing.T) {
	access := newFakeAccess()
	access.chats = []model.Chat{
		{Title: "ml-course", TelegramID: -100, Managed: true},
	}

	reconciler, registry := newTestReconciler(t, access, false)
	registry.AddGroup(-100)

	bot := gotgbot.User{Id: 999, IsBot: true, FirstName: "keeper"}
	chat := gotgbot.Chat{Id: -100, Type: gotgbot.ChatTypeSupergroup, Title: "ml-course"}

	err := reconciler.HandleMyChatMember(selfUpdate(chat, gotgbot.User{Id: 7},
		gotgbot.ChatMemberMember{User: bot},
		gotgbot.ChatMemberBanned{User: bot},
	))
	require.NoError(t, err)

	assert.False(t, registry.HasGroup(-100))
	// The store record survives for re-admission.
	assert.True(t, access.chats[0].Managed)
	assert.Empty(t, access.upserts)
}

func TestDoctorWithNothingToWatch(t *testing.T) {
	access := newFakeAccess()
	reconciler, registry := newTestReconciler(t, access, false)

	restored, err := reconciler.Doctor()
	require.NoError(t, err)
	assert.Zero(t, restored)
	assert.Empty(t, registry.Snapshot().GroupIDs)
}

func TestDoctorRestoresRegistry(t *testing.T) {
	access := newFakeAccess()
	access.chats = []model.Chat{
		{Title: "ml-course", TelegramID: -100, Managed: true},
		{Title: "dl-course", TelegramID: -200, Managed: true},
		{Title: "legacy", Managed: false},
	}

	reconciler, registry := newTestReconciler(t, access, false)

	restored, err := reconciler.Doctor()
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
	assert.Equal(t, []int64{-200, -100}, registry.Snapshot().GroupIDs)
}

func TestCheckChatsReportsSuspiciousMembers(t *testing.T) {
	access := newFakeAccess()
	access.chats = []model.Chat{
		{
			Title:          "ml-course",
			TelegramID:     -100,
			Managed:        true,
			CurrentMembers: []int64{1, 2},
			AllowedUserIDs: []int64{2},
		},
		{
			Title:          "dl-course",
			TelegramID:     -200,
			Managed:        true,
			CurrentMembers: []int64{3},
			AllowedUserIDs: []int64{3},
		},
	}

	reconciler, _ := newTestReconciler(t, access, false)
	tg := newFakeTelegram()
	tg.members[-100] = map[int64]gotgbot.ChatMember{
		1: gotgbot.ChatMemberMember{User: gotgbot.User{Id: 1, Username: "intruder"}},
	}

	reports, err := reconciler.CheckChats(tg)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "ml-course", reports[0].ChatTitle)
	assert.Equal(t, []string{"@intruder"}, reports[0].Members)

	assert.Equal(t, "dl-course", reports[1].ChatTitle)
	assert.Empty(t, reports[1].Members)
}

func TestCheckChatsFallsBackToNumericID(t *testing.T) {
	access := newFakeAccess()
	access.chats = []model.Chat{
		{
			Title:          "ml-course",
			TelegramID:     -100,
			Managed:        true,
			CurrentMembers: []int64{42},
		},
	}

	reconciler, _ := newTestReconciler(t, access, false)
	tg := newFakeTelegram() // no member records, lookup fails

	reports, err := reconciler.CheckChats(tg)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, []string{"42"}, reports[0].Members)
}

func TestInviteLinksSkipFailures(t *testing.T) {
	access := newFakeAccess()
	access.chats = []model.Chat{
		{Title: "ml-course", TelegramID: -100, AllowedUsers: []string{"alice"}},
		{Title: "dl-course", TelegramID: -200, AllowedUsers: []string{"alice"}},
		{Title: "unregistered", AllowedUsers: []string{"alice"}},
	}

	reconciler, _ := newTestReconciler(t, access, false)
	tg := newFakeTelegram()
	tg.invites[-100] = "https://t.me/+ml"
	tg.failInvite[-200] = true

	links, err := reconciler.InviteLinks(tg, &gotgbot.User{Id: 1, Username: "alice"})
	require.NoError(t, err)

	require.Len(t, links, 1)
	assert.Equal(t, InviteLink{ChatTitle: "ml-course", Link: "https://t.me/+ml"}, links[0])
}

func TestInviteLinksForStranger(t *testing.T) {
	access := newFakeAccess()
	reconciler, _ := newTestReconciler(t, access, false)

	links, err := reconciler.InviteLinks(newFakeTelegram(), &gotgbot.User{Id: 5, Username: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, links)
}
