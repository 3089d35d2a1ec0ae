package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/girafe-ai/keeper-bot/logger"
	"github.com/girafe-ai/keeper-bot/model"
	"github.com/girafe-ai/keeper-bot/utils"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

const storeTimeout = 10 * time.Second

// Telegram is the slice of the Bot API the reconciler needs to act on its
// decisions. *gotgbot.Bot satisfies it.
type Telegram interface {
	SendMessage(chatId int64, text string, opts *gotgbot.SendMessageOpts) (*gotgbot.Message, error)
	CreateChatInviteLink(chatId int64, opts *gotgbot.CreateChatInviteLinkOpts) (*gotgbot.ChatInviteLink, error)
	GetChatAdministrators(chatId int64, opts *gotgbot.GetChatAdministratorsOpts) ([]gotgbot.ChatMember, error)
	GetChatMember(chatId int64, userId int64, opts *gotgbot.GetChatMemberOpts) (gotgbot.ChatMember, error)
	BanChatMember(chatId int64, userId int64, opts *gotgbot.BanChatMemberOpts) (bool, error)
}

type (
	// Reconciler turns classified membership transitions into exactly one
	// side-effecting action each: welcome, alert the admins, announce a
	// departure, or nothing.
	Reconciler struct {
		access          model.AccessService
		authorizer      *Authorizer
		registry        *Registry
		banUnauthorized bool
		log             zerolog.Logger
	}

	InviteLink struct {
		ChatTitle string
		Link      string
	}

	// ChatReport is the outcome of the suspicious-member sweep for one
	// managed chat. Members carries a handle where one could be resolved,
	// otherwise the numeric ID.
	ChatReport struct {
		ChatTitle string
		Members   []string
		Err       error
	}
)

func NewReconciler(access model.AccessService, authorizer *Authorizer, registry *Registry, banUnauthorized bool) *Reconciler {
	return &Reconciler{
		access:          access,
		authorizer:      authorizer,
		registry:        registry,
		banUnauthorized: banUnauthorized,
		log:             logger.New("reconciler"),
	}
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// HandleChatMember processes a third-party user's membership change.
func (r *Reconciler) HandleChatMember(b Telegram, ctx *ext.Context) error {
	upd := ctx.ChatMember

	transition, err := ClassifyMembership(upd)
	if err != nil {
		r.log.Err(err).
			Int64("chat_id", upd.Chat.Id).
			Int64("user_id", upd.NewChatMember.MergeChatMember().User.Id).
			Msg("Dropping membership event")
		return nil
	}

	user := upd.NewChatMember.MergeChatMember().User
	actor := upd.From

	switch transition {
	case TransitionJoined:
		return r.onJoined(b, &upd.Chat, &user, &actor)
	case TransitionLeft:
		return r.onLeft(b, &upd.Chat, &user, &actor)
	default:
		return nil
	}
}

func (r *Reconciler) onJoined(b Telegram, chat *gotgbot.Chat, user, actor *gotgbot.User) error {
	storeCtx, cancel := storeContext()
	defer cancel()

	if r.authorizer.IsAuthorized(storeCtx, user, chat) {
		_, err := b.SendMessage(chat.Id,
			fmt.Sprintf("%s was added by %s. You are allowed, welcome!",
				utils.MentionHTML(user),
				utils.MentionHTML(actor),
			),
			utils.DefaultSendOptions(),
		)
		return err
	}

	r.log.Info().
		Int64("chat_id", chat.Id).
		Int64("user_id", user.Id).
		Str("chat", chat.Title).
		Msg("Unauthorized user joined")

	r.alertAdmins(b, chat, user, actor)

	if r.banUnauthorized {
		if _, err := b.BanChatMember(chat.Id, user.Id, nil); err != nil {
			guid := xid.New().String()
			r.log.Err(err).
				Str("guid", guid).
				Int64("chat_id", chat.Id).
				Int64("user_id", user.Id).
				Msg("Failed to remove unauthorized member")
		}
	}

	return nil
}

// alertAdmins messages every chat administrator privately. Each send runs in
// its own failure boundary: one blocked or unreachable admin never aborts
// notifying the rest.
func (r *Reconciler) alertAdmins(b Telegram, chat *gotgbot.Chat, user, actor *gotgbot.User) {
	admins, err := b.GetChatAdministrators(chat.Id, nil)
	if err != nil {
		r.log.Err(err).
			Int64("chat_id", chat.Id).
			Msg("Failed to list chat administrators")
		return
	}

	text := fmt.Sprintf("%s was added by %s to chat %s and they are not allowed there!",
		utils.MentionHTML(user),
		utils.MentionHTML(actor),
		utils.Escape(chat.Title),
	)

	for _, admin := range admins {
		adminUser := admin.MergeChatMember().User
		if adminUser.IsBot {
			continue
		}

		if _, err := b.SendMessage(adminUser.Id, text, utils.DefaultSendOptions()); err != nil {
			// An admin who never started the bot cannot receive DMs.
			if strings.Contains(err.Error(), utils.ErrBlockedByUser) ||
				strings.Contains(err.Error(), utils.ErrNotStartedByUser) {
				r.log.Info().
					Int64("chat_id", chat.Id).
					Int64("admin_id", adminUser.Id).
					Msg("Administrator is not reachable in private")
				continue
			}
			r.log.Err(err).
				Int64("chat_id", chat.Id).
				Int64("admin_id", adminUser.Id).
				Msg("Failed to alert administrator")
			continue
		}
	}
}

func (r *Reconciler) onLeft(b Telegram, chat *gotgbot.Chat, user, actor *gotgbot.User) error {
	if user.IsBot {
		return nil
	}

	_, err := b.SendMessage(chat.Id,
		fmt.Sprintf("%s is no longer with us. Thanks a lot, %s ...",
			utils.MentionHTML(user),
			utils.MentionHTML(actor),
		),
		utils.DefaultSendOptions(),
	)
	return err
}

// HandleMyChatMember tracks the bot's own membership. Joining a group marks
// the chat as managed in the store; being removed only drops it from the
// registry, so re-adding the bot later picks the record back up.
func (r *Reconciler) HandleMyChatMember(ctx *ext.Context) error {
	upd := ctx.MyChatMember

	transition, err := ClassifyMembership(upd)
	if err != nil {
		r.log.Err(err).
			Int64("chat_id", upd.Chat.Id).
			Msg("Dropping self-membership event")
		return nil
	}

	if transition != TransitionJoined && transition != TransitionLeft {
		return nil
	}

	chat := upd.Chat
	cause := utils.FullName(upd.From.FirstName, upd.From.LastName)

	switch chat.Type {
	case gotgbot.ChatTypeGroup, gotgbot.ChatTypeSupergroup:
		if transition == TransitionJoined {
			r.log.Info().
				Str("cause", cause).
				Str("chat", chat.Title).
				Int64("chat_id", chat.Id).
				Msg("Bot was added to group")

			storeCtx, cancel := storeContext()
			defer cancel()
			if err := r.access.UpsertChatManaged(storeCtx, chat.Title, chat.Id); err != nil {
				return err
			}
			r.registry.AddGroup(chat.Id)
		} else {
			r.log.Info().
				Str("cause", cause).
				Str("chat", chat.Title).
				Int64("chat_id", chat.Id).
				Msg("Bot was removed from group")
			r.registry.RemoveGroup(chat.Id)
		}
	case gotgbot.ChatTypePrivate:
		if transition == TransitionJoined {
			r.log.Info().Str("cause", cause).Msg("User started the bot")
			r.registry.AddUser(chat.Id)
		} else {
			r.log.Info().Str("cause", cause).Msg("User blocked the bot")
			r.registry.RemoveUser(chat.Id)
		}
	default:
		if transition == TransitionJoined {
			r.log.Info().
				Str("cause", cause).
				Str("chat", chat.Title).
				Msg("Bot was added to channel")
			r.registry.AddChannel(chat.Id)
		} else {
			r.log.Info().
				Str("cause", cause).
				Str("chat", chat.Title).
				Msg("Bot was removed from channel")
			r.registry.RemoveChannel(chat.Id)
		}
	}

	return nil
}

// Doctor repairs the registry from the store after a restart lost in-memory
// state. It returns how many managed chats are tracked afterwards; zero
// means there is nothing to keep an eye on. The store is never written.
func (r *Reconciler) Doctor() (int, error) {
	storeCtx, cancel := storeContext()
	defer cancel()

	managed, err := r.access.ListManagedChats(storeCtx)
	if err != nil {
		return 0, err
	}

	for _, chat := range managed {
		r.log.Info().
			Str("chat", chat.Title).
			Int64("chat_id", chat.TelegramID).
			Msg("Restoring chat into registry")
		r.registry.AddGroup(chat.TelegramID)
	}

	return len(managed), nil
}

// CheckChats sweeps every managed chat for members outside its authorized
// population. A failing chat yields a report entry with Err set; it never
// aborts the remaining chats.
func (r *Reconciler) CheckChats(b Telegram) ([]ChatReport, error) {
	storeCtx, cancel := storeContext()
	defer cancel()

	managed, err := r.access.ListManagedChats(storeCtx)
	if err != nil {
		return nil, err
	}

	reports := make([]ChatReport, 0, len(managed))
	for _, chat := range managed {
		suspicious, err := r.authorizer.SuspiciousMembers(storeCtx, chat.TelegramID)
		if err != nil {
			r.log.Err(err).
				Str("chat", chat.Title).
				Int64("chat_id", chat.TelegramID).
				Msg("Suspicious-member sweep failed")
			reports = append(reports, ChatReport{ChatTitle: chat.Title, Err: err})
			continue
		}

		report := ChatReport{ChatTitle: chat.Title}
		for _, userID := range suspicious {
			report.Members = append(report.Members, r.memberLabel(b, chat.TelegramID, userID))
		}
		reports = append(reports, report)
	}

	return reports, nil
}

// memberLabel prefers a live username over the bare numeric ID.
func (r *Reconciler) memberLabel(b Telegram, chatID, userID int64) string {
	member, err := b.GetChatMember(chatID, userID, nil)
	if err == nil {
		if username := member.MergeChatMember().User.Username; username != "" {
			return "@" + username
		}
	}
	return strconv.FormatInt(userID, 10)
}

// InviteLinks creates an invite link for every chat the user is entitled to
// join. Chats without a known Telegram ID are skipped; a failing link is
// logged and skipped without aborting the rest.
func (r *Reconciler) InviteLinks(b Telegram, user *gotgbot.User) ([]InviteLink, error) {
	storeCtx, cancel := storeContext()
	defer cancel()

	chats, err := r.authorizer.AuthorizedChats(storeCtx, user)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	var links []InviteLink
	for _, chat := range chats {
		if chat.TelegramID == 0 {
			continue
		}

		link, err := b.CreateChatInviteLink(chat.TelegramID, nil)
		if err != nil {
			r.log.Err(err).
				Str("chat", chat.Title).
				Int64("chat_id", chat.TelegramID).
				Msg("Failed to create invite link")
			continue
		}

		links = append(links, InviteLink{
			ChatTitle: chat.Title,
			Link:      link.InviteLink,
		})
	}

	return links, nil
}
