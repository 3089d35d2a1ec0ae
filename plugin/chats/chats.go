package chats

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/girafe-ai/keeper-bot/bot"
	"github.com/girafe-ai/keeper-bot/plugin"
	"github.com/girafe-ai/keeper-bot/utils"
)

type Plugin struct {
	registry *bot.Registry
}

func New(registry *bot.Registry) *Plugin {
	return &Plugin{
		registry: registry,
	}
}

func (*Plugin) Name() string {
	return "chats"
}

func (p *Plugin) Commands() []gotgbot.BotCommand {
	return []gotgbot.BotCommand{
		{
			Command:     "show_chats",
			Description: "Show which chats the bot is in",
		},
	}
}

func (p *Plugin) Handlers(botInfo *gotgbot.User) []plugin.Handler {
	return []plugin.Handler{
		&plugin.CommandHandler{
			Trigger:     regexp.MustCompile(fmt.Sprintf(`(?i)^/show_chats(?:@%s)?$`, botInfo.Username)),
			HandlerFunc: p.OnShowChats,
		},
	}
}

func (p *Plugin) OnShowChats(b *gotgbot.Bot, c plugin.KeeperContext) error {
	snapshot := p.registry.Snapshot()

	text := fmt.Sprintf(
		"@%s is currently in a conversation with the user IDs %s. "+
			"Moreover it is a member of the groups with IDs %s "+
			"and administrator in the channels with IDs %s.",
		b.User.Username,
		joinIDs(snapshot.UserIDs),
		joinIDs(snapshot.GroupIDs),
		joinIDs(snapshot.ChannelIDs),
	)

	_, err := c.EffectiveMessage.Reply(b, text, utils.DefaultSendOptions())
	return err
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "—"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ", ")
}
