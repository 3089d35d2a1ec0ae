package checker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/girafe-ai/keeper-bot/bot"
	"github.com/girafe-ai/keeper-bot/logger"
	"github.com/girafe-ai/keeper-bot/plugin"
	"github.com/girafe-ai/keeper-bot/utils"
	"github.com/rs/xid"
)

var log = logger.New("checker")

type Plugin struct {
	reconciler *bot.Reconciler
}

func New(reconciler *bot.Reconciler) *Plugin {
	return &Plugin{
		reconciler: reconciler,
	}
}

func (*Plugin) Name() string {
	return "checker"
}

func (p *Plugin) Commands() []gotgbot.BotCommand {
	return nil // Admin-only maintenance command
}

func (p *Plugin) Handlers(botInfo *gotgbot.User) []plugin.Handler {
	return []plugin.Handler{
		&plugin.CommandHandler{
			Trigger:     regexp.MustCompile(fmt.Sprintf(`(?i)^/check_chats(?:@%s)?$`, botInfo.Username)),
			HandlerFunc: p.OnCheckChats,
			AdminOnly:   true,
		},
	}
}

func (p *Plugin) OnCheckChats(b *gotgbot.Bot, c plugin.KeeperContext) error {
	reports, err := p.reconciler.CheckChats(b)
	if err != nil {
		guid := xid.New().String()
		log.Err(err).
			Str("guid", guid).
			Msg("Suspicious-member sweep failed")
		_, err = c.EffectiveMessage.Reply(b, fmt.Sprintf("❌ Something went wrong.%s", utils.EmbedGUID(guid)), utils.DefaultSendOptions())
		return err
	}

	if len(reports) == 0 {
		_, err := c.EffectiveMessage.Reply(b,
			"Sorry, there are no chats I have to keep an eye on.",
			utils.DefaultSendOptions(),
		)
		return err
	}

	var sb strings.Builder
	for _, report := range reports {
		sb.WriteString(fmt.Sprintf("<b>%s</b>: ", utils.Escape(report.ChatTitle)))
		switch {
		case report.Err != nil:
			sb.WriteString("could not be checked")
		case len(report.Members) == 0:
			sb.WriteString("all members are accounted for")
		default:
			sb.WriteString("suspicious members: ")
			sb.WriteString(utils.Escape(strings.Join(report.Members, ", ")))
		}
		sb.WriteString("\n")
	}

	_, err = c.EffectiveMessage.Reply(b, sb.String(), utils.DefaultSendOptions())
	return err
}
