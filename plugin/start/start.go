package start

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/girafe-ai/keeper-bot/bot"
	"github.com/girafe-ai/keeper-bot/logger"
	"github.com/girafe-ai/keeper-bot/plugin"
	"github.com/girafe-ai/keeper-bot/utils"
	"github.com/rs/xid"
)

var log = logger.New("start")

var greetingTmpl = template.Must(template.New("greeting").Parse(
	`Greetings @{{ .Username }}! I am the keeper bot for all of girafe-ai Telegram chats.
And as far as I know you can join some of them!

Your invite links:

{{ range .Links }}{{ .ChatTitle }}:  {{ .Link }}
{{ end }}`))

type Plugin struct {
	reconciler *bot.Reconciler
}

func New(reconciler *bot.Reconciler) *Plugin {
	return &Plugin{
		reconciler: reconciler,
	}
}

func (*Plugin) Name() string {
	return "start"
}

func (p *Plugin) Commands() []gotgbot.BotCommand {
	return []gotgbot.BotCommand{
		{
			Command:     "start",
			Description: "Get invite links for your chats",
		},
	}
}

func (p *Plugin) Handlers(botInfo *gotgbot.User) []plugin.Handler {
	return []plugin.Handler{
		&plugin.CommandHandler{
			Trigger:     regexp.MustCompile(fmt.Sprintf(`(?i)^/(?:start|invite_links)(?:@%s)?$`, botInfo.Username)),
			HandlerFunc: p.OnStart,
		},
	}
}

func (p *Plugin) OnStart(b *gotgbot.Bot, c plugin.KeeperContext) error {
	user := c.EffectiveUser
	log.Info().
		Int64("user_id", user.Id).
		Str("username", user.Username).
		Msg("Invite links requested")

	links, err := p.reconciler.InviteLinks(b, user)
	if err != nil {
		guid := xid.New().String()
		log.Err(err).
			Str("guid", guid).
			Int64("user_id", user.Id).
			Msg("Failed to collect invite links")
		_, err = c.EffectiveMessage.Reply(b, fmt.Sprintf("❌ Something went wrong.%s", utils.EmbedGUID(guid)), utils.DefaultSendOptions())
		return err
	}

	if len(links) == 0 {
		_, err := c.EffectiveMessage.Reply(b,
			fmt.Sprintf("Greetings @%s! I know of no chats you could join right now.", user.Username),
			utils.DefaultSendOptions(),
		)
		return err
	}

	var sb strings.Builder
	if err := greetingTmpl.Execute(&sb, struct {
		Username string
		Links    []bot.InviteLink
	}{
		Username: user.Username,
		Links:    links,
	}); err != nil {
		return err
	}

	// Plain text on purpose: chat titles are user-controlled and the links
	// must stay clickable.
	_, err = b.SendMessage(c.EffectiveChat.Id, sb.String(), &gotgbot.SendMessageOpts{
		DisableNotification: true,
	})
	return err
}
