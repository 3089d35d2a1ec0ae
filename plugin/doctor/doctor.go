package doctor

import (
	"fmt"
	"regexp"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/girafe-ai/keeper-bot/bot"
	"github.com/girafe-ai/keeper-bot/logger"
	"github.com/girafe-ai/keeper-bot/plugin"
	"github.com/girafe-ai/keeper-bot/utils"
	"github.com/rs/xid"
)

var log = logger.New("doctor")

type Plugin struct {
	reconciler *bot.Reconciler
}

func New(reconciler *bot.Reconciler) *Plugin {
	return &Plugin{
		reconciler: reconciler,
	}
}

func (*Plugin) Name() string {
	return "doctor"
}

func (p *Plugin) Commands() []gotgbot.BotCommand {
	return nil // Admin-only maintenance command
}

func (p *Plugin) Handlers(botInfo *gotgbot.User) []plugin.Handler {
	return []plugin.Handler{
		&plugin.CommandHandler{
			Trigger:     regexp.MustCompile(fmt.Sprintf(`(?i)^/doctor(?:@%s)?$`, botInfo.Username)),
			HandlerFunc: p.OnDoctor,
			AdminOnly:   true,
		},
	}
}

func (p *Plugin) OnDoctor(b *gotgbot.Bot, c plugin.KeeperContext) error {
	log.Info().Msg("Starting to heal the registry")

	restored, err := p.reconciler.Doctor()
	if err != nil {
		guid := xid.New().String()
		log.Err(err).
			Str("guid", guid).
			Msg("Doctor sweep failed")
		_, err = c.EffectiveMessage.Reply(b, fmt.Sprintf("❌ Something went wrong.%s", utils.EmbedGUID(guid)), utils.DefaultSendOptions())
		return err
	}

	if restored == 0 {
		_, err := c.EffectiveMessage.Reply(b,
			"Sorry, there are no chats I have to keep an eye on.",
			utils.DefaultSendOptions(),
		)
		return err
	}

	_, err = c.EffectiveMessage.Reply(b,
		fmt.Sprintf("Restored %d managed chat(s) into the registry.", restored),
		utils.DefaultSendOptions(),
	)
	return err
}
