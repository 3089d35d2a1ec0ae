package bot

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/girafe-ai/keeper-bot/logger"
	"github.com/girafe-ai/keeper-bot/plugin"
	"github.com/girafe-ai/keeper-bot/utils"
	"github.com/rs/xid"
)

var log = logger.New("bot")

// Processor routes incoming updates: the two membership event streams go to
// the reconciler, everything else is matched against the registered command
// plugins. It implements gotgbot's ext.Handler.
type Processor struct {
	reconciler *Reconciler
	plugins    []plugin.Plugin
}

func NewProcessor(reconciler *Reconciler) *Processor {
	return &Processor{
		reconciler: reconciler,
	}
}

func (p *Processor) RegisterPlugin(plg plugin.Plugin) {
	if plg == nil {
		panic("plugin is nil")
	}
	p.plugins = append(p.plugins, plg)
}

func (p *Processor) Plugins() []plugin.Plugin {
	return p.plugins
}

func (p *Processor) Name() string {
	return "keeper"
}

func (p *Processor) CheckUpdate(b *gotgbot.Bot, ctx *ext.Context) bool {
	return ctx.MyChatMember != nil || ctx.ChatMember != nil || ctx.Message != nil
}

func (p *Processor) HandleUpdate(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx.MyChatMember != nil {
		return p.reconciler.HandleMyChatMember(ctx)
	}

	if ctx.ChatMember != nil {
		return p.reconciler.HandleChatMember(b, ctx)
	}

	if ctx.Message != nil {
		return p.onMessage(b, ctx)
	}

	return nil
}

func (p *Processor) onMessage(b *gotgbot.Bot, ctx *ext.Context) error {
	msg := ctx.EffectiveMessage
	text := msg.Text

	for _, plg := range p.plugins {
		plg := plg
		for _, h := range plg.Handlers(&b.User) {
			h := h

			handler, ok := h.(*plugin.CommandHandler)
			if !ok {
				continue
			}

			if !utils.FromGroup(msg) && handler.GroupOnly {
				continue
			}

			command, ok := handler.Command().(*regexp.Regexp)
			if !ok {
				panic("Unsupported handler type!! Must be regexp.Regexp!")
			}

			matches := command.FindStringSubmatch(text)
			if len(matches) == 0 {
				continue
			}

			log.Debug().
				Str("component", plg.Name()).
				Msgf("Matched handler: %s", handler.Trigger)

			if handler.AdminOnly && !utils.IsAdmin(ctx.EffectiveUser) {
				log.Debug().
					Int64("user_id", ctx.EffectiveUser.Id).
					Msg("User is not an admin")
				continue
			}

			namedMatches := make(map[string]string)
			for i, name := range matches {
				namedMatches[command.SubexpNames()[i]] = name
			}

			go func() {
				defer func() {
					if r := recover(); r != nil {
						guid := xid.New().String()
						log.Err(errors.New("panic")).
							Str("guid", guid).
							Int64("chat_id", ctx.EffectiveChat.Id).
							Int64("user_id", ctx.EffectiveUser.Id).
							Str("text", ctx.EffectiveMessage.Text).
							Str("component", plg.Name()).
							Msgf("%s", r)
						_, _ = ctx.EffectiveMessage.Reply(b, fmt.Sprintf("❌ Something went wrong.%s", utils.EmbedGUID(guid)), utils.DefaultSendOptions())
					}
				}()
				err := handler.Run(b, plugin.KeeperContext{
					Context:      ctx,
					Matches:      matches,
					NamedMatches: namedMatches,
				})
				if err != nil {
					guid := xid.New().String()
					log.Err(err).
						Str("guid", guid).
						Int64("chat_id", ctx.EffectiveChat.Id).
						Int64("user_id", ctx.EffectiveUser.Id).
						Str("text", ctx.EffectiveMessage.Text).
						Str("component", plg.Name()).
						Send()
					_, _ = ctx.EffectiveMessage.Reply(b, fmt.Sprintf("❌ Something went wrong.%s", utils.EmbedGUID(guid)), utils.DefaultSendOptions())
				}
			}()
		}
	}

	return nil
}
