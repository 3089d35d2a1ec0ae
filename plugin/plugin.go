package plugin

import (
	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

type (
	Plugin interface {
		Name() string

		// Commands will be shown in the menu button
		Commands() []gotgbot.BotCommand

		// Handlers are used to react to specific strings in a message
		Handlers(botInfo *gotgbot.User) []Handler
	}

	Handler interface {
		Command() any
		Run(b *gotgbot.Bot, c KeeperContext) error
	}

	KeeperContext struct {
		*ext.Context
		Matches      []string          // Regex matches
		NamedMatches map[string]string // Named Regex matches
	}

	KeeperHandlerFunc func(b *gotgbot.Bot, c KeeperContext) error

	CommandHandler struct {
		Trigger     any
		HandlerFunc KeeperHandlerFunc
		AdminOnly   bool
		GroupOnly   bool
	}
)

func (h *CommandHandler) Command() any {
	return h.Trigger
}

func (h *CommandHandler) Run(b *gotgbot.Bot, c KeeperContext) error {
	return h.HandlerFunc(b, c)
}
