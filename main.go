package main

import (
	"context"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/girafe-ai/keeper-bot/bot"
	"github.com/girafe-ai/keeper-bot/config"
	"github.com/girafe-ai/keeper-bot/logger"
	"github.com/girafe-ai/keeper-bot/model/mongo"
	"github.com/girafe-ai/keeper-bot/plugin"
	"github.com/girafe-ai/keeper-bot/plugin/chats"
	"github.com/girafe-ai/keeper-bot/plugin/checker"
	"github.com/girafe-ai/keeper-bot/plugin/doctor"
	"github.com/girafe-ai/keeper-bot/plugin/start"
	_ "github.com/joho/godotenv/autoload"
)

var log = logger.New("main")

func readVersionInfo() {
	var (
		Revision   = "unknown"
		LastCommit time.Time
	)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, kv := range info.Settings {
		switch kv.Key {
		case "vcs.revision":
			Revision = kv.Value
		case "vcs.time":
			LastCommit, _ = time.Parse(time.RFC3339, kv.Value)
		}
	}
	log.Info().Msgf("keeper-bot-%s, %v", Revision, LastCommit)
}

func main() {
	readVersionInfo()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	db, err := mongo.New(cfg.MongoURL, cfg.MongoDatabase)
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	log.Info().Msg("Database connection established")

	accessService := mongo.NewAccessService(db)
	authorizer := bot.NewAuthorizer(accessService)
	registry := bot.NewRegistry(cfg.SnapshotPath)
	reconciler := bot.NewReconciler(accessService, authorizer, registry, cfg.BanUnauthorized)

	b, err := gotgbot.NewBot(cfg.BotToken, nil)
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	log.Info().Str("component", "core").Msgf("Logged in as @%s (%d)", b.User.Username, b.User.Id)

	processor := bot.NewProcessor(reconciler)

	plugins := []plugin.Plugin{
		start.New(reconciler),
		doctor.New(reconciler),
		chats.New(registry),
		checker.New(reconciler),
	}

	var commands []gotgbot.BotCommand
	for i, plg := range plugins {
		log.Info().Msgf("Registering plugin (%d/%d): %s", i+1, len(plugins), plg.Name())
		processor.RegisterPlugin(plg)
		commands = append(commands, plg.Commands()...)
	}

	if _, err := b.SetMyCommands(commands, nil); err != nil {
		log.Err(err).Msg("Failed to set bot commands")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go registry.Run(ctx, cfg.SnapshotInterval)

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *gotgbot.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			log.Err(err).Msg("Error while handling update")
			return ext.DispatcherActionNoop
		},
	})
	dispatcher.AddHandler(processor)

	updater := ext.NewUpdater(dispatcher, nil)

	err = updater.StartPolling(b, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &gotgbot.GetUpdatesOpts{
			// chat_member updates are only delivered when asked for explicitly
			AllowedUpdates: []string{"message", "chat_member", "my_chat_member"},
			Timeout:        10,
			RequestOpts: &gotgbot.RequestOpts{
				Timeout: 15 * time.Second,
			},
		},
	})
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	log.Info().Msg("Bot is running")

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	if err := updater.Stop(); err != nil {
		log.Err(err).Msg("Failed to stop updater")
	}
	if err := registry.Persist(); err != nil {
		log.Err(err).Msg("Failed to write final registry snapshot")
	}
}
