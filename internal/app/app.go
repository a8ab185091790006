// Package app assembles the stores, channels, scheduler and HTTP server into
// one running process.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"carelink/internal/api"
	"carelink/internal/channels/telegram"
	"carelink/internal/config"
	"carelink/internal/convstate"
	"carelink/internal/health"
	"carelink/internal/profile"
	"carelink/internal/recognize"
	"carelink/internal/reminder"
	"carelink/internal/router"
	"carelink/internal/security"
	"carelink/internal/store"
)

type App struct {
	Config      *config.Config
	Store       *store.Store
	Logger      *zap.Logger
	TelegramBot *telegram.Bot
	Scheduler   *reminder.Scheduler
	Server      *api.Server
	Version     string
}

func New(cfg *config.Config, st *store.Store, logger *zap.Logger, version string) *App {
	return &App{
		Config:  cfg,
		Store:   st,
		Logger:  logger,
		Version: version,
	}
}

// RunServer wires everything together and blocks until SIGINT/SIGTERM.
func (app *App) RunServer() {
	location, err := app.Config.Location()
	if err != nil {
		app.Logger.Fatal("Invalid scheduler timezone", zap.Error(err))
	}

	profiles, err := profile.NewStore(app.Store.DB())
	if err != nil {
		app.Logger.Fatal("Failed to initialize profile store", zap.Error(err))
	}
	reminders, err := reminder.NewStore(app.Store.DB())
	if err != nil {
		app.Logger.Fatal("Failed to initialize reminder store", zap.Error(err))
	}
	healthLogs, err := health.NewStore(app.Store.DB(), profiles)
	if err != nil {
		app.Logger.Fatal("Failed to initialize health store", zap.Error(err))
	}

	invites := profile.NewInviteStore(app.Store.Badger())
	states := convstate.NewStore(app.Store.Badger())

	// The remote recognizers sit behind circuit breakers so a degraded
	// recognition service cannot stall the chat loop.
	rxClient := recognize.NewClient(&app.Config.Recognition)
	prescriptions := recognize.NewBreakerPrescriptionRecognizer(rxClient, app.Logger)
	pills := recognize.NewBreakerPillRecognizer(rxClient, app.Logger)
	transcriber := recognize.NewBreakerTranscriber(rxClient, app.Logger)

	tokens := security.NewFormTokens(app.Config.Security.JWTSecret, app.Config.Security.FormTokenTTL)

	rt := router.New(router.Deps{
		Profiles:      profiles,
		Invites:       invites,
		Reminders:     reminders,
		HealthLogs:    healthLogs,
		States:        states,
		Prescriptions: prescriptions,
		Pills:         pills,
		MedParser:     recognize.NewParser(),
		FormTokens:    tokens,
		FormBaseURL:   app.Config.Security.FormBaseURL,
		Logger:        app.Logger,
	})

	bot, err := telegram.NewBot(telegram.Config{
		Token:     app.Config.Channels.Telegram.BotToken,
		Enabled:   app.Config.Channels.Telegram.Enabled,
		AllowList: app.Config.Channels.Telegram.AllowList,
	}, rt, transcriber, app.Logger)
	if err != nil {
		app.Logger.Fatal("Failed to create Telegram bot", zap.Error(err))
	}
	app.TelegramBot = bot
	if err := bot.Start(); err != nil {
		app.Logger.Fatal("Failed to start Telegram bot", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.Scheduler = reminder.NewScheduler(reminders, profiles, bot, app.Store.Badger(), app.Logger, reminder.SchedulerConfig{
		Location:      location,
		PushPerSecond: app.Config.Scheduler.PushPerSecond,
		PushBurst:     app.Config.Scheduler.PushBurst,
		DeliveredTTL:  app.Config.Scheduler.DeliveredTTL,
	})
	if err := app.Scheduler.Start(ctx); err != nil {
		app.Logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	app.Server = api.New(app.Config, tokens, reminders, rt, app.Logger)
	go func() {
		if err := app.Server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("CareLink started",
		zap.String("version", app.Version),
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("timezone", location.String()),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	cancel()
	app.Scheduler.Stop()
	app.TelegramBot.Stop()
	if err := app.Server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
	if err := app.Store.Close(); err != nil {
		app.Logger.Error("Store close error", zap.Error(err))
	}

	app.Logger.Info("Goodbye")
}
