package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/apiapp"
	"github.com/qtosh1/botlyhub/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := apiapp.NewLogger(cfg)
	if cfg.BotToken == "" {
		log.Fatal("BOT_TOKEN is required")
	}

	app, err := apiapp.New(ctx, cfg, log, config.ProcessBot)
	if err != nil {
		log.WithError(err).Fatal("init app")
	}
	defer app.Close()

	bot, err := app.ChatBot()
	if err != nil {
		log.WithError(err).Error("init chat bot")
		return
	}
	// The API process owns the permission watcher.
	app.Drainer.Start(ctx)
	log.Info("telegram bot started")
	bot.Start(ctx)
	log.Info("telegram bot stopped")
}
