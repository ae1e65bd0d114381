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

	app, err := apiapp.New(ctx, cfg, log, config.ProcessAPI)
	if err != nil {
		log.WithError(err).Fatal("init app")
	}
	defer app.Close()
	app.Start(ctx)

	if err := app.Server().Start(ctx); err != nil {
		log.WithError(err).Error("start server")
		return
	}
	log.Info("api stopped")
}
