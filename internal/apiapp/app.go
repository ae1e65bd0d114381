// Package apiapp assembles the storefront services from configuration. Both
// the HTTP API and the companion chat bot are built from the same App.
package apiapp

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/activity"
	"github.com/qtosh1/botlyhub/internal/auth"
	"github.com/qtosh1/botlyhub/internal/catalog"
	"github.com/qtosh1/botlyhub/internal/config"
	"github.com/qtosh1/botlyhub/internal/database"
	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/memstore"
	"github.com/qtosh1/botlyhub/internal/outbox"
	"github.com/qtosh1/botlyhub/internal/payments"
	"github.com/qtosh1/botlyhub/internal/registry"
	"github.com/qtosh1/botlyhub/internal/server"
	"github.com/qtosh1/botlyhub/internal/telegram"
	"github.com/qtosh1/botlyhub/internal/ton"
	"github.com/qtosh1/botlyhub/internal/watcher"
)

// Store is the full record store contract. Both the Postgres and the in-memory
// stores satisfy it.
type Store interface {
	server.Store
	registry.Store
	catalog.Store
	activity.Store
	watcher.Source
	Migrate(ctx context.Context) error
	Close()
}

// App holds the wired services.
type App struct {
	Config   config.Config
	Log      *logrus.Logger
	Store    Store
	Outbox   *outbox.Queue
	Drainer  *outbox.Drainer
	Activity *activity.Log
	Registry *registry.Registry
	Catalog  *catalog.Service
	Payments *payments.Service
	Ton      *ton.Client
	Watcher  *watcher.Watcher
	// Telegram is nil when no bot token is configured.
	Telegram *tgbotapi.BotAPI
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg config.Config) *logrus.Logger {
	return logger.New(logger.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		JSON:       cfg.LogJSON,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
}

// OpenStore connects the configured store driver and applies migrations.
func OpenStore(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memstore.New(), nil
	case config.DriverPostgres:
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// OpenOutbox opens the durable log spool owned by process. The in-memory
// store gets an in-memory spool so nothing is written to disk.
func OpenOutbox(cfg config.Config, process string) (*outbox.Queue, error) {
	if cfg.StoreDriver == config.DriverMemory {
		return outbox.Open(outbox.OpenOptions{InMemory: true})
	}
	return outbox.Open(outbox.OpenOptions{Path: cfg.OutboxDir(process)})
}

// New wires every service for process (config.ProcessAPI or config.ProcessBot).
// Call Start to run background workers and Close on exit.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger, process string) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	queue, err := OpenOutbox(cfg, process)
	if err != nil {
		store.Close()
		return nil, err
	}

	app := &App{
		Config: cfg,
		Log:    log,
		Store:  store,
		Outbox: queue,
		Ton:    ton.NewClient(ton.Config{Endpoint: cfg.TonEndpoint, APIKey: cfg.TonAPIKey}),
	}

	var (
		checker     registry.PermissionChecker = telegram.DenyAll{}
		broadcaster registry.Broadcaster
	)
	if cfg.BotToken != "" {
		api, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("telegram bot api: %w", err)
		}
		api.Debug = false
		app.Telegram = api
		checker = telegram.NewChecker(api, log)
		broadcaster = telegram.NewBroadcaster(api)
		log.WithField("bot", api.Self.UserName).Info("telegram bot api connected")
	} else {
		log.Warn("BOT_TOKEN is empty, permission checks will fail and broadcasts are disabled")
	}

	app.Drainer = outbox.NewDrainer(outbox.DrainerOptions{
		Queue:    queue,
		Sink:     store,
		Logger:   log,
		Interval: cfg.OutboxInterval,
	})
	app.Activity = activity.New(activity.Options{Store: store, Spooler: queue, Logger: log})
	app.Registry = registry.New(registry.Options{
		Store:         store,
		Checker:       checker,
		Broadcaster:   broadcaster,
		Activity:      app.Activity,
		Logger:        log,
		VerifyTimeout: cfg.VerifyTimeout,
	})
	if app.Telegram != nil && cfg.WatchInterval > 0 {
		app.Watcher = watcher.New(watcher.Options{
			Source:   store,
			Checker:  checker,
			Verifier: app.Registry,
			Logger:   log,
			Interval: cfg.WatchInterval,
		})
	}
	app.Catalog = catalog.New(store, app.Activity, log)
	app.Payments = payments.New(payments.Options{
		Catalog:             app.Catalog,
		StarsPerTon:         cfg.StarsPerTon,
		MerchantWallet:      cfg.MerchantWallet,
		TxTTL:               cfg.TonTxTTL,
		TrustClientReceipts: cfg.PaymentsTrustClient,
		Logger:              log,
	})
	return app, nil
}

// Start launches background workers.
func (a *App) Start(ctx context.Context) {
	a.Drainer.Start(ctx)
	if a.Watcher != nil {
		go func() {
			if err := a.Watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Log.WithError(err).Error("permission watcher stopped")
			}
		}()
	}
}

// Server builds the HTTP API on top of the wired services.
func (a *App) Server() *server.Server {
	opts := server.Options{
		Config:    a.Config,
		Store:     a.Store,
		Registry:  a.Registry,
		Activity:  a.Activity,
		Catalog:   a.Catalog,
		Payments:  a.Payments,
		TonClient: a.Ton,
		Logger:    a.Log,
	}
	if a.Config.AdminLoginEnabled() {
		opts.Sessions = auth.NewSessions(a.Config.SessionSecret, a.Config.SessionTTL)
	}
	if a.Config.RequireInitData {
		opts.InitData = auth.NewInitDataValidator(a.Config.BotToken, a.Config.InitDataMaxAge)
	}
	return server.New(opts)
}

// ChatBot builds the companion Telegram bot. It needs a bot token.
func (a *App) ChatBot() (*telegram.Bot, error) {
	if a.Telegram == nil {
		return nil, fmt.Errorf("chat bot needs BOT_TOKEN")
	}
	return telegram.New(a.Telegram, a.Registry, a.Activity, a.Config.MiniAppURL, a.Log), nil
}

// Close stops workers and releases the store and outbox.
func (a *App) Close() {
	if a.Drainer != nil {
		a.Drainer.Stop()
	}
	if a.Outbox != nil {
		if err := a.Outbox.Close(); err != nil {
			a.Log.WithError(err).Warn("close outbox")
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
