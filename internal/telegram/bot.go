package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/models"
	"github.com/qtosh1/botlyhub/internal/registry"
)

const logsPerReply = 10

// Connections is the registry surface the chat bot exposes.
type Connections interface {
	List(ctx context.Context, userID int64) ([]models.ConnectionView, error)
	Get(ctx context.Context, id int64) (*models.BotConnection, error)
	Verify(ctx context.Context, id int64) (bool, error)
}

// Logs lists activity entries.
type Logs interface {
	List(ctx context.Context, filter models.LogFilter) ([]models.BotLog, error)
}

// Bot is the companion chat bot: it links to the mini-app and lets owners
// check and re-verify their deployments from Telegram.
type Bot struct {
	api         API
	connections Connections
	logs        Logs
	miniAppURL  string
	log         *logrus.Entry
}

func New(api API, connections Connections, logs Logs, miniAppURL string, log logrus.FieldLogger) *Bot {
	return &Bot{
		api:         api,
		connections: connections,
		logs:        logs,
		miniAppURL:  strings.TrimSpace(miniAppURL),
		log:         logger.Component(log, "chatbot"),
	}
}

// Start consumes updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	if !msg.IsCommand() {
		b.reply(msg.Chat.ID, "Commands: /mybots, /verify <connection id>, /logs <bot id>")
		return
	}
	switch msg.Command() {
	case "start", "menu":
		b.sendMenu(msg.Chat.ID)
	case "mybots":
		b.sendConnections(ctx, msg.Chat.ID, msg.From.ID)
	case "verify":
		b.verify(ctx, msg.Chat.ID, msg.From.ID, msg.CommandArguments())
	case "logs":
		b.sendLogs(ctx, msg.Chat.ID, msg.From.ID, msg.CommandArguments())
	default:
		b.reply(msg.Chat.ID, "Unknown command")
	}
}

func (b *Bot) sendMenu(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Welcome to BotlyHub. Browse bots and manage your channels in the app.")
	if b.miniAppURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("Open BotlyHub", b.miniAppURL),
			),
		)
	}
	b.send(msg)
}

func (b *Bot) sendConnections(ctx context.Context, chatID, userID int64) {
	rows, err := b.connections.List(ctx, userID)
	if err != nil {
		b.log.WithError(err).WithField("user_id", userID).Error("list connections failed")
		b.reply(chatID, "Could not load your bots, try again later")
		return
	}
	if len(rows) == 0 {
		b.reply(chatID, "No bots connected yet. Open the app to deploy one.")
		return
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		botName, channelName := "?", "?"
		if r.Bot != nil {
			botName = r.Bot.Name
		}
		if r.Channel != nil {
			channelName = r.Channel.Name
		}
		lines = append(lines, fmt.Sprintf("#%d %s → %s: %s", r.ID, botName, channelName, r.Status))
	}
	b.reply(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) verify(ctx context.Context, chatID, userID int64, args string) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil || id <= 0 {
		b.reply(chatID, "Usage: /verify <connection id>")
		return
	}
	conn, err := b.connections.Get(ctx, id)
	if errors.Is(err, registry.ErrNotFound) || (err == nil && conn.UserID != userID) {
		b.reply(chatID, "Connection not found")
		return
	}
	if err != nil {
		b.log.WithError(err).WithField("connection_id", id).Error("load connection failed")
		b.reply(chatID, "Could not load the connection, try again later")
		return
	}
	passed, err := b.connections.Verify(ctx, id)
	if err != nil {
		b.log.WithError(err).WithField("connection_id", id).Warn("verification failed to run")
		b.reply(chatID, "Verification could not run, try again later")
		return
	}
	if passed {
		b.reply(chatID, "Admin rights confirmed, the bot is active")
		return
	}
	b.reply(chatID, "The bot is not an administrator with posting rights in that channel yet")
}

func (b *Bot) sendLogs(ctx context.Context, chatID, userID int64, args string) {
	botID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil || botID <= 0 {
		b.reply(chatID, "Usage: /logs <bot id>")
		return
	}
	rows, err := b.logs.List(ctx, models.LogFilter{BotID: botID, UserID: userID, Limit: logsPerReply})
	if err != nil {
		b.log.WithError(err).WithField("bot_id", botID).Error("list logs failed")
		b.reply(chatID, "Could not load logs, try again later")
		return
	}
	if len(rows) == 0 {
		b.reply(chatID, "No activity yet")
		return
	}
	lines := make([]string, 0, len(rows))
	for _, l := range rows {
		lines = append(lines, fmt.Sprintf("%s [%s] %s", l.Timestamp.Format("01-02 15:04"), l.Status, l.Action))
	}
	b.reply(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.WithError(err).WithField("chat_id", msg.ChatID).Warn("send message failed")
	}
}
