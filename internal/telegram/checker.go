package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/models"
)

// Checker verifies admin rights with getChatAdministrators. The platform bot
// token must belong to a member of the channel for the call to succeed.
type Checker struct {
	api API
	log *logrus.Entry
}

func NewChecker(api API, log logrus.FieldLogger) *Checker {
	return &Checker{api: api, log: logger.Component(log, "telegram")}
}

// IsAdministrator passes when the catalog bot is the channel creator or an
// administrator allowed to post messages.
func (c *Checker) IsAdministrator(ctx context.Context, bot models.Bot, channel models.Channel) (bool, error) {
	username := strings.TrimPrefix(strings.TrimSpace(bot.Username), "@")
	if username == "" {
		return false, fmt.Errorf("bot %d has no telegram username", bot.ID)
	}
	chat, err := chatConfig(channel.TelegramChat)
	if err != nil {
		return false, err
	}
	admins, err := call(ctx, func() ([]tgbotapi.ChatMember, error) {
		return c.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{ChatConfig: chat})
	})
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == 400 || apiErr.Code == 403) {
			// Chat unknown to us or we were removed: the bot cannot be an admin there.
			c.log.WithFields(logrus.Fields{"channel": channel.TelegramChat, "code": apiErr.Code}).
				Info("administrator lookup refused")
			return false, nil
		}
		return false, fmt.Errorf("get chat administrators: %w", err)
	}
	for _, m := range admins {
		if m.User == nil || !strings.EqualFold(m.User.UserName, username) {
			continue
		}
		if m.IsCreator() {
			return true, nil
		}
		return m.IsAdministrator() && m.CanPostMessages, nil
	}
	return false, nil
}

// Broadcaster posts text messages into channels.
type Broadcaster struct {
	api API
}

func NewBroadcaster(api API) *Broadcaster {
	return &Broadcaster{api: api}
}

func (b *Broadcaster) SendToChannel(ctx context.Context, channel models.Channel, text string) error {
	chat, err := chatConfig(channel.TelegramChat)
	if err != nil {
		return err
	}
	var msg tgbotapi.MessageConfig
	if chat.SuperGroupUsername != "" {
		msg = tgbotapi.NewMessageToChannel(chat.SuperGroupUsername, text)
	} else {
		msg = tgbotapi.NewMessage(chat.ChatID, text)
	}
	_, err = call(ctx, func() (tgbotapi.Message, error) {
		return b.api.Send(msg)
	})
	return err
}

// DenyAll is used when no bot token is configured: every check fails closed.
type DenyAll struct{}

func (DenyAll) IsAdministrator(context.Context, models.Bot, models.Channel) (bool, error) {
	return false, nil
}
