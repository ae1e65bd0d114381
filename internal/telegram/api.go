package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the subset of *tgbotapi.BotAPI this package calls.
type API interface {
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var ErrNoChat = errors.New("telegram: channel has no chat reference")

// chatConfig resolves a stored chat reference, either a numeric id or an @username.
func chatConfig(ref string) (tgbotapi.ChatConfig, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return tgbotapi.ChatConfig{}, ErrNoChat
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return tgbotapi.ChatConfig{ChatID: id}, nil
	}
	ref = strings.TrimPrefix(ref, "https://t.me/")
	ref = strings.TrimPrefix(ref, "t.me/")
	if !strings.HasPrefix(ref, "@") {
		ref = "@" + ref
	}
	return tgbotapi.ChatConfig{SuperGroupUsername: ref}, nil
}

// call runs a blocking Bot API request and gives up when ctx ends first.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{val: v, err: err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.val, r.err
	}
}
