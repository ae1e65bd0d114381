package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/models"
	"github.com/qtosh1/botlyhub/internal/registry"
)

type fakeAPI struct {
	mu      sync.Mutex
	admins  []tgbotapi.ChatMember
	err     error
	block   chan struct{}
	asked   []tgbotapi.ChatAdministratorsConfig
	sent    []tgbotapi.Chattable
	updates chan tgbotapi.Update
}

func (f *fakeAPI) GetChatAdministrators(cfg tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, cfg)
	return f.admins, f.err
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

var (
	catalogBot = models.Bot{ID: 1, Username: "poster_bot"}
	channel    = models.Channel{ID: 2, TelegramChat: "@news"}
)

func member(username, status string, canPost bool) tgbotapi.ChatMember {
	return tgbotapi.ChatMember{User: &tgbotapi.User{UserName: username, IsBot: true}, Status: status, CanPostMessages: canPost}
}

func TestCheckerRequiresPostingAdmin(t *testing.T) {
	cases := []struct {
		name   string
		admins []tgbotapi.ChatMember
		want   bool
	}{
		{"admin with post rights", []tgbotapi.ChatMember{member("Poster_Bot", "administrator", true)}, true},
		{"admin without post rights", []tgbotapi.ChatMember{member("poster_bot", "administrator", false)}, false},
		{"creator", []tgbotapi.ChatMember{member("poster_bot", "creator", false)}, true},
		{"other admin only", []tgbotapi.ChatMember{member("other_bot", "administrator", true)}, false},
		{"no admins", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{admins: tc.admins}
			ok, err := NewChecker(api, logger.Discard()).IsAdministrator(context.Background(), catalogBot, channel)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			require.Len(t, api.asked, 1)
			assert.Equal(t, "@news", api.asked[0].SuperGroupUsername)
		})
	}
}

func TestCheckerNumericChat(t *testing.T) {
	api := &fakeAPI{admins: []tgbotapi.ChatMember{member("poster_bot", "administrator", true)}}
	ok, err := NewChecker(api, logger.Discard()).IsAdministrator(context.Background(), catalogBot,
		models.Channel{TelegramChat: "-1001234"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(-1001234), api.asked[0].ChatID)
}

func TestCheckerErrors(t *testing.T) {
	ctx := context.Background()

	refused := &fakeAPI{err: &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}}
	ok, err := NewChecker(refused, logger.Discard()).IsAdministrator(ctx, catalogBot, channel)
	require.NoError(t, err, "a refused lookup is a failed check, not an error")
	assert.False(t, ok)

	broken := &fakeAPI{err: errors.New("connection reset")}
	_, err = NewChecker(broken, logger.Discard()).IsAdministrator(ctx, catalogBot, channel)
	assert.Error(t, err)

	_, err = NewChecker(&fakeAPI{}, logger.Discard()).IsAdministrator(ctx, models.Bot{ID: 3}, channel)
	assert.Error(t, err)

	_, err = NewChecker(&fakeAPI{}, logger.Discard()).IsAdministrator(ctx, catalogBot, models.Channel{})
	assert.ErrorIs(t, err, ErrNoChat)
}

func TestCheckerHonoursContext(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	defer close(api.block)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewChecker(api, logger.Discard()).IsAdministrator(ctx, catalogBot, channel)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroadcasterTargets(t *testing.T) {
	api := &fakeAPI{}
	b := NewBroadcaster(api)
	require.NoError(t, b.SendToChannel(context.Background(), channel, "hello"))
	require.NoError(t, b.SendToChannel(context.Background(), models.Channel{TelegramChat: "-100"}, "hi"))

	require.Len(t, api.sent, 2)
	first := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "@news", first.ChannelUsername)
	second := api.sent[1].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(-100), second.ChatID)
}

type fakeConnections struct {
	conn     *models.BotConnection
	verified bool
	calls    int
}

func (f *fakeConnections) List(context.Context, int64) ([]models.ConnectionView, error) {
	if f.conn == nil {
		return nil, nil
	}
	return []models.ConnectionView{{
		BotConnection: *f.conn,
		Bot:           &models.Bot{Name: "Poster"},
		Channel:       &models.Channel{Name: "News"},
	}}, nil
}

func (f *fakeConnections) Get(_ context.Context, id int64) (*models.BotConnection, error) {
	if f.conn == nil || f.conn.ID != id {
		return nil, registry.ErrNotFound
	}
	return f.conn, nil
}

func (f *fakeConnections) Verify(context.Context, int64) (bool, error) {
	f.calls++
	return f.verified, nil
}

type fakeLogs struct{ filter models.LogFilter }

func (f *fakeLogs) List(_ context.Context, filter models.LogFilter) ([]models.BotLog, error) {
	f.filter = filter
	return []models.BotLog{{Action: "Runtime stopped", Status: models.LogInfo, Timestamp: time.Now()}}, nil
}

func command(text string, userID int64) *tgbotapi.Message {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: 100},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

func TestBotVerifyCommand(t *testing.T) {
	api := &fakeAPI{}
	conns := &fakeConnections{conn: &models.BotConnection{ID: 3, UserID: 9, Status: models.ConnectionPending}, verified: true}
	b := New(api, conns, &fakeLogs{}, "", logger.Discard())
	ctx := context.Background()

	b.handleMessage(ctx, command("/verify 3", 9))
	b.handleMessage(ctx, command("/verify 3", 10))
	b.handleMessage(ctx, command("/verify abc", 9))

	assert.Equal(t, 1, conns.calls, "only the owner may trigger verification")
	assert.Equal(t, []string{
		"Admin rights confirmed, the bot is active",
		"Connection not found",
		"Usage: /verify <connection id>",
	}, api.texts())
}

func TestBotListsConnectionsAndLogs(t *testing.T) {
	api := &fakeAPI{}
	conns := &fakeConnections{conn: &models.BotConnection{ID: 3, UserID: 9, Status: models.ConnectionActive}}
	logs := &fakeLogs{}
	b := New(api, conns, logs, "https://t.me/botlyhub_bot/app", logger.Discard())
	ctx := context.Background()

	b.handleMessage(ctx, command("/mybots", 9))
	b.handleMessage(ctx, command("/logs 4", 9))
	b.handleMessage(ctx, command("/start", 9))

	texts := api.texts()
	require.Len(t, texts, 3)
	assert.Equal(t, "#3 Poster → News: Active", texts[0])
	assert.Contains(t, texts[1], "[info] Runtime stopped")
	assert.Equal(t, models.LogFilter{BotID: 4, UserID: 9, Limit: logsPerReply}, logs.filter)

	menu := api.sent[2].(tgbotapi.MessageConfig)
	assert.NotNil(t, menu.ReplyMarkup)
}

func TestBotStopsWithContext(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	b := New(api, &fakeConnections{}, &fakeLogs{}, "", logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}
}
