package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/models"
)

var (
	ErrNotFound        = errors.New("catalog: bot not found")
	ErrPaymentRequired = errors.New("catalog: bot requires payment")
	ErrInvalidBot      = errors.New("catalog: invalid bot")
	ErrNotRunnable     = errors.New("catalog: bot is not active in the catalog")
)

// Ownership sources recorded in user_bots.
const (
	SourceFree  = "free"
	SourceStars = "stars"
	SourceTon   = "ton"
)

// Store is the persistence contract of the catalog.
type Store interface {
	ListBots(ctx context.Context, category string) ([]models.Bot, error)
	GetBot(ctx context.Context, id int64) (*models.Bot, error)
	UpsertBot(ctx context.Context, bot models.Bot) (*models.Bot, error)
	DeleteBot(ctx context.Context, id int64) (bool, error)
	OwnsBot(ctx context.Context, userID, botID int64) (bool, error)
	AddUserBot(ctx context.Context, userID, botID int64, source string) (*models.UserBot, error)
	ListUserBots(ctx context.Context, userID int64) ([]models.Bot, error)
	SetBotRuntime(ctx context.Context, id int64, status models.RuntimeStatus, runtimeID *string, uptimeStart *time.Time) (*models.Bot, error)
}

// ActivityLog is the append-only trail written on ownership and runtime changes.
type ActivityLog interface {
	Append(ctx context.Context, entry models.BotLog)
}

// Service manages the storefront catalog, user libraries and admin runtime state.
type Service struct {
	store    Store
	activity ActivityLog
	log      *logrus.Entry
	now      func() time.Time
}

// New creates a catalog service.
func New(store Store, activity ActivityLog, log logrus.FieldLogger) *Service {
	return &Service{
		store:    store,
		activity: activity,
		log:      logger.Component(log, "catalog"),
		now:      time.Now,
	}
}

// List returns catalog bots, optionally narrowed to a category ("all" means every category).
func (s *Service) List(ctx context.Context, category string) ([]models.Bot, error) {
	category = strings.TrimSpace(category)
	if strings.EqualFold(category, "all") {
		category = ""
	}
	return s.store.ListBots(ctx, category)
}

// Get returns one bot.
func (s *Service) Get(ctx context.Context, id int64) (*models.Bot, error) {
	bot, err := s.store.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, ErrNotFound
	}
	return bot, nil
}

// Save creates or updates a catalog entry. Saved bots become visible.
func (s *Service) Save(ctx context.Context, bot models.Bot) (*models.Bot, error) {
	bot.Name = strings.TrimSpace(bot.Name)
	if bot.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidBot)
	}
	if bot.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidBot)
	}
	bot.BotLink = strings.TrimSpace(bot.BotLink)
	if bot.Username == "" {
		bot.Username = UsernameFromLink(bot.BotLink)
	}
	if strings.TrimSpace(bot.Category) == "" {
		bot.Category = "productivity"
	}
	bot.CatalogStatus = models.CatalogActive
	if !bot.RuntimeStatus.Valid() {
		bot.RuntimeStatus = models.RuntimeStopped
	}
	saved, err := s.store.UpsertBot(ctx, bot)
	if err != nil {
		return nil, fmt.Errorf("save bot: %w", err)
	}
	if saved == nil {
		return nil, ErrNotFound
	}
	return saved, nil
}

// Delete removes a catalog entry.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ok, err := s.store.DeleteBot(ctx, id)
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Owns reports whether the bot is in the user's library.
func (s *Service) Owns(ctx context.Context, userID, botID int64) (bool, error) {
	return s.store.OwnsBot(ctx, userID, botID)
}

// Library lists the bots a user owns.
func (s *Service) Library(ctx context.Context, userID int64) ([]models.Bot, error) {
	return s.store.ListUserBots(ctx, userID)
}

// Acquire adds a free bot to the user's library. Priced bots must go through payments.
func (s *Service) Acquire(ctx context.Context, userID, botID int64) (*models.Bot, error) {
	bot, err := s.Get(ctx, botID)
	if err != nil {
		return nil, err
	}
	if !bot.IsFree() {
		return nil, ErrPaymentRequired
	}
	if err := s.Grant(ctx, userID, *bot, SourceFree); err != nil {
		return nil, err
	}
	return bot, nil
}

// Grant records ownership. Granting an owned bot again is a no-op.
func (s *Service) Grant(ctx context.Context, userID int64, bot models.Bot, source string) error {
	_, err := s.store.AddUserBot(ctx, userID, bot.ID, source)
	if errors.Is(err, models.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("add to library: %w", err)
	}
	action := "Bot added to library"
	status := models.LogInfo
	if source != SourceFree {
		action = fmt.Sprintf("Bot purchased with %s", strings.ToUpper(source))
		status = models.LogSuccess
	}
	s.append(ctx, models.BotLog{BotID: bot.ID, UserID: userID, Action: action, Status: status})
	return nil
}

// StartRuntime marks a catalog bot as running under a fresh runtime id.
func (s *Service) StartRuntime(ctx context.Context, botID int64) (*models.Bot, error) {
	bot, err := s.Get(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.CatalogStatus != models.CatalogActive {
		return nil, ErrNotRunnable
	}
	runtimeID := "rt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	started := s.now().UTC()
	updated, err := s.store.SetBotRuntime(ctx, botID, models.RuntimeActive, &runtimeID, &started)
	if err != nil {
		return nil, fmt.Errorf("start runtime: %w", err)
	}
	s.append(ctx, models.BotLog{
		BotID:  botID,
		UserID: models.SystemUserID,
		Action: fmt.Sprintf("SYSTEM: process %s started, listening for updates", runtimeID),
		Status: models.LogTerminal,
	})
	s.log.WithFields(logrus.Fields{"bot_id": botID, "runtime_id": runtimeID}).Info("bot runtime started")
	return updated, nil
}

// StopRuntime marks a catalog bot as stopped.
func (s *Service) StopRuntime(ctx context.Context, botID int64) (*models.Bot, error) {
	if _, err := s.Get(ctx, botID); err != nil {
		return nil, err
	}
	updated, err := s.store.SetBotRuntime(ctx, botID, models.RuntimeStopped, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("stop runtime: %w", err)
	}
	s.append(ctx, models.BotLog{
		BotID:  botID,
		UserID: models.SystemUserID,
		Action: "SYSTEM: termination signal sent, runtime stopped",
		Status: models.LogTerminal,
	})
	s.log.WithField("bot_id", botID).Info("bot runtime stopped")
	return updated, nil
}

func (s *Service) append(ctx context.Context, entry models.BotLog) {
	if s.activity != nil {
		s.activity.Append(ctx, entry)
	}
}

// UsernameFromLink extracts a bot username from a t.me link or @handle.
func UsernameFromLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	if strings.HasPrefix(link, "@") {
		return strings.TrimPrefix(link, "@")
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host != "t.me" && host != "telegram.me" {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if i := strings.Index(path, "/"); i >= 0 {
		path = path[:i]
	}
	return path
}
