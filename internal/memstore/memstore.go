// Package memstore is a mutex-guarded in-memory store with the same contract as
// the Postgres store: unique keys, compare-and-swap connection updates and
// newest-first listings.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/qtosh1/botlyhub/internal/models"
)

type Store struct {
	mu  sync.RWMutex
	now func() time.Time
	seq map[string]int64

	users         map[int64]models.User
	bots          map[int64]models.Bot
	channels      map[int64]models.Channel
	userBots      map[int64]models.UserBot
	connections   map[int64]models.BotConnection
	logs          []models.BotLog
	announcements map[int64]models.Announcement
	notifications map[int64]models.Notification
	settings      models.Settings
}

// New returns an empty store seeded with default settings.
func New() *Store {
	s := &Store{
		now:           time.Now,
		seq:           make(map[string]int64),
		users:         make(map[int64]models.User),
		bots:          make(map[int64]models.Bot),
		channels:      make(map[int64]models.Channel),
		userBots:      make(map[int64]models.UserBot),
		connections:   make(map[int64]models.BotConnection),
		announcements: make(map[int64]models.Announcement),
		notifications: make(map[int64]models.Notification),
		settings:      models.DefaultSettings(),
	}
	s.settings.UpdatedAt = s.stamp()
	return s
}

func (s *Store) Ping(context.Context) error    { return nil }
func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Close()                        {}

func (s *Store) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

// --- users ---

func (s *Store) SyncUser(_ context.Context, u models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.users[u.ID]; ok {
		cur.Name, cur.Username, cur.Avatar = u.Name, u.Username, u.Avatar
		s.users[u.ID] = cur
		return cloneUser(cur), nil
	}
	if !u.Role.Valid() {
		u.Role = models.RoleUser
	}
	u.Status = models.UserActive
	u.Badges = copyStrings(u.Badges)
	u.Email, u.Phone = nil, nil
	u.IsRestricted = false
	u.CanPublishAds = true
	u.JoinedAt = s.stamp()
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (s *Store) UpdateUserProfile(_ context.Context, id int64, email, phone *string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	u.Email, u.Phone = copyString(email), copyString(phone)
	s.users[id] = u
	return cloneUser(u), nil
}

func (s *Store) ListUsers(context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, *cloneUser(u))
	}
	sort.Slice(result, func(i, j int) bool {
		return newer(result[i].JoinedAt, result[i].ID, result[j].JoinedAt, result[j].ID)
	})
	return result, nil
}

func (s *Store) SetUserStatus(_ context.Context, id int64, status models.UserStatus) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	u.Status = status
	u.IsRestricted = status != models.UserActive
	s.users[id] = u
	return cloneUser(u), nil
}

// --- bots ---

func (s *Store) ListBots(_ context.Context, category string) ([]models.Bot, error) {
	return s.filterBots(func(b models.Bot) bool {
		return b.CatalogStatus == models.CatalogActive && (category == "" || b.Category == category)
	}), nil
}

func (s *Store) ListAllBots(context.Context) ([]models.Bot, error) {
	return s.filterBots(func(models.Bot) bool { return true }), nil
}

func (s *Store) filterBots(keep func(models.Bot) bool) []models.Bot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Bot, 0)
	for _, b := range s.bots {
		if keep(b) {
			result = append(result, *cloneBot(b))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return newer(result[i].CreatedAt, result[i].ID, result[j].CreatedAt, result[j].ID)
	})
	return result
}

func (s *Store) GetBot(_ context.Context, id int64) (*models.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bots[id]
	if !ok {
		return nil, nil
	}
	return cloneBot(b), nil
}

func (s *Store) UpsertBot(_ context.Context, bot models.Bot) (*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	if bot.ID == 0 {
		bot.ID = s.next("bots")
		bot.CreatedAt = now
		bot.RuntimeStatus = models.RuntimeStopped
		bot.RuntimeID, bot.UptimeStart = nil, nil
	} else {
		cur, ok := s.bots[bot.ID]
		if !ok {
			return nil, nil
		}
		bot.CreatedAt = cur.CreatedAt
		bot.RuntimeStatus, bot.RuntimeID, bot.UptimeStart = cur.RuntimeStatus, cur.RuntimeID, cur.UptimeStart
	}
	bot.UpdatedAt = now
	stored := *cloneBot(bot)
	s.bots[bot.ID] = stored
	return cloneBot(stored), nil
}

func (s *Store) DeleteBot(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bots[id]; !ok {
		return false, nil
	}
	delete(s.bots, id)
	for k, ub := range s.userBots {
		if ub.BotID == id {
			delete(s.userBots, k)
		}
	}
	for k, c := range s.connections {
		if c.BotID == id {
			delete(s.connections, k)
		}
	}
	return true, nil
}

func (s *Store) SetBotRuntime(_ context.Context, id int64, status models.RuntimeStatus, runtimeID *string, uptimeStart *time.Time) (*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bots[id]
	if !ok {
		return nil, nil
	}
	b.RuntimeStatus = status
	b.RuntimeID = copyString(runtimeID)
	b.UptimeStart = copyTime(uptimeStart)
	b.UpdatedAt = s.stamp()
	s.bots[id] = b
	return cloneBot(b), nil
}

func (s *Store) OwnsBot(_ context.Context, userID, botID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownsLocked(userID, botID), nil
}

func (s *Store) ownsLocked(userID, botID int64) bool {
	for _, ub := range s.userBots {
		if ub.UserID == userID && ub.BotID == botID {
			return true
		}
	}
	return false
}

func (s *Store) AddUserBot(_ context.Context, userID, botID int64, source string) (*models.UserBot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsLocked(userID, botID) {
		return nil, fmt.Errorf("%w: user_bots(user_id, bot_id)", models.ErrDuplicate)
	}
	ub := models.UserBot{ID: s.next("user_bots"), UserID: userID, BotID: botID, Source: source, CreatedAt: s.stamp()}
	s.userBots[ub.ID] = ub
	return &ub, nil
}

func (s *Store) ListUserBots(_ context.Context, userID int64) ([]models.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owned := make([]models.UserBot, 0)
	for _, ub := range s.userBots {
		if ub.UserID == userID {
			owned = append(owned, ub)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return newer(owned[i].CreatedAt, owned[i].ID, owned[j].CreatedAt, owned[j].ID)
	})
	result := make([]models.Bot, 0, len(owned))
	for _, ub := range owned {
		if b, ok := s.bots[ub.BotID]; ok {
			result = append(result, *cloneBot(b))
		}
	}
	return result, nil
}

// --- channels ---

func (s *Store) GetChannel(_ context.Context, id int64) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) ListChannels(_ context.Context, userID int64) ([]models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Channel, 0)
	for _, c := range s.channels {
		if c.UserID == userID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return newer(result[i].CreatedAt, result[i].ID, result[j].CreatedAt, result[j].ID)
	})
	return result, nil
}

func (s *Store) InsertChannel(_ context.Context, ch models.Channel) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		if c.UserID == ch.UserID && c.TelegramChat == ch.TelegramChat {
			return nil, fmt.Errorf("%w: channels(user_id, telegram_chat)", models.ErrDuplicate)
		}
	}
	ch.ID = s.next("channels")
	ch.CreatedAt = s.stamp()
	s.channels[ch.ID] = ch
	return &ch, nil
}

// --- connections ---

func (s *Store) InsertConnection(_ context.Context, conn models.BotConnection) (*models.BotConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		if c.UserID == conn.UserID && c.BotID == conn.BotID && c.ChannelID == conn.ChannelID {
			return nil, fmt.Errorf("%w: bot_connections(user_id, bot_id, channel_id)", models.ErrDuplicate)
		}
	}
	now := s.stamp()
	conn.ID = s.next("bot_connections")
	conn.CreatedAt, conn.UpdatedAt = now, now
	s.connections[conn.ID] = conn
	return cloneConnection(conn), nil
}

func (s *Store) GetConnection(_ context.Context, id int64) (*models.BotConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, nil
	}
	return cloneConnection(c), nil
}

func (s *Store) ListConnections(_ context.Context, userID int64) ([]models.ConnectionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := s.connectionViews(func(c models.BotConnection) bool { return c.UserID == userID })
	sort.Slice(result, func(i, j int) bool {
		return newer(result[i].CreatedAt, result[i].ID, result[j].CreatedAt, result[j].ID)
	})
	return result, nil
}

// ListConnectionsByStatus returns connections in status, least recently checked first.
func (s *Store) ListConnectionsByStatus(_ context.Context, status models.ConnectionStatus, limit int) ([]models.ConnectionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := s.connectionViews(func(c models.BotConnection) bool { return c.Status == status })
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].LastCheckAt, result[j].LastCheckAt
		switch {
		case a == nil && b == nil:
			return result[i].ID < result[j].ID
		case a == nil || b == nil:
			return a == nil
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return result[i].ID < result[j].ID
		}
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) connectionViews(keep func(models.BotConnection) bool) []models.ConnectionView {
	result := make([]models.ConnectionView, 0)
	for _, c := range s.connections {
		if !keep(c) {
			continue
		}
		b, okBot := s.bots[c.BotID]
		ch, okChannel := s.channels[c.ChannelID]
		if !okBot || !okChannel {
			continue
		}
		channel := ch
		result = append(result, models.ConnectionView{
			BotConnection: *cloneConnection(c),
			Bot:           cloneBot(b),
			Channel:       &channel,
		})
	}
	return result
}

func (s *Store) UpdateConnectionState(_ context.Context, id int64, expected models.ConnectionStatus, next models.ConnectionState) (*models.BotConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok || c.Status != expected {
		return nil, fmt.Errorf("%w: connection %d is no longer %s", models.ErrStale, id, expected)
	}
	c.Status = next.Status
	c.IsAdminVerified = next.IsAdminVerified
	c.LastCheckAt = copyTime(next.LastCheckAt)
	c.RuntimeID = copyString(next.RuntimeID)
	c.UptimeStart = copyTime(next.UptimeStart)
	c.UpdatedAt = s.stamp()
	s.connections[id] = c
	return cloneConnection(c), nil
}

// --- logs ---

func (s *Store) InsertLog(_ context.Context, entry models.BotLog) (*models.BotLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.next("bot_logs")
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.stamp()
	}
	entry.ChannelID = copyInt(entry.ChannelID)
	s.logs = append(s.logs, entry)
	return &entry, nil
}

func (s *Store) ListLogs(_ context.Context, filter models.LogFilter) ([]models.BotLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.BotLog, 0)
	for _, l := range s.logs {
		if filter.BotID != 0 && l.BotID != filter.BotID {
			continue
		}
		if filter.UserID != 0 && l.UserID != filter.UserID {
			continue
		}
		l.ChannelID = copyInt(l.ChannelID)
		result = append(result, l)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return newer(result[i].Timestamp, result[i].ID, result[j].Timestamp, result[j].ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// --- announcements, notifications, settings ---

func (s *Store) ListAnnouncements(_ context.Context, activeOnly bool) ([]models.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Announcement, 0)
	for _, a := range s.announcements {
		if activeOnly && !a.IsActive {
			continue
		}
		a.ContentDetail = copyString(a.ContentDetail)
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return newer(result[i].CreatedAt, result[i].ID, result[j].CreatedAt, result[j].ID)
	})
	return result, nil
}

func (s *Store) UpsertAnnouncement(_ context.Context, a models.Announcement) (*models.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.next("announcements")
		a.CreatedAt = s.stamp()
	} else {
		cur, ok := s.announcements[a.ID]
		if !ok {
			return nil, nil
		}
		a.CreatedAt = cur.CreatedAt
	}
	a.ContentDetail = copyString(a.ContentDetail)
	s.announcements[a.ID] = a
	return &a, nil
}

func (s *Store) DeleteAnnouncement(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.announcements[id]; !ok {
		return false, nil
	}
	delete(s.announcements, id)
	return true, nil
}

func (s *Store) ListNotifications(_ context.Context, userID int64) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Notification, 0)
	for _, n := range s.notifications {
		if userID != 0 && n.TargetType != models.TargetGlobal && (n.UserID == nil || *n.UserID != userID) {
			continue
		}
		n.UserID = copyInt(n.UserID)
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool {
		return newer(result[i].Date, result[i].ID, result[j].Date, result[j].ID)
	})
	return result, nil
}

func (s *Store) InsertNotification(_ context.Context, n models.Notification) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.next("notifications")
	n.Date = s.stamp()
	n.IsRead = false
	n.UserID = copyInt(n.UserID)
	s.notifications[n.ID] = n
	return &n, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return false, nil
	}
	if n.TargetType != models.TargetGlobal && (n.UserID == nil || *n.UserID != userID) {
		return false, nil
	}
	n.IsRead = true
	s.notifications[id] = n
	return true, nil
}

func (s *Store) GetSettings(context.Context) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.settings
	return &st, nil
}

func (s *Store) SaveSettings(_ context.Context, st models.Settings) (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.UpdatedAt = s.stamp()
	s.settings = st
	return &st, nil
}

func (s *Store) Stats(context.Context) (models.AdminStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := models.AdminStats{
		UserCount: len(s.users),
		BotCount:  len(s.bots),
		LogCount:  len(s.logs),
	}
	for _, b := range s.bots {
		if b.RuntimeStatus == models.RuntimeActive {
			st.ActiveRuntimes++
		}
	}
	for _, c := range s.connections {
		if c.Status == models.ConnectionActive {
			st.ActiveConnections++
		}
	}
	return st, nil
}

// newer orders by timestamp descending, then id descending.
func newer(ta time.Time, ida int64, tb time.Time, idb int64) bool {
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return ida > idb
}
