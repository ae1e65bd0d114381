package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// SystemUserID marks log entries written by the platform itself.
const SystemUserID int64 = 0

var (
	// ErrDuplicate is returned by stores when a unique key already exists.
	ErrDuplicate = errors.New("record already exists")
	// ErrStale is returned by stores when a compare-and-swap update lost the race.
	ErrStale = errors.New("record changed concurrently")
)

type User struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Username      string     `json:"username"`
	Avatar        string     `json:"avatar"`
	Role          UserRole   `json:"role"`
	Status        UserStatus `json:"status"`
	Badges        []string   `json:"badges"`
	Email         *string    `json:"email,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	IsRestricted  bool       `json:"is_restricted"`
	CanPublishAds bool       `json:"can_publish_ads"`
	JoinedAt      time.Time  `json:"join_date"`
}

// Bot is a catalog entry. Visibility and runtime state are tracked separately.
type Bot struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Icon          string          `json:"icon"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	BotLink       string          `json:"bot_link"`
	Username      string          `json:"username"`
	Screenshots   []string        `json:"screenshots"`
	Features      []string        `json:"features"`
	IsNew         bool            `json:"is_new"`
	IsPremium     bool            `json:"is_premium"`
	CatalogStatus CatalogStatus   `json:"catalog_status"`
	RuntimeStatus RuntimeStatus   `json:"runtime_status"`
	RuntimeID     *string         `json:"runtime_id,omitempty"`
	UptimeStart   *time.Time      `json:"uptime_start,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsFree reports whether the bot can be added to a library without payment.
func (b Bot) IsFree() bool {
	return !b.Price.IsPositive()
}

type Channel struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	Name         string          `json:"name"`
	TelegramChat string          `json:"telegram_chat"`
	MemberCount  int             `json:"member_count"`
	Icon         string          `json:"icon"`
	IsAdEnabled  bool            `json:"is_ad_enabled"`
	Revenue      decimal.Decimal `json:"revenue"`
	CreatedAt    time.Time       `json:"created_at"`
}

// UserBot is an ownership record in a user's library.
type UserBot struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	BotID     int64     `json:"bot_id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// BotConnection is one deployment of a bot into a channel on behalf of a user.
type BotConnection struct {
	ID              int64            `json:"id"`
	UserID          int64            `json:"user_id"`
	BotID           int64            `json:"bot_id"`
	ChannelID       int64            `json:"channel_id"`
	Status          ConnectionStatus `json:"status"`
	IsAdminVerified bool             `json:"is_admin_verified"`
	LastCheckAt     *time.Time       `json:"last_check_at,omitempty"`
	RuntimeID       *string          `json:"runtime_id,omitempty"`
	UptimeStart     *time.Time       `json:"uptime_start,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ConnectionState is the mutable part of a BotConnection.
type ConnectionState struct {
	Status          ConnectionStatus
	IsAdminVerified bool
	LastCheckAt     *time.Time
	RuntimeID       *string
	UptimeStart     *time.Time
}

// State extracts the mutable fields.
func (c BotConnection) State() ConnectionState {
	return ConnectionState{
		Status:          c.Status,
		IsAdminVerified: c.IsAdminVerified,
		LastCheckAt:     c.LastCheckAt,
		RuntimeID:       c.RuntimeID,
		UptimeStart:     c.UptimeStart,
	}
}

// ConnectionView is a connection joined with its bot and channel for display.
type ConnectionView struct {
	BotConnection
	Bot     *Bot     `json:"bot,omitempty"`
	Channel *Channel `json:"channel,omitempty"`
}

// BotLog is an immutable activity record.
type BotLog struct {
	ID        int64     `json:"id"`
	BotID     int64     `json:"bot_id"`
	UserID    int64     `json:"user_id"`
	ChannelID *int64    `json:"channel_id,omitempty"`
	Action    string    `json:"action"`
	Status    LogStatus `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// LogFilter narrows a log listing. Zero values mean "any".
type LogFilter struct {
	BotID  int64
	UserID int64
	Limit  int
}

type Announcement struct {
	ID            int64              `json:"id"`
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	ButtonText    string             `json:"button_text"`
	ButtonLink    string             `json:"button_link"`
	IconName      string             `json:"icon_name"`
	ColorScheme   string             `json:"color_scheme"`
	IsActive      bool               `json:"is_active"`
	ActionType    AnnouncementAction `json:"action_type"`
	ContentDetail *string            `json:"content_detail,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

type Notification struct {
	ID         int64              `json:"id"`
	Type       NotificationType   `json:"type"`
	Title      string             `json:"title"`
	Message    string             `json:"message"`
	Date       time.Time          `json:"date"`
	IsRead     bool               `json:"is_read"`
	UserID     *int64             `json:"user_id,omitempty"`
	TargetType NotificationTarget `json:"target_type"`
}

// Settings is the singleton platform configuration row.
type Settings struct {
	AppName            string          `json:"app_name"`
	MaintenanceMode    bool            `json:"maintenance_mode"`
	CommissionRate     decimal.Decimal `json:"commission_rate"`
	SupportLink        string          `json:"support_link"`
	TermsURL           string          `json:"terms_url"`
	InstagramURL       string          `json:"instagram_url"`
	TelegramChannelURL string          `json:"telegram_channel_url"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// DefaultSettings mirrors the values a fresh installation starts with.
func DefaultSettings() Settings {
	return Settings{
		AppName:        "BotlyHub",
		CommissionRate: decimal.NewFromInt(5),
		SupportLink:    "https://t.me/support",
	}
}

type AdminStats struct {
	UserCount         int    `json:"user_count"`
	BotCount          int    `json:"bot_count"`
	LogCount          int    `json:"log_count"`
	ActiveRuntimes    int    `json:"active_runtimes"`
	ActiveConnections int    `json:"active_connections"`
	MerchantBalance   string `json:"merchant_balance_ton,omitempty"`
}

// UserAssets is the admin drill-down of everything a user holds.
type UserAssets struct {
	User     *User            `json:"user"`
	Channels []Channel        `json:"channels"`
	Bots     []Bot            `json:"bots"`
	Logs     []BotLog         `json:"logs"`
	Conns    []ConnectionView `json:"connections"`
}
