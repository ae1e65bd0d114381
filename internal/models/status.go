package models

// ConnectionStatus is the lifecycle state of a bot deployed into a channel.
type ConnectionStatus string

const (
	ConnectionPending            ConnectionStatus = "Pending"
	ConnectionMissingPermissions ConnectionStatus = "MissingPermissions"
	ConnectionActive             ConnectionStatus = "Active"
	ConnectionStopped            ConnectionStatus = "Stopped"
	ConnectionBooting            ConnectionStatus = "Booting"
)

func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionPending, ConnectionMissingPermissions, ConnectionActive, ConnectionStopped, ConnectionBooting:
		return true
	}
	return false
}

// Running reports whether the state requires a verified connection.
func (s ConnectionStatus) Running() bool {
	return s == ConnectionActive || s == ConnectionBooting
}

// CatalogStatus controls storefront visibility of a bot.
type CatalogStatus string

const (
	CatalogActive CatalogStatus = "Active"
	CatalogError  CatalogStatus = "Error"
)

func (s CatalogStatus) Valid() bool {
	return s == CatalogActive || s == CatalogError
}

// RuntimeStatus is the admin-managed runtime state of a catalog bot.
type RuntimeStatus string

const (
	RuntimeStopped RuntimeStatus = "Stopped"
	RuntimeBooting RuntimeStatus = "Booting"
	RuntimeActive  RuntimeStatus = "Active"
)

func (s RuntimeStatus) Valid() bool {
	switch s {
	case RuntimeStopped, RuntimeBooting, RuntimeActive:
		return true
	}
	return false
}

// LogStatus classifies an activity log entry.
type LogStatus string

const (
	LogSuccess  LogStatus = "success"
	LogError    LogStatus = "error"
	LogInfo     LogStatus = "info"
	LogCritical LogStatus = "critical"
	LogTerminal LogStatus = "terminal"
)

func (s LogStatus) Valid() bool {
	switch s {
	case LogSuccess, LogError, LogInfo, LogCritical, LogTerminal:
		return true
	}
	return false
}

type UserRole string

const (
	RoleAdmin     UserRole = "Admin"
	RoleUser      UserRole = "User"
	RoleModerator UserRole = "Moderator"
)

func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleUser || r == RoleModerator
}

type UserStatus string

const (
	UserActive  UserStatus = "Active"
	UserPassive UserStatus = "Passive"
)

func (s UserStatus) Valid() bool {
	return s == UserActive || s == UserPassive
}

type NotificationType string

const (
	NotificationSystem   NotificationType = "system"
	NotificationPayment  NotificationType = "payment"
	NotificationSecurity NotificationType = "security"
	NotificationBot      NotificationType = "bot"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationSystem, NotificationPayment, NotificationSecurity, NotificationBot:
		return true
	}
	return false
}

type NotificationTarget string

const (
	TargetUser   NotificationTarget = "user"
	TargetGlobal NotificationTarget = "global"
)

type AnnouncementAction string

const (
	ActionLink  AnnouncementAction = "link"
	ActionPopup AnnouncementAction = "popup"
)

func (a AnnouncementAction) Valid() bool {
	return a == ActionLink || a == ActionPopup
}
