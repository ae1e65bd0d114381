package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/models"
)

var (
	ErrNotFound            = errors.New("registry: connection not found")
	ErrNotOwned            = errors.New("registry: bot is not in the user's library")
	ErrChannelNotFound     = errors.New("registry: channel not found")
	ErrBotNotFound         = errors.New("registry: bot not found")
	ErrDuplicateConnection = errors.New("registry: bot already connected to this channel")
	ErrNotVerified         = errors.New("registry: bot admin rights are not verified")
	ErrInvalidTransition   = errors.New("registry: status transition not allowed")
	ErrConflict            = errors.New("registry: connection changed concurrently")
	ErrEmptyMessage        = errors.New("registry: broadcast message is empty")
)

// Store is the persistence contract the registry needs.
type Store interface {
	InsertConnection(ctx context.Context, conn models.BotConnection) (*models.BotConnection, error)
	GetConnection(ctx context.Context, id int64) (*models.BotConnection, error)
	ListConnections(ctx context.Context, userID int64) ([]models.ConnectionView, error)
	// UpdateConnectionState applies next only while the row still has the expected status.
	UpdateConnectionState(ctx context.Context, id int64, expected models.ConnectionStatus, next models.ConnectionState) (*models.BotConnection, error)
	OwnsBot(ctx context.Context, userID, botID int64) (bool, error)
	GetBot(ctx context.Context, id int64) (*models.Bot, error)
	GetChannel(ctx context.Context, id int64) (*models.Channel, error)
}

// PermissionChecker confirms that a bot holds administrator rights in a channel.
// A false result is a valid outcome; errors mean the check itself could not run.
type PermissionChecker interface {
	IsAdministrator(ctx context.Context, bot models.Bot, channel models.Channel) (bool, error)
}

// Broadcaster delivers a message into a channel.
type Broadcaster interface {
	SendToChannel(ctx context.Context, channel models.Channel, text string) error
}

// ActivityLog receives one entry per registry operation. It must not block on failures.
type ActivityLog interface {
	Append(ctx context.Context, entry models.BotLog)
}

// Options configure a Registry.
type Options struct {
	Store         Store
	Checker       PermissionChecker
	Broadcaster   Broadcaster
	Activity      ActivityLog
	Logger        logrus.FieldLogger
	VerifyTimeout time.Duration
	Now           func() time.Time
}

// Registry mediates the lifecycle of bot-to-channel deployments.
//
// Concurrent requests for the same connection are serialised in-process; across
// processes the store's compare-and-swap on the prior status rejects lost updates
// with ErrConflict instead of letting the last write win.
type Registry struct {
	store         Store
	checker       PermissionChecker
	broadcaster   Broadcaster
	activity      ActivityLog
	log           *logrus.Entry
	verifyTimeout time.Duration
	now           func() time.Time
	locks         *keyedLocker
}

// New creates a Registry.
func New(opts Options) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.VerifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Registry{
		store:         opts.Store,
		checker:       opts.Checker,
		broadcaster:   opts.Broadcaster,
		activity:      opts.Activity,
		log:           logger.Component(opts.Logger, "registry"),
		verifyTimeout: timeout,
		now:           now,
		locks:         newKeyedLocker(),
	}
}

// Create deploys an owned bot into one of the user's channels in the Pending state.
func (r *Registry) Create(ctx context.Context, userID, botID, channelID int64) (*models.BotConnection, error) {
	owned, err := r.store.OwnsBot(ctx, userID, botID)
	if err != nil {
		return nil, fmt.Errorf("check ownership: %w", err)
	}
	if !owned {
		return nil, ErrNotOwned
	}
	channel, err := r.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("load channel: %w", err)
	}
	if channel == nil || channel.UserID != userID {
		return nil, ErrChannelNotFound
	}

	conn, err := r.store.InsertConnection(ctx, models.BotConnection{
		UserID:          userID,
		BotID:           botID,
		ChannelID:       channelID,
		Status:          models.ConnectionPending,
		IsAdminVerified: false,
	})
	if errors.Is(err, models.ErrDuplicate) {
		r.record(ctx, models.BotConnection{UserID: userID, BotID: botID, ChannelID: channelID},
			fmt.Sprintf("Connect to %s rejected: already connected", channel.Name), models.LogError)
		return nil, ErrDuplicateConnection
	}
	if err != nil {
		return nil, fmt.Errorf("insert connection: %w", err)
	}
	r.record(ctx, *conn, fmt.Sprintf("Bot connected to %s, waiting for admin verification", channel.Name), models.LogInfo)
	return conn, nil
}

// Get returns a single connection.
func (r *Registry) Get(ctx context.Context, id int64) (*models.BotConnection, error) {
	conn, err := r.store.GetConnection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if conn == nil {
		return nil, ErrNotFound
	}
	return conn, nil
}

// List returns every connection of a user joined with its bot and channel.
func (r *Registry) List(ctx context.Context, userID int64) ([]models.ConnectionView, error) {
	rows, err := r.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return rows, nil
}

// Verify asks the permission checker whether the bot administers the channel and
// records the outcome. It returns the outcome; a failed check is not an error.
func (r *Registry) Verify(ctx context.Context, id int64) (bool, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	conn, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	bot, channel, err := r.resolve(ctx, conn)
	if err != nil {
		return false, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, r.verifyTimeout)
	passed, err := r.checker.IsAdministrator(checkCtx, *bot, *channel)
	cancel()
	if err != nil {
		r.log.WithError(err).WithField("connection_id", id).Warn("permission check failed")
		r.record(ctx, *conn, fmt.Sprintf("Verification in %s could not complete", channel.Name), models.LogError)
		return false, fmt.Errorf("check permissions: %w", err)
	}

	next := verifiedState(conn.State(), passed, r.now())
	if err := CheckInvariant(next); err != nil {
		r.record(ctx, *conn, "Verification rejected: inconsistent connection state", models.LogError)
		return false, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	updated, err := r.store.UpdateConnectionState(ctx, id, conn.Status, next)
	if err != nil {
		return false, r.updateErr(ctx, *conn, err)
	}

	if passed {
		r.record(ctx, *updated, fmt.Sprintf("Admin rights verified in %s, bot is active", channel.Name), models.LogSuccess)
	} else {
		r.record(ctx, *updated, fmt.Sprintf("Bot is not an administrator in %s", channel.Name), models.LogError)
	}
	r.log.WithFields(logrus.Fields{"connection_id": id, "verified": passed}).Info("verification finished")
	return passed, nil
}

// SetRuntimeStatus starts or stops a connection without re-running verification.
// Starting is refused while the connection is not verified.
func (r *Registry) SetRuntimeStatus(ctx context.Context, id int64, next models.ConnectionStatus) (*models.BotConnection, error) {
	if !RuntimeTarget(next) {
		return nil, fmt.Errorf("%w: %q is not a runtime status", ErrInvalidTransition, next)
	}

	unlock := r.locks.lock(id)
	defer unlock()

	conn, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.setRuntimeStatus(ctx, conn, next)
}

// setRuntimeStatus applies a runtime change to conn. The caller holds the
// connection lock.
func (r *Registry) setRuntimeStatus(ctx context.Context, conn *models.BotConnection, next models.ConnectionStatus) (*models.BotConnection, error) {
	if next.Running() && !conn.IsAdminVerified {
		r.record(ctx, *conn, "Start rejected: admin rights are not verified", models.LogError)
		return nil, ErrNotVerified
	}
	if conn.Status == next {
		r.record(ctx, *conn, fmt.Sprintf("Runtime already %s", strings.ToLower(string(next))), models.LogInfo)
		return conn, nil
	}
	if !CanTransition(conn.Status, next) {
		r.record(ctx, *conn, fmt.Sprintf("Runtime change %s -> %s rejected", conn.Status, next), models.LogError)
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, conn.Status, next)
	}

	state := runtimeState(conn.State(), next, r.now())
	if err := CheckInvariant(state); err != nil {
		r.record(ctx, *conn, fmt.Sprintf("Runtime change %s -> %s rejected: inconsistent state", conn.Status, next), models.LogError)
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	updated, err := r.store.UpdateConnectionState(ctx, conn.ID, conn.Status, state)
	if err != nil {
		return nil, r.updateErr(ctx, *conn, err)
	}
	r.record(ctx, *updated, runtimeAction(next, updated.RuntimeID), runtimeLogStatus(next))
	return updated, nil
}

// Start moves a stopped connection back to Active.
func (r *Registry) Start(ctx context.Context, id int64) (*models.BotConnection, error) {
	return r.SetRuntimeStatus(ctx, id, models.ConnectionActive)
}

// Stop moves an active connection to Stopped.
func (r *Registry) Stop(ctx context.Context, id int64) (*models.BotConnection, error) {
	return r.SetRuntimeStatus(ctx, id, models.ConnectionStopped)
}

// Restart stops a running connection and starts it again with a new runtime id.
// Both steps run under one connection lock.
func (r *Registry) Restart(ctx context.Context, id int64) (*models.BotConnection, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	conn, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn.Status.Running() {
		if conn, err = r.setRuntimeStatus(ctx, conn, models.ConnectionStopped); err != nil {
			return nil, err
		}
	}
	return r.setRuntimeStatus(ctx, conn, models.ConnectionActive)
}

// Broadcast posts a message into the connection's channel. Only verified
// connections may post.
func (r *Registry) Broadcast(ctx context.Context, id int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	conn, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !conn.IsAdminVerified {
		r.record(ctx, *conn, "Broadcast rejected: admin rights are not verified", models.LogError)
		return ErrNotVerified
	}
	_, channel, err := r.resolve(ctx, conn)
	if err != nil {
		return err
	}
	if r.broadcaster == nil {
		r.record(ctx, *conn, "Broadcast unavailable: no delivery channel configured", models.LogError)
		return errors.New("registry: broadcaster not configured")
	}
	if err := r.broadcaster.SendToChannel(ctx, *channel, text); err != nil {
		r.record(ctx, *conn, fmt.Sprintf("Broadcast to %s failed", channel.Name), models.LogError)
		return fmt.Errorf("send broadcast: %w", err)
	}
	r.record(ctx, *conn, "Broadcast: "+preview(text, 30), models.LogSuccess)
	return nil
}

func (r *Registry) resolve(ctx context.Context, conn *models.BotConnection) (*models.Bot, *models.Channel, error) {
	bot, err := r.store.GetBot(ctx, conn.BotID)
	if err != nil {
		return nil, nil, fmt.Errorf("load bot: %w", err)
	}
	if bot == nil {
		return nil, nil, ErrBotNotFound
	}
	channel, err := r.store.GetChannel(ctx, conn.ChannelID)
	if err != nil {
		return nil, nil, fmt.Errorf("load channel: %w", err)
	}
	if channel == nil {
		return nil, nil, ErrChannelNotFound
	}
	return bot, channel, nil
}

func (r *Registry) updateErr(ctx context.Context, conn models.BotConnection, err error) error {
	if errors.Is(err, models.ErrStale) {
		r.record(ctx, conn, "Connection changed concurrently, request not applied", models.LogError)
		return ErrConflict
	}
	r.record(ctx, conn, "Connection state could not be saved", models.LogError)
	return fmt.Errorf("update connection: %w", err)
}

func (r *Registry) record(ctx context.Context, conn models.BotConnection, action string, status models.LogStatus) {
	if r.activity == nil {
		return
	}
	entry := models.BotLog{
		BotID:  conn.BotID,
		UserID: conn.UserID,
		Action: action,
		Status: status,
	}
	if conn.ChannelID != 0 {
		channelID := conn.ChannelID
		entry.ChannelID = &channelID
	}
	r.activity.Append(ctx, entry)
}

func runtimeAction(next models.ConnectionStatus, runtimeID *string) string {
	switch next {
	case models.ConnectionActive:
		if runtimeID != nil {
			return fmt.Sprintf("Runtime %s started", *runtimeID)
		}
		return "Runtime started"
	case models.ConnectionBooting:
		return "Runtime booting"
	default:
		return "Runtime stopped"
	}
}

func runtimeLogStatus(next models.ConnectionStatus) models.LogStatus {
	if next == models.ConnectionStopped {
		return models.LogInfo
	}
	return models.LogSuccess
}

func newRuntimeID() *string {
	id := "rt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return &id
}

func preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
