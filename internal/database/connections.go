package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/qtosh1/botlyhub/internal/models"
)

const connectionColumns = `bc.id, bc.user_id, bc.bot_id, bc.channel_id, bc.status, bc.is_admin_verified,
	bc.last_check_at, bc.runtime_id, bc.uptime_start, bc.created_at, bc.updated_at`

func connectionDest(c *models.BotConnection, lastCheck, uptime *sql.NullTime, runtimeID *sql.NullString) []any {
	return []any{&c.ID, &c.UserID, &c.BotID, &c.ChannelID, &c.Status, &c.IsAdminVerified,
		lastCheck, runtimeID, uptime, &c.CreatedAt, &c.UpdatedAt}
}

func scanConnection(row rowScanner) (*models.BotConnection, error) {
	var c models.BotConnection
	var lastCheck, uptime sql.NullTime
	var runtimeID sql.NullString
	if err := row.Scan(connectionDest(&c, &lastCheck, &uptime, &runtimeID)...); err != nil {
		return nil, err
	}
	c.LastCheckAt = nullableTime(lastCheck)
	c.UptimeStart = nullableTime(uptime)
	c.RuntimeID = nullableString(runtimeID)
	return &c, nil
}

// InsertConnection creates a connection. A second deploy of the same bot into the
// same channel by the same user returns models.ErrDuplicate.
func (s *Store) InsertConnection(ctx context.Context, conn models.BotConnection) (*models.BotConnection, error) {
	c, err := scanConnection(s.pool.QueryRow(ctx, `
		WITH bc AS (
			INSERT INTO bot_connections (user_id, bot_id, channel_id, status, is_admin_verified)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING *
		)
		SELECT `+connectionColumns+` FROM bc`,
		conn.UserID, conn.BotID, conn.ChannelID, conn.Status, conn.IsAdminVerified))
	if err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}

func (s *Store) GetConnection(ctx context.Context, id int64) (*models.BotConnection, error) {
	c, err := scanConnection(s.pool.QueryRow(ctx, `SELECT `+connectionColumns+` FROM bot_connections bc WHERE bc.id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	return c, err
}

// ListConnections returns a user's connections joined with their bot and channel, newest first.
func (s *Store) ListConnections(ctx context.Context, userID int64) ([]models.ConnectionView, error) {
	return s.queryConnectionViews(ctx, `WHERE bc.user_id = $1 ORDER BY bc.created_at DESC, bc.id DESC`, userID)
}

// ListConnectionsByStatus returns every connection in the given status, oldest check first.
func (s *Store) ListConnectionsByStatus(ctx context.Context, status models.ConnectionStatus, limit int) ([]models.ConnectionView, error) {
	return s.queryConnectionViews(ctx, `WHERE bc.status = $1
		ORDER BY bc.last_check_at ASC NULLS FIRST, bc.id ASC
		LIMIT $2`, status, limit)
}

func (s *Store) queryConnectionViews(ctx context.Context, tail string, args ...any) ([]models.ConnectionView, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+connectionColumns+`, `+botColumns+`, `+channelColumns+`
		FROM bot_connections bc
		JOIN bots b ON b.id = bc.bot_id
		JOIN channels c ON c.id = bc.channel_id
		`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.ConnectionView, 0)
	for rows.Next() {
		view, err := scanConnectionView(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *view)
	}
	return result, rows.Err()
}

// UpdateConnectionState writes next only while the row still has the expected status.
// A lost race returns models.ErrStale.
func (s *Store) UpdateConnectionState(ctx context.Context, id int64, expected models.ConnectionStatus, next models.ConnectionState) (*models.BotConnection, error) {
	c, err := scanConnection(s.pool.QueryRow(ctx, `
		WITH bc AS (
			UPDATE bot_connections
			SET status = $3, is_admin_verified = $4, last_check_at = $5, runtime_id = $6,
				uptime_start = $7, updated_at = NOW()
			WHERE id = $1 AND status = $2
			RETURNING *
		)
		SELECT `+connectionColumns+` FROM bc`,
		id, expected, next.Status, next.IsAdminVerified, optionalTime(next.LastCheckAt),
		optionalString(next.RuntimeID), optionalTime(next.UptimeStart)))
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: connection %d is no longer %s", models.ErrStale, id, expected)
	}
	return c, err
}

// scanConnectionView reads a row laid out as connection, bot and channel columns.
func scanConnectionView(row rowScanner) (*models.ConnectionView, error) {
	var (
		view      models.ConnectionView
		lastCheck sql.NullTime
		uptime    sql.NullTime
		runtimeID sql.NullString

		bot          models.Bot
		price        string
		botRuntimeID sql.NullString
		botUptime    sql.NullTime

		channel models.Channel
		revenue string
	)
	dest := connectionDest(&view.BotConnection, &lastCheck, &uptime, &runtimeID)
	dest = append(dest, &bot.ID, &bot.Name, &bot.Description, &bot.Icon, &price, &bot.Category,
		&bot.BotLink, &bot.Username, &bot.Screenshots, &bot.Features, &bot.IsNew, &bot.IsPremium,
		&bot.CatalogStatus, &bot.RuntimeStatus, &botRuntimeID, &botUptime, &bot.CreatedAt, &bot.UpdatedAt)
	dest = append(dest, &channel.ID, &channel.UserID, &channel.Name, &channel.TelegramChat,
		&channel.MemberCount, &channel.Icon, &channel.IsAdEnabled, &revenue, &channel.CreatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	view.LastCheckAt = nullableTime(lastCheck)
	view.UptimeStart = nullableTime(uptime)
	view.RuntimeID = nullableString(runtimeID)
	if bot.Price, err = parseDecimal(price); err != nil {
		return nil, err
	}
	bot.RuntimeID = nullableString(botRuntimeID)
	bot.UptimeStart = nullableTime(botUptime)
	bot.Screenshots = nonNil(bot.Screenshots)
	bot.Features = nonNil(bot.Features)
	if channel.Revenue, err = parseDecimal(revenue); err != nil {
		return nil, err
	}
	view.Bot = &bot
	view.Channel = &channel
	return &view, nil
}
