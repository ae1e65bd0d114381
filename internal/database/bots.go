package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/qtosh1/botlyhub/internal/models"
)

const botColumns = `b.id, b.name, b.description, b.icon, b.price::text, b.category, b.bot_link,
	b.username, b.screenshots, b.features, b.is_new, b.is_premium, b.catalog_status,
	b.runtime_status, b.runtime_id, b.uptime_start, b.created_at, b.updated_at`

func scanBot(row rowScanner) (*models.Bot, error) {
	var b models.Bot
	var price string
	var runtimeID sql.NullString
	var uptime sql.NullTime
	err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &price, &b.Category, &b.BotLink,
		&b.Username, &b.Screenshots, &b.Features, &b.IsNew, &b.IsPremium, &b.CatalogStatus,
		&b.RuntimeStatus, &runtimeID, &uptime, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if b.Price, err = parseDecimal(price); err != nil {
		return nil, err
	}
	b.RuntimeID = nullableString(runtimeID)
	b.UptimeStart = nullableTime(uptime)
	b.Screenshots = nonNil(b.Screenshots)
	b.Features = nonNil(b.Features)
	return &b, nil
}

func (s *Store) collectBots(ctx context.Context, query string, args ...any) ([]models.Bot, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Bot, 0)
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

// ListBots returns catalog-visible bots, newest first. An empty category means all.
func (s *Store) ListBots(ctx context.Context, category string) ([]models.Bot, error) {
	return s.collectBots(ctx, `SELECT `+botColumns+` FROM bots b
		WHERE b.catalog_status = 'Active' AND ($1 = '' OR b.category = $1)
		ORDER BY b.created_at DESC, b.id DESC`, category)
}

// ListAllBots returns every bot regardless of catalog status, for the admin console.
func (s *Store) ListAllBots(ctx context.Context) ([]models.Bot, error) {
	return s.collectBots(ctx, `SELECT `+botColumns+` FROM bots b ORDER BY b.created_at DESC, b.id DESC`)
}

func (s *Store) GetBot(ctx context.Context, id int64) (*models.Bot, error) {
	b, err := scanBot(s.pool.QueryRow(ctx, `SELECT `+botColumns+` FROM bots b WHERE b.id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	return b, err
}

// UpsertBot inserts a bot when ID is zero and updates the catalog fields otherwise.
// Runtime fields are only changed through SetBotRuntime.
func (s *Store) UpsertBot(ctx context.Context, bot models.Bot) (*models.Bot, error) {
	args := []any{bot.Name, bot.Description, bot.Icon, bot.Price.String(), bot.Category, bot.BotLink,
		bot.Username, nonNil(bot.Screenshots), nonNil(bot.Features), bot.IsNew, bot.IsPremium, bot.CatalogStatus}
	if bot.ID == 0 {
		b, err := scanBot(s.pool.QueryRow(ctx, `
			WITH b AS (
				INSERT INTO bots (name, description, icon, price, category, bot_link, username,
					screenshots, features, is_new, is_premium, catalog_status)
				VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10,$11,$12)
				RETURNING *
			)
			SELECT `+botColumns+` FROM b`, args...))
		return b, mapErr(err)
	}
	args = append(args, bot.ID)
	b, err := scanBot(s.pool.QueryRow(ctx, `
		WITH b AS (
			UPDATE bots SET name = $1, description = $2, icon = $3, price = $4::numeric, category = $5,
				bot_link = $6, username = $7, screenshots = $8, features = $9, is_new = $10,
				is_premium = $11, catalog_status = $12, updated_at = NOW()
			WHERE id = $13
			RETURNING *
		)
		SELECT `+botColumns+` FROM b`, args...))
	if isNoRows(err) {
		return nil, nil
	}
	return b, mapErr(err)
}

func (s *Store) DeleteBot(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bots WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) SetBotRuntime(ctx context.Context, id int64, status models.RuntimeStatus, runtimeID *string, uptimeStart *time.Time) (*models.Bot, error) {
	b, err := scanBot(s.pool.QueryRow(ctx, `
		WITH b AS (
			UPDATE bots SET runtime_status = $2, runtime_id = $3, uptime_start = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING *
		)
		SELECT `+botColumns+` FROM b`, id, status, optionalString(runtimeID), optionalTime(uptimeStart)))
	if isNoRows(err) {
		return nil, nil
	}
	return b, err
}

func (s *Store) OwnsBot(ctx context.Context, userID, botID int64) (bool, error) {
	var owned bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_bots WHERE user_id = $1 AND bot_id = $2)`,
		userID, botID).Scan(&owned)
	return owned, err
}

// AddUserBot records ownership. A second grant of the same bot returns models.ErrDuplicate.
func (s *Store) AddUserBot(ctx context.Context, userID, botID int64, source string) (*models.UserBot, error) {
	var ub models.UserBot
	err := s.pool.QueryRow(ctx, `INSERT INTO user_bots (user_id, bot_id, source)
		VALUES ($1,$2,$3)
		RETURNING id, user_id, bot_id, source, created_at`,
		userID, botID, source,
	).Scan(&ub.ID, &ub.UserID, &ub.BotID, &ub.Source, &ub.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ub, nil
}

// ListUserBots returns the bots a user owns, most recently acquired first.
func (s *Store) ListUserBots(ctx context.Context, userID int64) ([]models.Bot, error) {
	return s.collectBots(ctx, `SELECT `+botColumns+` FROM bots b
		JOIN user_bots ub ON ub.bot_id = b.id
		WHERE ub.user_id = $1
		ORDER BY ub.created_at DESC, ub.id DESC`, userID)
}
