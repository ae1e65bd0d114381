package database

import (
	"context"

	"github.com/qtosh1/botlyhub/internal/models"
)

const channelColumns = `c.id, c.user_id, c.name, c.telegram_chat, c.member_count, c.icon,
	c.is_ad_enabled, c.revenue::text, c.created_at`

func scanChannel(row rowScanner) (*models.Channel, error) {
	var c models.Channel
	var revenue string
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.TelegramChat, &c.MemberCount, &c.Icon,
		&c.IsAdEnabled, &revenue, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if c.Revenue, err = parseDecimal(revenue); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	c, err := scanChannel(s.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels c WHERE c.id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	return c, err
}

func (s *Store) ListChannels(ctx context.Context, userID int64) ([]models.Channel, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+channelColumns+` FROM channels c
		WHERE c.user_id = $1 ORDER BY c.created_at DESC, c.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Channel, 0)
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

// InsertChannel registers a channel. The same Telegram chat can be added once per user.
func (s *Store) InsertChannel(ctx context.Context, ch models.Channel) (*models.Channel, error) {
	c, err := scanChannel(s.pool.QueryRow(ctx, `
		WITH c AS (
			INSERT INTO channels (user_id, name, telegram_chat, member_count, icon, is_ad_enabled)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING *
		)
		SELECT `+channelColumns+` FROM c`,
		ch.UserID, ch.Name, ch.TelegramChat, ch.MemberCount, ch.Icon, ch.IsAdEnabled))
	if err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}
