package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/qtosh1/botlyhub/internal/models"
)

// InsertLog appends an activity entry. A zero timestamp falls back to NOW().
func (s *Store) InsertLog(ctx context.Context, entry models.BotLog) (*models.BotLog, error) {
	var ts any
	if !entry.Timestamp.IsZero() {
		ts = entry.Timestamp
	}
	var channelID sql.NullInt64
	row := entry
	err := s.pool.QueryRow(ctx, `INSERT INTO bot_logs (bot_id, user_id, channel_id, action, status, timestamp)
		VALUES ($1,$2,$3,$4,$5,COALESCE($6, NOW()))
		RETURNING id, channel_id, timestamp`,
		entry.BotID, entry.UserID, optionalInt64(entry.ChannelID), entry.Action, entry.Status, ts,
	).Scan(&row.ID, &channelID, &row.Timestamp)
	if err != nil {
		return nil, err
	}
	row.ChannelID = nullableInt(channelID)
	row.Timestamp = row.Timestamp.UTC()
	return &row, nil
}

// ListLogs returns entries newest first. Zero filter fields match everything.
func (s *Store) ListLogs(ctx context.Context, filter models.LogFilter) ([]models.BotLog, error) {
	var (
		where []string
		args  []any
	)
	if filter.BotID != 0 {
		args = append(args, filter.BotID)
		where = append(where, fmt.Sprintf("bot_id = $%d", len(args)))
	}
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	query := `SELECT id, bot_id, user_id, channel_id, action, status, timestamp FROM bot_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.BotLog, 0)
	for rows.Next() {
		var l models.BotLog
		var channelID sql.NullInt64
		if err := rows.Scan(&l.ID, &l.BotID, &l.UserID, &channelID, &l.Action, &l.Status, &l.Timestamp); err != nil {
			return nil, err
		}
		l.ChannelID = nullableInt(channelID)
		l.Timestamp = l.Timestamp.UTC()
		result = append(result, l)
	}
	return result, rows.Err()
}
