package database

import (
	"context"
	"database/sql"

	"github.com/qtosh1/botlyhub/internal/models"
)

const announcementColumns = `id, title, description, button_text, button_link, icon_name,
	color_scheme, is_active, action_type, content_detail, created_at`

func scanAnnouncement(row rowScanner) (*models.Announcement, error) {
	var a models.Announcement
	var detail sql.NullString
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.ButtonText, &a.ButtonLink, &a.IconName,
		&a.ColorScheme, &a.IsActive, &a.ActionType, &detail, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.ContentDetail = nullableString(detail)
	return &a, nil
}

// ListAnnouncements returns announcements newest first, optionally only the active ones.
func (s *Store) ListAnnouncements(ctx context.Context, activeOnly bool) ([]models.Announcement, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+announcementColumns+` FROM announcements
		WHERE NOT $1 OR is_active
		ORDER BY created_at DESC, id DESC`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Announcement, 0)
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// UpsertAnnouncement inserts when ID is zero, otherwise updates in place.
func (s *Store) UpsertAnnouncement(ctx context.Context, a models.Announcement) (*models.Announcement, error) {
	args := []any{a.Title, a.Description, a.ButtonText, a.ButtonLink, a.IconName, a.ColorScheme,
		a.IsActive, a.ActionType, optionalString(a.ContentDetail)}
	if a.ID == 0 {
		return scanAnnouncement(s.pool.QueryRow(ctx, `INSERT INTO announcements
			(title, description, button_text, button_link, icon_name, color_scheme, is_active, action_type, content_detail)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING `+announcementColumns, args...))
	}
	args = append(args, a.ID)
	row, err := scanAnnouncement(s.pool.QueryRow(ctx, `UPDATE announcements SET
			title = $1, description = $2, button_text = $3, button_link = $4, icon_name = $5,
			color_scheme = $6, is_active = $7, action_type = $8, content_detail = $9
		WHERE id = $10
		RETURNING `+announcementColumns, args...))
	if isNoRows(err) {
		return nil, nil
	}
	return row, err
}

func (s *Store) DeleteAnnouncement(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM announcements WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const notificationColumns = `id, type, title, message, date, is_read, user_id, target_type`

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var userID sql.NullInt64
	if err := row.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.Date, &n.IsRead, &userID, &n.TargetType); err != nil {
		return nil, err
	}
	n.UserID = nullableInt(userID)
	return &n, nil
}

// ListNotifications returns the user's own and global notifications. A zero user
// lists every notification.
func (s *Store) ListNotifications(ctx context.Context, userID int64) ([]models.Notification, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+notificationColumns+` FROM notifications
		WHERE $1 = 0 OR target_type = 'global' OR user_id = $1
		ORDER BY date DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

func (s *Store) InsertNotification(ctx context.Context, n models.Notification) (*models.Notification, error) {
	return scanNotification(s.pool.QueryRow(ctx, `INSERT INTO notifications (type, title, message, user_id, target_type)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING `+notificationColumns,
		n.Type, n.Title, n.Message, optionalInt64(n.UserID), n.TargetType))
}

// MarkNotificationRead flags a notification the user can see as read.
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND (target_type = 'global' OR user_id = $2)`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) GetSettings(ctx context.Context) (*models.Settings, error) {
	var st models.Settings
	var rate string
	err := s.pool.QueryRow(ctx, `SELECT app_name, maintenance_mode, commission_rate::text, support_link,
		terms_url, instagram_url, telegram_channel_url, updated_at FROM settings WHERE id = 1`).
		Scan(&st.AppName, &st.MaintenanceMode, &rate, &st.SupportLink, &st.TermsURL,
			&st.InstagramURL, &st.TelegramChannelURL, &st.UpdatedAt)
	if isNoRows(err) {
		def := models.DefaultSettings()
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	if st.CommissionRate, err = parseDecimal(rate); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) SaveSettings(ctx context.Context, st models.Settings) (*models.Settings, error) {
	_, err := s.pool.Exec(ctx, `INSERT INTO settings (id, app_name, maintenance_mode, commission_rate,
			support_link, terms_url, instagram_url, telegram_channel_url)
		VALUES (1,$1,$2,$3::numeric,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			app_name = EXCLUDED.app_name,
			maintenance_mode = EXCLUDED.maintenance_mode,
			commission_rate = EXCLUDED.commission_rate,
			support_link = EXCLUDED.support_link,
			terms_url = EXCLUDED.terms_url,
			instagram_url = EXCLUDED.instagram_url,
			telegram_channel_url = EXCLUDED.telegram_channel_url,
			updated_at = NOW()`,
		st.AppName, st.MaintenanceMode, st.CommissionRate.String(), st.SupportLink, st.TermsURL,
		st.InstagramURL, st.TelegramChannelURL)
	if err != nil {
		return nil, err
	}
	return s.GetSettings(ctx)
}

// Stats returns the platform counters shown on the admin dashboard.
func (s *Store) Stats(ctx context.Context) (models.AdminStats, error) {
	var st models.AdminStats
	err := s.pool.QueryRow(ctx, `SELECT
			(SELECT COUNT(*)::int FROM users),
			(SELECT COUNT(*)::int FROM bots),
			(SELECT COUNT(*)::int FROM bot_logs),
			(SELECT COUNT(*)::int FROM bots WHERE runtime_status = 'Active'),
			(SELECT COUNT(*)::int FROM bot_connections WHERE status = 'Active')`).
		Scan(&st.UserCount, &st.BotCount, &st.LogCount, &st.ActiveRuntimes, &st.ActiveConnections)
	return st, err
}
