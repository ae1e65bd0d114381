package database

import (
	"context"
	"database/sql"

	"github.com/qtosh1/botlyhub/internal/models"
)

const userColumns = `id, name, username, avatar, role, status, badges, email, phone,
	is_restricted, can_publish_ads, joined_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var email, phone sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Avatar, &u.Role, &u.Status, &u.Badges,
		&email, &phone, &u.IsRestricted, &u.CanPublishAds, &u.JoinedAt)
	if err != nil {
		return nil, err
	}
	u.Email = nullableString(email)
	u.Phone = nullableString(phone)
	u.Badges = nonNil(u.Badges)
	return &u, nil
}

// SyncUser inserts a Telegram user or refreshes the profile fields Telegram owns.
// Role, status and contact details are left untouched on conflict.
func (s *Store) SyncUser(ctx context.Context, u models.User) (*models.User, error) {
	role := u.Role
	if !role.Valid() {
		role = models.RoleUser
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, username, avatar, role)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, username = EXCLUDED.username, avatar = EXCLUDED.avatar
		RETURNING `+userColumns,
		u.ID, u.Name, u.Username, u.Avatar, role)
	return scanUser(row)
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	return u, err
}

// UpdateUserProfile replaces the contact details. A nil value clears the field.
func (s *Store) UpdateUserProfile(ctx context.Context, id int64, email, phone *string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET email = $2, phone = $3 WHERE id = $1
		RETURNING `+userColumns, id, optionalString(email), optionalString(phone)))
	if isNoRows(err) {
		return nil, nil
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY joined_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	return result, rows.Err()
}

func (s *Store) SetUserStatus(ctx context.Context, id int64, status models.UserStatus) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET status = $2, is_restricted = ($2 <> 'Active') WHERE id = $1
		RETURNING `+userColumns, id, status))
	if isNoRows(err) {
		return nil, nil
	}
	return u, err
}
