package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("auth: empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckLogin compares the submitted credentials with the configured admin account.
func CheckLogin(wantUser, hash, user, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(wantUser), []byte(user)) == 1
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil || !userOK {
		return ErrInvalidCredentials
	}
	return nil
}
