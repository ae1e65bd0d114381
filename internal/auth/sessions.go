package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("auth: invalid session token")
	ErrExpiredToken = errors.New("auth: session expired")
)

// Claims is the payload of an admin session token. The registered ID claim
// carries the session id.
type Claims struct {
	jwt.RegisteredClaims
}

// Sessions issues and validates HS256 signed, expiring JWTs.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a token for subject.
func (s *Sessions) Issue(subject string) (string, Claims, error) {
	if len(s.secret) == 0 {
		return "", Claims{}, errors.New("auth: session secret is not configured")
	}
	now := s.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign session: %w", err)
	}
	return token, claims, nil
}

// Validate checks the signature and expiry of token.
func (s *Sessions) Validate(token string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrInvalidToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.Subject == "" || claims.ID == "":
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
