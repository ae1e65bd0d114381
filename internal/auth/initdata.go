package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInitDataMissing = errors.New("auth: init data is missing")
	ErrInitDataInvalid = errors.New("auth: init data signature mismatch")
	ErrInitDataExpired = errors.New("auth: init data is too old")
)

// TelegramUser is the "user" object embedded in WebApp init data.
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
}

// DisplayName joins first and last name.
func (u TelegramUser) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// InitDataValidator checks Telegram WebApp init data against the bot token.
type InitDataValidator struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewInitDataValidator(botToken string, maxAge time.Duration) *InitDataValidator {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return &InitDataValidator{secret: mac.Sum(nil), maxAge: maxAge, now: time.Now}
}

// Validate verifies the hash and freshness of raw and returns the embedded user.
func (v *InitDataValidator) Validate(raw string) (*TelegramUser, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInitDataMissing
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitDataInvalid, err)
	}
	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrInitDataInvalid
	}
	if !hmac.Equal([]byte(strings.ToLower(hash)), []byte(v.sign(values))) {
		return nil, ErrInitDataInvalid
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad auth_date", ErrInitDataInvalid)
	}
	if v.maxAge > 0 && v.now().Sub(time.Unix(authDate, 0)) > v.maxAge {
		return nil, ErrInitDataExpired
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, fmt.Errorf("%w: missing user", ErrInitDataInvalid)
	}
	return &user, nil
}

// sign builds the data-check string (sorted key=value lines without hash) and signs it.
func (v *InitDataValidator) sign(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
