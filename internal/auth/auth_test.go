package auth

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestSessionRoundTrip(t *testing.T) {
	s := NewSessions(secret, time.Hour)
	token, claims, err := s.Issue("admin")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	got, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Subject)
	assert.Equal(t, claims.ID, got.ID)
}

func TestSessionRejectsTampering(t *testing.T) {
	s := NewSessions(secret, time.Hour)
	token, _, err := s.Issue("admin")
	require.NoError(t, err)

	body, sig, _ := strings.Cut(token, ".")
	_, err = s.Validate(body + "x." + sig)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewSessions(strings.Repeat("z", 32), time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	for _, bad := range []string{"", "abc", ".", "abc."} {
		_, err = s.Validate(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
}

func TestSessionRejectsOtherAlgorithms(t *testing.T) {
	s := NewSessions(secret, time.Hour)
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		ID:        "sid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = s.Validate(hs512)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Validate(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "admin", ID: "sid"}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = s.Validate(noExpiry)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionExpires(t *testing.T) {
	s := NewSessions(secret, time.Minute)
	base := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return base }
	token, _, err := s.Issue("admin")
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = s.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCheckLogin(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	require.NoError(t, CheckLogin("admin", hash, "admin", "hunter2"))
	assert.ErrorIs(t, CheckLogin("admin", hash, "admin", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, CheckLogin("admin", hash, "root", "hunter2"), ErrInvalidCredentials)
	assert.ErrorIs(t, CheckLogin("admin", "", "admin", "hunter2"), ErrInvalidCredentials)

	_, err = HashPassword("")
	assert.Error(t, err)
}

func signedInitData(v *InitDataValidator, authDate time.Time) string {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("query_id", "AAH")
	values.Set("user", `{"id":42,"first_name":"Ada","last_name":"L","username":"ada"}`)
	values.Set("hash", v.sign(values))
	return values.Encode()
}

func TestInitDataValidate(t *testing.T) {
	v := NewInitDataValidator("123:ABC", time.Hour)
	now := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return now }

	user, err := v.Validate(signedInitData(v, now.Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.ID)
	assert.Equal(t, "ada", user.Username)
	assert.Equal(t, "Ada L", user.DisplayName())

	_, err = v.Validate(signedInitData(v, now.Add(-2*time.Hour)))
	assert.ErrorIs(t, err, ErrInitDataExpired)

	other := NewInitDataValidator("999:XYZ", time.Hour)
	_, err = v.Validate(signedInitData(other, now))
	assert.ErrorIs(t, err, ErrInitDataInvalid)

	_, err = v.Validate("")
	assert.ErrorIs(t, err, ErrInitDataMissing)
	_, err = v.Validate("user=%7B%7D&auth_date=1")
	assert.ErrorIs(t, err, ErrInitDataInvalid)
}
