package ton

import (
	"context"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

func TestFormatBigTon(t *testing.T) {
	cases := map[string]string{
		"0":              "0",
		"1":              "0.000000001",
		"1000000000":     "1",
		"1500000000":     "1.5",
		"-2500000000":    "-2.5",
		"12345678901234": "12345.678901234",
	}
	for in, want := range cases {
		n, ok := new(big.Int).SetString(in, 10)
		require.True(t, ok)
		assert.Equal(t, want, formatBigTon(n), in)
	}
	assert.Equal(t, "0", formatTonString("garbage"))
}

func TestNormalizeAddress(t *testing.T) {
	addr := address.NewAddress(0, 0, make([]byte, 32))

	friendly, err := NormalizeAddress(addr.String())
	require.NoError(t, err)

	raw, err := NormalizeAddress("0:" + "0000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, friendly, raw)

	_, err = NormalizeAddress("not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = NormalizeAddress("  ")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestToNano(t *testing.T) {
	nano, err := ToNano(decimal.RequireFromString("2.5"))
	require.NoError(t, err)
	assert.Equal(t, "2500000000", nano)

	_, err = ToNano(decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBocHash(t *testing.T) {
	c := cell.BeginCell().MustStoreUInt(42, 32).EndCell()
	boc := base64.StdEncoding.EncodeToString(c.ToBOC())

	hash, err := BocHash(boc)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	_, err = BocHash("!!!")
	assert.ErrorIs(t, err, ErrInvalidBoc)
}

func TestGetAccountBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/getAddressBalance", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "EQabc", r.URL.Query().Get("address"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":"3250000000"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL + "/api/v2/jsonRPC", APIKey: "secret"})
	bal, err := client.GetAccountBalance(context.Background(), "EQabc")
	require.NoError(t, err)
	assert.Equal(t, "3250000000", bal.Nano)
	assert.Equal(t, "3.25", bal.Ton)
}

func TestPingReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error":"API key does not exist"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL})
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
