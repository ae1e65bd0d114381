package ton

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

var (
	ErrInvalidAddress = errors.New("ton: invalid address")
	ErrInvalidBoc     = errors.New("ton: invalid boc")
	ErrInvalidAmount  = errors.New("ton: invalid amount")
)

// Config describes Ton endpoint settings.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client is a thin wrapper over TON Center HTTP APIs.
type Client struct {
	endpoint string
	restBase string
	http     *resty.Client
}

// NewClient constructs a Ton client helper.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimRight(cfg.Endpoint, "/")
	rest := base
	if strings.HasSuffix(strings.ToLower(rest), "/jsonrpc") {
		rest = rest[:len(rest)-len("/jsonrpc")]
	}
	rest = strings.TrimRight(rest, "/")

	client := resty.New().
		SetBaseURL(rest).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && resp.StatusCode() == 429
		})
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		client.SetHeader("X-API-Key", key)
	}
	return &Client{endpoint: base, restBase: rest, http: client}
}

// Endpoint returns the configured JSON-RPC endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Ping verifies that the configured endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	var resp tonTimeResponse
	if err := c.call(ctx, "getServerTime", nil, &resp); err != nil {
		return err
	}
	if !resp.Ok {
		return fmt.Errorf("ton ping failed: %s", resp.Error)
	}
	return nil
}

// Balance represents an account balance in both nano and TON units.
type Balance struct {
	Nano string `json:"balance_nton"`
	Ton  string `json:"balance_ton"`
}

// GetAccountBalance fetches current balance for a wallet address.
func (c *Client) GetAccountBalance(ctx context.Context, addr string) (*Balance, error) {
	var resp tonBalanceResponse
	if err := c.call(ctx, "getAddressBalance", map[string]string{"address": addr}, &resp); err != nil {
		return nil, err
	}
	if !resp.Ok {
		return nil, fmt.Errorf("ton balance error: %s", resp.Error)
	}
	nano := strings.TrimSpace(resp.Result)
	return &Balance{
		Nano: nano,
		Ton:  formatTonString(nano),
	}, nil
}

func (c *Client) call(ctx context.Context, method string, params map[string]string, dest any) error {
	if c.restBase == "" {
		return errors.New("ton endpoint not configured")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(dest).
		Get("/" + method)
	if err != nil {
		return fmt.Errorf("ton request %s: %w", method, err)
	}
	if resp.IsError() {
		body := resp.String()
		if len(body) > 2048 {
			body = body[:2048]
		}
		return fmt.Errorf("ton request %s failed: status %d body %s", method, resp.StatusCode(), body)
	}
	return nil
}

// NormalizeAddress parses any supported address form and returns the
// user-friendly bounceable representation.
func NormalizeAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidAddress
	}
	var (
		addr *address.Address
		err  error
	)
	if strings.Contains(raw, ":") {
		addr, err = address.ParseRawAddr(raw)
	} else {
		addr, err = address.ParseAddr(raw)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return addr.Bounce(true).String(), nil
}

// ToNano converts a TON amount into nanotons.
func ToNano(amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	coins, err := tlb.FromTON(amount.Truncate(9).String())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return coins.Nano().String(), nil
}

// BocHash decodes a base64 bag of cells and returns the hex hash of its root cell.
func BocHash(boc string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(boc))
	if err != nil {
		if raw, err = base64.URLEncoding.DecodeString(strings.TrimSpace(boc)); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidBoc, err)
		}
	}
	root, err := cell.FromBOC(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBoc, err)
	}
	return hex.EncodeToString(root.Hash()), nil
}

func parseBigInt(value string) *big.Int {
	n := new(big.Int)
	if _, ok := n.SetString(strings.TrimSpace(value), 10); !ok {
		return nil
	}
	return n
}

func formatTonString(nano string) string {
	n := parseBigInt(nano)
	if n == nil {
		return "0"
	}
	return formatBigTon(n)
}

func formatBigTon(n *big.Int) string {
	negative := n.Sign() < 0
	val := new(big.Int).Set(n)
	if negative {
		val.Neg(val)
	}
	denom := big.NewInt(1_000_000_000)
	intPart := new(big.Int).Quo(val, denom)
	frac := new(big.Int).Mod(val, denom)
	fracStr := fmt.Sprintf("%09s", frac.Text(10))
	fracStr = strings.TrimRight(fracStr, "0")
	result := intPart.Text(10)
	if fracStr != "" {
		result = result + "." + fracStr
	}
	if negative && result != "0" {
		result = "-" + result
	}
	return result
}

type tonBalanceResponse struct {
	Ok     bool   `json:"ok"`
	Result string `json:"result"`
	Error  string `json:"error"`
}

type tonTimeResponse struct {
	Ok     bool   `json:"ok"`
	Result int64  `json:"result"`
	Error  string `json:"error"`
}
