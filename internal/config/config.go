package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config aggregates runtime configuration loaded from environment variables.
type Config struct {
	HTTPHost        string        `env:"HOST" envDefault:"0.0.0.0"`
	HTTPPort        int           `env:"PORT" envDefault:"8090"`
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	BotToken        string        `env:"BOT_TOKEN"`
	MiniAppURL      string        `env:"MINIAPP_URL"`
	RequireInitData bool          `env:"REQUIRE_INIT_DATA" envDefault:"false"`
	InitDataMaxAge  time.Duration `env:"INIT_DATA_MAX_AGE" envDefault:"24h"`
	VerifyTimeout   time.Duration `env:"VERIFY_TIMEOUT" envDefault:"10s"`
	WatchInterval   time.Duration `env:"WATCH_INTERVAL" envDefault:"15m"`

	AdminUsername     string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	SessionSecret     string        `env:"SESSION_SECRET"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"12h"`

	TonEndpoint    string        `env:"TON_RPC_ENDPOINT" envDefault:"https://toncenter.com/api/v2/jsonRPC"`
	TonAPIKey      string        `env:"TONCENTER_API_KEY"`
	MerchantWallet string        `env:"TON_MERCHANT_ADDRESS"`
	StarsPerTon    int64         `env:"STARS_PER_TON" envDefault:"100"`
	TonTxTTL       time.Duration `env:"TON_TX_TTL" envDefault:"10m"`

	// PaymentsTrustClient lets the confirm endpoints grant ownership on a
	// client-supplied receipt. Leave off until settlement is verified upstream.
	PaymentsTrustClient bool `env:"PAYMENTS_TRUST_CLIENT" envDefault:"false"`

	// OutboxPath is the spool root. Each process keeps its own Badger
	// directory below it, see OutboxDir.
	OutboxPath     string        `env:"OUTBOX_PATH" envDefault:"data/outbox"`
	OutboxInterval time.Duration `env:"OUTBOX_INTERVAL" envDefault:"5s"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogJSON       bool   `env:"LOG_JSON" envDefault:"false"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`
}

// Spool owners. Badger locks its directory, so processes never share one.
const (
	ProcessAPI = "api"
	ProcessBot = "bot"
)

// Processes lists every process that spools log entries.
var Processes = []string{ProcessAPI, ProcessBot}

// OutboxDir returns the spool directory of process.
func (c Config) OutboxDir(process string) string {
	return filepath.Join(c.OutboxPath, process)
}

// Load reads an optional .env file, parses environment variables and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if cfg.StoreDriver == DriverPostgres && strings.TrimSpace(cfg.DatabaseURL) == "" {
		dsn, err := dsnFromPG()
		if err != nil {
			return cfg, err
		}
		cfg.DatabaseURL = dsn
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database connection string is empty")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.AdminLoginEnabled() && len(c.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 bytes when admin login is enabled")
	}
	if c.StarsPerTon <= 0 {
		return errors.New("STARS_PER_TON must be positive")
	}
	if c.RequireInitData && strings.TrimSpace(c.BotToken) == "" {
		return errors.New("REQUIRE_INIT_DATA needs BOT_TOKEN")
	}
	return nil
}

// AdminLoginEnabled reports whether the admin console can be logged into.
func (c Config) AdminLoginEnabled() bool {
	return strings.TrimSpace(c.AdminPasswordHash) != ""
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

func dsnFromPG() (string, error) {
	var (
		host = os.Getenv("PGHOST")
		user = os.Getenv("PGUSER")
		pass = os.Getenv("PGPASSWORD")
		name = os.Getenv("PGDATABASE")
	)
	port := 5432
	if raw := strings.TrimSpace(os.Getenv("PGPORT")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			port = parsed
		}
	}
	if host == "" || user == "" || pass == "" || name == "" {
		return "", errors.New("DATABASE_URL or PG* variables must be provided")
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, pass),
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   name,
	}
	return u.String(), nil
}
