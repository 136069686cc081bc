package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"cafe/internal/money"
)

const (
	AuthLocal    = "local"
	AuthSupabase = "supabase"
)

type APIConfig struct {
	Port              string        `envconfig:"PORT"`
	Addr              string        `envconfig:"CAFE_API_ADDR" default:":8080"`
	DatabaseURL       string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"20"`
	DBMinConns        int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	MigrateOnStart    bool          `envconfig:"CAFE_MIGRATE" default:"true"`
	AuthMode          string        `envconfig:"AUTH_MODE" default:"local"`
	JWTSecret         string        `envconfig:"JWT_SECRET"`
	JWTTTL            time.Duration `envconfig:"JWT_TTL" default:"24h"`
	SupabaseURL       string        `envconfig:"SUPABASE_URL"`
	SupabaseAnonKey   string        `envconfig:"SUPABASE_ANON_KEY"`
	StartingBalance   string        `envconfig:"CAFE_STARTING_BALANCE" default:"1000.00"`
	AdminUsernames    []string      `envconfig:"CAFE_ADMIN_USERNAMES"`
	SeedMenu          bool          `envconfig:"CAFE_SEED_MENU" default:"true"`
	RateLimitRPS      float64       `envconfig:"RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst    int           `envconfig:"RATE_LIMIT_BURST" default:"20"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`

	Balance decimal.Decimal `ignored:"true"`
}

type WorkerConfig struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"5"`
	Schedule    string `envconfig:"CAFE_CUSTOMER_SCHEDULE" default:"@every 1m"`
	MaxLines    int    `envconfig:"CAFE_CUSTOMER_MAX_LINES" default:"3"`
	MaxPending  int64  `envconfig:"CAFE_CUSTOMER_MAX_PENDING" default:"5"`
	RunOnce     bool   `envconfig:"CAFE_WORKER_RUN_ONCE" default:"false"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

type CLIConfig struct {
	APIBaseURL string `envconfig:"CAFE_API_BASE_URL" default:"http://localhost:8080"`
}

// loadDotEnv reads .env when present. Real environment variables win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := loadDotEnv(); err != nil {
		return cfg, err
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.normalize()
}

func (c *APIConfig) normalize() error {
	if p := strings.TrimSpace(c.Port); p != "" {
		if !strings.HasPrefix(p, ":") {
			p = ":" + p
		}
		c.Addr = p
	}
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.SupabaseURL = strings.TrimRight(strings.TrimSpace(c.SupabaseURL), "/")
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))

	switch c.AuthMode {
	case AuthLocal:
		if len(c.JWTSecret) < 16 {
			return fmt.Errorf("JWT_SECRET must be at least 16 characters when AUTH_MODE=local")
		}
	case AuthSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required when AUTH_MODE=supabase")
		}
		if strings.TrimSpace(c.SupabaseAnonKey) == "" {
			return fmt.Errorf("SUPABASE_ANON_KEY is required when AUTH_MODE=supabase")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be local or supabase, got %q", c.AuthMode)
	}

	balance, err := money.Parse(c.StartingBalance)
	if err != nil {
		return fmt.Errorf("CAFE_STARTING_BALANCE: %w", err)
	}
	if !balance.IsPositive() {
		return fmt.Errorf("CAFE_STARTING_BALANCE must be > 0")
	}
	c.Balance = balance

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be > 0")
	}
	if c.RateLimitBurst < 1 {
		c.RateLimitBurst = 1
	}
	return nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := loadDotEnv(); err != nil {
		return cfg, err
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.MaxLines < 1 {
		cfg.MaxLines = 1
	}
	if cfg.MaxPending < 1 {
		cfg.MaxPending = 1
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	_ = loadDotEnv()
	if err := envconfig.Process("", &cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg
}

// ParseLogLevel maps LOG_LEVEL onto slog levels, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
