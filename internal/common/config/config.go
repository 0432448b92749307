package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Addr           string        `env:"HTTP_ADDR" envDefault:":8080"`
		BaseURL        string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
		AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
		ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
	}

	Store struct {
		Driver  string        `env:"STORE_DRIVER" envDefault:"redis"`
		Timeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
		PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
	}

	Database struct {
		URL             string        `env:"DATABASE_URL"`
		AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
		MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
		ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	}

	Telegram struct {
		BotToken          string        `env:"BOT_TOKEN,required,notEmpty"`
		Debug             bool          `env:"TELEGRAM_DEBUG" envDefault:"false"`
		AdminID           int64         `env:"ADMIN_ID" envDefault:"0"`
		GroupID           string        `env:"GROUP_ID,required,notEmpty"`
		GroupInviteURL    string        `env:"GROUP_INVITE_URL"`
		AgreementURL      string        `env:"AGREEMENT_URL"`
		WebhookPath       string        `env:"WEBHOOK_PATH"`
		WebhookSecret     string        `env:"WEBHOOK_SECRET"`
		Workers           int           `env:"BOT_WORKERS" envDefault:"16"`
		MembershipTimeout time.Duration `env:"MEMBERSHIP_TIMEOUT" envDefault:"3s"`
		PendingInputTTL   time.Duration `env:"PENDING_INPUT_TTL" envDefault:"10m"`
		RequireInitData   bool          `env:"REWARD_REQUIRE_INIT_DATA" envDefault:"false"`
		InitDataMaxAge    time.Duration `env:"INIT_DATA_MAX_AGE" envDefault:"24h"`
	}

	Policy struct {
		AdReward              int64  `env:"AD_REWARD" envDefault:"3"`
		ReferralReward        int64  `env:"REFERRAL_REWARD" envDefault:"50"`
		DailyAdLimit          int    `env:"DAILY_AD_LIMIT" envDefault:"20"`
		MinSecondsBetweenAds  int    `env:"MIN_SECONDS_BETWEEN_ADS" envDefault:"30"`
		MinWithdrawBalance    int64  `env:"MIN_WITHDRAW_BALANCE" envDefault:"500"`
		MinReferrals          int64  `env:"MIN_REFERRALS_FOR_WITHDRAW" envDefault:"5"`
		MinDaysBeforeWithdraw int    `env:"MIN_DAYS_BEFORE_WITHDRAW" envDefault:"3"`
		FullWithdrawReferrals int64  `env:"FULL_WITHDRAW_REFERRALS" envDefault:"0"`
		Timezone              string `env:"POLICY_TIMEZONE" envDefault:"UTC"`
	}

	Jobs struct {
		DailyResetAt  string `env:"DAILY_RESET_AT" envDefault:"00:00"`
		PayoutStream  string `env:"PAYOUT_STREAM" envDefault:"payouts:requests"`
		PayoutGroup   string `env:"PAYOUT_GROUP" envDefault:"payout-forwarders"`
		ForwardPayout bool   `env:"PAYOUT_FORWARD" envDefault:"true"`
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal in production where variables come from the runtime.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is Load that panics, for main.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreRedis, StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if _, _, err := c.DailyResetTime(); err != nil {
		return err
	}
	if c.Policy.DailyAdLimit <= 0 {
		return fmt.Errorf("DAILY_AD_LIMIT must be positive")
	}
	if c.Policy.AdReward < 0 || c.Policy.ReferralReward < 0 {
		return fmt.Errorf("rewards must not be negative")
	}
	if c.Telegram.WebhookPath != "" {
		if !strings.HasPrefix(c.Telegram.WebhookPath, "/") {
			return fmt.Errorf("WEBHOOK_PATH must start with /")
		}
		if !validWebhookSecret(c.Telegram.WebhookSecret) {
			return fmt.Errorf("WEBHOOK_SECRET must be 1-256 characters of A-Z, a-z, 0-9, _ or - when WEBHOOK_PATH is set")
		}
	}
	if c.Telegram.Workers <= 0 {
		c.Telegram.Workers = 1
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	return nil
}

// Location is the time zone used for calendar-date comparisons and the daily reset.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Policy.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid POLICY_TIMEZONE %q: %w", c.Policy.Timezone, err)
	}
	return loc, nil
}

// DailyResetTime parses DAILY_RESET_AT as HH:MM.
func (c *Config) DailyResetTime() (hour, minute uint, err error) {
	t, err := time.Parse("15:04", c.Jobs.DailyResetAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid DAILY_RESET_AT %q: %w", c.Jobs.DailyResetAt, err)
	}
	return uint(t.Hour()), uint(t.Minute()), nil
}

// UsesWebhook reports whether updates arrive over HTTP instead of long polling.
func (c *Config) UsesWebhook() bool {
	return c.Telegram.WebhookPath != ""
}

// validWebhookSecret applies Telegram's rules for setWebhook's secret_token.
func validWebhookSecret(s string) bool {
	if len(s) == 0 || len(s) > 256 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
