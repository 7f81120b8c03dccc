package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the server reads at startup.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	JWT       JWTConfig
	Catalog   CatalogConfig
	Ledger    LedgerConfig
	Referral  ReferralConfig
	Payments  PaymentsConfig
	Jobs      JobsConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Port          string
	LogLevel      string
	WebhookSecret string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns a lib/pq keyword connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	EntitlementTTL time.Duration
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	SecretKey string
}

type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

type LedgerConfig struct {
	MaxTxRetries int
	RetryBackoff time.Duration
	HistoryLimit int
}

type ReferralConfig struct {
	BonusTokens int64
}

type PaymentsConfig struct {
	PendingTTL time.Duration
	// TokenPrice is the price of one token in minor currency units.
	TokenPrice int64
}

type JobsConfig struct {
	ReconcileSchedule string
	ExpirySchedule    string
}

type RateLimitConfig struct {
	UnlocksPerMinute int
}

var envBindings = map[string]string{
	"app.port":                     "PORT",
	"app.log_level":                "APP_LOG_LEVEL",
	"app.webhook_secret":           "WEBHOOK_SECRET",
	"database.host":                "DATABASE_HOST",
	"database.port":                "DATABASE_PORT",
	"database.user":                "DATABASE_USER",
	"database.password":            "DATABASE_PASSWORD",
	"database.name":                "DATABASE_NAME",
	"database.ssl_mode":            "DATABASE_SSL_MODE",
	"redis.host":                   "REDIS_HOST",
	"redis.port":                   "REDIS_PORT",
	"redis.password":               "REDIS_PASSWORD",
	"redis.db":                     "REDIS_DB",
	"redis.entitlement_ttl":        "REDIS_ENTITLEMENT_TTL",
	"nats.url":                     "NATS_URL",
	"jwt.secret_key":               "JWT_SECRET_KEY",
	"catalog.base_url":             "CATALOG_BASE_URL",
	"catalog.timeout":              "CATALOG_TIMEOUT",
	"ledger.max_tx_retries":        "LEDGER_MAX_TX_RETRIES",
	"ledger.retry_backoff":         "LEDGER_RETRY_BACKOFF",
	"ledger.history_limit":         "LEDGER_HISTORY_LIMIT",
	"referral.bonus_tokens":        "REFERRAL_BONUS_TOKENS",
	"payments.pending_ttl":         "PAYMENTS_PENDING_TTL",
	"payments.token_price":         "PAYMENTS_TOKEN_PRICE",
	"jobs.reconcile_schedule":      "JOBS_RECONCILE_SCHEDULE",
	"jobs.expiry_schedule":         "JOBS_EXPIRY_SCHEDULE",
	"ratelimit.unlocks_per_minute": "RATELIMIT_UNLOCKS_PER_MINUTE",
}

func setDefaults() {
	viper.SetDefault("app.port", "8080")
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "record_vault")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.entitlement_ttl", 24*time.Hour)
	viper.SetDefault("catalog.timeout", 5*time.Second)
	viper.SetDefault("ledger.max_tx_retries", 3)
	viper.SetDefault("ledger.retry_backoff", 25*time.Millisecond)
	viper.SetDefault("ledger.history_limit", 50)
	viper.SetDefault("referral.bonus_tokens", 5)
	viper.SetDefault("payments.pending_ttl", 24*time.Hour)
	viper.SetDefault("payments.token_price", 100)
	viper.SetDefault("jobs.reconcile_schedule", "@every 1h")
	viper.SetDefault("jobs.expiry_schedule", "@every 10m")
	viper.SetDefault("ratelimit.unlocks_per_minute", 30)
}

// Load reads .env (if present) and the environment into a Config.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	setDefaults()

	// A missing .env is fine, the environment is enough.
	_ = viper.ReadInConfig()

	cfg := FromViper()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper builds a Config from whatever viper currently holds.
func FromViper() *Config {
	return &Config{
		App: AppConfig{
			Port:          viper.GetString("app.port"),
			LogLevel:      viper.GetString("app.log_level"),
			WebhookSecret: viper.GetString("app.webhook_secret"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("database.host"),
			Port:            viper.GetString("database.port"),
			User:            viper.GetString("database.user"),
			Password:        viper.GetString("database.password"),
			Name:            viper.GetString("database.name"),
			SSLMode:         viper.GetString("database.ssl_mode"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Host:           viper.GetString("redis.host"),
			Port:           viper.GetString("redis.port"),
			Password:       viper.GetString("redis.password"),
			DB:             viper.GetInt("redis.db"),
			EntitlementTTL: viper.GetDuration("redis.entitlement_ttl"),
		},
		NATS:    NATSConfig{URL: viper.GetString("nats.url")},
		JWT:     JWTConfig{SecretKey: viper.GetString("jwt.secret_key")},
		Catalog: CatalogConfig{BaseURL: viper.GetString("catalog.base_url"), Timeout: viper.GetDuration("catalog.timeout")},
		Ledger: LedgerConfig{
			MaxTxRetries: viper.GetInt("ledger.max_tx_retries"),
			RetryBackoff: viper.GetDuration("ledger.retry_backoff"),
			HistoryLimit: viper.GetInt("ledger.history_limit"),
		},
		Referral: ReferralConfig{BonusTokens: viper.GetInt64("referral.bonus_tokens")},
		Payments: PaymentsConfig{
			PendingTTL: viper.GetDuration("payments.pending_ttl"),
			TokenPrice: viper.GetInt64("payments.token_price"),
		},
		Jobs: JobsConfig{
			ReconcileSchedule: viper.GetString("jobs.reconcile_schedule"),
			ExpirySchedule:    viper.GetString("jobs.expiry_schedule"),
		},
		RateLimit: RateLimitConfig{UnlocksPerMinute: viper.GetInt("ratelimit.unlocks_per_minute")},
	}
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.App.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("CATALOG_BASE_URL is required")
	}
	if c.Ledger.MaxTxRetries <= 0 {
		return fmt.Errorf("LEDGER_MAX_TX_RETRIES must be > 0")
	}
	if c.Payments.TokenPrice <= 0 {
		return fmt.Errorf("PAYMENTS_TOKEN_PRICE must be > 0")
	}
	if c.Referral.BonusTokens <= 0 {
		return fmt.Errorf("REFERRAL_BONUS_TOKENS must be > 0")
	}
	return nil
}
