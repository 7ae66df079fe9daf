package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const defaultJWTSecret = "change-me-jwt-secret"

const (
	SlotPolicyExact   = "exact"
	SlotPolicyAligned = "aligned"
	SlotPolicyFree    = "free"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:"file:salonbook.db?_pragma=busy_timeout(5000)"`
	JWTSecret   string `envconfig:"JWT_SECRET" default:"change-me-jwt-secret"`

	RedisAddr            string        `envconfig:"REDIS_ADDR"`
	RedisPassword        string        `envconfig:"REDIS_PASSWORD"`
	RedisDB              int           `envconfig:"REDIS_DB" default:"0"`
	AvailabilityCacheTTL time.Duration `envconfig:"AVAILABILITY_CACHE_TTL" default:"30s"`
	LockTTL              time.Duration `envconfig:"LOCK_TTL" default:"10s"`

	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"salonbook.events"`

	Currency          string        `envconfig:"CURRENCY" default:"USD"`
	MinCancelHours    float64       `envconfig:"MIN_CANCEL_HOURS" default:"2"`
	CommissionPercent float64       `envconfig:"COMMISSION_PERCENT" default:"10"`
	MinLeadTime       time.Duration `envconfig:"MIN_LEAD_TIME" default:"1h"`
	SlotPolicy        string        `envconfig:"SLOT_POLICY" default:"aligned"`
	ProviderMayCancel bool          `envconfig:"PROVIDER_MAY_CANCEL" default:"true"`
	// PendingExpiry of zero disables auto-release of unanswered requests.
	PendingExpiry  time.Duration `envconfig:"PENDING_EXPIRY" default:"0"`
	ExpiryInterval time.Duration `envconfig:"EXPIRY_INTERVAL" default:"5m"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"2"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"5"`

	NotificationWorkers       int `envconfig:"NOTIFICATION_WORKERS" default:"4"`
	NotificationQueue         int `envconfig:"NOTIFICATION_QUEUE" default:"256"`
	NotificationRetentionDays int `envconfig:"NOTIFICATION_RETENTION_DAYS" default:"90"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.SlotPolicy = strings.ToLower(strings.TrimSpace(cfg.SlotPolicy))

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	switch cfg.SlotPolicy {
	case SlotPolicyExact, SlotPolicyAligned, SlotPolicyFree:
	default:
		return fmt.Errorf("SLOT_POLICY must be one of: exact, aligned, free")
	}
	if cfg.MinCancelHours < 0 {
		return fmt.Errorf("MIN_CANCEL_HOURS must be >= 0")
	}
	if cfg.CommissionPercent < 0 || cfg.CommissionPercent > 100 {
		return fmt.Errorf("COMMISSION_PERCENT must be within [0,100]")
	}
	if cfg.MinLeadTime < 0 {
		return fmt.Errorf("MIN_LEAD_TIME must be >= 0")
	}
	if cfg.PendingExpiry < 0 {
		return fmt.Errorf("PENDING_EXPIRY must be >= 0")
	}
	if cfg.PendingExpiry > 0 && cfg.ExpiryInterval <= 0 {
		return fmt.Errorf("EXPIRY_INTERVAL must be > 0 when PENDING_EXPIRY is set")
	}
	if cfg.AvailabilityCacheTTL <= 0 {
		return fmt.Errorf("AVAILABILITY_CACHE_TTL must be > 0")
	}
	if cfg.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be > 0")
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be > 0")
	}
	if cfg.NotificationWorkers <= 0 || cfg.NotificationQueue <= 0 {
		return fmt.Errorf("NOTIFICATION_WORKERS and NOTIFICATION_QUEUE must be > 0")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return fmt.Errorf("CURRENCY must not be empty")
	}

	if IsProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
	}
	return nil
}

func IsProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}
