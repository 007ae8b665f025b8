package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/clinicalmerge/internal/domain/clinicaldate"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port        string        `mapstructure:"PORT"`
	Env         string        `mapstructure:"ENV"`
	Store       string        `mapstructure:"STORE"`
	DatabaseURL string        `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string        `mapstructure:"REDIS_URL"`
	LockTTL     time.Duration `mapstructure:"LOCK_TTL"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string  `mapstructure:"BODY_LIMIT"`
	MergeBodyLimit string  `mapstructure:"MERGE_BODY_LIMIT"`

	MergePolicyFile         string        `mapstructure:"MERGE_POLICY_FILE"`
	MergeTimeBudget         time.Duration `mapstructure:"MERGE_TIME_BUDGET"`
	MergeMaxAttempts        int           `mapstructure:"MERGE_MAX_ATTEMPTS"`
	MergeInitialBackoff     time.Duration `mapstructure:"MERGE_INITIAL_BACKOFF"`
	DateLocale              string        `mapstructure:"DATE_LOCALE"`
	ValidateResourceCounts  bool          `mapstructure:"VALIDATE_RESOURCE_COUNTS"`
	ValidateConfidenceRange bool          `mapstructure:"VALIDATE_CONFIDENCE_RANGE"`
	PrimaryProducers        []string      `mapstructure:"PRIMARY_PRODUCERS"`
}

var keys = []string{
	"PORT", "ENV", "STORE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "LOCK_TTL", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT", "MERGE_BODY_LIMIT",
	"MERGE_POLICY_FILE", "MERGE_TIME_BUDGET", "MERGE_MAX_ATTEMPTS",
	"MERGE_INITIAL_BACKOFF", "DATE_LOCALE", "VALIDATE_RESOURCE_COUNTS",
	"VALIDATE_CONFIDENCE_RANGE", "PRIMARY_PRODUCERS",
}

// Load reads .env when present, then the environment. It does not validate.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE", StorePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("LOCK_TTL", "2m")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("MERGE_BODY_LIMIT", "16M")
	v.SetDefault("MERGE_TIME_BUDGET", "30s")
	v.SetDefault("MERGE_MAX_ATTEMPTS", 4)
	v.SetDefault("MERGE_INITIAL_BACKOFF", "100ms")
	v.SetDefault("DATE_LOCALE", string(clinicaldate.LocaleUS))
	v.SetDefault("VALIDATE_RESOURCE_COUNTS", true)
	v.SetDefault("VALIDATE_CONFIDENCE_RANGE", true)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.PrimaryProducers = splitList(cfg.PrimaryProducers)
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	return cfg, nil
}

// splitList accepts either a decoded slice or a single comma separated
// entry and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks the settings needed to serve or merge.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}

	if !c.IsDev() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes outside development")
	}
	if _, err := clinicaldate.ParseLocale(c.DateLocale); err != nil {
		return fmt.Errorf("DATE_LOCALE: %w", err)
	}
	if c.MergeTimeBudget <= 0 {
		return fmt.Errorf("MERGE_TIME_BUDGET must be positive, got %s", c.MergeTimeBudget)
	}
	// Redis locks are not renewed, so one must outlive the longest merge.
	if c.RedisURL != "" && c.LockTTL <= c.MergeTimeBudget {
		return fmt.Errorf("LOCK_TTL (%s) must exceed MERGE_TIME_BUDGET (%s) when REDIS_URL is set", c.LockTTL, c.MergeTimeBudget)
	}
	if c.MergeMaxAttempts < 1 {
		return fmt.Errorf("MERGE_MAX_ATTEMPTS must be at least 1, got %d", c.MergeMaxAttempts)
	}
	if c.MergeInitialBackoff <= 0 {
		return fmt.Errorf("MERGE_INITIAL_BACKOFF must be positive, got %s", c.MergeInitialBackoff)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}
