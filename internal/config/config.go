package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/rules"
)

// Config holds all application configuration.
type Config struct {
	// Server
	Port   string
	DBPath string

	// Cache
	RedisAddr string
	CacheTTL  time.Duration

	// Sentry
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string

	// Rate limiter
	RateLimitCapacity int
	RateLimitWindow   time.Duration

	// Sample data loaded into an empty database
	SeedPath string

	// Scheduled bundle backups; an empty BackupDir disables them.
	BackupDir      string
	BackupSchedule string
	BackupKeep     int

	// Minimum overrides; zero values keep the rule table defaults.
	MinInstallment map[domain.Profile]decimal.Decimal
	MinCash        map[domain.Profile]decimal.Decimal
}

// Load reads .env (if present) and builds a Config from environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] no .env file found, using environment variables")
	}

	cfg := &Config{
		Port:   envOr("PORT", "8080"),
		DBPath: envOr("DB_PATH", "refis.db"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		CacheTTL:  envDuration("CACHE_TTL", 10*time.Minute),

		SentryDSN:         os.Getenv("SENTRY_DSN"),
		SentryEnvironment: envOr("SENTRY_ENVIRONMENT", "development"),
		SentryRelease:     envOr("SENTRY_RELEASE", "refis-simulator@1.2.0"),

		RateLimitCapacity: envInt("RATE_LIMIT_CAPACITY", 120),
		RateLimitWindow:   envDuration("RATE_LIMIT_WINDOW", time.Minute),

		SeedPath: envOr("SEED_PATH", "testdata/debts.csv"),

		BackupDir:      os.Getenv("BACKUP_DIR"),
		BackupSchedule: envOr("BACKUP_SCHEDULE", "0 3 * * *"),
		BackupKeep:     envInt("BACKUP_KEEP", 7),

		MinInstallment: map[domain.Profile]decimal.Decimal{},
		MinCash:        map[domain.Profile]decimal.Decimal{},
	}

	overrides := []struct {
		key     string
		profile domain.Profile
		dst     map[domain.Profile]decimal.Decimal
	}{
		{"MIN_INSTALLMENT_PF", domain.ProfileIndividual, cfg.MinInstallment},
		{"MIN_INSTALLMENT_PJ", domain.ProfileCompany, cfg.MinInstallment},
		{"MIN_CASH_PF", domain.ProfileIndividual, cfg.MinCash},
		{"MIN_CASH_PJ", domain.ProfileCompany, cfg.MinCash},
	}
	for _, o := range overrides {
		v, ok, err := envDecimal(o.key)
		if err != nil {
			return nil, err
		}
		if ok {
			o.dst[o.profile] = v
		}
	}

	log.Printf("[config] loaded (port=%s, db=%s, cache=%s, sentry=%v)",
		cfg.Port, cfg.DBPath, cacheBackend(cfg.RedisAddr), cfg.SentryDSN != "")
	return cfg, nil
}

// RuleOptions turns the minimum overrides into rule table options. A profile
// with only one of its two minimums overridden keeps the default for the other.
func (c *Config) RuleOptions() []rules.Option {
	defaults := rules.Default()
	var opts []rules.Option
	for _, p := range []domain.Profile{domain.ProfileIndividual, domain.ProfileCompany} {
		inst, hasInst := c.MinInstallment[p]
		cash, hasCash := c.MinCash[p]
		if !hasInst && !hasCash {
			continue
		}
		if !hasInst {
			inst = defaults.MinimumInstallmentValue(p)
		}
		if !hasCash {
			cash = defaults.MinimumCashValue(p)
		}
		opts = append(opts, rules.WithMinimums(p, inst, cash))
	}
	return opts
}

func cacheBackend(addr string) string {
	if addr == "" {
		return "memory"
	}
	return "redis://" + addr
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envDecimal(key string) (decimal.Decimal, bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, false, fmt.Errorf("%s: negative minimum %s", key, v)
	}
	return d, true, nil
}
