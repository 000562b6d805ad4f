package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Sync         SyncConfig
	Renewal      RenewalConfig
	Billing      BillingConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MigrateConfig is the subset the migration tool needs. It does not require
// the JWT, redis, or pubsub settings the long-running services do.
type MigrateConfig struct {
	App AppConfig
	DB  DBConfig
}

func LoadMigrate() (*MigrateConfig, error) {
	var cfg MigrateConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing migrate config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LEARNBILL_APP_ENV" required:"true"`
	Port         string `envconfig:"LEARNBILL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LEARNBILL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEARNBILL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LEARNBILL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEARNBILL_DB_DSN"`
	Driver string `envconfig:"LEARNBILL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEARNBILL_DB_HOST"`
	LegacyPort     int    `envconfig:"LEARNBILL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEARNBILL_DB_USER"`
	LegacyPassword string `envconfig:"LEARNBILL_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEARNBILL_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEARNBILL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEARNBILL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEARNBILL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEARNBILL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEARNBILL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEARNBILL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LEARNBILL_REDIS_ADDR"`
	Password     string        `envconfig:"LEARNBILL_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEARNBILL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEARNBILL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEARNBILL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEARNBILL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEARNBILL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEARNBILL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LEARNBILL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LEARNBILL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LEARNBILL_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LEARNBILL_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	GateCacheTTL time.Duration `envconfig:"LEARNBILL_GATE_CACHE_TTL" default:"1m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LEARNBILL_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	AccountingSyncTopic string `envconfig:"LEARNBILL_PUBSUB_ACCOUNTING_SYNC_TOPIC" required:"true"`
}

type SyncConfig struct {
	BatchSize      int           `envconfig:"LEARNBILL_SYNC_BATCH_SIZE" default:"25"`
	PollIntervalMS int           `envconfig:"LEARNBILL_SYNC_POLL_MS" default:"1000"`
	MaxAttempts    int           `envconfig:"LEARNBILL_SYNC_MAX_ATTEMPTS" default:"8"`
	BaseBackoff    time.Duration `envconfig:"LEARNBILL_SYNC_BASE_BACKOFF" default:"30s"`
}

type RenewalConfig struct {
	Interval   time.Duration `envconfig:"LEARNBILL_RENEWAL_INTERVAL" default:"15m"`
	BatchLimit int           `envconfig:"LEARNBILL_RENEWAL_BATCH_LIMIT" default:"200"`
	PeriodDays int           `envconfig:"LEARNBILL_RENEWAL_PERIOD_DAYS" default:"30"`
}

// Period returns the subscription period length used when advancing renewals.
func (r RenewalConfig) Period() time.Duration {
	if r.PeriodDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(r.PeriodDays) * 24 * time.Hour
}

type BillingConfig struct {
	Currency          string        `envconfig:"LEARNBILL_BILLING_CURRENCY" default:"usd"`
	PendingBacklogAge time.Duration `envconfig:"LEARNBILL_BILLING_PENDING_BACKLOG_AGE" default:"72h"`
}

type RateLimitConfig struct {
	Window      time.Duration `envconfig:"LEARNBILL_RATE_LIMIT_WINDOW" default:"1m"`
	AgencyLimit int           `envconfig:"LEARNBILL_RATE_LIMIT_AGENCY" default:"600"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
