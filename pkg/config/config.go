package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SHOES"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
)

type Config struct {
	App      AppConfig
	Store    StoreConfig
	Redis    RedisConfig
	Appwrite AppwriteConfig
	Sync     SyncConfig
	Stripe   StripeConfig
	GCP      GCPConfig
	GCS      GCSConfig
	PubSub   PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Store.validate(); err != nil {
		return nil, err
	}
	if cfg.Store.Driver == StoreDriverRedis && cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("redis-backed local store requires SHOES_REDIS_URL or SHOES_REDIS_ADDR")
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOES_APP_ENV" default:"dev"`
	Port         string `envconfig:"SHOES_APP_PORT" default:"4780"`
	LogLevel     string `envconfig:"SHOES_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOES_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StoreConfig configures the durable local store. The sqlite driver is the
// on-device default; postgres and redis back hosted deployments.
type StoreConfig struct {
	Driver string `envconfig:"SHOES_STORE_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"SHOES_STORE_DSN" default:"file:shoes-sync.db?_journal=WAL"`

	AutoMigrate bool `envconfig:"SHOES_STORE_AUTO_MIGRATE" default:"true"`

	MaxOpenConns    int           `envconfig:"SHOES_STORE_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int           `envconfig:"SHOES_STORE_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"SHOES_STORE_CONN_MAX_LIFETIME" default:"1h"`
}

func (s StoreConfig) validate() error {
	switch s.Driver {
	case StoreDriverSQLite, StoreDriverPostgres, StoreDriverRedis:
		return nil
	default:
		return fmt.Errorf("unsupported store driver %q", s.Driver)
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOES_REDIS_URL"`
	Address      string        `envconfig:"SHOES_REDIS_ADDR"`
	Password     string        `envconfig:"SHOES_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOES_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOES_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOES_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOES_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOES_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOES_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis connection has been configured at all.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

// AppwriteConfig points at the remote document store and account API.
type AppwriteConfig struct {
	Endpoint                  string        `envconfig:"SHOES_APPWRITE_ENDPOINT" required:"true"`
	ProjectID                 string        `envconfig:"SHOES_APPWRITE_PROJECT_ID" required:"true"`
	APIKey                    string        `envconfig:"SHOES_APPWRITE_API_KEY"`
	DatabaseID                string        `envconfig:"SHOES_APPWRITE_DATABASE_ID" required:"true"`
	UsersCollectionID         string        `envconfig:"SHOES_APPWRITE_USERS_COLLECTION_ID" default:"users"`
	NotificationsCollectionID string        `envconfig:"SHOES_APPWRITE_NOTIFS_COLLECTION_ID" default:"notifications"`
	Timeout                   time.Duration `envconfig:"SHOES_APPWRITE_TIMEOUT" default:"10s"`
}

// SyncConfig tunes cache staleness, bounded retries, and startup pacing.
type SyncConfig struct {
	ProfileStaleTime time.Duration `envconfig:"SHOES_SYNC_PROFILE_STALE_TIME" default:"5m"`
	CatalogStaleTime time.Duration `envconfig:"SHOES_SYNC_CATALOG_STALE_TIME" default:"10m"`
	LookupRetryDelay time.Duration `envconfig:"SHOES_SYNC_LOOKUP_RETRY_DELAY" default:"250ms"`

	StageMinDwell  time.Duration `envconfig:"SHOES_SYNC_STAGE_MIN_DWELL" default:"350ms"`
	StartupTimeout time.Duration `envconfig:"SHOES_SYNC_STARTUP_TIMEOUT" default:"15s"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"SHOES_STRIPE_API_KEY"`
	Env      string `envconfig:"SHOES_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"SHOES_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SHOES_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SHOES_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SHOES_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"SHOES_GCS_BUCKET_NAME"`
}

// Enabled reports whether avatar storage has been configured.
func (g GCSConfig) Enabled() bool {
	return g.BucketName != ""
}

type PubSubConfig struct {
	ProfileTopic        string `envconfig:"SHOES_PUBSUB_PROFILE_TOPIC" default:"shoes-profile-events"`
	ProfileSubscription string `envconfig:"SHOES_PUBSUB_PROFILE_SUBSCRIPTION"`
}

// Enabled reports whether push invalidation has been configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProfileSubscription != ""
}
