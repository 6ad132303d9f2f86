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
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Ingest       IngestConfig
	Cron         CronConfig
	Entreprise   EntrepriseConfig
	Geo          GeoConfig
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

type AppConfig struct {
	Env          string `envconfig:"CHORUS_APP_ENV" required:"true"`
	Port         string `envconfig:"CHORUS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CHORUS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CHORUS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CHORUS_SERVICE_KIND" default:"ingest-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"CHORUS_DB_DSN"`
	Driver string `envconfig:"CHORUS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CHORUS_DB_HOST"`
	LegacyPort     int    `envconfig:"CHORUS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CHORUS_DB_USER"`
	LegacyPassword string `envconfig:"CHORUS_DB_PASSWORD"`
	LegacyName     string `envconfig:"CHORUS_DB_NAME"`
	LegacySSLMode  string `envconfig:"CHORUS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CHORUS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CHORUS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CHORUS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CHORUS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CHORUS_REDIS_URL"`
	Address      string        `envconfig:"CHORUS_REDIS_ADDR"`
	Password     string        `envconfig:"CHORUS_REDIS_PASSWORD"`
	DB           int           `envconfig:"CHORUS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CHORUS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CHORUS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CHORUS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CHORUS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CHORUS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CHORUS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CHORUS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CHORUS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CHORUS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	IngestTopic        string `envconfig:"CHORUS_PUBSUB_INGEST_TOPIC" default:"chorus-ingest-chunks"`
	IngestSubscription string `envconfig:"CHORUS_PUBSUB_INGEST_SUBSCRIPTION" required:"true"`
	DomainTopic        string `envconfig:"CHORUS_PUBSUB_DOMAIN_TOPIC" default:"chorus-domain-events"`
	DomainSubscription string `envconfig:"CHORUS_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CHORUS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CHORUS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CHORUS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CHORUS_OUTBOX_RETENTION" default:"720h"`
}

// IngestConfig bounds the chunked import pipeline. The batch size is kept
// deliberately small to bound lock contention and per-chunk latency, not
// memory.
type IngestConfig struct {
	BatchSize        int           `envconfig:"CHORUS_IMPORT_BATCH_SIZE" default:"10"`
	RetryMaxAttempts int           `envconfig:"CHORUS_IMPORT_RETRY_MAX_ATTEMPTS" default:"4"`
	RetryDelay       time.Duration `envconfig:"CHORUS_IMPORT_RETRY_DELAY" default:"10s"`
	RateLimitPadding time.Duration `envconfig:"CHORUS_IMPORT_RATE_LIMIT_PADDING" default:"5s"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"CHORUS_CRON_INTERVAL" default:"24h"`
	LockTTL          time.Duration `envconfig:"CHORUS_CRON_LOCK_TTL" default:"25h"`
	CommuneBatchSize int           `envconfig:"CHORUS_CRON_COMMUNE_BATCH_SIZE" default:"100"`
}

type EntrepriseConfig struct {
	BaseURL string        `envconfig:"CHORUS_ENTREPRISE_BASE_URL" default:"https://entreprise.api.gouv.fr"`
	Token   string        `envconfig:"CHORUS_ENTREPRISE_TOKEN"`
	Timeout time.Duration `envconfig:"CHORUS_ENTREPRISE_TIMEOUT" default:"15s"`

	// RateLimit caps outbound registry calls across all workers; zero
	// disables the local gate and relies on the API's own 429 responses.
	RateLimit       int64         `envconfig:"CHORUS_ENTREPRISE_RATE_LIMIT" default:"250"`
	RateLimitWindow time.Duration `envconfig:"CHORUS_ENTREPRISE_RATE_LIMIT_WINDOW" default:"1m"`
}

type GeoConfig struct {
	BaseURL string        `envconfig:"CHORUS_GEO_BASE_URL" default:"https://geo.api.gouv.fr"`
	Timeout time.Duration `envconfig:"CHORUS_GEO_TIMEOUT" default:"10s"`
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
