package config

// EnvPrefix is the envconfig prefix shared by every variable below.
const EnvPrefix = "chorus"

// App environment values compared case-insensitively by the AppConfig helpers.
const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names, kept as constants so tests and error messages
// reference one spelling.
const (
	EnvAppEnv = "CHORUS_APP_ENV"
	EnvPort   = "CHORUS_APP_PORT"

	EnvDBDSN      = "CHORUS_DB_DSN"
	EnvDBHost     = "CHORUS_DB_HOST"
	EnvDBPort     = "CHORUS_DB_PORT"
	EnvDBUser     = "CHORUS_DB_USER"
	EnvDBPassword = "CHORUS_DB_PASSWORD"
	EnvDBName     = "CHORUS_DB_NAME"
	EnvDBSSLMode  = "CHORUS_DB_SSLMODE"

	EnvGCPProjectID    = "CHORUS_GCP_PROJECT_ID"
	EnvPubSubIngestSub = "CHORUS_PUBSUB_INGEST_SUBSCRIPTION"
	EnvRedisURL        = "CHORUS_REDIS_URL"
)

// legacyDBEnvVars are the variables required to assemble a DSN when
// CHORUS_DB_DSN is not set directly.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
