package config

const (
	EnvPrefix = "GROCERYHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "GROCERYHUB_APP_ENV"
	EnvPort     = "GROCERYHUB_APP_PORT"
	EnvLogLevel = "GROCERYHUB_LOG_LEVEL"

	EnvDBDSN  = "GROCERYHUB_DB_DSN"
	EnvDBHost = "GROCERYHUB_DB_HOST"
	EnvDBUser = "GROCERYHUB_DB_USER"
	EnvDBName = "GROCERYHUB_DB_NAME"

	EnvUseSQLite = "GROCERYHUB_USE_SQLITE"

	EnvRedisURL = "GROCERYHUB_REDIS_URL"

	EnvJWTSecret              = "GROCERYHUB_JWT_SECRET"
	EnvJWTIssuer              = "GROCERYHUB_JWT_ISSUER"
	EnvJWTExpMins             = "GROCERYHUB_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "GROCERYHUB_REFRESH_TOKEN_TTL_MINUTES"

	EnvGCPProjectID = "GROCERYHUB_GCP_PROJECT_ID"
	EnvGCSBucket    = "GROCERYHUB_GCS_BUCKET_NAME"

	EnvPubSubOrdersTopic   = "GROCERYHUB_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub     = "GROCERYHUB_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubWhatsAppTopic = "GROCERYHUB_PUBSUB_WHATSAPP_TOPIC"
	EnvPubSubWhatsAppSub   = "GROCERYHUB_PUBSUB_WHATSAPP_SUBSCRIPTION"

	EnvWhatsAppChunkSize   = "GROCERYHUB_WHATSAPP_CHUNK_SIZE"
	EnvWhatsAppMinDelayMS  = "GROCERYHUB_WHATSAPP_MIN_DELAY_MS"
	EnvWhatsAppMaxDelayMS  = "GROCERYHUB_WHATSAPP_MAX_DELAY_MS"
	EnvWhatsAppMaxAttempts = "GROCERYHUB_WHATSAPP_MAX_ATTEMPTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
