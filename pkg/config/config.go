package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	Password       PasswordConfig
	AuthRateLimit  AuthRateLimitConfig
	OrderRateLimit OrderRateLimitConfig
	FeatureFlags   FeatureFlagsConfig
	Eventing       EventingConfig
	GCP            GCPConfig
	GCS            GCSConfig
	Media          MediaConfig
	PubSub         PubSubConfig
	Outbox         OutboxConfig
	Twilio         TwilioConfig
	WhatsApp       WhatsAppConfig
	Cron           CronConfig
	Catalog        CatalogConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.WhatsApp.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env           string `envconfig:"GROCERYHUB_APP_ENV" required:"true"`
	Port          string `envconfig:"GROCERYHUB_APP_PORT" required:"true"`
	LogLevel      string `envconfig:"GROCERYHUB_LOG_LEVEL" default:"info"`
	LogWarnStack  bool   `envconfig:"GROCERYHUB_LOG_WARN_STACK" default:"false"`
	StoreName     string `envconfig:"GROCERYHUB_STORE_NAME" default:"GroceryHub"`
	PhoneRegion   string `envconfig:"GROCERYHUB_PHONE_REGION" default:"ID"`
	PublicBaseURL string `envconfig:"GROCERYHUB_PUBLIC_BASE_URL" default:"http://localhost:8080"`
	CORSOrigins   string `envconfig:"GROCERYHUB_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"GROCERYHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GROCERYHUB_DB_DSN"`
	Driver string `envconfig:"GROCERYHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GROCERYHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"GROCERYHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GROCERYHUB_DB_USER"`
	LegacyPassword string `envconfig:"GROCERYHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"GROCERYHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"GROCERYHUB_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"GROCERYHUB_SQLITE_PATH" default:"groceryhub.db"`

	MaxOpenConns    int           `envconfig:"GROCERYHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GROCERYHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GROCERYHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GROCERYHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this at warn; 0 disables.
	SlowQueryThreshold time.Duration `envconfig:"GROCERYHUB_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
	LogQueries         bool          `envconfig:"GROCERYHUB_DB_LOG_QUERIES" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GROCERYHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GROCERYHUB_REDIS_ADDR"`
	Password     string        `envconfig:"GROCERYHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"GROCERYHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GROCERYHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GROCERYHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GROCERYHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GROCERYHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GROCERYHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
	Namespace    string        `envconfig:"GROCERYHUB_REDIS_NAMESPACE" default:"gh"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"GROCERYHUB_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"GROCERYHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"GROCERYHUB_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"GROCERYHUB_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"GROCERYHUB_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"GROCERYHUB_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"GROCERYHUB_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"GROCERYHUB_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"GROCERYHUB_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"GROCERYHUB_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"GROCERYHUB_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"GROCERYHUB_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type OrderRateLimitConfig struct {
	Window     time.Duration `envconfig:"GROCERYHUB_ORDER_RATE_LIMIT_WINDOW" default:"10m"`
	IPLimit    int           `envconfig:"GROCERYHUB_ORDER_RATE_LIMIT_IP_LIMIT" default:"10"`
	PhoneLimit int           `envconfig:"GROCERYHUB_ORDER_RATE_LIMIT_PHONE_LIMIT" default:"5"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GROCERYHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GROCERYHUB_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"GROCERYHUB_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GROCERYHUB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"GROCERYHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GROCERYHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"GROCERYHUB_GCS_BUCKET_NAME" required:"true"`
	PublicBaseURL string `envconfig:"GROCERYHUB_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

type MediaConfig struct {
	MaxUploadMB int `envconfig:"GROCERYHUB_MAX_UPLOAD_MB" default:"5"`
}

// MaxUploadBytes converts the configured limit into bytes.
func (m MediaConfig) MaxUploadBytes() int64 {
	if m.MaxUploadMB <= 0 {
		return 5 << 20
	}
	return int64(m.MaxUploadMB) << 20
}

type PubSubConfig struct {
	OrdersTopic          string `envconfig:"GROCERYHUB_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription   string `envconfig:"GROCERYHUB_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	WhatsAppTopic        string `envconfig:"GROCERYHUB_PUBSUB_WHATSAPP_TOPIC" required:"true"`
	WhatsAppSubscription string `envconfig:"GROCERYHUB_PUBSUB_WHATSAPP_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GROCERYHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GROCERYHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GROCERYHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type TwilioConfig struct {
	AccountSID string `envconfig:"GROCERYHUB_TWILIO_ACCOUNT_SID"`
	AuthToken  string `envconfig:"GROCERYHUB_TWILIO_AUTH_TOKEN"`
	FromNumber string `envconfig:"GROCERYHUB_TWILIO_WHATSAPP_FROM"`
}

// Enabled reports whether enough credentials exist to talk to Twilio.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != ""
}

type WhatsAppConfig struct {
	ChunkSize    int           `envconfig:"GROCERYHUB_WHATSAPP_CHUNK_SIZE" default:"100"`
	MinDelayMS   int           `envconfig:"GROCERYHUB_WHATSAPP_MIN_DELAY_MS" default:"1000"`
	MaxDelayMS   int           `envconfig:"GROCERYHUB_WHATSAPP_MAX_DELAY_MS" default:"5000"`
	MaxAttempts  int           `envconfig:"GROCERYHUB_WHATSAPP_MAX_ATTEMPTS" default:"3"`
	RetryBackoff time.Duration `envconfig:"GROCERYHUB_WHATSAPP_RETRY_BACKOFF" default:"60s"`
	SendTimeout  time.Duration `envconfig:"GROCERYHUB_WHATSAPP_SEND_TIMEOUT" default:"30s"`
	Retention    time.Duration `envconfig:"GROCERYHUB_WHATSAPP_RETENTION" default:"2160h"`
}

func (w WhatsAppConfig) validate() error {
	if w.ChunkSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvWhatsAppChunkSize)
	}
	if w.MinDelayMS < 0 || w.MaxDelayMS < w.MinDelayMS {
		return fmt.Errorf("%s must be >= %s >= 0", EnvWhatsAppMaxDelayMS, EnvWhatsAppMinDelayMS)
	}
	if w.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvWhatsAppMaxAttempts)
	}
	return nil
}

// StaleSendingAfter is how long a claimed message may stay in sending before
// the retry sweep reclaims it: the provider timeout plus a minute of margin.
func (w WhatsAppConfig) StaleSendingAfter() time.Duration {
	timeout := w.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return timeout + time.Minute
}

type CronConfig struct {
	FrequentInterval time.Duration `envconfig:"GROCERYHUB_CRON_FREQUENT_INTERVAL" default:"1m"`
	DailyInterval    time.Duration `envconfig:"GROCERYHUB_CRON_DAILY_INTERVAL" default:"24h"`
	LockTTL          time.Duration `envconfig:"GROCERYHUB_CRON_LOCK_TTL" default:"5m"`
}

type CatalogConfig struct {
	TreeCacheTTL time.Duration `envconfig:"GROCERYHUB_CATALOG_TREE_CACHE_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.Driver = DriverSQLite
		db.DSN = db.SQLitePath
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
