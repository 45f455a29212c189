package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	JWT         JWTConfig
	GCP         GCPConfig
	GCS         GCSConfig
	BigQuery    BigQueryConfig
	PubSub      PubSubConfig
	Review      ReviewConfig
	Outbox      OutboxConfig
	Maintenance MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Review.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadJWT reads only the token settings, for tools that mint tokens offline.
func LoadJWT() (JWTConfig, error) {
	var cfg JWTConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return JWTConfig{}, fmt.Errorf("parsing jwt config: %w", err)
	}
	return cfg, nil
}

// LoadDB reads only the database settings.
func LoadDB() (DBConfig, error) {
	var cfg DBConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return DBConfig{}, fmt.Errorf("parsing db config: %w", err)
	}
	if err := cfg.ensureDSN(); err != nil {
		return DBConfig{}, err
	}
	return cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"REVIEW_APP_ENV" required:"true"`
	Port         string `envconfig:"REVIEW_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"REVIEW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"REVIEW_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"REVIEW_AUTO_MIGRATE" default:"false"`
	CORSOrigins  string `envconfig:"REVIEW_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type DBConfig struct {
	DSN string `envconfig:"REVIEW_DB_DSN"`

	Host     string `envconfig:"REVIEW_DB_HOST"`
	Port     int    `envconfig:"REVIEW_DB_PORT" default:"5432"`
	User     string `envconfig:"REVIEW_DB_USER"`
	Password string `envconfig:"REVIEW_DB_PASSWORD"`
	Name     string `envconfig:"REVIEW_DB_NAME"`
	SSLMode  string `envconfig:"REVIEW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"REVIEW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"REVIEW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"REVIEW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"REVIEW_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold is the duration above which a statement is logged at warn.
	SlowQueryThreshold time.Duration `envconfig:"REVIEW_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"REVIEW_REDIS_URL" required:"true"`
	Password     string        `envconfig:"REVIEW_REDIS_PASSWORD"`
	DB           int           `envconfig:"REVIEW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REVIEW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REVIEW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REVIEW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REVIEW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REVIEW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"REVIEW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"REVIEW_JWT_ISSUER" default:"invoice-review"`
	ExpirationMinutes int    `envconfig:"REVIEW_JWT_EXPIRATION_MINUTES" default:"720"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type GCPConfig struct {
	ProjectID              string `envconfig:"REVIEW_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"REVIEW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"REVIEW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"REVIEW_GCS_BUCKET_NAME" required:"true"`
	StagePrefix       string        `envconfig:"REVIEW_GCS_STAGE_PREFIX" default:"invoices"`
	DownloadURLExpiry time.Duration `envconfig:"REVIEW_GCS_DOWNLOAD_URL_EXPIRY" default:"6m"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"REVIEW_BIGQUERY_DATASET" default:"invoice_review"`
	CompletionModel string `envconfig:"REVIEW_BIGQUERY_COMPLETION_MODEL" default:"mismatch_summarizer"`
	Location        string `envconfig:"REVIEW_BIGQUERY_LOCATION" default:"US"`
}

type PubSubConfig struct {
	DocumentsTopic string `envconfig:"REVIEW_PUBSUB_DOCUMENTS_TOPIC" default:"invoice-documents"`
	ReviewsTopic   string `envconfig:"REVIEW_PUBSUB_REVIEWS_TOPIC" default:"invoice-reviews"`
}

type ReviewConfig struct {
	QueueCacheTTL    time.Duration `envconfig:"REVIEW_QUEUE_CACHE_TTL" default:"10m"`
	SessionTTL       time.Duration `envconfig:"REVIEW_SESSION_TTL" default:"12h"`
	SubmitLockTTL    time.Duration `envconfig:"REVIEW_SUBMIT_LOCK_TTL" default:"30s"`
	MaxUploadMB      int           `envconfig:"REVIEW_MAX_UPLOAD_MB" default:"20"`
	RenderScale      float64       `envconfig:"REVIEW_RENDER_SCALE" default:"2"`
	DocumentCacheMax int           `envconfig:"REVIEW_DOCUMENT_CACHE_SIZE" default:"64"`
}

func (r ReviewConfig) validate() error {
	if r.QueueCacheTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvQueueCacheTTL)
	}
	if r.RenderScale <= 0 {
		return fmt.Errorf("%s must be positive", EnvRenderScale)
	}
	if r.MaxUploadMB <= 0 {
		return fmt.Errorf("%s must be positive", EnvMaxUploadMB)
	}
	return nil
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"REVIEW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"REVIEW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"REVIEW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type MaintenanceConfig struct {
	Interval        time.Duration `envconfig:"REVIEW_MAINTENANCE_INTERVAL" default:"1h"`
	OutboxRetention time.Duration `envconfig:"REVIEW_OUTBOX_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dsnPartEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
