package config

const EnvPrefix = "REVIEW"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv      = "REVIEW_APP_ENV"
	EnvPort        = "REVIEW_APP_PORT"
	EnvLogLevel    = "REVIEW_LOG_LEVEL"
	EnvAutoMigrate = "REVIEW_AUTO_MIGRATE"

	EnvDBDSN  = "REVIEW_DB_DSN"
	EnvDBHost = "REVIEW_DB_HOST"
	EnvDBPort = "REVIEW_DB_PORT"
	EnvDBUser = "REVIEW_DB_USER"
	EnvDBPass = "REVIEW_DB_PASSWORD"
	EnvDBName = "REVIEW_DB_NAME"

	EnvRedisURL = "REVIEW_REDIS_URL"

	EnvJWTSecret  = "REVIEW_JWT_SECRET"
	EnvJWTIssuer  = "REVIEW_JWT_ISSUER"
	EnvJWTExpMins = "REVIEW_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID       = "REVIEW_GCP_PROJECT_ID"
	EnvGCSBucket          = "REVIEW_GCS_BUCKET_NAME"
	EnvGCSStagePrefix     = "REVIEW_GCS_STAGE_PREFIX"
	EnvGCSDownloadExpiry  = "REVIEW_GCS_DOWNLOAD_URL_EXPIRY"
	EnvBigQueryModel      = "REVIEW_BIGQUERY_COMPLETION_MODEL"
	EnvPubSubDocsTopic    = "REVIEW_PUBSUB_DOCUMENTS_TOPIC"
	EnvPubSubReviewsTopic = "REVIEW_PUBSUB_REVIEWS_TOPIC"

	EnvQueueCacheTTL = "REVIEW_QUEUE_CACHE_TTL"
	EnvSessionTTL    = "REVIEW_SESSION_TTL"
	EnvMaxUploadMB   = "REVIEW_MAX_UPLOAD_MB"
	EnvRenderScale   = "REVIEW_RENDER_SCALE"

	EnvMaintenanceInterval = "REVIEW_MAINTENANCE_INTERVAL"
	EnvOutboxRetention     = "REVIEW_OUTBOX_RETENTION"
)

var dsnPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
