package config

const (
	EnvPrefix = "FURNISHLY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv      = "FURNISHLY_APP_ENV"
	EnvPort        = "FURNISHLY_APP_PORT"
	EnvLogLevel    = "FURNISHLY_LOG_LEVEL"
	EnvCORSOrigins = "FURNISHLY_CORS_ORIGINS"

	EnvDBDSN      = "FURNISHLY_DB_DSN"
	EnvDBHost     = "FURNISHLY_DB_HOST"
	EnvDBPort     = "FURNISHLY_DB_PORT"
	EnvDBUser     = "FURNISHLY_DB_USER"
	EnvDBPassword = "FURNISHLY_DB_PASSWORD"
	EnvDBName     = "FURNISHLY_DB_NAME"
	EnvDBSSLMode  = "FURNISHLY_DB_SSLMODE"

	EnvRedisURL = "FURNISHLY_REDIS_URL"

	EnvJWTSecret              = "FURNISHLY_JWT_SECRET"
	EnvJWTIssuer              = "FURNISHLY_JWT_ISSUER"
	EnvJWTExpMins             = "FURNISHLY_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "FURNISHLY_REFRESH_TOKEN_TTL_MINUTES"

	EnvPricingTimeZone    = "FURNISHLY_PRICING_TIMEZONE"
	EnvPricingGeneralCode = "FURNISHLY_PRICING_GENERAL_CODE"

	EnvCronInterval          = "FURNISHLY_CRON_INTERVAL"
	EnvCronCartRetentionDays = "FURNISHLY_CRON_CART_RETENTION_DAYS"

	EnvTracingEnabled = "FURNISHLY_TRACING_ENABLED"
	EnvAutoMigrate    = "FURNISHLY_AUTO_MIGRATE"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
