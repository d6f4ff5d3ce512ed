package config

const (
	EnvPrefix = "MARKETPLACE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:marketplace.db?cache=shared&_fk=1"
)

const (
	EnvAppEnv          = "MARKETPLACE_APP_ENV"
	EnvPort            = "MARKETPLACE_APP_PORT"
	EnvDBDSN           = "MARKETPLACE_DB_DSN"
	EnvDBHost          = "MARKETPLACE_DB_HOST"
	EnvDBUser          = "MARKETPLACE_DB_USER"
	EnvDBPassword      = "MARKETPLACE_DB_PASSWORD"
	EnvDBName          = "MARKETPLACE_DB_NAME"
	EnvRedisURL        = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret       = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer       = "MARKETPLACE_JWT_ISSUER"
	EnvJWTExpMins      = "MARKETPLACE_JWT_EXPIRATION_MINUTES"
	EnvPaystackSecret  = "MARKETPLACE_PAYSTACK_SECRET_KEY"
	EnvUseSQLite       = "MARKETPLACE_USE_SQLITE"
	EnvCronSchedule    = "MARKETPLACE_CRON_SCHEDULE"
	EnvSubsLockTimeout = "MARKETPLACE_SUBSCRIPTIONS_LOCK_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
