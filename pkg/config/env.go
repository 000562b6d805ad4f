package config

const (
	EnvPrefix = "LEARNBILL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv      = "LEARNBILL_APP_ENV"
	EnvPort        = "LEARNBILL_APP_PORT"
	EnvDBDSN       = "LEARNBILL_DB_DSN"
	EnvDBHost      = "LEARNBILL_DB_HOST"
	EnvDBPort      = "LEARNBILL_DB_PORT"
	EnvDBUser      = "LEARNBILL_DB_USER"
	EnvDBPassword  = "LEARNBILL_DB_PASSWORD"
	EnvDBName      = "LEARNBILL_DB_NAME"
	EnvRedisURL    = "LEARNBILL_REDIS_URL"
	EnvJWTSecret   = "LEARNBILL_JWT_SECRET"
	EnvJWTIssuer   = "LEARNBILL_JWT_ISSUER"
	EnvJWTExpMins  = "LEARNBILL_JWT_EXPIRATION_MINUTES"
	EnvGCPProject  = "LEARNBILL_GCP_PROJECT_ID"
	EnvSyncTopic   = "LEARNBILL_PUBSUB_ACCOUNTING_SYNC_TOPIC"
	EnvSyncMax     = "LEARNBILL_SYNC_MAX_ATTEMPTS"
	EnvRenewalDays = "LEARNBILL_RENEWAL_PERIOD_DAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
