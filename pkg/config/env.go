package config

const (
	EnvPrefix = "FILMTECH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "FILMTECH_APP_ENV"
	EnvPort   = "FILMTECH_APP_PORT"

	EnvDBDSN  = "FILMTECH_DB_DSN"
	EnvDBHost = "FILMTECH_DB_HOST"
	EnvDBUser = "FILMTECH_DB_USER"
	EnvDBName = "FILMTECH_DB_NAME"

	EnvRedisURL = "FILMTECH_REDIS_URL"

	EnvAuthSessionSecret = "FILMTECH_AUTH_SESSION_SECRET"
	EnvAuthIssuer        = "FILMTECH_AUTH_ISSUER"

	EnvStripeAPIKey = "FILMTECH_STRIPE_API_KEY"
	EnvStripeSecret = "FILMTECH_STRIPE_SECRET"

	EnvFounderMaxSlots   = "FILMTECH_BILLING_FOUNDER_MAX_SLOTS"
	EnvFounderLockMonths = "FILMTECH_BILLING_FOUNDER_LOCK_MONTHS"
	EnvTrialDays         = "FILMTECH_BILLING_TRIAL_DAYS"

	EnvCronSecret = "FILMTECH_CRON_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
