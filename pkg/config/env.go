package config

const (
	EnvPrefix = "COMMERCEPILOT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
	AppEnvTest = "test"

	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	EnvAppEnv   = "COMMERCEPILOT_APP_ENV"
	EnvPort     = "COMMERCEPILOT_APP_PORT"
	EnvLogLevel = "COMMERCEPILOT_LOG_LEVEL"

	EnvDBDriver = "COMMERCEPILOT_DB_DRIVER"
	EnvDBDSN    = "COMMERCEPILOT_DB_DSN"
	EnvDBHost   = "COMMERCEPILOT_DB_HOST"
	EnvDBUser   = "COMMERCEPILOT_DB_USER"
	EnvDBName   = "COMMERCEPILOT_DB_NAME"

	EnvRedisURL = "COMMERCEPILOT_REDIS_URL"

	EnvSessionHashKey  = "COMMERCEPILOT_SESSION_HASH_KEY"
	EnvSessionBlockKey = "COMMERCEPILOT_SESSION_BLOCK_KEY"
	EnvSessionTTL      = "COMMERCEPILOT_SESSION_TTL"

	EnvBcryptCost = "COMMERCEPILOT_BCRYPT_COST"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
