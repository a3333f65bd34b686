package config

// EnvPrefix is passed to envconfig; every field carries an explicit
// envconfig tag so the prefix only matters for untagged fields.
const EnvPrefix = "LOOMLINE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv     = "LOOMLINE_APP_ENV"
	EnvPort       = "LOOMLINE_APP_PORT"
	EnvLogLevel   = "LOOMLINE_LOG_LEVEL"
	EnvLogFormat  = "LOOMLINE_LOG_FORMAT"
	EnvDBDSN      = "LOOMLINE_DB_DSN"
	EnvDBHost     = "LOOMLINE_DB_HOST"
	EnvDBUser     = "LOOMLINE_DB_USER"
	EnvDBPassword = "LOOMLINE_DB_PASSWORD"
	EnvDBName     = "LOOMLINE_DB_NAME"
	EnvRedisURL   = "LOOMLINE_REDIS_URL"
	EnvUseSQLite  = "LOOMLINE_USE_SQLITE"

	EnvChallanBaseURL = "LOOMLINE_CHALLAN_BASE_URL"
	EnvHandoffTimeout = "LOOMLINE_WORKFLOW_HANDOFF_TIMEOUT"
	EnvGCPProjectID   = "LOOMLINE_GCP_PROJECT_ID"
)
