package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Workflow     WorkflowConfig
	Challan      ChallanConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LOOMLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"LOOMLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LOOMLINE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LOOMLINE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LOOMLINE_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"LOOMLINE_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LOOMLINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LOOMLINE_DB_DSN"`
	Driver string `envconfig:"LOOMLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LOOMLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"LOOMLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LOOMLINE_DB_USER"`
	LegacyPassword string `envconfig:"LOOMLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"LOOMLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"LOOMLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOOMLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOOMLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOOMLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOOMLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LOOMLINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LOOMLINE_REDIS_ADDR"`
	Password     string        `envconfig:"LOOMLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOOMLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOOMLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOOMLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOOMLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOOMLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOOMLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// FeatureFlagsConfig toggles runtime behaviour. UseSQLite swaps the store for
// a local SQLite file, which is how demo mode runs without Postgres.
type FeatureFlagsConfig struct {
	UseSQLite   bool   `envconfig:"LOOMLINE_USE_SQLITE" default:"false"`
	SQLitePath  string `envconfig:"LOOMLINE_SQLITE_PATH" default:"loomline-demo.db"`
	AutoMigrate bool   `envconfig:"LOOMLINE_AUTO_MIGRATE" default:"false"`
}

type WorkflowConfig struct {
	HandoffTimeout time.Duration `envconfig:"LOOMLINE_WORKFLOW_HANDOFF_TIMEOUT" default:"10s"`
}

type ChallanConfig struct {
	BaseURL          string        `envconfig:"LOOMLINE_CHALLAN_BASE_URL" required:"true"`
	APIKey           string        `envconfig:"LOOMLINE_CHALLAN_API_KEY"`
	RequestTimeout   time.Duration `envconfig:"LOOMLINE_CHALLAN_REQUEST_TIMEOUT" default:"15s"`
	BreakerFailures  uint32        `envconfig:"LOOMLINE_CHALLAN_BREAKER_FAILURES" default:"5"`
	BreakerOpenDelay time.Duration `envconfig:"LOOMLINE_CHALLAN_BREAKER_OPEN_DELAY" default:"30s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LOOMLINE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	ProductionTopic string `envconfig:"LOOMLINE_PUBSUB_PRODUCTION_TOPIC" default:"loomline-production-events"`
	QualityTopic    string `envconfig:"LOOMLINE_PUBSUB_QUALITY_TOPIC" default:"loomline-quality-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LOOMLINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LOOMLINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LOOMLINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval               time.Duration `envconfig:"LOOMLINE_CRON_INTERVAL" default:"1h"`
	JobTimeout             time.Duration `envconfig:"LOOMLINE_CRON_JOB_TIMEOUT" default:"15m"`
	RejectionGracePeriod   time.Duration `envconfig:"LOOMLINE_CRON_REJECTION_GRACE_PERIOD" default:"24h"`
	OutboxRetentionDays    int           `envconfig:"LOOMLINE_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	RejectionAuditPageSize int           `envconfig:"LOOMLINE_CRON_REJECTION_AUDIT_PAGE_SIZE" default:"200"`
}

// ensureDSN assembles a DSN from the discrete DB_* variables when no DSN is
// given. SQLite demo mode needs neither.
func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	var missing []string
	for _, part := range []struct{ env, value string }{
		{EnvDBHost, db.LegacyHost},
		{EnvDBUser, db.LegacyUser},
		{EnvDBName, db.LegacyName},
	} {
		if part.value == "" {
			missing = append(missing, part.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.LegacyUser, db.LegacyPassword),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   "/" + db.LegacyName,
	}
	if db.LegacyPassword == "" {
		dsn.User = url.User(db.LegacyUser)
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
