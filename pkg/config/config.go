package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	CamPay       CamPayConfig
	Payments     PaymentsConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EDUPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"EDUPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EDUPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EDUPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EDUPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EDUPAY_DB_DSN"`
	Driver string `envconfig:"EDUPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EDUPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"EDUPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EDUPAY_DB_USER"`
	LegacyPassword string `envconfig:"EDUPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"EDUPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"EDUPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EDUPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EDUPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EDUPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EDUPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EDUPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EDUPAY_REDIS_ADDR"`
	Password     string        `envconfig:"EDUPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"EDUPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EDUPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EDUPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EDUPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EDUPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EDUPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"EDUPAY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EDUPAY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EDUPAY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"EDUPAY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"EDUPAY_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EDUPAY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"EDUPAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EDUPAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentsTopic        string `envconfig:"EDUPAY_PUBSUB_PAYMENTS_TOPIC" required:"true"`
	PaymentsSubscription string `envconfig:"EDUPAY_PUBSUB_PAYMENTS_SUBSCRIPTION" required:"true"`
}

type CamPayConfig struct {
	AppUsername string        `envconfig:"EDUPAY_CAMPAY_APP_USERNAME" required:"true"`
	AppPassword string        `envconfig:"EDUPAY_CAMPAY_APP_PASSWORD" required:"true"`
	BaseURL     string        `envconfig:"EDUPAY_CAMPAY_BASE_URL"`
	Timeout     time.Duration `envconfig:"EDUPAY_CAMPAY_TIMEOUT" default:"30s"`
}

type PaymentsConfig struct {
	ReferenceTTL     time.Duration `envconfig:"EDUPAY_PAYMENTS_REFERENCE_TTL" default:"24h"`
	RetryBatchSize   int           `envconfig:"EDUPAY_PAYMENTS_RETRY_BATCH_SIZE" default:"100"`
	RetryBackoffBase time.Duration `envconfig:"EDUPAY_PAYMENTS_RETRY_BACKOFF_BASE" default:"10m"`
	RetryBackoffMax  time.Duration `envconfig:"EDUPAY_PAYMENTS_RETRY_BACKOFF_MAX" default:"6h"`
	RetryMaxAttempts int           `envconfig:"EDUPAY_PAYMENTS_RETRY_MAX_ATTEMPTS" default:"12"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"EDUPAY_CRON_INTERVAL" default:"10m"`
	LockTTL  time.Duration `envconfig:"EDUPAY_CRON_LOCK_TTL" default:"15m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
