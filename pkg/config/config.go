package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Pricing       PricingConfig
	Cron          CronConfig
	Tracing       TracingConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Pricing.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FURNISHLY_APP_ENV" required:"true"`
	Port         string `envconfig:"FURNISHLY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FURNISHLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FURNISHLY_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"FURNISHLY_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

type ServiceConfig struct {
	Kind string `envconfig:"FURNISHLY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FURNISHLY_DB_DSN"`
	Driver string `envconfig:"FURNISHLY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FURNISHLY_DB_HOST"`
	Port     int    `envconfig:"FURNISHLY_DB_PORT" default:"5432"`
	User     string `envconfig:"FURNISHLY_DB_USER"`
	Password string `envconfig:"FURNISHLY_DB_PASSWORD"`
	Name     string `envconfig:"FURNISHLY_DB_NAME"`
	SSLMode  string `envconfig:"FURNISHLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FURNISHLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FURNISHLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FURNISHLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FURNISHLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"FURNISHLY_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
	TxRetries          int           `envconfig:"FURNISHLY_DB_TX_RETRIES" default:"2"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FURNISHLY_REDIS_URL"`
	Address      string        `envconfig:"FURNISHLY_REDIS_ADDR"`
	Password     string        `envconfig:"FURNISHLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"FURNISHLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FURNISHLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FURNISHLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FURNISHLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FURNISHLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FURNISHLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"FURNISHLY_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"FURNISHLY_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"FURNISHLY_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"FURNISHLY_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"FURNISHLY_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"FURNISHLY_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"FURNISHLY_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"FURNISHLY_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"FURNISHLY_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"FURNISHLY_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"FURNISHLY_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"FURNISHLY_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"FURNISHLY_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"FURNISHLY_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"FURNISHLY_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

// PricingConfig controls how the evaluation date for promotions is derived.
type PricingConfig struct {
	TimeZone    string `envconfig:"FURNISHLY_PRICING_TIMEZONE" default:"UTC"`
	GeneralCode string `envconfig:"FURNISHLY_PRICING_GENERAL_CODE" default:"GENERAL_DISCOUNT"`
}

// Location resolves the configured pricing time zone.
func (p PricingConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(p.TimeZone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", EnvPricingTimeZone, name, err)
	}
	return loc, nil
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"FURNISHLY_CRON_INTERVAL" default:"1h"`
	CartRetentionDays int           `envconfig:"FURNISHLY_CRON_CART_RETENTION_DAYS" default:"60"`
	LockTTL           time.Duration `envconfig:"FURNISHLY_CRON_LOCK_TTL" default:"55m"`
	// MetricsAddr serves /metrics for the worker; empty disables the listener.
	MetricsAddr string `envconfig:"FURNISHLY_CRON_METRICS_ADDR" default:":9091"`
}

type TracingConfig struct {
	Enabled     bool   `envconfig:"FURNISHLY_TRACING_ENABLED" default:"false"`
	ServiceName string `envconfig:"FURNISHLY_TRACING_SERVICE_NAME" default:"furnishly-api"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FURNISHLY_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
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
