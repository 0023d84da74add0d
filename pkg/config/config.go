package config

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Session       SessionConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Throttle      ThrottleConfig
	CORS          CORSConfig
	Usage         UsageConfig
	Cron          CronConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDB reads only the database settings, for tools that never serve
// requests.
func LoadDB() (*DBConfig, error) {
	var db DBConfig
	if err := envconfig.Process(EnvPrefix, &db); err != nil {
		return nil, fmt.Errorf("parsing db config: %w", err)
	}
	if err := db.ensureDSN(); err != nil {
		return nil, err
	}
	return &db, nil
}

// Validate enforces the cross-field rules envconfig tags cannot express.
func (c *Config) Validate() error {
	if err := c.DB.ensureDSN(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("%s must be between %d and %d", EnvBcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Usage.DefaultHistoryDays <= 0 || c.Usage.DefaultHistoryDays > c.Usage.MaxHistoryDays {
		return fmt.Errorf("usage default history days must be within 1..%d", c.Usage.MaxHistoryDays)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"COMMERCEPILOT_APP_ENV" required:"true"`
	Port         string `envconfig:"COMMERCEPILOT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"COMMERCEPILOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COMMERCEPILOT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	Driver string `envconfig:"COMMERCEPILOT_DB_DRIVER" default:"memory"`
	DSN    string `envconfig:"COMMERCEPILOT_DB_DSN"`

	LegacyHost     string `envconfig:"COMMERCEPILOT_DB_HOST"`
	LegacyPort     int    `envconfig:"COMMERCEPILOT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COMMERCEPILOT_DB_USER"`
	LegacyPassword string `envconfig:"COMMERCEPILOT_DB_PASSWORD"`
	LegacyName     string `envconfig:"COMMERCEPILOT_DB_NAME"`
	LegacySSLMode  string `envconfig:"COMMERCEPILOT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COMMERCEPILOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COMMERCEPILOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COMMERCEPILOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COMMERCEPILOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the latency above which statements are logged at warn.
	SlowQuery time.Duration `envconfig:"COMMERCEPILOT_DB_SLOW_QUERY" default:"250ms"`
}

// IsRelational reports whether the configured driver is backed by gorm.
func (db DBConfig) IsRelational() bool {
	return db.Driver == DriverPostgres || db.Driver == DriverSQLite
}

type RedisConfig struct {
	URL          string        `envconfig:"COMMERCEPILOT_REDIS_URL"`
	Address      string        `envconfig:"COMMERCEPILOT_REDIS_ADDR"`
	Password     string        `envconfig:"COMMERCEPILOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"COMMERCEPILOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COMMERCEPILOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COMMERCEPILOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COMMERCEPILOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COMMERCEPILOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COMMERCEPILOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type SessionConfig struct {
	CookieName string        `envconfig:"COMMERCEPILOT_SESSION_COOKIE_NAME" default:"cp_session"`
	HashKey    string        `envconfig:"COMMERCEPILOT_SESSION_HASH_KEY" required:"true"`
	BlockKey   string        `envconfig:"COMMERCEPILOT_SESSION_BLOCK_KEY"`
	TTL        time.Duration `envconfig:"COMMERCEPILOT_SESSION_TTL" default:"168h"`
	Secure     bool          `envconfig:"COMMERCEPILOT_SESSION_SECURE" default:"true"`
	SameSite   string        `envconfig:"COMMERCEPILOT_SESSION_SAME_SITE" default:"lax"`
	Domain     string        `envconfig:"COMMERCEPILOT_SESSION_DOMAIN"`
}

// SameSiteMode converts the configured value into the net/http constant.
func (s SessionConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s.SameSite)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (s SessionConfig) validate() error {
	if len(s.HashKey) < 32 {
		return fmt.Errorf("%s must be at least 32 bytes", EnvSessionHashKey)
	}
	switch len(s.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("%s must be 16, 24 or 32 bytes", EnvSessionBlockKey)
	}
	if s.TTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvSessionTTL)
	}
	return nil
}

type PasswordConfig struct {
	BcryptCost int `envconfig:"COMMERCEPILOT_BCRYPT_COST" default:"10"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"COMMERCEPILOT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"COMMERCEPILOT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"COMMERCEPILOT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"COMMERCEPILOT_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"COMMERCEPILOT_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"COMMERCEPILOT_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type ThrottleConfig struct {
	RequestsPerSecond float64 `envconfig:"COMMERCEPILOT_THROTTLE_RPS" default:"0"`
	Burst             int     `envconfig:"COMMERCEPILOT_THROTTLE_BURST" default:"0"`
}

// Enabled reports whether the global throttle should be installed.
func (t ThrottleConfig) Enabled() bool {
	return t.RequestsPerSecond > 0 && t.Burst > 0
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"COMMERCEPILOT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type UsageConfig struct {
	DefaultHistoryDays int `envconfig:"COMMERCEPILOT_USAGE_DEFAULT_HISTORY_DAYS" default:"7"`
	MaxHistoryDays     int `envconfig:"COMMERCEPILOT_USAGE_MAX_HISTORY_DAYS" default:"90"`
	ListingCreditCost  int `envconfig:"COMMERCEPILOT_USAGE_LISTING_CREDIT_COST" default:"1"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"COMMERCEPILOT_CRON_INTERVAL" default:"1h"`
	RepairBatchSize int           `envconfig:"COMMERCEPILOT_CRON_REPAIR_BATCH_SIZE" default:"250"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"COMMERCEPILOT_AUTO_MIGRATE" default:"true"`
	SeedPlans   bool `envconfig:"COMMERCEPILOT_SEED_PLANS" default:"true"`
}

func (db *DBConfig) ensureDSN() error {
	switch db.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite:
		if db.DSN == "" {
			return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
		}
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s", EnvDBDriver, DriverMemory, DriverSQLite, DriverPostgres)
	}

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
