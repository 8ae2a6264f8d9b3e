package pagekit

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every configuration variable, e.g. PAGEKIT_DATABASE_URL.
const EnvPrefix = "PAGEKIT"

// Config holds runtime configuration for a pagekit deployment.
type Config struct {
	Env  string `envconfig:"ENV" default:"development"`
	Addr string `envconfig:"ADDR" default:":8080"`

	DatabaseURL       string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	DBConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"5m"`

	ResolveTimeout time.Duration `envconfig:"RESOLVE_TIMEOUT" default:"5s"`

	// Empty disables the permission cache.
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"1m"`

	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer   string `envconfig:"JWT_ISSUER"`
	JWTAudience string `envconfig:"JWT_AUDIENCE" default:"authenticated"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	RateLimit       int           `envconfig:"RATE_LIMIT" default:"100"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// LoadConfig reads configuration from PAGEKIT_* environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database URL must be provided"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret must be provided"))
	}
	if c.ResolveTimeout <= 0 {
		errs = append(errs, errors.New("resolve timeout must be positive"))
	}
	if c.DBMaxOpenConns <= 0 || c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		errs = append(errs, errors.New("db idle connections must not exceed a positive open connection limit"))
	}
	if c.RateLimit <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit and window must be positive"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.IsProduction() && slices.Contains(c.CORSOrigins, "*") {
		errs = append(errs, errors.New("cors origins must be listed explicitly in production"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		errs = append(errs, errors.New("log format must be json or console"))
	}
	return errors.Join(errs...)
}

// IsProduction returns true when the deployment runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// PoolConfig returns the connection pool settings of the configuration.
func (c *Config) PoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConnections:    c.DBMaxOpenConns,
		MaxIdleConnections:    c.DBMaxIdleConns,
		ConnectionMaxLifetime: c.DBConnMaxLifetime,
		ConnectionMaxIdleTime: c.DBConnMaxIdleTime,
	}
}

// NewLogger builds a zap logger with the configured level and encoding.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if !cfg.IsProduction() {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = strings.ToLower(cfg.LogFormat)
	return zcfg.Build()
}
