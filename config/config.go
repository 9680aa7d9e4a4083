package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	DriverAzureTables = "aztables"
	DriverSQLite      = "sqlite"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port        int      `env:"PORT"         envDefault:"8080"`
	Debug       bool     `env:"DEBUG"`
	LogFormat   string   `env:"LOG_FORMAT"   envDefault:"text"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`

	JWTSecret    string        `env:"JWT_SECRET"`
	JWTTTL       time.Duration `env:"JWT_TTL"        envDefault:"24h"`
	JWTIssuer    string        `env:"JWT_ISSUER"`
	JWKSURL      string        `env:"JWKS_URL"`
	JWKSCacheTTL time.Duration `env:"JWKS_CACHE_TTL" envDefault:"15m"`
	BcryptCost   int           `env:"BCRYPT_COST"    envDefault:"10"`

	StorageDriver           string `env:"STORAGE_DRIVER"            envDefault:"sqlite"`
	StorageConnectionString string `env:"STORAGE_CONNECTION_STRING"`
	UsersTable              string `env:"USERS_TABLE"               envDefault:"Users"`
	TasksTable              string `env:"TASKS_TABLE"               envDefault:"Tasks"`
	DomainEventsQueue       string `env:"DOMAIN_EVENTS_QUEUE"`
	SQLitePath              string `env:"SQLITE_PATH"               envDefault:"taskboard.db"`

	RedisConnectionString string        `env:"REDIS_CONNECTION_STRING"`
	IdempotencyTTL        time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.JWKSCacheTTL < 0 {
		errs = append(errs, errors.New("JWKS_CACHE_TTL must not be negative"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	switch c.StorageDriver {
	case DriverAzureTables:
		if c.StorageConnectionString == "" || c.UsersTable == "" || c.TasksTable == "" {
			errs = append(errs, errors.New("missing storage config"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	if c.DomainEventsQueue != "" && c.StorageConnectionString == "" {
		errs = append(errs, errors.New("DOMAIN_EVENTS_QUEUE requires STORAGE_CONNECTION_STRING"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// ListenAddr is the address the HTTP server binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RedisOptions parses REDIS_CONNECTION_STRING. Both redis:// URLs and the
// Azure "host:port,password=...,ssl=True" form are accepted. It returns nil
// when no connection string is configured.
func (c Config) RedisOptions() (*redis.Options, error) {
	raw := strings.TrimSpace(c.RedisConnectionString)
	if raw == "" {
		return nil, nil
	}
	if opts, err := redis.ParseURL(raw); err == nil {
		return opts, nil
	}
	parts := strings.Split(raw, ",")
	if parts[0] == "" || strings.Contains(parts[0], "=") {
		return nil, errors.New("invalid REDIS_CONNECTION_STRING")
	}
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
