// ABOUTME: Configuration loading for the persistent gateway.
// ABOUTME: YAML files with environment variable expansion plus direct env overrides.

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Server modes.
const (
	ModeHTTP  = "http"
	ModeStdio = "stdio"
)

// Storage drivers.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMock     = "mock" // test aid only, never a production fallback
)

// Config represents the complete gateway configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Identity     IdentityConfig     `yaml:"identity"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Security     SecurityConfig     `yaml:"security"`
	Exchange     ExchangeConfig     `yaml:"exchange"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds transport selection and bind address.
type ServerConfig struct {
	Mode string `yaml:"mode"` // http | stdio
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig selects and points at the relational store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres | mock
	URL    string `yaml:"url"`    // postgres DSN
	Path   string `yaml:"path"`   // sqlite file path
}

// SubscriptionConfig tunes the validator.
type SubscriptionConfig struct {
	RegistryURL     string `yaml:"registry_url"` // separate registry DB; empty = primary database
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// IdentityConfig sets the per-deployment handle namespace.
type IdentityConfig struct {
	Namespace string `yaml:"namespace"`
}

// RateLimitConfig holds the optional global per-minute floor.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
}

// SecurityConfig selects the CORS and input-scanning profile.
type SecurityConfig struct {
	Profile        string   `yaml:"profile"` // strict | moderate
	AllowedOrigins []string `yaml:"allowed_origins"`
	JWTSecret      string   `yaml:"jwt_secret"` // reserved for signed-token mode
}

// ExchangeConfig points at the third-party exchange API.
type ExchangeConfig struct {
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// Default returns the built-in defaults applied before file and env loading.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Mode: ModeHTTP,
			Host: "127.0.0.1",
			Port: 8787,
		},
		Database: DatabaseConfig{
			Driver: StorageSQLite,
			Path:   "data/gateway.db",
		},
		Subscription: SubscriptionConfig{
			CacheTTLSeconds: 300,
		},
		Security: SecurityConfig{
			Profile: "moderate",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file, expands ${VAR} references, applies
// environment overrides, and validates the result. An empty path skips the
// file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv layers the recognized environment variables over the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
		c.Database.Driver = StoragePostgres
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("SUBSCRIPTION_REGISTRY_URL"); v != "" {
		c.Subscription.RegistryURL = v
	}
	if v := os.Getenv("SUBSCRIPTION_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Subscription.CacheTTLSeconds = n
		}
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Security.JWTSecret = v
	}
	if v := os.Getenv("SECURITY_PROFILE"); v != "" {
		c.Security.Profile = v
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.PerMinute = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SERVER_MODE"); v != "" {
		c.Server.Mode = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("IDENTITY_NAMESPACE"); v != "" {
		c.Identity.Namespace = v
	}
	if v := os.Getenv("EXCHANGE_BASE_URL"); v != "" {
		c.Exchange.BaseURL = v
	}
}

// Validate checks that all required fields are present and consistent.
// Returns the first failure encountered; a failure here is fatal at startup.
func (c *Config) Validate() error {
	switch c.Server.Mode {
	case ModeHTTP, ModeStdio:
	default:
		return fmt.Errorf("server.mode must be %q or %q, got %q", ModeHTTP, ModeStdio, c.Server.Mode)
	}

	if c.Server.Mode == ModeHTTP {
		if c.Server.Host == "" {
			return fmt.Errorf("server.host is required in http mode")
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
		}
	}

	switch c.Database.Driver {
	case StorageSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	case StorageMock:
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres, or mock, got %q", c.Database.Driver)
	}

	switch c.Security.Profile {
	case "strict", "moderate":
	default:
		return fmt.Errorf("security.profile must be strict or moderate, got %q", c.Security.Profile)
	}
	if c.Security.Profile == "strict" && c.Server.Mode == ModeHTTP && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("security.allowed_origins is required with the strict profile")
	}

	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warning, or error, got %q", c.Logging.Level)
	}

	return nil
}

// CacheTTL returns the subscription cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Subscription.CacheTTLSeconds) * time.Second
}

// Addr returns the HTTP bind address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
