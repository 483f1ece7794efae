package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LimitCeiling is the largest page size the API will ever serve
const LimitCeiling = 10000

// Config holds all configuration for the service
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Query      QueryConfig      `mapstructure:"query"`
	API        APIConfig        `mapstructure:"api"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AppConfig holds application identity
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ClickHouseConfig holds database connection settings
type ClickHouseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Table    string `mapstructure:"table"`
	Secure   bool   `mapstructure:"secure"`
	Protocol string `mapstructure:"protocol"`
}

// Addr returns host:port
func (c ClickHouseConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PoolConfig holds connection pool settings
type PoolConfig struct {
	Size         int           `mapstructure:"size"`
	MaxOverflow  int           `mapstructure:"max_overflow"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Recycle      time.Duration `mapstructure:"recycle"`
	ConnectRetry time.Duration `mapstructure:"connect_retry"`
}

// Capacity is the maximum number of concurrently open connections
func (p PoolConfig) Capacity() int {
	return p.Size + p.MaxOverflow
}

// QueryConfig holds pagination and execution limits
type QueryConfig struct {
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// APIConfig holds HTTP surface settings
type APIConfig struct {
	Prefix      string   `mapstructure:"prefix"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// CacheConfig holds response cache settings
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IsProduction reports whether internal error details must be hidden
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Environment, "production")
}

// LoadConfig loads the configuration from defaults, an optional YAML file,
// a .env file and environment variables, in increasing precedence.
func LoadConfig(path string) (*Config, error) {
	// A missing .env is normal outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Environment variables override, e.g. CLICKHOUSE_HOST or QUERY_MAX_LIMIT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Query.MaxLimit < 1 || c.Query.MaxLimit > LimitCeiling {
		return fmt.Errorf("query.max_limit must be between 1 and %d, got %d", LimitCeiling, c.Query.MaxLimit)
	}
	if c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("query.default_limit must be between 1 and query.max_limit (%d), got %d", c.Query.MaxLimit, c.Query.DefaultLimit)
	}
	if c.Query.Timeout <= 0 {
		return errors.New("query.timeout must be positive")
	}
	if strings.TrimSpace(c.ClickHouse.Table) == "" {
		return errors.New("clickhouse.table is required")
	}
	if c.Pool.Capacity() < 1 {
		return errors.New("pool.size plus pool.max_overflow must be at least 1")
	}
	switch strings.ToLower(c.ClickHouse.Protocol) {
	case "http", "native":
	default:
		return fmt.Errorf("clickhouse.protocol must be http or native, got %q", c.ClickHouse.Protocol)
	}
	return nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "ClickHouse OHLCV API")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Server defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// ClickHouse defaults
	v.SetDefault("clickhouse.host", "localhost")
	v.SetDefault("clickhouse.port", 8123)
	v.SetDefault("clickhouse.user", "default")
	v.SetDefault("clickhouse.password", "")
	v.SetDefault("clickhouse.database", "default")
	v.SetDefault("clickhouse.table", "ohlcv")
	v.SetDefault("clickhouse.secure", false)
	v.SetDefault("clickhouse.protocol", "http")

	// Pool defaults
	v.SetDefault("pool.size", 10)
	v.SetDefault("pool.max_overflow", 20)
	v.SetDefault("pool.timeout", "30s")
	v.SetDefault("pool.recycle", "1h")
	v.SetDefault("pool.connect_retry", "15s")

	// Query defaults
	v.SetDefault("query.default_limit", 1000)
	v.SetDefault("query.max_limit", LimitCeiling)
	v.SetDefault("query.timeout", "30s")

	// API defaults
	v.SetDefault("api.prefix", "/api/v1")
	v.SetDefault("api.cors_origins", []string{"*"})

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("cache.prefix", "ohlcv:")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
