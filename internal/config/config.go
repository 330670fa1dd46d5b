// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Store    StoreConfig    `mapstructure:"store"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Network  NetworkConfig  `mapstructure:"network"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents the local HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig represents the local PostgreSQL store configuration
type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

// RedisConfig represents the Redis used for the sync owner lease
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// StoreConfig selects the durable store backend
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // memory, postgres
}

// RemoteConfig describes the back office endpoints
type RemoteConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	OrdersPath    string        `mapstructure:"orders_path"`
	HealthPath    string        `mapstructure:"health_path"`
	ProductsPath  string        `mapstructure:"products_path"`
	CustomersPath string        `mapstructure:"customers_path"`
	Timeout       time.Duration `mapstructure:"timeout"`
	TerminalID    string        `mapstructure:"terminal_id"`
	StoreID       string        `mapstructure:"store_id"`
}

// NetworkConfig configures the connectivity monitor
type NetworkConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	BaseProbeTimeout  time.Duration `mapstructure:"base_probe_timeout"`
	ProbeTimeoutStep  time.Duration `mapstructure:"probe_timeout_step"`
	MaxProbeTimeout   time.Duration `mapstructure:"max_probe_timeout"`
	BaseBackoff       time.Duration `mapstructure:"base_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	CheckInterval     time.Duration `mapstructure:"check_interval"`
	LinkCheckInterval time.Duration `mapstructure:"link_check_interval"`
	SlowThreshold     time.Duration `mapstructure:"slow_threshold"`
}

// SyncConfig configures the sync engine
type SyncConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	RemoveSynced     bool          `mapstructure:"remove_synced"`
	SyncedRetention  time.Duration `mapstructure:"synced_retention"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	Lease            string        `mapstructure:"lease"` // memory, redis
	OwnerKey         string        `mapstructure:"owner_key"`
	LeaseTTL         time.Duration `mapstructure:"lease_ttl"`
	ShutdownDeadline time.Duration `mapstructure:"shutdown_deadline"`
}

// CatalogConfig configures opportunistic catalog refresh
type CatalogConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	JWTExpiration     time.Duration `mapstructure:"jwt_expiration"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// A local .env is optional; real environment variables still win.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("../../internal/config")

	// Environment variable support
	v.SetEnvPrefix("POS_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "pos_terminal")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 5)

	// Store defaults
	v.SetDefault("store.backend", "postgres")

	// Remote defaults
	v.SetDefault("remote.base_url", "http://localhost:8080")
	v.SetDefault("remote.orders_path", "/api/v1/orders")
	v.SetDefault("remote.health_path", "/api/v1/health")
	v.SetDefault("remote.products_path", "/api/v1/products")
	v.SetDefault("remote.customers_path", "/api/v1/customers")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("remote.terminal_id", "terminal-1")
	v.SetDefault("remote.store_id", "main-store")

	// Network monitor defaults
	v.SetDefault("network.max_retries", 3)
	v.SetDefault("network.base_probe_timeout", "5s")
	v.SetDefault("network.probe_timeout_step", "2s")
	v.SetDefault("network.max_probe_timeout", "15s")
	v.SetDefault("network.base_backoff", "1s")
	v.SetDefault("network.max_backoff", "10s")
	v.SetDefault("network.check_interval", "30s")
	v.SetDefault("network.link_check_interval", "5s")
	v.SetDefault("network.slow_threshold", "1500ms")

	// Sync defaults
	v.SetDefault("sync.interval", "5m")
	v.SetDefault("sync.retry_attempts", 3)
	v.SetDefault("sync.retry_delay", "5s")
	v.SetDefault("sync.remove_synced", false)
	v.SetDefault("sync.synced_retention", "720h")
	v.SetDefault("sync.cleanup_interval", "1h")
	v.SetDefault("sync.lease", "memory")
	v.SetDefault("sync.owner_key", "")
	v.SetDefault("sync.lease_ttl", "2m")
	v.SetDefault("sync.shutdown_deadline", "30s")

	// Catalog defaults
	v.SetDefault("catalog.enabled", true)
	v.SetDefault("catalog.refresh_interval", "15m")

	// Security defaults
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_expiration", "1h")
	v.SetDefault("security.allowed_origins", []string{})
	v.SetDefault("security.rate_limit_enabled", true)
	v.SetDefault("security.rate_limit_requests", 300)
	v.SetDefault("security.rate_limit_window", "1m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// App defaults
	v.SetDefault("app.name", "pos-sync-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}

	switch config.Store.Backend {
	case "memory":
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database.host is required for the postgres store")
		}
	default:
		return fmt.Errorf("store.backend must be one of: [memory postgres]")
	}

	switch config.Sync.Lease {
	case "memory", "redis":
	default:
		return fmt.Errorf("sync.lease must be one of: [memory redis]")
	}

	if config.Network.MaxRetries < 0 {
		return fmt.Errorf("network.max_retries must not be negative")
	}
	if config.Sync.RetryAttempts < 0 {
		return fmt.Errorf("sync.retry_attempts must not be negative")
	}
	if config.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetOwnerKey returns the lease key that names the shared local store
func (c *Config) GetOwnerKey() string {
	if c.Sync.OwnerKey != "" {
		return c.Sync.OwnerKey
	}
	if c.Store.Backend == "postgres" {
		return fmt.Sprintf("pos-sync:owner:%s:%d:%s", c.Database.Host, c.Database.Port, c.Database.DBName)
	}
	return "pos-sync:owner:" + c.Remote.TerminalID
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
