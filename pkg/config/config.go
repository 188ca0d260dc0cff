// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cccs-paul/rcbudget/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Directory     DirectoryConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	PingTimeout time.Duration
}

// RedisConfig holds the optional access-cache backend configuration.
// An empty URL disables the cache entirely.
type RedisConfig struct {
	URL      string
	CacheTTL time.Duration
}

// DirectoryConfig holds the external directory gateway configuration
type DirectoryConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	SearchLimit  int
	CacheSize    int
	CacheTTL     time.Duration
	Timeout      time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel           observability.LogLevel
	MetricsEnabled     bool
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Directory:     loadDirectoryConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("RCBUDGET_HOST", "0.0.0.0"),
		Port:            getEnv("RCBUDGET_PORT", "8080"),
		ReadTimeout:     getEnvDuration("RCBUDGET_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("RCBUDGET_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("RCBUDGET_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("RCBUDGET_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("RCBUDGET_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("RCBUDGET_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("RCBUDGET_POSTGRES_MIN_CONNS", 2),
		MaxLifetime: getEnvDuration("RCBUDGET_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("RCBUDGET_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
		PingTimeout: getEnvDuration("RCBUDGET_POSTGRES_PING_TIMEOUT", 5*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("RCBUDGET_REDIS_URL", ""),
		CacheTTL: getEnvDuration("RCBUDGET_ACCESS_CACHE_TTL", 5*time.Minute),
	}
}

func loadDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		BaseURL:      getEnv("RCBUDGET_DIRECTORY_URL", ""),
		TokenURL:     getEnv("RCBUDGET_DIRECTORY_TOKEN_URL", ""),
		ClientID:     getEnv("RCBUDGET_DIRECTORY_CLIENT_ID", ""),
		ClientSecret: getEnv("RCBUDGET_DIRECTORY_CLIENT_SECRET", ""),
		SearchLimit:  getEnvInt("RCBUDGET_DIRECTORY_SEARCH_LIMIT", 10),
		CacheSize:    getEnvInt("RCBUDGET_DIRECTORY_CACHE_SIZE", 512),
		CacheTTL:     getEnvDuration("RCBUDGET_DIRECTORY_CACHE_TTL", 10*time.Minute),
		Timeout:      getEnvDuration("RCBUDGET_DIRECTORY_TIMEOUT", 10*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("RCBUDGET_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("RCBUDGET_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("RCBUDGET_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("RCBUDGET_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("RCBUDGET_OTEL_SERVICE_NAME", "rcbudget-acl"),
		OTelServiceVersion: getEnv("RCBUDGET_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("RCBUDGET_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	// The directory gateway is only contacted during grant creation; when it
	// is configured, its credentials must be complete.
	if c.Directory.BaseURL != "" {
		if c.Directory.TokenURL == "" || c.Directory.ClientID == "" || c.Directory.ClientSecret == "" {
			return fmt.Errorf("directory token URL, client ID and client secret are required when a directory URL is set")
		}
	}
	if c.Directory.SearchLimit <= 0 {
		return fmt.Errorf("directory search limit must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns the variable's value when it is set, even when set to
// the empty string, so an explicit empty override reaches Validate
// instead of being silently replaced by the default.
func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
