// Package config loads Gatehouse configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Provisioning  ProvisioningConfig
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

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// CacheBackend selects the decision cache implementation
type CacheBackend string

const (
	CacheBackendNone  CacheBackend = "none"
	CacheBackendLRU   CacheBackend = "lru"
	CacheBackendRedis CacheBackend = "redis"
)

// CacheConfig holds decision cache configuration
type CacheConfig struct {
	Backend   CacheBackend
	TTL       time.Duration
	MaxItems  int
	RedisAddr string
	RedisDB   int
}

// ProvisioningConfig holds provisioning and invitation settings
type ProvisioningConfig struct {
	// InvitationTTL is the default expiry applied when SendInvitation is
	// called without one.
	InvitationTTL time.Duration

	// JanitorSchedule is a cron expression for the invitation retention
	// sweep. Empty disables the janitor.
	JanitorSchedule string

	// InvitationRetention is how long expired, never-accepted invitations
	// are kept before the janitor soft-deletes them.
	InvitationRetention time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Provisioning:  loadProvisioningConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
		Port:            getEnv("GATEHOUSE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATEHOUSE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		PrimaryURL:  getEnv("GATEHOUSE_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("GATEHOUSE_POSTGRES_MIN_CONNS", 5),
		Timeout:     getEnvDuration("GATEHOUSE_POSTGRES_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("GATEHOUSE_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("GATEHOUSE_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}

	if replicas := getEnv("GATEHOUSE_POSTGRES_REPLICA_URLS", ""); replicas != "" {
		for _, url := range strings.Split(replicas, ",") {
			url = strings.TrimSpace(url)
			if url != "" {
				cfg.ReplicaURLs = append(cfg.ReplicaURLs, url)
			}
		}
	}

	return cfg
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:   CacheBackend(getEnv("GATEHOUSE_CACHE_BACKEND", string(CacheBackendLRU))),
		TTL:       getEnvDuration("GATEHOUSE_CACHE_TTL", 60*time.Second),
		MaxItems:  getEnvInt("GATEHOUSE_CACHE_MAX_ITEMS", 16384),
		RedisAddr: getEnv("GATEHOUSE_REDIS_ADDR", "localhost:6379"),
		RedisDB:   getEnvInt("GATEHOUSE_REDIS_DB", 0),
	}
}

func loadProvisioningConfig() ProvisioningConfig {
	return ProvisioningConfig{
		InvitationTTL:       getEnvDuration("GATEHOUSE_INVITATION_TTL", 7*24*time.Hour),
		JanitorSchedule:     getEnv("GATEHOUSE_JANITOR_SCHEDULE", "@hourly"),
		InvitationRetention: getEnvDuration("GATEHOUSE_INVITATION_RETENTION", 30*24*time.Hour),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("GATEHOUSE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("GATEHOUSE_METRICS_ENABLED", true),
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Database.PrimaryURL == "" {
		return fmt.Errorf("GATEHOUSE_POSTGRES_URL is required")
	}

	switch c.Cache.Backend {
	case CacheBackendNone, CacheBackendLRU, CacheBackendRedis:
	default:
		return fmt.Errorf("invalid cache backend: %s", c.Cache.Backend)
	}

	if c.Cache.Backend != CacheBackendNone && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", c.Cache.TTL)
	}

	if c.Cache.Backend == CacheBackendLRU && c.Cache.MaxItems <= 0 {
		return fmt.Errorf("cache max items must be positive, got %d", c.Cache.MaxItems)
	}

	if c.Provisioning.InvitationTTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive, got %s", c.Provisioning.InvitationTTL)
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max conns (%d) must be >= min conns (%d)",
			c.Database.MaxConns, c.Database.MinConns)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
