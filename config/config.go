// Package config loads nim-memory settings from the environment.
//
// Values come from NIM_MEMORY_* variables; a .env file in the working
// directory is loaded first when present.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "NIM_MEMORY"

// Backend names.
const (
	BackendInMemory = "inmemory"
	BackendRedis    = "redis"
)

// Config holds every setting of the memory service and CLI.
type Config struct {
	// Backend selects the store: "inmemory" or "redis".
	Backend string `envconfig:"BACKEND" default:"inmemory"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	Redis    RedisConfig
	Server   ServerConfig
	Embedder EmbedderConfig
}

// RedisConfig configures the persistent backend.
type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
	Prefix   string `envconfig:"PREFIX" default:"nim:"`

	// Transactional wraps multi-step writes in MULTI/EXEC.
	Transactional bool `envconfig:"TRANSACTIONAL" default:"true"`

	// CacheSize is the number of records kept in the local read cache.
	// Zero disables the cache.
	CacheSize int           `envconfig:"CACHE_SIZE" default:"0"`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"30s"`
}

// ServerConfig configures the WebSocket server.
type ServerConfig struct {
	Addr string `envconfig:"ADDR" default:":8080"`
}

// EmbedderConfig configures the hashing embedder used by the CLI.
type EmbedderConfig struct {
	Dimensions int `envconfig:"DIMENSIONS" default:"256"`
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment without touching .env.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown enumerations and impossible sizes.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendInMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendInMemory, BackendRedis)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	if c.Redis.CacheSize < 0 {
		return fmt.Errorf("redis cache size must not be negative, got %d", c.Redis.CacheSize)
	}
	if c.Embedder.Dimensions <= 0 {
		return fmt.Errorf("embedder dimensions must be positive, got %d", c.Embedder.Dimensions)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
}
