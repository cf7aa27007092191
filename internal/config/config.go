// Package config handles configuration for the semantic cache service
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Config represents the complete configuration for the service
type Config struct {
	Service         ServiceConfig         `mapstructure:"service"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Cache           CacheConfig           `mapstructure:"cache"`
	Embedding       EmbeddingConfig       `mapstructure:"embedding"`
	Backend         BackendConfig         `mapstructure:"backend"`
	CircuitBreakers CircuitBreakersConfig `mapstructure:"circuit_breakers"`
}

// ServiceConfig contains service-level configuration
type ServiceConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	Database    int           `mapstructure:"database"`
	MaxRetries  int           `mapstructure:"max_retries"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	PoolSize    int           `mapstructure:"pool_size"`
}

// CacheConfig contains vector cache settings
type CacheConfig struct {
	IndexName        string `mapstructure:"index_name"`
	KeyPrefix        string `mapstructure:"key_prefix"`
	Dimensions       int    `mapstructure:"dimensions"`
	EvictionPolicy   string `mapstructure:"eviction_policy"`
	CoalesceRequests bool   `mapstructure:"coalesce_requests"`
}

// EmbeddingConfig contains embedding sidecar settings
type EmbeddingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BackendConfig contains LLM backend settings
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CircuitBreakersConfig holds one breaker configuration per dependency
type CircuitBreakersConfig struct {
	Store   BreakerConfig `mapstructure:"store"`
	Backend BreakerConfig `mapstructure:"backend"`
}

// BreakerConfig contains circuit breaker settings
type BreakerConfig struct {
	FailureThreshold    int           `mapstructure:"failure_threshold"`
	RecoveryTimeout     time.Duration `mapstructure:"recovery_timeout"`
	HalfOpenMaxInflight int           `mapstructure:"half_open_max_inflight"`
}

// Load loads configuration from environment and config files
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("semcache")
	v.SetConfigType("yaml")

	// Add config paths
	v.AddConfigPath("./configs")
	v.AddConfigPath("/configs")

	// Set defaults
	setDefaults(v)

	// Bind environment variables
	bindEnvVars(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist, we'll use defaults and env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Override with environment variables
	if err := overrideFromEnv(&config); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("service.port", 8080)
	v.SetDefault("service.metrics_port", 9090)
	v.SetDefault("service.shutdown_timeout", "30s")
	v.SetDefault("service.log_level", "info")

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.pool_size", 10)

	// Cache defaults
	v.SetDefault("cache.index_name", "cache_index")
	v.SetDefault("cache.key_prefix", "cache:")
	v.SetDefault("cache.dimensions", 384)
	v.SetDefault("cache.eviction_policy", "volatile-ttl")
	v.SetDefault("cache.coalesce_requests", true)

	// Embedding defaults
	v.SetDefault("embedding.base_url", "http://localhost:8086")
	v.SetDefault("embedding.timeout", "10s")

	// Backend defaults
	v.SetDefault("backend.base_url", "https://api.openai.com/v1")
	v.SetDefault("backend.model", "gpt-4o-mini")
	v.SetDefault("backend.timeout", "60s")

	// Circuit breaker defaults
	v.SetDefault("circuit_breakers.store.failure_threshold", 3)
	v.SetDefault("circuit_breakers.store.recovery_timeout", "10s")
	v.SetDefault("circuit_breakers.store.half_open_max_inflight", 1)
	v.SetDefault("circuit_breakers.backend.failure_threshold", 3)
	v.SetDefault("circuit_breakers.backend.recovery_timeout", "30s")
	v.SetDefault("circuit_breakers.backend.half_open_max_inflight", 1)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	v.AutomaticEnv()

	// Service bindings
	_ = v.BindEnv("service.port", "PORT")
	_ = v.BindEnv("service.metrics_port", "METRICS_PORT")
	_ = v.BindEnv("service.log_level", "LOG_LEVEL")

	// Redis bindings
	_ = v.BindEnv("redis.address", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Embedding bindings
	_ = v.BindEnv("embedding.base_url", "EMBEDDING_URL")

	// Backend bindings
	_ = v.BindEnv("backend.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("backend.model", "OPENAI_MODEL")
	_ = v.BindEnv("backend.base_url", "OPENAI_BASE_URL")
}

// overrideFromEnv overrides configuration with composite environment
// variables that viper cannot bind field-by-field.
func overrideFromEnv(cfg *Config) error {
	// Override Redis from REDIS_URL if provided
	// Format: redis://[:password@]host[:port][/database]
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	cfg.Redis.Address = opts.Addr
	cfg.Redis.Password = opts.Password
	cfg.Redis.Database = opts.DB

	return nil
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Service.Port <= 0 || cfg.Service.Port > 65535 {
		return fmt.Errorf("invalid service port: %d", cfg.Service.Port)
	}
	if cfg.Service.MetricsPort <= 0 || cfg.Service.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Service.MetricsPort)
	}
	if cfg.Cache.Dimensions <= 0 {
		return fmt.Errorf("invalid embedding dimensions: %d", cfg.Cache.Dimensions)
	}
	if cfg.CircuitBreakers.Store.FailureThreshold <= 0 ||
		cfg.CircuitBreakers.Backend.FailureThreshold <= 0 {
		return fmt.Errorf("circuit breaker failure thresholds must be positive")
	}

	return nil
}
