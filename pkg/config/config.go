package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Upstream   UpstreamConfig
	Redis      RedisConfig
	Resilience ResilienceConfig
}

// ServerConfig holds dashboard server configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	CORSOrigins  string // Comma-separated list of allowed origins
}

// UpstreamConfig holds marketplace API configuration
type UpstreamConfig struct {
	BaseURL        string
	TimeoutSeconds int
	RetryEnabled   bool
}

// RedisConfig holds Redis configuration for the session store
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// RedisAddr returns the host:port address of the Redis server
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures breaker tuning for upstream calls
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvInt("READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("WRITE_TIMEOUT", 15),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Upstream: UpstreamConfig{
			BaseURL:        getEnv("MARKETPLACE_API_URL", "http://localhost:9000"),
			TimeoutSeconds: getEnvInt("MARKETPLACE_API_TIMEOUT", 30),
			RetryEnabled:   getEnvBool("MARKETPLACE_API_RETRY", false),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", false),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvBool("CIRCUIT_BREAKER_ENABLED", false),
				FailureThreshold: getEnvInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvInt("CIRCUIT_BREAKER_SUCCESS_THRESHOLD", 2),
				TimeoutSeconds:   getEnvInt("CIRCUIT_BREAKER_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvInt("CIRCUIT_BREAKER_INTERVAL_SECONDS", 60),
			},
		},
	}

	if cfg.Upstream.BaseURL == "" {
		return nil, fmt.Errorf("MARKETPLACE_API_URL must be set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
