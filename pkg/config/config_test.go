package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("dashboard-service")
	require.NoError(t, err)

	assert.Equal(t, "dashboard-service", cfg.Server.ServiceName)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:9000", cfg.Upstream.BaseURL)
	assert.Equal(t, 30, cfg.Upstream.TimeoutSeconds)
	assert.False(t, cfg.Upstream.RetryEnabled)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9191")
	t.Setenv("MARKETPLACE_API_URL", "https://api.example.com")
	t.Setenv("MARKETPLACE_API_RETRY", "true")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD", "9")

	cfg, err := Load("dashboard-service")
	require.NoError(t, err)

	assert.Equal(t, "9191", cfg.Server.Port)
	assert.Equal(t, "https://api.example.com", cfg.Upstream.BaseURL)
	assert.True(t, cfg.Upstream.RetryEnabled)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 9, cfg.Resilience.CircuitBreaker.FailureThreshold)
}

func TestRedisAddr(t *testing.T) {
	cfg := RedisConfig{Host: "cache.internal", Port: "6380"}
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	t.Setenv("MARKETPLACE_API_TIMEOUT", "not-a-number")

	cfg, err := Load("dashboard-service")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Upstream.TimeoutSeconds)
}
