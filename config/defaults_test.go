package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/voiceflow/agent/handoff"
	"github.com/BaSui01/voiceflow/agent/persistence"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	require.NoError(t, cfg.Validate())

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, SessionConfig{}, cfg.Session)
	assert.Equal(t, persistence.StoreTypeMemory, cfg.Persistence.Type)
	assert.False(t, cfg.Auth.Enabled())
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50.0, cfg.RateLimitRPS)
	assert.Equal(t, 100, cfg.RateLimitBurst)
}

func TestDefaultSessionConfig(t *testing.T) {
	cfg := DefaultSessionConfig()
	assert.Equal(t, 24*time.Hour, cfg.TTL)
	assert.Equal(t, 30*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, "voiceflow:session:", cfg.KeyPrefix)
	assert.False(t, cfg.EagerRecords)
}

func TestDefaultHandoffConfig_CopiesBaselineKeys(t *testing.T) {
	cfg := DefaultHandoffConfig()
	assert.Equal(t, handoff.DefaultBaselineKeys, cfg.BaselineKeys)

	cfg.BaselineKeys[0] = "mutated"
	assert.Equal(t, "session_id", handoff.DefaultBaselineKeys[0])
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "voiceflow", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.0001)
}
