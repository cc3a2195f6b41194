// =============================================================================
// 📦 VoiceFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"slices"
	"time"

	"github.com/BaSui01/voiceflow/agent/handoff"
	"github.com/BaSui01/voiceflow/agent/persistence"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Agents:      DefaultAgentsConfig(),
		Session:     DefaultSessionConfig(),
		Persistence: persistence.DefaultStoreConfig(),
		Supervisor:  DefaultSupervisorConfig(),
		Handoff:     DefaultHandoffConfig(),
		Auth:        AuthConfig{AdminRole: "admin"},
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultAgentsConfig 返回默认 Agent 配置
func DefaultAgentsConfig() AgentsConfig {
	return AgentsConfig{
		Dir:           "./agents",
		WatchInterval: 2 * time.Second,
		Mode:          "realtime",
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:                   24 * time.Hour,
		IdleTimeout:           30 * time.Minute,
		SweepInterval:         time.Minute,
		KeyPrefix:             "voiceflow:session:",
		CheckpointConcurrency: 8,
	}
}

// DefaultSupervisorConfig 返回默认顾问配置
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Timeout:   2 * time.Second,
		Workers:   8,
		QueueSize: 64,
	}
}

// DefaultHandoffConfig 返回默认交接配置
func DefaultHandoffConfig() HandoffConfig {
	return HandoffConfig{
		BaselineKeys: slices.Clone(handoff.DefaultBaselineKeys),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "voiceflow",
		Environment:  "development",
		SampleRate:   0.1,
	}
}
