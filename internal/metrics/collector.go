// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器. A nil *Collector is valid and records nothing.
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 交接指标
	handoffsTotal   *prometheus.CounterVec
	handoffDuration *prometheus.HistogramVec

	// 覆盖指标
	overrideWrites     *prometheus.CounterVec
	customAgentChanges *prometheus.CounterVec

	// 顾问指标
	advisoryResults  *prometheus.CounterVec
	advisoryDuration *prometheus.HistogramVec

	// 持久化指标
	persistenceOps      *prometheus.CounterVec
	persistenceDuration *prometheus.HistogramVec
	sessionsActive      prometheus.Gauge
}

// NewCollector 创建指标收集器. reg defaults to prometheus.DefaultRegisterer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 交接指标
	c.handoffsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of handoff resolutions",
		},
		[]string{"source", "target", "result"},
	)

	c.handoffDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handoff_resolution_duration_seconds",
			Help:      "Handoff resolution duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"type"},
	)

	// 覆盖指标
	c.overrideWrites = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "override_writes_total",
			Help:      "Total number of session override writes",
		},
		[]string{"kind", "source"},
	)

	c.customAgentChanges = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "custom_agent_changes_total",
			Help:      "Total number of custom agent registrations, removals and trigger conflicts",
		},
		[]string{"change"},
	)

	// 顾问指标
	c.advisoryResults = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_results_total",
			Help:      "Advisory evaluations by outcome",
		},
		[]string{"advisor", "outcome"},
	)

	c.advisoryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "advisory_fanout_duration_seconds",
			Help:      "Wall time of one advisory fan-out",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"partial"},
	)

	// 持久化指标
	c.persistenceOps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_operations_total",
			Help:      "Session persistence operations",
		},
		[]string{"operation", "mode", "result"},
	)

	c.persistenceDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persistence_operation_duration_seconds",
			Help:      "Session persistence latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.sessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions held in memory",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔀 交接与覆盖指标记录
// =============================================================================

// RecordHandoff 记录一次交接解析. result is "success" or an error code.
func (c *Collector) RecordHandoff(source, target, handoffType, result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.handoffsTotal.WithLabelValues(orNone(source), orNone(target), result).Inc()
	c.handoffDuration.WithLabelValues(orNone(handoffType)).Observe(duration.Seconds())
}

// RecordOverrideWrite 记录覆盖写入
func (c *Collector) RecordOverrideWrite(kind, source string) {
	if c == nil {
		return
	}
	c.overrideWrites.WithLabelValues(kind, source).Inc()
}

// RecordCustomAgentChange 记录自定义 Agent 变更 (registered, removed, conflict)
func (c *Collector) RecordCustomAgentChange(change string) {
	if c == nil {
		return
	}
	c.customAgentChanges.WithLabelValues(change).Inc()
}

// =============================================================================
// 🧭 顾问指标记录
// =============================================================================

// RecordAdvisory 记录单个顾问结果 (ok, timeout, error, dropped)
func (c *Collector) RecordAdvisory(advisor, outcome string) {
	if c == nil {
		return
	}
	c.advisoryResults.WithLabelValues(advisor, outcome).Inc()
}

// RecordAdvisoryFanout 记录一次并发评估耗时
func (c *Collector) RecordAdvisoryFanout(duration time.Duration, partial bool) {
	if c == nil {
		return
	}
	label := "false"
	if partial {
		label = "true"
	}
	c.advisoryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// =============================================================================
// 💾 持久化指标记录
// =============================================================================

// RecordPersistence 记录持久化操作. mode is "sync" or "async".
func (c *Collector) RecordPersistence(operation, mode string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.persistenceOps.WithLabelValues(operation, mode, result).Inc()
	c.persistenceDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetActiveSessions 设置内存中的会话数
func (c *Collector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.sessionsActive.Set(float64(n))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
