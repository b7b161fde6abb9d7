// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector RAG 管线指标收集器
type Collector struct {
	// 请求指标
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// 阶段指标
	phaseDuration *prometheus.HistogramVec
	phaseFailures *prometheus.CounterVec

	// 置信度分布
	confidence *prometheus.HistogramVec

	// 回退指标
	fallbackTotal  *prometheus.CounterVec
	emergencyTotal prometheus.Counter

	// 缓存与限流
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	rateLimitRejected  prometheus.Counter

	// 工作流指标
	activeWorkflows prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到给定 registry。
// registry 为 nil 时使用默认 registry。
func NewCollector(namespace string, registry prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of processed queries",
		},
		[]string{"search_type", "status"},
	)

	c.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end query processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"search_type"},
	)

	c.phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Per-phase processing duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"phase"},
	)

	c.phaseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_failures_total",
			Help:      "Total number of phase failures",
		},
		[]string{"phase"},
	)

	c.confidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confidence",
			Help:      "Final confidence distribution",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"search_type"},
	)

	c.fallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_total",
			Help:      "Total number of web fallback executions",
		},
		[]string{"reason"},
	)

	c.emergencyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emergency_responses_total",
			Help:      "Total number of emergency degraded responses",
		},
	)

	c.cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_cache_hits_total",
			Help:      "Web result cache hits",
		},
	)

	c.cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_cache_misses_total",
			Help:      "Web result cache misses",
		},
	)

	c.rateLimitRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejected_total",
			Help:      "Web search calls rejected by the rate limiter",
		},
	)

	c.activeWorkflows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workflows",
			Help:      "Number of in-flight workflows",
		},
	)

	registry.MustRegister(
		c.requestsTotal, c.requestDuration,
		c.phaseDuration, c.phaseFailures,
		c.confidence,
		c.fallbackTotal, c.emergencyTotal,
		c.cacheHits, c.cacheMisses, c.rateLimitRejected,
		c.activeWorkflows,
	)

	return c
}

// RecordRequest 记录一次完整请求
func (c *Collector) RecordRequest(searchType, status string, duration time.Duration, confidence float64) {
	c.requestsTotal.WithLabelValues(searchType, status).Inc()
	c.requestDuration.WithLabelValues(searchType).Observe(duration.Seconds())
	c.confidence.WithLabelValues(searchType).Observe(confidence)
}

// RecordPhase 记录阶段耗时
func (c *Collector) RecordPhase(phase string, duration time.Duration) {
	c.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordPhaseFailure 记录阶段失败
func (c *Collector) RecordPhaseFailure(phase string) {
	c.phaseFailures.WithLabelValues(phase).Inc()
}

// RecordFallback 记录一次回退执行
func (c *Collector) RecordFallback(reason string) {
	c.fallbackTotal.WithLabelValues(reason).Inc()
}

// RecordEmergency 记录一次应急降级
func (c *Collector) RecordEmergency() {
	c.emergencyTotal.Inc()
}

// RecordCache 记录缓存结果
func (c *Collector) RecordCache(hit bool) {
	if hit {
		c.cacheHits.Inc()
	} else {
		c.cacheMisses.Inc()
	}
}

// RecordRateLimited 记录限流拒绝
func (c *Collector) RecordRateLimited() {
	c.rateLimitRejected.Inc()
}

// SetActiveWorkflows 更新在途工作流数
func (c *Collector) SetActiveWorkflows(n int) {
	c.activeWorkflows.Set(float64(n))
}
