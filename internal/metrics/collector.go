// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// 节点指标
	nodeExecutionsTotal *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec
	deadEndsTotal       *prometheus.CounterVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmResponses       *prometheus.CounterVec

	// 工具指标
	toolCallsTotal    *prometheus.CounterVec
	toolCallDuration  *prometheus.HistogramVec
	toolDispatchError *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewCollector registers the collectors on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, namespace, logger)
}

// NewCollectorWith 在指定的 Registerer 上注册指标
func NewCollectorWith(reg prometheus.Registerer, gatherer prometheus.Gatherer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		gatherer: gatherer,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of agent runs",
		},
		[]string{"strategy", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Agent run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"strategy"},
	)

	c.nodeExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of strategy node executions",
		},
		[]string{"strategy", "node", "status"},
	)

	c.nodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"strategy", "node"},
	)

	c.deadEndsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_ends_total",
			Help:      "Total number of nodes whose output matched no edge",
		},
		[]string{"strategy", "node"},
	)

	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"model", "kind", "status"}, // kind: plain, tools
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	c.llmResponses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_response_messages_total",
			Help:      "Total number of messages returned by the model",
		},
		[]string{"model", "type"}, // type: text, tool_call
	)

	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"tool", "status"},
	)

	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	c.toolDispatchError = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_dispatch_errors_total",
			Help:      "Total number of tool calls that could not be dispatched",
		},
		[]string{"tool"},
	)

	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎭 运行与节点
// =============================================================================

// RecordRun 记录一次 Agent 运行
func (c *Collector) RecordRun(strategy, status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(strategy, status).Inc()
	c.runDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordNode 记录一次节点执行
func (c *Collector) RecordNode(strategy, node, status string, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(strategy, node, status).Inc()
	c.nodeDuration.WithLabelValues(strategy, node).Observe(duration.Seconds())
}

// RecordDeadEnd 记录死路
func (c *Collector) RecordDeadEnd(strategy, node string) {
	c.deadEndsTotal.WithLabelValues(strategy, node).Inc()
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(model, kind, status string, duration time.Duration, textMessages, toolCallMessages int) {
	c.llmRequestsTotal.WithLabelValues(model, kind, status).Inc()
	c.llmRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	c.llmResponses.WithLabelValues(model, "text").Add(float64(textMessages))
	c.llmResponses.WithLabelValues(model, "tool_call").Add(float64(toolCallMessages))
}

// =============================================================================
// 🔧 工具指标记录
// =============================================================================

// RecordToolCall 记录工具调用
func (c *Collector) RecordToolCall(tool, status string, duration time.Duration) {
	c.toolCallsTotal.WithLabelValues(tool, status).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordToolDispatchError 记录无法派发的工具调用
func (c *Collector) RecordToolDispatchError(tool string) {
	c.toolDispatchError.WithLabelValues(tool).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// Handler serves the collected metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// Status 将错误归类为 label 值
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
