package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWith(reg, reg, "test", zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector, _ := newTestCollector(t)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.runsTotal)
	assert.NotNil(t, collector.nodeExecutionsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.toolCallsTotal)
	assert.NotNil(t, collector.cacheHits)
}

func TestCollector_RecordRun(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordRun("single_run", "success", 200*time.Millisecond)
	collector.RecordRun("single_run", "success", 100*time.Millisecond)
	collector.RecordRun("single_run", "error", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.runsTotal.WithLabelValues("single_run", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.runsTotal.WithLabelValues("single_run", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.runDuration))
}

func TestCollector_RecordNode(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordNode("s", "call_llm", "success", 10*time.Millisecond)
	collector.RecordNode("s", "execute_tool", "error", time.Millisecond)
	collector.RecordDeadEnd("s", "execute_tool")

	assert.Equal(t, 2, testutil.CollectAndCount(collector.nodeExecutionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.deadEndsTotal.WithLabelValues("s", "execute_tool")))
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordLLMRequest("openai/gpt-4o", "tools", "success", time.Second, 0, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai/gpt-4o", "tools", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmResponses.WithLabelValues("openai/gpt-4o", "tool_call")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.llmResponses.WithLabelValues("openai/gpt-4o", "text")))
}

func TestCollector_RecordTools(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordToolCall("plus", "success", time.Millisecond)
	collector.RecordToolCall("divide", "error", time.Millisecond)
	collector.RecordToolDispatchError("minus")

	assert.Equal(t, 2, testutil.CollectAndCount(collector.toolCallsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.toolDispatchError.WithLabelValues("minus")))
}

func TestCollector_RecordCache(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordCacheHit("local")
	collector.RecordCacheHit("local")
	collector.RecordCacheMiss("redis")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("redis")))
}

func TestCollector_Handler(t *testing.T) {
	collector, _ := newTestCollector(t)
	collector.RecordRun("single_run", "success", time.Second)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `test_runs_total{status="success",strategy="single_run"} 1`), string(body))
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollectorWith(reg, reg, "dup", nil)
	assert.Panics(t, func() { NewCollectorWith(reg, reg, "dup", nil) })
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "error", Status(errors.New("x")))
}
