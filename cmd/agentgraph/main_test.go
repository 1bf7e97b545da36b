package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/testutil/mocks"
	"github.com/BaSui01/agentgraph/types"
)

// calculatorProvider 第一次请求 plus(2,3)，收到工具结果后回答
func calculatorProvider(calls *atomic.Int32) *mocks.MockProvider {
	return mocks.NewMockProvider().WithName("openai").WithCompletionFunc(
		func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			calls.Add(1)
			last := req.Messages[len(req.Messages)-1]
			msg := types.NewAssistantMessage("the answer is " + last.Content)
			if last.Role != types.RoleTool {
				msg = types.NewToolCallMessage(types.ToolCall{ID: "call_1", Name: "plus", Arguments: json.RawMessage(`{"a":2,"b":3}`)})
			}
			return &llm.ChatResponse{Model: req.Model, Choices: []llm.ChatChoice{{Message: msg}}}, nil
		})
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.MaxRetries = 0
	return cfg
}

func TestDispatch(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 0, dispatch([]string{"version"}, &out, &errOut))
	assert.Contains(t, out.String(), "AgentGraph dev")

	out.Reset()
	assert.Equal(t, 0, dispatch([]string{"tools"}, &out, &errOut))
	for _, name := range []string{"plus", "minus", "multiply", "divide"} {
		assert.Contains(t, out.String(), name)
	}

	assert.Equal(t, 1, dispatch(nil, &out, &errOut))
	assert.Equal(t, 1, dispatch([]string{"bogus"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "Unknown command: bogus")

	errOut.Reset()
	assert.Equal(t, 2, dispatch([]string{"run"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "missing question")
}

func TestCalculatorTools(t *testing.T) {
	reg := calculatorRegistry()
	tests := []struct {
		name string
		want string
	}{
		{"plus", "7"}, {"minus", "3"}, {"multiply", "10"}, {"divide", "2.5"},
	}
	for _, tt := range tests {
		tool, ok := reg.Get(tt.name)
		require.True(t, ok, tt.name)
		out, err := tool.Execute(context.Background(), json.RawMessage(`{"a":5,"b":2}`))
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(out), tt.name)
	}

	divide, _ := reg.Get("divide")
	_, err := divide.Execute(context.Background(), json.RawMessage(`{"a":1,"b":0}`))
	assert.ErrorIs(t, err, errDivideByZero)
}

func TestApp_Ask(t *testing.T) {
	var calls atomic.Int32
	a, err := newApp(context.Background(), testConfig(), zaptest.NewLogger(t), appDeps{Provider: calculatorProvider(&calls)})
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Equal(t, "openai/gpt-4o-mini", a.model.String())
	answer, err := a.Ask(context.Background(), "2+3?")
	require.NoError(t, err)
	assert.Equal(t, "the answer is 5", answer)
	assert.Equal(t, int32(2), calls.Load())
}

func TestApp_UnknownProviderNeedsBaseURL(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Provider = "acme"
	_, err := newApp(context.Background(), cfg, zaptest.NewLogger(t), appDeps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "acme"`)

	cfg.LLM.BaseURL = "https://llm.acme.test/v1"
	a, err := newApp(context.Background(), cfg, zaptest.NewLogger(t), appDeps{})
	require.NoError(t, err)
	defer a.Close(context.Background())
	assert.Equal(t, "acme", a.model.Provider)
	assert.False(t, a.model.Supports(llm.CapabilityMultipleChoices))
}

func TestApp_CacheAndMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	cfg.Cache.EnableLocal = true
	cfg.Cache.EnableRedis = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = "127.0.0.1:0"

	reg := prometheus.NewRegistry()
	var calls atomic.Int32
	a, err := newApp(context.Background(), cfg, zaptest.NewLogger(t), appDeps{
		Provider:   calculatorProvider(&calls),
		Registerer: reg,
		Gatherer:   reg,
		Redis:      rdb,
	})
	require.NoError(t, err)
	defer a.Close(context.Background())

	for range 2 {
		answer, err := a.Ask(context.Background(), "2+3?")
		require.NoError(t, err)
		assert.Equal(t, "the answer is 5", answer)
	}
	assert.Equal(t, int32(2), calls.Load(), "second run is served from the cache")
	assert.NotEmpty(t, mr.Keys())

	resp, err := http.Get("http://" + a.admin.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `agentgraph_runs_total{status="success",strategy="single_run"} 2`)
	assert.Contains(t, string(body), `agentgraph_cache_hits_total`)
}

func TestApp_SQLMemory(t *testing.T) {
	cfg := testConfig()
	cfg.Memory.Enabled = true
	cfg.Memory.Backend = "sql"
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "memory.db")

	var calls atomic.Int32
	a, err := newApp(context.Background(), cfg, zaptest.NewLogger(t), appDeps{Provider: calculatorProvider(&calls)})
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.True(t, a.registry.Has("remember"))
	assert.True(t, a.registry.Has("plus"))
	_, err = a.Ask(context.Background(), "2+3?")
	require.NoError(t, err)
}

func TestApp_TraceFile(t *testing.T) {
	cfg := testConfig()
	cfg.Tracing.File = filepath.Join(t.TempDir(), "trace.jsonl")

	var calls atomic.Int32
	a, err := newApp(context.Background(), cfg, zaptest.NewLogger(t), appDeps{Provider: calculatorProvider(&calls)})
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), "2+3?")
	require.NoError(t, err)
	a.Close(context.Background())

	data, err := os.ReadFile(cfg.Tracing.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"before_node"`)
	assert.Contains(t, string(data), `"node":"execute_tool"`)
}

func TestApp_Stream(t *testing.T) {
	provider := mocks.NewMockProvider().WithName("openai").WithStreamChunks([]string{"Hel", "lo"})
	a, err := newApp(context.Background(), testConfig(), zaptest.NewLogger(t), appDeps{Provider: provider})
	require.NoError(t, err)
	defer a.Close(context.Background())

	var out bytes.Buffer
	answer, err := a.Stream(context.Background(), "hi", &out)
	require.NoError(t, err)
	assert.Equal(t, "Hello", answer)
	assert.Equal(t, "Hello", out.String())
}

func TestInitLogger(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "nope", Format: "json"})
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel), "unknown level falls back to info")
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestApp_ReadyProbes(t *testing.T) {
	a := &app{}
	require.NoError(t, a.ready(context.Background()))

	var pinged atomic.Int32
	a.addProbe(func(context.Context) error { pinged.Add(1); return nil })
	a.addProbe(func(context.Context) error { return types.NewError(types.ErrNodeFailed, "redis down") })
	err := a.ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Equal(t, int32(1), pinged.Load())
}
