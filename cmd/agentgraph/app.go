package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/agent/features/iterlimit"
	"github.com/BaSui01/agentgraph/agent/features/memory"
	agentmetrics "github.com/BaSui01/agentgraph/agent/features/metrics"
	"github.com/BaSui01/agentgraph/agent/features/oteltrace"
	"github.com/BaSui01/agentgraph/agent/features/tracing"
	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/internal/database"
	"github.com/BaSui01/agentgraph/internal/metrics"
	"github.com/BaSui01/agentgraph/internal/server"
	"github.com/BaSui01/agentgraph/internal/telemetry"
	"github.com/BaSui01/agentgraph/internal/tlsutil"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/cache"
	"github.com/BaSui01/agentgraph/llm/middleware"
	"github.com/BaSui01/agentgraph/llm/providers"
	"github.com/BaSui01/agentgraph/llm/providers/openaicompat"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/workflow"
)

// appDeps 允许测试替换外部依赖，零值表示按配置构建
type appDeps struct {
	Provider   llm.Provider
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Redis      redis.UniversalClient
}

// app 持有一次进程生命周期内的全部组件
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	model    llm.Model
	executor llm.PromptExecutor
	registry *tools.Registry
	options  []agent.Option

	collector *metrics.Collector
	admin     *server.Manager
	closers   []func(context.Context) error

	probeMu sync.Mutex
	probes  []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, deps appDeps) (*app, error) {
	a := &app{cfg: cfg, logger: logger, options: []agent.Option{agent.WithLogger(logger)}}
	if err := a.init(ctx, deps); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, deps appDeps) error {
	cfg := a.cfg

	provider, preset, err := a.provider(deps)
	if err != nil {
		return err
	}
	a.model = llm.Model{Provider: provider.Name(), ID: cfg.Agent.Model}
	if a.model.ID == "" {
		a.model.ID = preset.DefaultModel
	}
	if !preset.MultipleChoices {
		a.model.Capabilities = []llm.Capability{llm.CapabilityTools, llm.CapabilityStreaming}
	}

	if cfg.Metrics.Enabled {
		if err := a.startMetrics(deps); err != nil {
			return err
		}
	}
	if err := a.initTelemetry(ctx); err != nil {
		return err
	}

	a.executor = a.buildExecutor(provider)
	rdb := deps.Redis
	a.registry = calculatorRegistry()

	if cfg.Cache.EnableLocal || cfg.Cache.EnableRedis {
		if cfg.Cache.EnableRedis && rdb == nil {
			rdb = a.redisClient()
		}
		if err := a.enableCache(rdb); err != nil {
			return err
		}
	}
	if cfg.Memory.Enabled {
		if cfg.Memory.Backend == "redis" && rdb == nil {
			rdb = a.redisClient()
		}
		if err := a.enableMemory(ctx, rdb); err != nil {
			return err
		}
	}
	if err := a.enableTracing(ctx); err != nil {
		return err
	}
	a.options = append(a.options, agent.Use(iterlimit.Feature, func(c *iterlimit.Config) {
		c.MaxNodeExecutions = cfg.Agent.MaxIterations
	}))
	return nil
}

// =============================================================================
// 🔌 Provider 与执行器
// =============================================================================

func (a *app) provider(deps appDeps) (llm.Provider, providers.Preset, error) {
	lc := a.cfg.LLM
	preset, err := providers.LookupPreset(lc.Provider)
	if err != nil {
		// 未知服务商只要给出 base_url 也可以使用
		if lc.BaseURL == "" {
			return nil, preset, err
		}
		preset = providers.Preset{Name: lc.Provider}
	}
	if deps.Provider != nil {
		return deps.Provider, preset, nil
	}

	pc := openaicompat.FromPreset(preset, lc.APIKey)
	if lc.BaseURL != "" {
		// base_url 已包含版本前缀，例如 https://host/v1
		pc.BaseURL = lc.BaseURL
		pc.EndpointPath = "/chat/completions"
	}
	pc.Timeout = lc.Timeout
	return openaicompat.New(pc, a.logger), preset, nil
}

func (a *app) buildExecutor(p llm.Provider) llm.PromptExecutor {
	lc := a.cfg.LLM
	if lc.MaxRetries > 0 {
		policy := llm.DefaultRetryPolicy()
		policy.MaxRetries = lc.MaxRetries
		p = providers.NewRetryableProvider(p, policy, a.logger)
	}

	exec := llm.NewProviderExecutor(a.logger, p).Use(
		llm.RecoveryMiddleware(func(v any) {
			a.logger.Error("provider panicked", zap.Any("panic", v))
		}),
		llm.LoggingMiddleware(a.logger),
		middleware.NewRewriterChain(
			middleware.NewEmptyToolsCleaner(),
			middleware.NewSystemMessageMerger(),
		).AsMiddleware(),
	)
	if lc.RateLimitRPS > 0 {
		burst := max(lc.RateLimitBurst, 1)
		exec.Use(llm.RateLimitMiddleware(rate.NewLimiter(rate.Limit(lc.RateLimitRPS), burst)))
	}
	if lc.Timeout > 0 {
		exec.Use(llm.TimeoutMiddleware(lc.Timeout))
	}
	return exec
}

// =============================================================================
// 📊 可观测性
// =============================================================================

func (a *app) startMetrics(deps appDeps) error {
	reg, gatherer := deps.Registerer, deps.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	}
	a.collector = metrics.NewCollectorWith(reg, gatherer, a.cfg.Metrics.Namespace, a.logger)
	a.options = append(a.options, agent.Use(agentmetrics.Feature, func(c *agentmetrics.Config) {
		c.Collector = a.collector
	}))

	if a.cfg.Metrics.ListenAddr == "" {
		return nil
	}
	sc := server.DefaultConfig()
	sc.Addr = a.cfg.Metrics.ListenAddr
	a.admin = server.NewManager(server.NewRouter(server.Routes{Metrics: a.collector.Handler(), Ready: a.ready}), sc, a.logger)
	if err := a.admin.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}
	a.closers = append(a.closers, a.admin.Shutdown)
	return nil
}

func (a *app) initTelemetry(ctx context.Context) error {
	if !a.cfg.Telemetry.Enabled {
		return nil
	}
	otel, err := telemetry.Init(ctx, a.cfg.Telemetry, a.logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, otel.Shutdown)
	a.options = append(a.options, agent.Use(oteltrace.Feature, func(c *oteltrace.Config) {
		c.Tracer = otel.Tracer()
	}))
	return nil
}

func (a *app) enableTracing(ctx context.Context) error {
	tc := a.cfg.Tracing
	var sinks []tracing.Sink
	if tc.Enabled {
		sinks = append(sinks, tracing.NewLogSink(a.logger))
	}
	if tc.File != "" {
		f, err := os.OpenFile(tc.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		ws := tracing.NewWriterSink(f)
		sinks = append(sinks, ws)
		a.closers = append(a.closers, func(context.Context) error { return ws.Close() })
	}
	if tc.RemoteURL != "" {
		rs, err := tracing.DialRemoteSink(ctx, tc.RemoteURL, tracing.RemoteOptions{Logger: a.logger})
		if err != nil {
			return fmt.Errorf("dial trace collector: %w", err)
		}
		sinks = append(sinks, rs)
		a.closers = append(a.closers, func(context.Context) error { return rs.Close() })
	}
	if len(sinks) == 0 {
		return nil
	}
	a.options = append(a.options, agent.Use(tracing.Feature, func(c *tracing.Config) {
		c.Sinks = sinks
		c.KeepSinksOpen = true
	}))
	return nil
}

// =============================================================================
// 💾 缓存与记忆
// =============================================================================

func (a *app) redisClient() redis.UniversalClient {
	rc := a.cfg.Redis
	client := redis.NewClient(&redis.Options{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		TLSConfig:    tlsutil.RedisTLSConfig(rc.TLS, rc.Addr),
	})
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	a.addProbe(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	return client
}

func (a *app) addProbe(p func(context.Context) error) {
	a.probeMu.Lock()
	a.probes = append(a.probes, p)
	a.probeMu.Unlock()
}

// ready 依次检查已启用的外部存储
func (a *app) ready(ctx context.Context) error {
	a.probeMu.Lock()
	probes := append([]func(context.Context) error(nil), a.probes...)
	a.probeMu.Unlock()
	for _, p := range probes {
		if err := p(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) enableCache(rdb redis.UniversalClient) error {
	cc := a.cfg.Cache
	var store cache.Store
	var local, remote cache.Store
	if cc.EnableLocal {
		local = cache.NewLRUStore(cc.LocalMaxSize, cc.LocalTTL)
	}
	if cc.EnableRedis {
		remote = cache.NewRedisStore(rdb, cc.RedisTTL)
	}
	switch {
	case local != nil && remote != nil:
		store = cache.NewMultiLevelStore(local, remote, a.logger)
	case local != nil:
		store = local
	default:
		store = remote
	}

	opts := []cache.Option{
		cache.WithKeyStrategy(cache.KeyStrategyByName(cc.KeyStrategy)),
		cache.WithLogger(a.logger),
		// 内置工具是纯函数，带工具的请求也可以安全复用
		cache.WithToolRequests(true),
	}
	var recorder cache.Recorder
	if a.collector != nil {
		recorder = a.collector
		opts = append(opts, cache.WithRecorder(a.collector))
	}
	a.executor = cache.NewCachedExecutor(a.executor, store, opts...)

	toolCache := cache.NewToolResultCache(cache.DefaultToolCacheConfig(), a.logger)
	reg, err := cache.CachedRegistry(a.registry, toolCache, recorder)
	if err != nil {
		return err
	}
	a.registry = reg
	return nil
}

func (a *app) enableMemory(ctx context.Context, rdb redis.UniversalClient) error {
	var store memory.Store
	switch a.cfg.Memory.Backend {
	case "redis":
		store = memory.NewRedisStore(rdb, memory.WithKeyPrefix(a.cfg.Agent.Name+":memory:"))
	case "sql":
		pool, err := database.Open(ctx, a.cfg.Database, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return pool.Close() })
		a.addProbe(pool.Ping)
		sqlStore, err := memory.NewSQLStore(ctx, pool.DB())
		if err != nil {
			return err
		}
		store = sqlStore
	default:
		store = memory.NewInMemoryStore()
	}

	subject := a.cfg.Memory.Subject
	if subject == "" {
		subject = a.cfg.Agent.Name
	}
	reg, err := a.registry.Merge(tools.MustRegistry(memory.RememberTool(store, subject)))
	if err != nil {
		return err
	}
	a.registry = reg
	a.options = append(a.options, agent.Use(memory.Feature, func(c *memory.Config) {
		c.Store = store
		c.Subject = subject
	}))
	return nil
}

// =============================================================================
// 🚀 运行
// =============================================================================

func (a *app) agentConfig() agent.Config {
	cfg := agent.NewConfig(a.cfg.Agent.SystemPrompt, a.model)
	cfg.ID = a.cfg.Agent.Name
	cfg.Prompt.Params.Temperature = float32(a.cfg.Agent.Temperature)
	cfg.Prompt.Params.NumberOfChoices = a.cfg.Agent.NumberOfChoices
	return cfg
}

// Ask 使用工具循环回答一个问题
func (a *app) Ask(ctx context.Context, question string) (string, error) {
	return agent.Run(ctx, workflow.SingleRunStrategy(), a.registry, question, a.executor, a.agentConfig(), a.options...)
}

// Stream 流式回答，增量写入 w
func (a *app) Stream(ctx context.Context, question string, w io.Writer) (string, error) {
	return agent.Run(ctx, streamingStrategy(w), tools.EmptyRegistry(), question, a.executor, a.agentConfig(), a.options...)
}

func streamingStrategy(w io.Writer) *workflow.Strategy[string, string] {
	b := workflow.NewStrategy[string, string]("streaming_chat", workflow.WithDescription("streams one reply"))
	reply := workflow.NodeLLMRequestStreaming("stream_reply", func(chunk llm.StreamChunk) {
		if chunk.Err == nil {
			_, _ = io.WriteString(w, chunk.Delta.Content)
		}
	})
	b.AddEdge(
		workflow.To(workflow.From(b.Start()), reply),
		workflow.To(workflow.OnAssistantMessage(workflow.From(reply)), b.Finish()),
	)
	return b.MustBuild()
}

// Close 按注册的逆序释放资源
func (a *app) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown incomplete", zap.Error(err))
	}
}
