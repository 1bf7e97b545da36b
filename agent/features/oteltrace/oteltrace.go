// Package oteltrace reports agent runs as OpenTelemetry spans.
//
// 一次运行对应一个根 span，每个节点执行是其子 span，模型调用与工具批次
// 挂在所属节点的 span 下。
package oteltrace

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BaSui01/agentgraph/agent"
)

const instrumentationName = "github.com/BaSui01/agentgraph/agent/features/oteltrace"

// 属性名
const (
	AttrRunID     = attribute.Key("agentgraph.run.id")
	AttrAgentID   = attribute.Key("agentgraph.agent.id")
	AttrStrategy  = attribute.Key("agentgraph.strategy")
	AttrNode      = attribute.Key("agentgraph.node")
	AttrDeadEnd   = attribute.Key("agentgraph.node.dead_end")
	AttrModel     = attribute.Key("gen_ai.request.model")
	AttrSystem    = attribute.Key("gen_ai.system")
	AttrToolCount = attribute.Key("agentgraph.llm.tools")
	AttrResponses = attribute.Key("agentgraph.llm.responses")
	AttrToolName  = attribute.Key("agentgraph.tool.name")
	AttrToolCalls = attribute.Key("agentgraph.tool.calls")
)

// Config configures the feature.
type Config struct {
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
	// RecordContent attaches prompts, outputs and tool results as span
	// events. Off by default since they may carry user data.
	RecordContent bool
}

type nodeKey struct {
	ac   *agent.Context
	node string
}

type openSpan struct {
	ctx  context.Context
	span trace.Span
}

// State holds the open spans of one run.
type State struct {
	tracer  trace.Tracer
	content bool

	mu    sync.Mutex
	run   openSpan
	nodes map[nodeKey]openSpan
	// 模型调用与工具批次按节点名排队配对
	llm   map[string][]trace.Span
	tools map[string][]trace.Span
}

// parent returns the context of an open span of node, or the run context.
func (s *State) parent(node string) context.Context {
	for k, o := range s.nodes {
		if k.node == node {
			return o.ctx
		}
	}
	if s.run.ctx != nil {
		return s.run.ctx
	}
	return context.Background()
}

func (s *State) start(queue map[string][]trace.Span, node, name string, attrs ...attribute.KeyValue) trace.Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, span := s.tracer.Start(s.parent(node), name, trace.WithAttributes(attrs...))
	queue[node] = append(queue[node], span)
	return span
}

func (s *State) pop(queue map[string][]trace.Span, node string) trace.Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := queue[node]
	if len(q) == 0 {
		return nil
	}
	queue[node] = q[1:]
	return q[0]
}

// endAll closes spans a cancelled run left open, then the run span.
func (s *State) endAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, o := range s.nodes {
		o.span.End()
		delete(s.nodes, k)
	}
	for _, q := range []map[string][]trace.Span{s.llm, s.tools} {
		for node, spans := range q {
			for _, span := range spans {
				span.End()
			}
			delete(q, node)
		}
	}
	if s.run.span == nil {
		return
	}
	fail(s.run.span, err)
	s.run.span.End()
	s.run = openSpan{}
}

func fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

const maxValueLen = 1024

func describe(v any) string {
	s := fmt.Sprint(v)
	if len(s) > maxValueLen {
		return s[:maxValueLen] + "..."
	}
	return s
}

// Key identifies the feature.
var Key = agent.NewFeatureKey[State]("oteltrace")

type feature struct{}

// Feature is the installable OpenTelemetry feature.
var Feature agent.Feature[Config, State] = feature{}

func (feature) Key() agent.FeatureKey[State] { return Key }

func (feature) NewConfig() *Config { return &Config{} }

func (feature) NewState(cfg *Config) (*State, error) {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	return &State{
		tracer:  tracer,
		content: cfg.RecordContent,
		nodes:   make(map[nodeKey]openSpan),
		llm:     make(map[string][]trace.Span),
		tools:   make(map[string][]trace.Span),
	}, nil
}

func (feature) Install(_ *Config, ic *agent.Interceptor[State]) {
	ic.OnAgentCreated(func(ctx context.Context, s *State, e *agent.AgentCreatedEvent) error {
		ctx, span := s.tracer.Start(ctx, "agent.run",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				AttrRunID.String(e.RunID),
				AttrAgentID.String(e.AgentID),
				AttrStrategy.String(e.Strategy),
			))
		s.mu.Lock()
		s.run = openSpan{ctx: ctx, span: span}
		s.mu.Unlock()
		return nil
	})
	ic.OnAgentFinished(func(_ context.Context, s *State, _ *agent.AgentFinishedEvent) error {
		s.endAll(nil)
		return nil
	})
	ic.OnAgentRunError(func(_ context.Context, s *State, e *agent.AgentRunErrorEvent) error {
		s.endAll(e.Err)
		return nil
	})

	ic.OnBeforeNode(func(_ context.Context, s *State, e *agent.BeforeNodeEvent) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		parent := s.run.ctx
		if parent == nil {
			parent = context.Background()
		}
		ctx, span := s.tracer.Start(parent, "node "+e.Node, trace.WithAttributes(AttrNode.String(e.Node)))
		if s.content {
			span.AddEvent("input", trace.WithAttributes(attribute.String("value", describe(e.Input))))
		}
		s.nodes[nodeKey{e.Context, e.Node}] = openSpan{ctx: ctx, span: span}
		return nil
	})
	endNode := func(s *State, ac *agent.Context, node string, output any, err error) {
		s.mu.Lock()
		k := nodeKey{ac, node}
		o, ok := s.nodes[k]
		delete(s.nodes, k)
		s.mu.Unlock()
		if !ok {
			return
		}
		if s.content && err == nil {
			o.span.AddEvent("output", trace.WithAttributes(attribute.String("value", describe(output))))
		}
		fail(o.span, err)
		o.span.End()
	}
	ic.OnAfterNode(func(_ context.Context, s *State, e *agent.AfterNodeEvent) error {
		endNode(s, e.Context, e.Node, e.Output, nil)
		return nil
	})
	ic.OnNodeError(func(_ context.Context, s *State, e *agent.NodeErrorEvent) (agent.Recovery, error) {
		if e.DeadEnd {
			s.mu.Lock()
			span := s.run.span
			s.mu.Unlock()
			if span != nil {
				span.AddEvent("dead_end", trace.WithAttributes(AttrNode.String(e.Node), AttrDeadEnd.Bool(true)))
			}
			return agent.Recovery{}, nil
		}
		endNode(s, e.Context, e.Node, nil, e.Err)
		return agent.Recovery{}, nil
	})

	before := func(_ context.Context, s *State, e *agent.BeforeLLMCallEvent) error {
		span := s.start(s.llm, e.Node, "llm "+e.Model.ID,
			AttrNode.String(e.Node),
			AttrSystem.String(e.Model.Provider),
			AttrModel.String(e.Model.ID),
			AttrToolCount.Int(len(e.Tools)),
		)
		if s.content {
			for _, m := range e.Prompt.Messages {
				span.AddEvent("prompt", trace.WithAttributes(
					attribute.String("role", string(m.Role)),
					attribute.String("content", m.Content)))
			}
		}
		return nil
	}
	after := func(_ context.Context, s *State, e *agent.AfterLLMCallEvent) error {
		span := s.pop(s.llm, e.Node)
		if span == nil {
			return nil
		}
		span.SetAttributes(AttrResponses.Int(len(e.Responses)))
		if s.content {
			for _, m := range e.Responses {
				span.AddEvent("response", trace.WithAttributes(
					attribute.String("role", string(m.Role)),
					attribute.String("content", m.Content)))
			}
		}
		fail(span, e.Err)
		span.End()
		return nil
	}
	ic.OnBeforeLLMCall(before)
	ic.OnBeforeLLMCallWithTools(before)
	ic.OnAfterLLMCall(after)
	ic.OnAfterLLMCallWithTools(after)

	ic.OnBeforeToolCalls(func(_ context.Context, s *State, e *agent.BeforeToolCallsEvent) error {
		names := make([]string, len(e.Calls))
		for i, c := range e.Calls {
			names[i] = c.Name
		}
		s.start(s.tools, e.Node, "tools "+e.Node,
			AttrNode.String(e.Node),
			AttrToolCalls.StringSlice(names),
		)
		return nil
	})
	ic.OnAfterToolCalls(func(_ context.Context, s *State, e *agent.AfterToolCallsEvent) error {
		span := s.pop(s.tools, e.Node)
		if span == nil {
			return nil
		}
		failed := 0
		for _, r := range e.Results {
			attrs := []attribute.KeyValue{
				AttrToolName.String(r.Name),
				attribute.Int64("duration_ms", r.Duration.Milliseconds()),
			}
			if r.Error != "" {
				failed++
				attrs = append(attrs, attribute.String("error", r.Error))
			} else if s.content {
				attrs = append(attrs, attribute.String("output", string(r.Output)))
			}
			span.AddEvent("tool_result", trace.WithAttributes(attrs...))
		}
		if failed > 0 {
			span.SetStatus(codes.Error, "tool calls failed")
		}
		span.End()
		return nil
	})
	ic.OnToolDispatchError(func(_ context.Context, s *State, e *agent.ToolDispatchErrorEvent) (agent.Recovery, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if q := s.tools[e.Node]; len(q) > 0 {
			q[0].AddEvent("dispatch_error", trace.WithAttributes(
				AttrToolName.String(e.Call.Name),
				attribute.String("error", e.Err.Error())))
		}
		return agent.Recovery{}, nil
	})
}
