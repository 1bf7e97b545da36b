package agent

import (
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

// EventType names a pipeline lifecycle event.
type EventType string

const (
	EventAgentCreated           EventType = "agent_created"
	EventStrategyStarted        EventType = "strategy_started"
	EventStrategyFinished       EventType = "strategy_finished"
	EventAgentFinished          EventType = "agent_finished"
	EventAgentRunError          EventType = "agent_run_error"
	EventBeforeLLMCall          EventType = "before_llm_call"
	EventAfterLLMCall           EventType = "after_llm_call"
	EventBeforeLLMCallWithTools EventType = "before_llm_call_with_tools"
	EventAfterLLMCallWithTools  EventType = "after_llm_call_with_tools"
	EventBeforeToolCalls        EventType = "before_tool_calls"
	EventAfterToolCalls         EventType = "after_tool_calls"
	EventToolDispatchError      EventType = "tool_dispatch_error"
	EventBeforeNode             EventType = "before_node"
	EventAfterNode              EventType = "after_node"
	EventNodeError              EventType = "node_error"
)

// RunInfo identifies the run an event belongs to.
type RunInfo struct {
	RunID   string
	AgentID string
}

type AgentCreatedEvent struct {
	RunInfo
	Strategy string
}

type StrategyStartedEvent struct {
	RunInfo
	Strategy string
	Context  *Context
}

type StrategyFinishedEvent struct {
	RunInfo
	Strategy string
	Result   any
}

type AgentFinishedEvent struct {
	RunInfo
	Strategy string
	Result   any
}

type AgentRunErrorEvent struct {
	RunInfo
	Strategy string
	Err      error
}

// BeforeLLMCallEvent is delivered before both plain and tool-enabled model
// calls. Tools is empty for plain calls.
type BeforeLLMCallEvent struct {
	RunInfo
	Node   string
	Prompt types.Prompt
	Model  llm.Model
	Tools  []tools.Descriptor
}

// AfterLLMCallEvent carries the produced responses. For multiple choices the
// candidates are flattened in order.
type AfterLLMCallEvent struct {
	RunInfo
	Node      string
	Prompt    types.Prompt
	Model     llm.Model
	Tools     []tools.Descriptor
	Responses []types.Message
	Err       error
}

type BeforeToolCallsEvent struct {
	RunInfo
	Node  string
	Calls []types.ToolCall
}

type AfterToolCallsEvent struct {
	RunInfo
	Node    string
	Calls   []types.ToolCall
	Results []tools.Result
}

// ToolDispatchErrorEvent reports a call that could not be dispatched:
// unknown tool or invalid arguments.
type ToolDispatchErrorEvent struct {
	RunInfo
	Node string
	Call types.ToolCall
	Err  error
}

type BeforeNodeEvent struct {
	RunInfo
	Node    string
	Input   any
	Context *Context
}

type AfterNodeEvent struct {
	RunInfo
	Node    string
	Input   any
	Output  any
	Context *Context
}

// NodeErrorEvent reports a failing node or, when DeadEnd is set, a node
// whose output matched no outgoing edge.
type NodeErrorEvent struct {
	RunInfo
	Node    string
	Input   any
	Output  any
	Err     error
	DeadEnd bool
	Context *Context
}

// Recovery is returned by recoverable handlers. When Handled is set, Output
// replaces the failed result: the node output for node failures, the
// strategy result for dead ends, the Tool-Result content for dispatch errors.
type Recovery struct {
	Handled bool
	Output  any
}

// Recovered is a handled Recovery.
func Recovered(output any) Recovery {
	return Recovery{Handled: true, Output: output}
}
