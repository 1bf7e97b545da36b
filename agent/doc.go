// Copyright 2024 AgentGraph Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent provides the run-time side of agentgraph: the per-run Context,
LLM sessions, tool dispatch, the feature pipeline and the AIAgent entry point.

# Overview

A strategy graph (see package workflow) is executed by an AIAgent. Every Run
creates a fresh Context and a fresh Pipeline:

	┌──────────────────────────────────────────────────────────────┐
	│                        AIAgent.Run                           │
	│   agent-created → strategy-started → … → agent-finished      │
	├──────────────────────────────────────────────────────────────┤
	│                        Strategy                              │
	│   before-node → node → after-node → edges (first match wins) │
	├───────────────────────────┬──────────────────────────────────┤
	│       LLM Session         │          Tool dispatch           │
	│  before/after LLM call    │  before/after tool-call batch    │
	├───────────────────────────┴──────────────────────────────────┤
	│                 llm.PromptExecutor / tools.Registry          │
	└──────────────────────────────────────────────────────────────┘

# Context

Context holds the active LLM state (prompt, tools, model), typed storage,
the pipeline and run metadata. Parallel branches receive a Fork; a reduce step
adopts exactly one branch context with Replace.

	key := agent.NewStorageKey[int]("attempts")
	key.Set(ac.Storage(), 3)
	n, ok := key.Get(ac.Storage())

# Sessions

The LLM state is only touched inside a session:

	err := ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
	    s.AppendPrompt(types.NewUserMessage(question))
	    _, err := s.RequestLLM()
	    return err
	})

Sessions lock the LLM state for their duration and must not be nested.

# Features

A Feature has a key, a typed configuration and a state owned by the pipeline.
Its Install method registers handlers on an Interceptor; every handler receives
the state by pointer:

	agent.Use(eventhandler.Feature, func(c *eventhandler.Config) {
	    c.OnToolCall = func(ctx context.Context, e *agent.BeforeToolCallsEvent) { … }
	})

Handlers of notification events (agent-created, strategy-started,
strategy-finished, agent-finished, agent-run-error) are safe: their errors are
logged and ignored. Handlers around model calls, tool batches and nodes abort
the run when they fail. OnNodeError and OnToolDispatchError may recover.
*/
package agent
