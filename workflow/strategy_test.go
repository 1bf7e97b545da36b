package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/agent/features/eventhandler"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/testutil/mocks"
	"github.com/BaSui01/agentgraph/types"
)

// branchingStrategy routes the output of node "pick" to target_i when
// matches[i] holds; every target finishes with its own index.
func branchingStrategy(t *testing.T, matches []bool) *Strategy[int, int] {
	t.Helper()
	b := NewStrategy[int, int]("branching")
	pick := NodeDoNothing[int]("pick")
	b.AddEdge(To(From(b.Start()), pick))
	for i, m := range matches {
		target := NewNode(fmt.Sprintf("target_%d", i), func(context.Context, *agent.Context, int) (int, error) {
			return i, nil
		})
		b.AddEdge(
			To(From(pick).When(func(int) bool { return m }), target),
			To(From(target), b.Finish()),
		)
	}
	// keeps Finish reachable when nothing matches
	b.AddEdge(To(From(pick).When(func(int) bool { return false }), b.Finish()))
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

// Feature: agentgraph core, Property 1: Determinism of edge selection
func TestProperty_EdgeSelectionDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("the first matching edge in declaration order wins", prop.ForAll(
		func(matches []bool) bool {
			s := branchingStrategy(t, matches)
			got, err := s.Execute(context.Background(), newRunContext(t, nil, nil), 0)

			want := -1
			for i, m := range matches {
				if m {
					want = i
					break
				}
			}
			if want < 0 {
				return types.IsCode(err, types.ErrDeadEnd)
			}
			return err == nil && got == want
		},
		gen.SliceOfN(5, gen.Bool()),
	))

	properties.Property("reversing declaration order changes the choice", prop.ForAll(
		func(first, second int) bool {
			if first == second {
				return true
			}
			matches := make([]bool, 6)
			matches[first], matches[second] = true, true
			lo, hi := min(first, second), max(first, second)

			forward, err := branchingStrategy(t, matches).Execute(context.Background(), newRunContext(t, nil, nil), 0)
			if err != nil || forward != lo {
				return false
			}

			reversed := make([]bool, 6)
			for i := range matches {
				reversed[5-i] = matches[i]
			}
			back, err := branchingStrategy(t, reversed).Execute(context.Background(), newRunContext(t, nil, nil), 0)
			return err == nil && back == 5-hi
		},
		gen.IntRange(0, 5),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

func TestBuild_Validation(t *testing.T) {
	t.Run("finish unreachable", func(t *testing.T) {
		b := NewStrategy[string, string]("broken")
		a := NodeDoNothing[string]("a")
		b.AddEdge(To(From(b.Start()), a))
		_, err := b.Build()
		assert.True(t, types.IsCode(err, types.ErrGraphInvalid), "got %v", err)
		assert.Equal(t, types.PhaseBuild, types.PhaseOf(err))
	})

	t.Run("duplicate node names", func(t *testing.T) {
		b := NewStrategy[string, string]("dup")
		a1 := NodeDoNothing[string]("a")
		a2 := NodeDoNothing[string]("a")
		b.AddEdge(To(From(b.Start()), a1), To(From(a1), a2), To(From(a2), b.Finish()))
		_, err := b.Build()
		assert.True(t, types.IsCode(err, types.ErrDuplicateNode), "got %v", err)
	})

	t.Run("foreign start node", func(t *testing.T) {
		other := NewStrategy[string, string]("other")
		b := NewStrategy[string, string]("mine")
		b.AddEdge(To(From(other.Start()), b.Finish()), To(From(b.Start()), b.Finish()))
		_, err := b.Build()
		assert.True(t, types.IsCode(err, types.ErrDuplicateNode), "got %v", err)
	})

	t.Run("edge out of finish", func(t *testing.T) {
		b := NewStrategy[string, string]("loop")
		b.AddEdge(To(From(b.Start()), b.Finish()), To(From(b.Finish()), b.Finish()))
		_, err := b.Build()
		assert.True(t, types.IsCode(err, types.ErrGraphInvalid), "got %v", err)
	})

	t.Run("empty static scope", func(t *testing.T) {
		b := NewStrategy[string, string]("scoped", WithToolScope(tools.StaticScope()))
		b.AddEdge(To(From(b.Start()), b.Finish()))
		_, err := b.Build()
		assert.True(t, types.IsCode(err, types.ErrEmptyToolSet), "got %v", err)
	})

	t.Run("incomplete edge", func(t *testing.T) {
		b := NewStrategy[string, string]("zero")
		b.AddEdge(Edge{})
		_, err := b.Build()
		assert.True(t, types.IsCode(err, types.ErrGraphInvalid), "got %v", err)
	})

	t.Run("cycles are legal", func(t *testing.T) {
		b := NewStrategy[int, int]("cycle", WithDescription("counts to three"))
		inc := NewNode("inc", func(_ context.Context, _ *agent.Context, v int) (int, error) { return v + 1, nil })
		b.AddEdge(
			To(From(b.Start()), inc),
			To(From(inc).When(func(v int) bool { return v < 3 }), inc),
			To(From(inc), b.Finish()),
		)
		s, err := b.Build()
		require.NoError(t, err)
		assert.Equal(t, "counts to three", s.Description())
		assert.Equal(t, []string{StartNodeName, FinishNodeName, "inc"}, s.Nodes())
		assert.Equal(t, []string{"inc", FinishNodeName}, s.Successors("inc"))

		out, err := s.Execute(context.Background(), newRunContext(t, nil, nil), 0)
		require.NoError(t, err)
		assert.Equal(t, 3, out)
	})
}

// Feature: agentgraph core, Property 3: Graph build validation
func TestProperty_BuildMatchesReachability(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "nodes")
		// vertex 0 is start, n+1 is finish, 1..n are computed nodes
		adj := make([][]bool, n+2)
		for i := range adj {
			adj[i] = make([]bool, n+2)
			if i == n+1 {
				continue
			}
			for j := 1; j < n+2; j++ {
				adj[i][j] = rapid.Float64Range(0, 1).Draw(rt, fmt.Sprintf("e%d_%d", i, j)) < 0.3
			}
		}

		b := NewStrategy[int, int]("random")
		nodes := make([]*Node[int, int], n+2)
		nodes[0], nodes[n+1] = b.Start(), b.Finish()
		for i := 1; i <= n; i++ {
			nodes[i] = NodeDoNothing[int](fmt.Sprintf("n%d", i))
		}
		for i := range adj {
			for j, ok := range adj[i] {
				if ok {
					b.AddEdge(To(From(nodes[i]), nodes[j]))
				}
			}
		}

		seen := map[int]bool{0: true}
		queue := []int{0}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for j, ok := range adj[cur] {
				if ok && !seen[j] {
					seen[j] = true
					queue = append(queue, j)
				}
			}
		}

		_, err := b.Build()
		if seen[n+1] && err != nil {
			rt.Fatalf("finish reachable but build failed: %v", err)
		}
		if !seen[n+1] && !types.IsCode(err, types.ErrGraphInvalid) {
			rt.Fatalf("finish unreachable but build returned %v", err)
		}
	})
}

// Feature: agentgraph core, Property 8: Dead-end reporting
func TestStrategy_DeadEndNamesNode(t *testing.T) {
	b := NewStrategy[int, int]("dead")
	check := NodeDoNothing[int]("check_positive")
	b.AddEdge(
		To(From(b.Start()), check),
		To(From(check).When(func(v int) bool { return v > 0 }), b.Finish()),
	)
	s := b.MustBuild()

	out, err := runStrategy[int, int](t, s, mocks.NewScriptedExecutor(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, out)

	_, err = runStrategy[int, int](t, s, mocks.NewScriptedExecutor(), -1)
	require.Error(t, err)
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrDeadEnd, e.Code)
	assert.Equal(t, "check_positive", e.Node)
	assert.Equal(t, types.PhaseDeadEnd, types.PhaseOf(err))
	assert.Contains(t, err.Error(), "check_positive")
}

func TestStrategy_DeadEndRecovered(t *testing.T) {
	b := NewStrategy[int, int]("dead")
	check := NodeDoNothing[int]("check")
	b.AddEdge(
		To(From(b.Start()), check),
		To(From(check).When(func(v int) bool { return v > 0 }), b.Finish()),
	)
	var sawDeadEnd bool
	out, err := runStrategy[int, int](t, b.MustBuild(), nil, -1,
		agent.Use(eventhandler.Feature, func(c *eventhandler.Config) {
			c.OnNodeError = func(_ context.Context, e *agent.NodeErrorEvent) agent.Recovery {
				sawDeadEnd = e.DeadEnd
				return agent.Recovered(0)
			}
		}))
	require.NoError(t, err)
	assert.True(t, sawDeadEnd)
	assert.Equal(t, 0, out)
}

func TestStrategy_NodeFailure(t *testing.T) {
	boom := errors.New("boom")
	build := func() *Strategy[int, int] {
		b := NewStrategy[int, int]("failing")
		fail := NewNode("fail", func(context.Context, *agent.Context, int) (int, error) { return 0, boom })
		b.AddEdge(To(From(b.Start()), fail), To(From(fail), b.Finish()))
		return b.MustBuild()
	}

	t.Run("fatal by default", func(t *testing.T) {
		_, err := runStrategy[int, int](t, build(), nil, 1)
		e, ok := types.AsError(err)
		require.True(t, ok)
		assert.Equal(t, types.ErrNodeFailed, e.Code)
		assert.Equal(t, "fail", e.Node)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("recovered output continues", func(t *testing.T) {
		out, err := runStrategy[int, int](t, build(), nil, 1,
			agent.Use(eventhandler.Feature, func(c *eventhandler.Config) {
				c.OnNodeError = func(_ context.Context, e *agent.NodeErrorEvent) agent.Recovery {
					assert.False(t, e.DeadEnd)
					assert.Equal(t, 1, e.Input)
					return agent.Recovered(42)
				}
			}))
		require.NoError(t, err)
		assert.Equal(t, 42, out)
	})

	t.Run("recovered output of the wrong type", func(t *testing.T) {
		_, err := runStrategy[int, int](t, build(), nil, 1,
			agent.Use(eventhandler.Feature, func(c *eventhandler.Config) {
				c.OnNodeError = func(context.Context, *agent.NodeErrorEvent) agent.Recovery {
					return agent.Recovered("forty-two")
				}
			}))
		assert.True(t, types.IsCode(err, types.ErrTypeMismatch), "got %v", err)
	})
}

func TestStrategy_NodeEvents(t *testing.T) {
	var tr trail
	var after []any
	b := NewStrategy[int, int]("events")
	inc := NewNode("inc", func(_ context.Context, _ *agent.Context, v int) (int, error) { return v + 1, nil })
	b.AddEdge(To(From(b.Start()), inc), To(From(inc), b.Finish()))

	out, err := runStrategy[int, int](t, b.MustBuild(), nil, 1,
		agent.Use(eventhandler.Feature, func(c *eventhandler.Config) {
			tr.configure(c)
			c.OnAfterNode = func(_ context.Context, e *agent.AfterNodeEvent) {
				after = append(after, e.Output)
			}
		}))
	require.NoError(t, err)
	assert.Equal(t, 2, out)
	assert.Equal(t, []string{StartNodeName, "inc", FinishNodeName}, tr.list())
	assert.Equal(t, []any{1, 2, 2}, after)
}

func TestStrategy_NodeNameInContext(t *testing.T) {
	b := NewStrategy[string, string]("ctx")
	var node, stage string
	probe := NewNode("probe", func(ctx context.Context, _ *agent.Context, in string) (string, error) {
		node, _ = types.NodeName(ctx)
		stage, _ = types.StageName(ctx)
		return in, nil
	})
	b.AddEdge(To(From(b.Start()), probe), To(From(probe), b.Finish()))
	_, err := b.MustBuild().Execute(context.Background(), newRunContext(t, nil, nil), "x")
	require.NoError(t, err)
	assert.Equal(t, "probe", node)
	assert.Equal(t, "test", stage)
}

func TestStrategy_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewStrategy[int, int]("cancel")
	stop := NewNode("stop", func(_ context.Context, _ *agent.Context, v int) (int, error) {
		cancel()
		return v, nil
	})
	never := NewNode("never", func(context.Context, *agent.Context, int) (int, error) {
		t.Fatal("node after cancellation ran")
		return 0, nil
	})
	b.AddEdge(To(From(b.Start()), stop), To(From(stop), never), To(From(never), b.Finish()))

	_, err := b.MustBuild().Execute(ctx, newRunContext(t, nil, nil), 1)
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrCancelled, e.Code)
	assert.Equal(t, "never", e.Node)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStrategy_StaticScopeValidation(t *testing.T) {
	b := NewStrategy[string, string]("scoped", WithToolScope(tools.StaticScope("plus", "minus")))
	b.AddEdge(To(From(b.Start()), b.Finish()))
	s := b.MustBuild()

	assert.True(t, types.IsCode(s.ValidateTools(mocks.CalculatorRegistry()), types.ErrToolScopeInvalid))

	exec := mocks.NewScriptedExecutor()
	_, err := runStrategy[string, string](t, s, exec, "x")
	assert.True(t, types.IsCode(err, types.ErrToolScopeInvalid), "got %v", err)
	assert.Zero(t, exec.CallCount())
}

func TestMustBuild_Panics(t *testing.T) {
	assert.Panics(t, func() { NewStrategy[int, int]("empty").MustBuild() })
}
