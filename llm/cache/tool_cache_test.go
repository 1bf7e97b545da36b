package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/testutil/mocks"
)

func TestToolResultCache_KeyIgnoresArgumentOrder(t *testing.T) {
	c := NewToolResultCache(DefaultToolCacheConfig(), nil)
	c.Set("plus", json.RawMessage(`{"a":1,"b":2}`), json.RawMessage(`3`))

	out, ok := c.Get("plus", json.RawMessage(`{"b":2, "a":1}`))
	require.True(t, ok)
	assert.JSONEq(t, `3`, string(out))

	_, ok = c.Get("plus", json.RawMessage(`{"a":1,"b":3}`))
	assert.False(t, ok)
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1, Size: 1}, c.Stats())
}

func TestToolResultCache_TTLAndOverrides(t *testing.T) {
	cfg := DefaultToolCacheConfig()
	cfg.DefaultTTL = time.Minute
	cfg.ToolTTLOverrides["slow"] = time.Hour
	c := NewToolResultCache(cfg, nil)
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }

	args := json.RawMessage(`{}`)
	c.Set("fast", args, json.RawMessage(`1`))
	c.Set("slow", args, json.RawMessage(`2`))

	now = now.Add(10 * time.Minute)
	_, ok := c.Get("fast", args)
	assert.False(t, ok)
	_, ok = c.Get("slow", args)
	assert.True(t, ok)
}

func TestToolResultCache_ExcludedAndEviction(t *testing.T) {
	cfg := DefaultToolCacheConfig()
	cfg.MaxEntries = 2
	cfg.ExcludedTools = []string{"clock"}
	c := NewToolResultCache(cfg, nil)
	tick := time.Unix(0, 0)
	c.now = func() time.Time { tick = tick.Add(time.Second); return tick }

	c.Set("clock", nil, json.RawMessage(`"now"`))
	_, ok := c.Get("clock", nil)
	assert.False(t, ok)

	c.Set("a", nil, json.RawMessage(`1`))
	c.Set("b", nil, json.RawMessage(`2`))
	c.Set("c", nil, json.RawMessage(`3`))
	_, ok = c.Get("a", nil)
	assert.False(t, ok, "oldest entry evicted")
	assert.Equal(t, int64(1), c.Stats().Evictions)

	c.InvalidateTool("b")
	_, ok = c.Get("b", nil)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Stats().Size)
}

type countingRecorder struct{ hits, misses atomic.Int32 }

func (r *countingRecorder) RecordCacheHit(string)  { r.hits.Add(1) }
func (r *countingRecorder) RecordCacheMiss(string) { r.misses.Add(1) }

func TestCachedTool(t *testing.T) {
	var calls atomic.Int32
	echo := tools.NewTool(tools.Descriptor{Name: "echo"}, func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		if calls.Add(1) == 1 && string(args) == `{"fail":true}` {
			return nil, errors.New("flaky")
		}
		return args, nil
	})
	rec := &countingRecorder{}
	c := NewToolResultCache(DefaultToolCacheConfig(), nil)
	wrapped := CachedTool(echo, c, rec)
	assert.Equal(t, "echo", wrapped.Descriptor().Name)

	ctx := context.Background()
	_, err := wrapped.Execute(ctx, json.RawMessage(`{"fail":true}`))
	require.Error(t, err)
	_, err = wrapped.Execute(ctx, json.RawMessage(`{"fail":true}`))
	require.NoError(t, err, "failures are not cached")

	for range 3 {
		out, err := wrapped.Execute(ctx, json.RawMessage(`{"x":1}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"x":1}`, string(out))
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), rec.hits.Load())
	assert.Equal(t, int32(3), rec.misses.Load())
}

func TestCachedRegistry(t *testing.T) {
	a := mocks.NewMockTool("a").WithResult(1)
	broken := mocks.NewMockTool("broken").WithError(errors.New("down"))
	reg := tools.MustRegistry(a, broken)
	wrapped, err := CachedRegistry(reg, NewToolResultCache(DefaultToolCacheConfig(), nil), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "broken"}, wrapped.Names())

	ctx := context.Background()
	cachedA, _ := wrapped.Get("a")
	cachedBroken, _ := wrapped.Get("broken")
	for range 2 {
		out, err := cachedA.Execute(ctx, json.RawMessage(`{}`))
		require.NoError(t, err)
		assert.JSONEq(t, `1`, string(out))
		_, err = cachedBroken.Execute(ctx, json.RawMessage(`{}`))
		require.Error(t, err)
	}
	assert.Equal(t, 1, a.GetCallCount(), "second call served from cache")
	assert.Equal(t, 2, broken.GetCallCount(), "errors are not cached")
	assert.JSONEq(t, `{}`, string(broken.GetCalls()[1].Args))

	empty, err := CachedRegistry(tools.EmptyRegistry(), NewToolResultCache(DefaultToolCacheConfig(), nil), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}
