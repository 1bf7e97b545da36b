package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/llm/tools"
)

// ToolResultCache caches tool outputs by tool name and arguments.
type ToolResultCache struct {
	entries map[string]*toolCacheEntry
	mu      sync.RWMutex
	config  ToolCacheConfig
	logger  *zap.Logger
	stats   CacheStats
	now     func() time.Time
}

// ToolCacheConfig configures the tool result cache.
type ToolCacheConfig struct {
	MaxEntries       int                      `json:"max_entries"`
	DefaultTTL       time.Duration            `json:"default_ttl"`
	ToolTTLOverrides map[string]time.Duration `json:"tool_ttl_overrides"` // Per-tool TTL
	ExcludedTools    []string                 `json:"excluded_tools"`     // Tools to never cache
}

// DefaultToolCacheConfig returns sensible defaults.
func DefaultToolCacheConfig() ToolCacheConfig {
	return ToolCacheConfig{
		MaxEntries:       10000,
		DefaultTTL:       15 * time.Minute,
		ToolTTLOverrides: make(map[string]time.Duration),
	}
}

// CacheStats tracks cache performance.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

type toolCacheEntry struct {
	toolName  string
	output    json.RawMessage
	createdAt time.Time
	expiresAt time.Time
	hitCount  int
}

// NewToolResultCache creates a new tool result cache.
func NewToolResultCache(config ToolCacheConfig, logger *zap.Logger) *ToolResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultToolCacheConfig().MaxEntries
	}
	return &ToolResultCache{
		entries: make(map[string]*toolCacheEntry),
		config:  config,
		logger:  logger.With(zap.String("component", "tool_cache")),
		now:     time.Now,
	}
}

// Get returns the cached output of a call.
func (c *ToolResultCache) Get(toolName string, arguments json.RawMessage) (json.RawMessage, bool) {
	if c.isExcluded(toolName) {
		return nil, false
	}
	key := buildToolKey(toolName, arguments)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		c.stats.Size = len(c.entries)
		return nil, false
	}
	entry.hitCount++
	c.stats.Hits++
	c.logger.Debug("cache hit", zap.String("tool", toolName), zap.Int("hit_count", entry.hitCount))
	return entry.output, true
}

// Set stores the output of a successful call.
func (c *ToolResultCache) Set(toolName string, arguments, output json.RawMessage) {
	if c.isExcluded(toolName) {
		return
	}
	key := buildToolKey(toolName, arguments)
	ttl := c.getTTL(toolName)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.config.MaxEntries {
		c.evictOldest()
	}
	now := c.now()
	c.entries[key] = &toolCacheEntry{
		toolName:  toolName,
		output:    output,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	c.stats.Size = len(c.entries)
}

// InvalidateTool removes all cache entries for a tool.
func (c *ToolResultCache) InvalidateTool(toolName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if entry.toolName == toolName {
			delete(c.entries, key)
		}
	}
	c.stats.Size = len(c.entries)
}

// Stats returns cache statistics.
func (c *ToolResultCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// buildToolKey normalizes arguments so that key order does not matter.
func buildToolKey(toolName string, arguments json.RawMessage) string {
	var normalized any
	if err := json.Unmarshal(arguments, &normalized); err == nil {
		if sorted, err := json.Marshal(normalized); err == nil {
			arguments = sorted
		}
	}
	sum := sha256.Sum256([]byte(toolName + ":" + string(arguments)))
	return hex.EncodeToString(sum[:])
}

func (c *ToolResultCache) getTTL(toolName string) time.Duration {
	if ttl, ok := c.config.ToolTTLOverrides[toolName]; ok {
		return ttl
	}
	return c.config.DefaultTTL
}

func (c *ToolResultCache) isExcluded(toolName string) bool {
	return slices.Contains(c.config.ExcludedTools, toolName)
}

func (c *ToolResultCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}

// cachedTool serves repeated calls of a pure tool from a ToolResultCache.
// Failed calls are not cached.
type cachedTool struct {
	tool     tools.Tool
	cache    *ToolResultCache
	recorder Recorder
}

// CachedTool wraps tool. recorder may be nil.
func CachedTool(tool tools.Tool, cache *ToolResultCache, recorder Recorder) tools.Tool {
	return &cachedTool{tool: tool, cache: cache, recorder: recorder}
}

// CachedRegistry wraps every tool of reg.
func CachedRegistry(reg *tools.Registry, cache *ToolResultCache, recorder Recorder) (*tools.Registry, error) {
	if reg.Len() == 0 {
		return reg, nil
	}
	var wrapped []tools.Tool
	for _, name := range reg.Names() {
		t, _ := reg.Get(name)
		wrapped = append(wrapped, CachedTool(t, cache, recorder))
	}
	return tools.NewRegistry(wrapped...)
}

func (t *cachedTool) Descriptor() tools.Descriptor { return t.tool.Descriptor() }

func (t *cachedTool) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	name := t.tool.Descriptor().Name
	if out, ok := t.cache.Get(name, args); ok {
		if t.recorder != nil {
			t.recorder.RecordCacheHit("tool")
		}
		return out, nil
	}
	if t.recorder != nil {
		t.recorder.RecordCacheMiss("tool")
	}
	out, err := t.tool.Execute(ctx, args)
	if err != nil {
		return nil, err
	}
	t.cache.Set(name, args, out)
	return out, nil
}
