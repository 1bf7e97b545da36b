package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/types"
)

// ErrCacheMiss is returned by Store.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Entry is one cached model response. Exactly one of Text, Messages or
// Choices is set, matching the executor method that produced it.
type Entry struct {
	Text      string          `json:"text,omitempty"`
	Messages  []types.Message `json:"messages,omitempty"`
	Choices   []llm.Choice    `json:"choices,omitempty"`
	Model     string          `json:"model,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	HitCount  int             `json:"hit_count"`
}

// Store 缓存存储接口
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
}

// ============================================================
// LRU 本地缓存实现（使用双向链表实现 O(1) 操作）
// ============================================================

// LRUStore is a bounded in-process Store.
type LRUStore struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*lruNode
	head     *lruNode // 最近使用
	tail     *lruNode // 最久未使用
	now      func() time.Time
}

type lruNode struct {
	key       string
	entry     Entry
	expiresAt time.Time
	prev      *lruNode
	next      *lruNode
}

// NewLRUStore creates a store holding at most capacity entries for ttl.
// A non-positive ttl never expires entries.
func NewLRUStore(capacity int, ttl time.Duration) *LRUStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUStore{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruNode),
		now:      time.Now,
	}
}

func (c *LRUStore) Get(_ context.Context, key string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !node.expiresAt.IsZero() && c.now().After(node.expiresAt) {
		c.removeNode(node)
		delete(c.items, key)
		return nil, ErrCacheMiss
	}

	c.moveToHead(node)
	node.entry.HitCount++
	e := node.entry
	return &e, nil
}

func (c *LRUStore) Set(_ context.Context, key string, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if node, ok := c.items[key]; ok {
		node.entry = *entry
		node.expiresAt = expiresAt
		c.moveToHead(node)
		return nil
	}

	if len(c.items) >= c.capacity {
		c.evictTail()
	}

	node := &lruNode{key: key, entry: *entry, expiresAt: expiresAt}
	c.items[key] = node
	c.addToHead(node)
	return nil
}

// Delete removes key.
func (c *LRUStore) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if node, ok := c.items[key]; ok {
		c.removeNode(node)
		delete(c.items, key)
	}
}

// Len returns the number of entries, expired ones included.
func (c *LRUStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUStore) addToHead(node *lruNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *LRUStore) removeNode(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
}

func (c *LRUStore) moveToHead(node *lruNode) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToHead(node)
}

func (c *LRUStore) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.key)
	c.removeNode(c.tail)
}

// ============================================================
// Redis 缓存
// ============================================================

// RedisStore keeps entries as JSON strings with a TTL.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: "agentgraph:prompt_cache:"}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// ============================================================
// 多级缓存
// ============================================================

// MultiLevelStore checks local first, then remote, and backfills local on
// a remote hit. Either level may be nil.
type MultiLevelStore struct {
	local  Store
	remote Store
	logger *zap.Logger
}

// NewMultiLevelStore combines two stores.
func NewMultiLevelStore(local, remote Store, logger *zap.Logger) *MultiLevelStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiLevelStore{local: local, remote: remote, logger: logger.With(zap.String("component", "prompt_cache"))}
}

func (m *MultiLevelStore) Get(ctx context.Context, key string) (*Entry, error) {
	if m.local != nil {
		if e, err := m.local.Get(ctx, key); err == nil {
			m.logger.Debug("local cache hit", zap.String("key", key))
			return e, nil
		}
	}
	if m.remote == nil {
		return nil, ErrCacheMiss
	}
	e, err := m.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			m.logger.Warn("remote cache get failed", zap.Error(err))
		}
		return nil, ErrCacheMiss
	}
	if m.local != nil {
		_ = m.local.Set(ctx, key, e)
	}
	m.logger.Debug("remote cache hit", zap.String("key", key))
	return e, nil
}

func (m *MultiLevelStore) Set(ctx context.Context, key string, entry *Entry) error {
	if m.local != nil {
		if err := m.local.Set(ctx, key, entry); err != nil {
			return err
		}
	}
	if m.remote != nil {
		if err := m.remote.Set(ctx, key, entry); err != nil {
			m.logger.Warn("remote cache set failed", zap.Error(err))
			return err
		}
	}
	return nil
}
