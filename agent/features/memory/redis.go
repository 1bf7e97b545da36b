package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the facts of each subject in one Redis hash.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the hash key prefix. Default "agentgraph:memory:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// WithTTL expires a subject's hash ttl after its last write.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, keyPrefix: "agentgraph:memory:"}
	for _, o := range opts {
		o(s)
	}
	return s
}

type redisFact struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *RedisStore) key(subject string) string { return s.keyPrefix + subject }

func (s *RedisStore) Get(ctx context.Context, subject string) ([]Fact, error) {
	fields, err := s.client.HGetAll(ctx, s.key(subject)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make([]Fact, 0, len(fields))
	for k, raw := range fields {
		var rf redisFact
		if err := json.Unmarshal([]byte(raw), &rf); err != nil {
			return nil, fmt.Errorf("decode fact %s/%s: %w", subject, k, err)
		}
		out = append(out, Fact{Subject: subject, Key: k, Value: rf.Value, UpdatedAt: rf.UpdatedAt})
	}
	sortFacts(out)
	return out, nil
}

func (s *RedisStore) Put(ctx context.Context, facts ...Fact) error {
	if len(facts) == 0 {
		return nil
	}
	bySubject := make(map[string][]any)
	for _, f := range facts {
		if f.Subject == "" || f.Key == "" {
			return fmt.Errorf("fact needs subject and key: %+v", f)
		}
		raw, err := json.Marshal(redisFact{Value: f.Value, UpdatedAt: f.UpdatedAt})
		if err != nil {
			return err
		}
		bySubject[f.Subject] = append(bySubject[f.Subject], f.Key, string(raw))
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for subject, values := range bySubject {
			pipe.HSet(ctx, s.key(subject), values...)
			if s.ttl > 0 {
				pipe.Expire(ctx, s.key(subject), s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}
