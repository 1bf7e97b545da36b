// Package memory gives an agent long-term facts that outlive a single run.
//
// 运行开始时，Subject 下已记住的事实以一条 system 消息注入 prompt；
// 运行结束时，Extract 从最终 prompt 与结果中提取新事实写回 Store。
// 读写失败只记录日志，不会让运行失败。
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/types"
)

// Fact is one remembered key/value pair of a subject.
type Fact struct {
	Subject   string    `json:"subject"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists facts. Put upserts by (Subject, Key); Get returns the
// facts of subject ordered by key.
type Store interface {
	Get(ctx context.Context, subject string) ([]Fact, error)
	Put(ctx context.Context, facts ...Fact) error
}

// ExtractFunc derives facts to save from the final prompt and the run result.
type ExtractFunc func(history []types.Message, result any) []Fact

// Config configures the memory feature.
type Config struct {
	// Store is required.
	Store Store
	// Subject keys the facts. Defaults to the agent id.
	Subject string
	// Extract is optional; without it the feature only loads.
	Extract ExtractFunc
	// Header prefixes the injected system message.
	Header string

	now func() time.Time
}

// State is the per-run memory state.
type State struct {
	cfg *Config

	mu      sync.Mutex
	ctx     *agent.Context
	subject string
	loaded  []Fact
	saved   int
}

// Loaded returns the facts injected at the start of the run.
func (s *State) Loaded() []Fact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Fact(nil), s.loaded...)
}

// Saved returns how many facts were written at the end of the run.
func (s *State) Saved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Key identifies the feature.
var Key = agent.NewFeatureKey[State]("memory")

type feature struct{}

// Feature is the installable memory feature.
var Feature agent.Feature[Config, State] = feature{}

func (feature) Key() agent.FeatureKey[State] { return Key }

func (feature) NewConfig() *Config {
	return &Config{Header: "Facts remembered from earlier runs:", now: time.Now}
}

func (feature) NewState(cfg *Config) (*State, error) {
	if cfg.Store == nil {
		return nil, errors.New("memory feature needs a store")
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &State{cfg: cfg}, nil
}

// Render formats facts as the injected system message content.
func Render(header string, facts []Fact) string {
	var b strings.Builder
	b.WriteString(header)
	for _, f := range facts {
		fmt.Fprintf(&b, "\n- %s: %s", f.Key, f.Value)
	}
	return b.String()
}

func (feature) Install(_ *Config, ic *agent.Interceptor[State]) {
	ic.OnStrategyStarted(func(ctx context.Context, s *State, e *agent.StrategyStartedEvent) error {
		subject := s.cfg.Subject
		if subject == "" {
			subject = e.AgentID
		}
		s.mu.Lock()
		s.ctx, s.subject = e.Context, subject
		s.mu.Unlock()

		facts, err := s.cfg.Store.Get(ctx, subject)
		if err != nil {
			return fmt.Errorf("load facts of %s: %w", subject, err)
		}
		if len(facts) == 0 {
			return nil
		}
		s.mu.Lock()
		s.loaded = facts
		s.mu.Unlock()
		e.Context.Logger().Debug("memory facts loaded",
			zap.String("subject", subject), zap.Int("facts", len(facts)))
		return e.Context.LLM().WriteSession(ctx, func(ws *agent.WriteSession) error {
			ws.AppendPrompt(types.NewSystemMessage(Render(s.cfg.Header, facts)))
			return nil
		})
	})

	ic.OnStrategyFinished(func(ctx context.Context, s *State, e *agent.StrategyFinishedEvent) error {
		if s.cfg.Extract == nil {
			return nil
		}
		s.mu.Lock()
		ac, subject := s.ctx, s.subject
		s.mu.Unlock()
		if ac == nil {
			return nil
		}

		var history []types.Message
		if err := ac.LLM().ReadSession(ctx, func(rs *agent.ReadSession) error {
			history = rs.Prompt().Messages
			return nil
		}); err != nil {
			return err
		}
		facts := s.cfg.Extract(history, e.Result)
		if len(facts) == 0 {
			return nil
		}
		now := s.cfg.now()
		for i := range facts {
			if facts[i].Subject == "" {
				facts[i].Subject = subject
			}
			if facts[i].UpdatedAt.IsZero() {
				facts[i].UpdatedAt = now
			}
		}
		if err := s.cfg.Store.Put(ctx, facts...); err != nil {
			return fmt.Errorf("save facts of %s: %w", subject, err)
		}
		s.mu.Lock()
		s.saved += len(facts)
		s.mu.Unlock()
		return nil
	})
}

// LastExchange remembers the last user question and the run result.
func LastExchange(history []types.Message, result any) []Fact {
	var facts []Fact
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == types.RoleUser {
			facts = append(facts, Fact{Key: "last_question", Value: history[i].Content})
			break
		}
	}
	if result != nil {
		facts = append(facts, Fact{Key: "last_answer", Value: fmt.Sprint(result)})
	}
	return facts
}

func sortFacts(facts []Fact) {
	sort.Slice(facts, func(i, j int) bool { return facts[i].Key < facts[j].Key })
}
