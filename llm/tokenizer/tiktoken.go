package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/agentgraph/types"
)

type encodingInfo struct {
	encoding  string
	maxTokens int
}

// OpenAI 系列模型到 tiktoken 编码与上下文长度的映射
var modelEncodings = map[string]encodingInfo{
	"gpt-4o":        {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4o-mini":   {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4.1":       {encoding: "o200k_base", maxTokens: 1047576},
	"gpt-4-turbo":   {encoding: "cl100k_base", maxTokens: 128000},
	"gpt-4":         {encoding: "cl100k_base", maxTokens: 8192},
	"gpt-3.5-turbo": {encoding: "cl100k_base", maxTokens: 16385},
}

// Tiktoken counts tokens exactly for OpenAI-family models. The encoding is
// loaded on first use.
type Tiktoken struct {
	model string
	info  encodingInfo

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

var _ Tokenizer = (*Tiktoken)(nil)

// NewTiktoken creates a tokenizer for model. Unknown models use cl100k_base.
func NewTiktoken(model string) *Tiktoken {
	info, ok := modelEncodings[model]
	if !ok {
		best := 0
		for prefix, i := range modelEncodings {
			if strings.HasPrefix(model, prefix) && len(prefix) > best {
				info, best, ok = i, len(prefix), true
			}
		}
	}
	if !ok {
		info = encodingInfo{encoding: "cl100k_base", maxTokens: 8192}
	}
	return &Tiktoken{model: model, info: info}
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.info.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.info.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *Tiktoken) count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tiktoken) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return t.count(text), nil
}

func (t *Tiktoken) CountMessages(messages []types.Message) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return countMessages(messages, t.count), nil
}

func (t *Tiktoken) MaxTokens() int { return t.info.maxTokens }

func (t *Tiktoken) Name() string { return "tiktoken[" + t.info.encoding + "]" }

// RegisterOpenAI registers tiktoken tokenizers for every known OpenAI model.
func RegisterOpenAI() {
	for model := range modelEncodings {
		Register(model, NewTiktoken(model))
	}
}
