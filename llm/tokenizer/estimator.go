package tokenizer

import (
	"unicode/utf8"

	"github.com/BaSui01/agentgraph/types"
)

// Estimator approximates token counts from character classes: CJK runs at
// about 1.5 characters per token, everything else at about 4.
type Estimator struct {
	model     string
	maxTokens int
}

var _ Tokenizer = (*Estimator)(nil)

// NewEstimator creates an estimator; maxTokens defaults to 4096.
func NewEstimator(model string, maxTokens int) *Estimator {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Estimator{model: model, maxTokens: maxTokens}
}

func (e *Estimator) CountTokens(text string) (int, error) {
	return e.estimate(text), nil
}

func (e *Estimator) estimate(text string) int {
	if text == "" {
		return 0
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	n := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	return max(n, 1)
}

func (e *Estimator) CountMessages(messages []types.Message) (int, error) {
	return countMessages(messages, e.estimate), nil
}

func (e *Estimator) MaxTokens() int { return e.maxTokens }

func (e *Estimator) Name() string { return "estimator" }

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
