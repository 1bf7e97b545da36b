package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
)

// RequestStructured asks the model for a JSON value shaped like example and
// decodes it into T. Malformed JSON is repaired when possible; otherwise the
// model is told what went wrong and asked again, up to
// Config.StructuredRetries attempts. Every exchange is kept in the prompt.
func RequestStructured[T any](s *WriteSession, example T) (T, error) {
	var zero T
	shape, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return zero, fmt.Errorf("encode structured example: %w", err)
	}
	s.AppendPrompt(types.NewUserMessage(
		"Reply only with a JSON value with exactly this structure, no prose and no code fences:\n" + string(shape)))

	attempts := s.l.ac.config.StructuredRetries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		msg, err := s.RequestLLMWithoutTools()
		if err != nil {
			return zero, err
		}
		v, perr := ParseStructured[T](msg.Content)
		if perr == nil {
			return v, nil
		}
		lastErr = perr
		s.l.ac.logger.Debug("structured reply rejected", zap.Int("attempt", attempt), zap.Error(perr))
		if attempt < attempts {
			s.AppendPrompt(types.NewUserMessage(fmt.Sprintf(
				"The previous reply could not be parsed (%v). Reply again with valid JSON only.", perr)))
		}
	}
	return zero, types.NewError(types.ErrMalformedMessage,
		fmt.Sprintf("no valid structured reply after %d attempts", attempts)).WithCause(lastErr)
}

// ParseStructured decodes text as JSON into T, stripping markdown fences and
// falling back to jsonrepair.
func ParseStructured[T any](text string) (T, error) {
	var v T
	content := stripFences(text)
	err := json.Unmarshal([]byte(content), &v)
	if err == nil {
		return v, nil
	}
	repaired, rerr := jsonrepair.JSONRepair(content)
	if rerr != nil {
		return v, fmt.Errorf("invalid JSON: %w (repair failed: %v)", err, rerr)
	}
	var r T
	if err := json.Unmarshal([]byte(repaired), &r); err != nil {
		return v, fmt.Errorf("repaired JSON does not match %T: %w", v, err)
	}
	return r, nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
