package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/testutil/mocks"
	"github.com/BaSui01/agentgraph/types"
)

type weather struct {
	City    string  `json:"city"`
	Celsius float64 `json:"celsius"`
}

func TestParseStructured(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want weather
	}{
		{"plain", `{"city":"Oslo","celsius":-3}`, weather{"Oslo", -3}},
		{"fenced", "```json\n{\"city\":\"Lima\",\"celsius\":19}\n```", weather{"Lima", 19}},
		{"repaired", `{city: 'Rome', celsius: 21,}`, weather{"Rome", 21}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStructured[weather](tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseStructured[weather](`[1, 2, 3]`)
	assert.Error(t, err)
}

func TestRequestStructured_RetriesThenSucceeds(t *testing.T) {
	exec := mocks.NewScriptedExecutor().
		Reply("I think it is sunny").
		Reply(`{"city":"Oslo","celsius":4}`)
	ac := newTestContext(t, exec, nil, nil)

	var got weather
	require.NoError(t, ac.LLM().WriteSession(context.Background(), func(s *WriteSession) (err error) {
		got, err = RequestStructured(s, weather{City: "name", Celsius: 1.5})
		return err
	}))
	assert.Equal(t, weather{"Oslo", 4}, got)
	assert.Equal(t, 2, exec.CallCount())

	sent := exec.Calls()[1].Prompt.Messages
	assert.Contains(t, sent[len(sent)-1].Content, "could not be parsed")
}

func TestRequestStructured_GivesUp(t *testing.T) {
	exec := mocks.NewScriptedExecutor().Reply("no").Reply("still no").Reply("never")
	ac := newTestContext(t, exec, nil, nil)

	err := ac.LLM().WriteSession(context.Background(), func(s *WriteSession) error {
		_, err := RequestStructured(s, weather{})
		return err
	})
	assert.True(t, types.IsCode(err, types.ErrMalformedMessage), "got %v", err)
	assert.Equal(t, 3, exec.CallCount(), "default budget is three attempts")
}
