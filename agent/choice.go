package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/types"
)

// ChoiceStrategy collapses the candidates of one request into exactly one.
type ChoiceStrategy interface {
	Choose(ctx context.Context, prompt types.Prompt, choices []llm.Choice) (llm.Choice, error)
}

// ReplyChoiceStrategy collapses independent replies into exactly one.
type ReplyChoiceStrategy interface {
	ChooseReply(ctx context.Context, prompt types.Prompt, replies []llm.Reply) (llm.Reply, error)
}

// ChoiceStrategyFunc adapts a function to ChoiceStrategy.
type ChoiceStrategyFunc func(ctx context.Context, prompt types.Prompt, choices []llm.Choice) (llm.Choice, error)

func (f ChoiceStrategyFunc) Choose(ctx context.Context, prompt types.Prompt, choices []llm.Choice) (llm.Choice, error) {
	return f(ctx, prompt, choices)
}

// ReplyChoiceStrategyFunc adapts a function to ReplyChoiceStrategy.
type ReplyChoiceStrategyFunc func(ctx context.Context, prompt types.Prompt, replies []llm.Reply) (llm.Reply, error)

func (f ReplyChoiceStrategyFunc) ChooseReply(ctx context.Context, prompt types.Prompt, replies []llm.Reply) (llm.Reply, error) {
	return f(ctx, prompt, replies)
}

// DummyChoiceStrategy picks the first candidate.
type DummyChoiceStrategy struct{}

func (DummyChoiceStrategy) Choose(_ context.Context, _ types.Prompt, choices []llm.Choice) (llm.Choice, error) {
	return first(choices)
}

// DummyReplyChoiceStrategy picks the first reply.
type DummyReplyChoiceStrategy struct{}

func (DummyReplyChoiceStrategy) ChooseReply(_ context.Context, _ types.Prompt, replies []llm.Reply) (llm.Reply, error) {
	return first(replies)
}

func first[T ~[]types.Message](candidates []T) (T, error) {
	if len(candidates) == 0 {
		return nil, types.NewError(types.ErrNoChoices, "no candidates to choose from")
	}
	return candidates[0], nil
}

// AskUserChoiceStrategy prints the candidates to Out and reads a 1-based
// index from In, asking again on invalid input. In is consumed one line at a
// time and never read ahead, so several strategies can share one reader.
type AskUserChoiceStrategy struct {
	In  io.Reader
	Out io.Writer
	// Render formats one candidate; defaults to joining message contents.
	Render func([]types.Message) string
}

func (s AskUserChoiceStrategy) Choose(ctx context.Context, _ types.Prompt, choices []llm.Choice) (llm.Choice, error) {
	return askUser(ctx, s.In, s.Out, s.Render, choices)
}

// AskUserReplyChoiceStrategy is AskUserChoiceStrategy for replies.
type AskUserReplyChoiceStrategy struct {
	In     io.Reader
	Out    io.Writer
	Render func([]types.Message) string
}

func (s AskUserReplyChoiceStrategy) ChooseReply(ctx context.Context, _ types.Prompt, replies []llm.Reply) (llm.Reply, error) {
	return askUser(ctx, s.In, s.Out, s.Render, replies)
}

func askUser[T ~[]types.Message](ctx context.Context, in io.Reader, out io.Writer, render func([]types.Message) string, candidates []T) (T, error) {
	if len(candidates) == 0 {
		return nil, types.NewError(types.ErrNoChoices, "no candidates to choose from")
	}
	if render == nil {
		render = renderMessages
	}
	for i, c := range candidates {
		fmt.Fprintf(out, "[%d] %s\n", i+1, render(c))
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, types.NewError(types.ErrCancelled, "choice cancelled").WithCause(err)
		}
		fmt.Fprintf(out, "Choose 1-%d: ", len(candidates))
		line, rerr := readLine(in)
		if rerr != nil {
			return nil, types.NewError(types.ErrNoChoices, "no choice read from input").WithCause(rerr)
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && n >= 1 && n <= len(candidates) {
			return candidates[n-1], nil
		}
		fmt.Fprintln(out, "invalid choice")
	}
}

// readLine reads up to and excluding '\n' without consuming anything past it.
// A final line without a newline is returned before io.EOF.
func readLine(r io.Reader) (string, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = singleByteReader{r}
	}
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		if b == '\n' {
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
}

type singleByteReader struct{ r io.Reader }

func (s singleByteReader) ReadByte() (byte, error) {
	var buf [1]byte
	for {
		n, err := s.r.Read(buf[:])
		if n == 1 {
			return buf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

func renderMessages(msgs []types.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.IsToolCall() {
			for _, c := range m.ToolCalls {
				parts = append(parts, fmt.Sprintf("call %s(%s)", c.Name, c.Arguments))
			}
			continue
		}
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " | ")
}
