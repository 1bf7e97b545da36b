package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrToolNotRegistered, "tool missing").
		WithCause(root).
		WithNode("exec").
		WithTool("plus")

	wrapped := fmt.Errorf("outer: %w", err)

	if GetErrorCode(wrapped) != ErrToolNotRegistered {
		t.Fatalf("expected code %s, got %s", ErrToolNotRegistered, GetErrorCode(wrapped))
	}
	if !IsCode(wrapped, ErrToolNotRegistered) {
		t.Fatalf("expected IsCode to match through wrapping")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if PhaseOf(wrapped) != PhaseDispatch {
		t.Fatalf("expected dispatch phase, got %s", PhaseOf(wrapped))
	}
	if got := err.Error(); got != "[TOOL_NOT_REGISTERED] node exec: tool missing: root" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestErrorCode_Phase(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]Phase{
		ErrGraphInvalid:         PhaseBuild,
		ErrDuplicateTool:        PhaseBuild,
		ErrEmptyToolSet:         PhaseBuild,
		ErrReduceContextMissing: PhaseBuild,
		ErrToolArgsInvalid:      PhaseDispatch,
		ErrUnexpectedMessage:    PhaseProtocol,
		ErrModelNotFound:        PhaseProtocol,
		ErrDeadEnd:              PhaseDeadEnd,
		ErrNodeFailed:           PhaseExecution,
		ErrorCode("SOMETHING"):  PhaseExecution,
	}
	for code, want := range cases {
		if got := code.Phase(); got != want {
			t.Errorf("%s: expected phase %s, got %s", code, want, got)
		}
	}
	if PhaseOf(errors.New("plain")) != PhaseExecution {
		t.Fatalf("foreign errors belong to the execution phase")
	}
}
