package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Phase identifies which part of a run produced a terminal error.
type Phase string

const (
	PhaseBuild     Phase = "build"
	PhaseDispatch  Phase = "dispatch"
	PhaseProtocol  Phase = "protocol"
	PhaseDeadEnd   Phase = "dead-end"
	PhaseExecution Phase = "execution"
)

// Structural error codes, detected before traversal starts.
const (
	ErrGraphInvalid         ErrorCode = "GRAPH_INVALID"
	ErrDuplicateNode        ErrorCode = "DUPLICATE_NODE"
	ErrDuplicateTool        ErrorCode = "DUPLICATE_TOOL"
	ErrEmptyToolSet         ErrorCode = "EMPTY_TOOL_SET"
	ErrToolScopeInvalid     ErrorCode = "TOOL_SCOPE_INVALID"
	ErrReduceContextMissing ErrorCode = "REDUCE_CONTEXT_MISSING"
	ErrPipelineSealed       ErrorCode = "PIPELINE_SEALED"
	ErrFeatureDuplicate     ErrorCode = "FEATURE_DUPLICATE"
	ErrFeatureInvalid       ErrorCode = "FEATURE_INVALID"
)

// Dispatch error codes
const (
	ErrToolNotRegistered ErrorCode = "TOOL_NOT_REGISTERED"
	ErrToolArgsInvalid   ErrorCode = "TOOL_ARGS_INVALID"
)

// Protocol error codes
const (
	ErrUnexpectedMessage ErrorCode = "UNEXPECTED_MESSAGE"
	ErrMalformedMessage  ErrorCode = "MALFORMED_MESSAGE"
	ErrModelNotFound     ErrorCode = "MODEL_NOT_FOUND"
	ErrAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	ErrTypeMismatch      ErrorCode = "TYPE_MISMATCH"
	ErrNoChoices         ErrorCode = "NO_CHOICES"
	ErrFeatureNotFound   ErrorCode = "FEATURE_NOT_FOUND"
)

// Traversal error codes
const (
	ErrDeadEnd         ErrorCode = "DEAD_END"
	ErrNodeFailed      ErrorCode = "NODE_FAILED"
	ErrFeatureRejected ErrorCode = "FEATURE_REJECTED"
	ErrCancelled       ErrorCode = "CANCELLED"
)

// Phase maps the code to the run phase it belongs to.
func (c ErrorCode) Phase() Phase {
	switch c {
	case ErrGraphInvalid, ErrDuplicateNode, ErrDuplicateTool, ErrEmptyToolSet,
		ErrToolScopeInvalid, ErrReduceContextMissing, ErrPipelineSealed, ErrFeatureDuplicate, ErrFeatureInvalid:
		return PhaseBuild
	case ErrToolNotRegistered, ErrToolArgsInvalid:
		return PhaseDispatch
	case ErrUnexpectedMessage, ErrMalformedMessage, ErrModelNotFound, ErrAgentNotFound,
		ErrTypeMismatch, ErrNoChoices, ErrFeatureNotFound:
		return PhaseProtocol
	case ErrDeadEnd:
		return PhaseDeadEnd
	default:
		return PhaseExecution
	}
}

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Node    string    `json:"node,omitempty"`
	Tool    string    `json:"tool,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Node != "" {
		prefix = fmt.Sprintf("[%s] node %s: %s", e.Code, e.Node, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	}
	return prefix
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Phase returns the run phase of the error.
func (e *Error) Phase() Phase {
	return e.Code.Phase()
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithNode sets the node the error originated from.
func (e *Error) WithNode(node string) *Error {
	e.Node = node
	return e
}

// WithTool sets the tool the error refers to.
func (e *Error) WithTool(tool string) *Error {
	e.Tool = tool
	return e
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err's chain contains an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	if e, ok := AsError(err); ok {
		return e.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// PhaseOf returns the phase of err, or execution for foreign errors.
func PhaseOf(err error) Phase {
	if e, ok := AsError(err); ok {
		return e.Phase()
	}
	return PhaseExecution
}
