package chatmodel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrFailedUnmarshalInput is returned by a tool when its input can not be decoded.
	ErrFailedUnmarshalInput = errors.New("failed to unmarshal input: check the schema and try again")
	// ErrRegistrySealed is returned when a tool is registered after the registry was sealed.
	ErrRegistrySealed = errors.New("tool registry is sealed")
	// ErrTranscriptInvariant is returned when an entry would break the transcript ordering.
	ErrTranscriptInvariant = errors.New("transcript invariant violated")
)

// DuplicateToolError is returned when a tool with the same name is already registered.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// UnknownToolError is returned when the requested tool is not registered.
type UnknownToolError struct {
	Name      string
	Available []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool %q not found, available tools: %s", e.Name, strings.Join(e.Available, ", "))
}

// InvalidArgumentsError is returned when the tool arguments do not satisfy
// the parameters schema of the tool.
type InvalidArgumentsError struct {
	Tool    string
	Reasons []string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, strings.Join(e.Reasons, "; "))
}

// ToolExecutionError wraps a failure of the tool itself.
type ToolExecutionError struct {
	Tool  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Cause.Error())
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// MalformedModelOutputError is returned when the model output is neither
// a valid tool call nor a final answer.
type MalformedModelOutputError struct {
	Output string
	Reason string
}

func (e *MalformedModelOutputError) Error() string {
	return "malformed model output: " + e.Reason
}

// BackendUnavailableError is returned when the LLM backend can not be used.
type BackendUnavailableError struct {
	Provider string
	Model    string
	Cause    error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("LLM backend %s/%s is unavailable: %s", e.Provider, e.Model, e.Cause.Error())
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Cause
}

// StepBudgetExceededError is returned when the loop did not produce a final
// answer within the allowed number of model turns.
type StepBudgetExceededError struct {
	MaxSteps int
	// Transcript is a snapshot of the transcript at the time of the failure.
	Transcript *Transcript
}

func (e *StepBudgetExceededError) Error() string {
	return fmt.Sprintf("no final answer after %d steps", e.MaxSteps)
}

// TimeoutError is returned when a backend or tool call exceeded its timeout.
type TimeoutError struct {
	// Op is the operation that timed out, e.g. `llm` or `tool:<name>`.
	Op      string
	Timeout time.Duration
	Cause   error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
	}
	return fmt.Sprintf("%s timed out", e.Op)
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// CancelledError is returned when the caller cancelled the run.
type CancelledError struct {
	// Step is the number of completed model turns.
	Step  int
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled after %d steps", e.Step)
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// IsToolError returns true for errors produced by tool dispatch,
// which are recovered into the transcript and not surfaced to the caller.
func IsToolError(err error) bool {
	if err == nil {
		return false
	}
	var unknown *UnknownToolError
	var invalid *InvalidArgumentsError
	var exec *ToolExecutionError
	var timeout *TimeoutError
	return errors.As(err, &unknown) ||
		errors.As(err, &invalid) ||
		errors.As(err, &exec) ||
		errors.As(err, &timeout)
}

// IsDeadline returns true if the error is caused by an expired deadline,
// and the context itself was not cancelled by the caller.
func IsDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
