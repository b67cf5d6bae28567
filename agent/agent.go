package agent

import (
	"context"
	"strings"
	"time"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "agent")

//go:generate mockgen -destination=../mocks/mockllms/llm_mock.gen.go -package mockllms github.com/effective-security/toolagent/pkg/llms Model

// Protocol translates between the transcript and the model.
// A protocol decides how tools are offered, and how the model output
// is interpreted as the next step.
type Protocol interface {
	// Name returns the name of the protocol.
	Name() string
	// Prepare renders the transcript as the messages and call options for the next model turn.
	Prepare(model llms.Model, specs []tools.Spec, transcript *chatmodel.Transcript) ([]llms.Message, []llms.CallOption, error)
	// Parse interprets the model response.
	// Returns MalformedModelOutputError if the response is neither a tool call nor a final answer.
	Parse(resp *llms.ContentResponse, specs []tools.Spec) (*Step, error)
}

// Step is the parsed decision of the model.
type Step struct {
	// Text is the text of the utterance, the answer for the final step.
	Text string
	// Calls are the requested tool calls, empty for the final step.
	Calls []chatmodel.ToolCall
}

// IsFinal returns true if the step is a final answer.
func (s *Step) IsFinal() bool {
	return len(s.Calls) == 0
}

// FinalAnswer is the result of a successful run.
type FinalAnswer struct {
	Text string
	// Steps is the number of model turns taken.
	Steps int
	// Transcript is a snapshot of the run transcript.
	Transcript *chatmodel.Transcript
	// Elapsed is the duration of the run.
	Elapsed time.Duration
}

// Callback receives the session events.
type Callback interface {
	tools.Callback
	OnRunStart(ctx context.Context, agent string, query string)
	OnRunEnd(ctx context.Context, agent string, answer *FinalAnswer)
	OnRunError(ctx context.Context, agent string, query string, err error)
	OnLLMCallStart(ctx context.Context, agent string, llm llms.Model, messages []llms.Message)
	OnLLMCallEnd(ctx context.Context, agent string, llm llms.Model, resp *llms.ContentResponse)
	OnParseError(ctx context.Context, agent string, output string, err error)
	OnToolNotFound(ctx context.Context, agent string, tool string)
}

// ProtocolByName returns the protocol by name: `react` or `function_calling`.
func ProtocolByName(name string) (Protocol, bool) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "_")) {
	case "react":
		return NewReAct(), true
	case "function_calling", "functions", "tools":
		return NewFunctionCalling(), true
	}
	return nil, false
}
