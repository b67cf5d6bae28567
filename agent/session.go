package agent

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/sourcegraph/conc/iter"
)

// Session is a single agent bound to a model, a sealed tool registry and a protocol.
// It owns the transcript of its runs.
// Concurrent calls to Run are serialized.
type Session struct {
	id       string
	model    llms.Model
	registry *tools.Registry
	protocol Protocol
	cfg      *Config

	lock       sync.Mutex
	transcript *chatmodel.Transcript
}

// NewSession returns a session.
// The registry is sealed, no tools can be registered after this call.
func NewSession(model llms.Model, registry *tools.Registry, protocol Protocol, opts ...Option) (*Session, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if protocol == nil {
		protocol = NewFunctionCalling()
	}
	registry.Seal()

	s := &Session{
		id:         chatmodel.NewChatID(),
		model:      model,
		registry:   registry,
		protocol:   protocol,
		cfg:        NewConfig(opts...),
		transcript: chatmodel.NewTranscript(),
	}
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Name returns the agent name.
func (s *Session) Name() string {
	return s.cfg.Name
}

// Protocol returns the protocol of the session.
func (s *Session) Protocol() Protocol {
	return s.protocol
}

// Transcript returns a snapshot of the current transcript.
func (s *Session) Transcript() *chatmodel.Transcript {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.transcript.Clone()
}

// Reset clears the transcript.
func (s *Session) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.transcript = chatmodel.NewTranscript()
}

// Run executes the reasoning loop for the query until the model
// produces a final answer, a fatal error occurs, or the step budget is exhausted.
// Tool failures are recorded in the transcript and offered back to the model.
func (s *Session) Run(ctx context.Context, query string, opts ...Option) (*FinalAnswer, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	cfg := s.cfg.Apply(opts...)
	cb := cfg.CallbackHandler
	if cb == nil {
		cb = nopCallback{}
	}

	var chatCtx chatmodel.ChatContext
	if parent := chatmodel.GetChatContext(ctx); parent != nil {
		chatCtx = chatmodel.NextRun(parent)
	} else {
		chatCtx = chatmodel.NewChatContext(s.id, nil)
	}
	chatCtx.SetMetadata(chatmodel.MetadataAgent, cfg.Name)
	ctx = chatmodel.WithChatContext(ctx, chatCtx)

	if !cfg.ConversationMemory {
		s.transcript = chatmodel.NewTranscript()
	}

	started := time.Now()
	defer metricskey.PerfAgentRun.MeasureSince(started, cfg.Name)

	cb.OnRunStart(ctx, cfg.Name, query)

	answer, err := s.run(ctx, cfg, cb, query)
	if err != nil {
		metricskey.StatsAgentRunsFailed.IncrCounter(1, cfg.Name, failureReason(err))
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "run_failed",
			"agent", cfg.Name,
			"err", err.Error(),
		)
		cb.OnRunError(ctx, cfg.Name, query, err)
		return nil, err
	}

	answer.Elapsed = time.Since(started)
	metricskey.StatsAgentRunsSucceeded.IncrCounter(1, cfg.Name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "run_completed",
		"agent", cfg.Name,
		"steps", answer.Steps,
		"elapsed", answer.Elapsed.String(),
	)
	cb.OnRunEnd(ctx, cfg.Name, answer)
	return answer, nil
}

func (s *Session) run(ctx context.Context, cfg *Config, cb Callback, query string) (*FinalAnswer, error) {
	if err := s.transcript.Append(chatmodel.UserMessage{Text: query}); err != nil {
		return nil, err
	}

	specs := s.registry.Describe()

	for step := 1; step <= cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, runContextError(step-1, err)
		}

		metricskey.StatsAgentSteps.IncrCounter(1, cfg.Name)
		if chatCtx := chatmodel.GetChatContext(ctx); chatCtx != nil {
			chatCtx.SetMetadata(chatmodel.MetadataStep, step)
		}

		resp, err := s.callLLM(ctx, cfg, cb, specs)
		if err != nil {
			return nil, err
		}

		next, err := s.protocol.Parse(resp, specs)
		if err != nil {
			var malformed *chatmodel.MalformedModelOutputError
			if !errors.As(err, &malformed) {
				return nil, err
			}

			metricskey.StatsAgentParseErrors.IncrCounter(1, cfg.Name)
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "malformed_output",
				"agent", cfg.Name,
				"step", step,
				"reason", malformed.Reason,
			)
			cb.OnParseError(ctx, cfg.Name, malformed.Output, err)

			if !cfg.ParseErrorRecovery {
				return nil, err
			}
			err = s.transcript.Append(chatmodel.ModelUtterance{
				Text:       malformed.Output,
				ParseError: malformed.Reason,
			})
			if err != nil {
				return nil, err
			}
			continue
		}

		if next.IsFinal() {
			if err = s.transcript.Append(chatmodel.ModelUtterance{Text: next.Text}); err != nil {
				return nil, err
			}
			return &FinalAnswer{
				Text:       next.Text,
				Steps:      step,
				Transcript: s.transcript.Clone(),
			}, nil
		}

		entries := make([]chatmodel.Entry, 0, len(next.Calls)+1)
		entries = append(entries, chatmodel.ModelUtterance{Text: next.Text, Requested: next.Calls})
		for _, call := range next.Calls {
			entries = append(entries, call)
		}
		if err = s.transcript.Append(entries...); err != nil {
			return nil, err
		}

		results := s.dispatch(ctx, cfg, cb, next.Calls)
		entries = make([]chatmodel.Entry, 0, len(results))
		for _, r := range results {
			entries = append(entries, r)
		}
		if err = s.transcript.Append(entries...); err != nil {
			return nil, err
		}
	}

	logger.ContextKV(ctx, xlog.WARNING,
		"status", "step_budget_exceeded",
		"agent", cfg.Name,
		"max_steps", cfg.MaxSteps,
	)
	return nil, errors.WithStack(&chatmodel.StepBudgetExceededError{
		MaxSteps:   cfg.MaxSteps,
		Transcript: s.transcript.Clone(),
	})
}

func (s *Session) callLLM(ctx context.Context, cfg *Config, cb Callback, specs []tools.Spec) (*llms.ContentResponse, error) {
	messages, callOpts, err := s.protocol.Prepare(s.model, specs, s.transcript)
	if err != nil {
		return nil, err
	}
	callOpts = append(cfg.GetCallOptions(), callOpts...)

	modelName := values.StringsCoalesce(cfg.Model, s.model.GetName())

	llmCtx := ctx
	if cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, cfg.LLMTimeout)
		defer cancel()
	}

	cb.OnLLMCallStart(ctx, cfg.Name, s.model, messages)

	bytesSent := llmutils.CountMessagesContentSize(messages)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), cfg.Name, modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), cfg.Name, modelName)

	started := time.Now()
	resp, err := s.model.GenerateContent(llmCtx, messages, callOpts...)
	metricskey.PerfLLMCall.MeasureSince(started, cfg.Name, modelName)

	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "llm_call_failed",
			"agent", cfg.Name,
			"model", modelName,
			"err", err.Error(),
		)
		return nil, s.llmError(ctx, llmCtx, cfg, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.WithStack(&chatmodel.BackendUnavailableError{
			Provider: string(s.model.GetProviderType()),
			Model:    modelName,
			Cause:    errors.New("no choices in response"),
		})
	}

	bytesReceived := llmutils.CountResponseContentSize(resp)
	metricskey.StatsLLMBytesReceived.IncrCounter(float64(bytesReceived), cfg.Name, modelName)

	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), cfg.Name, modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), cfg.Name, modelName)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(tokensTotal), cfg.Name, modelName)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "llm_called",
		"agent", cfg.Name,
		"model", modelName,
		"bytes_sent", bytesSent,
		"bytes_received", bytesReceived,
		"tokens", tokensTotal,
		"elapsed", time.Since(started).String(),
	)

	cb.OnLLMCallEnd(ctx, cfg.Name, s.model, resp)
	return resp, nil
}

// llmError classifies the backend failure.
func (s *Session) llmError(ctx, llmCtx context.Context, cfg *Config, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.Canceled) {
			return errors.WithStack(&chatmodel.CancelledError{
				Step:  s.transcript.Count(chatmodel.KindModelUtterance),
				Cause: err,
			})
		}
		return errors.WithStack(&chatmodel.TimeoutError{Op: "run", Cause: err})
	}
	if errors.Is(llmCtx.Err(), context.DeadlineExceeded) || chatmodel.IsDeadline(err) {
		return errors.WithStack(&chatmodel.TimeoutError{
			Op:      "llm",
			Timeout: cfg.LLMTimeout,
			Cause:   err,
		})
	}
	return errors.WithStack(&chatmodel.BackendUnavailableError{
		Provider: string(s.model.GetProviderType()),
		Model:    values.StringsCoalesce(cfg.Model, s.model.GetName()),
		Cause:    err,
	})
}

// dispatch invokes the tool calls and returns the results in request order.
func (s *Session) dispatch(ctx context.Context, cfg *Config, cb Callback, calls []chatmodel.ToolCall) []chatmodel.ToolResult {
	if cfg.ParallelToolCalls && len(calls) > 1 {
		mapper := iter.Mapper[chatmodel.ToolCall, chatmodel.ToolResult]{
			MaxGoroutines: len(calls),
		}
		return mapper.Map(calls, func(call *chatmodel.ToolCall) chatmodel.ToolResult {
			return s.invoke(ctx, cfg, cb, *call)
		})
	}

	results := make([]chatmodel.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, s.invoke(ctx, cfg, cb, call))
	}
	return results
}

func (s *Session) invoke(ctx context.Context, cfg *Config, cb Callback, call chatmodel.ToolCall) chatmodel.ToolResult {
	res := chatmodel.ToolResult{
		CallID: call.ID,
		Name:   call.Name,
	}

	tool, ok := s.registry.Get(call.Name)
	if !ok {
		cb.OnToolNotFound(ctx, cfg.Name, call.Name)
	} else {
		cb.OnToolStart(ctx, tool, call.Arguments)
	}

	toolCtx, ownDeadline, cancel := toolContext(ctx, cfg.ToolTimeout)
	defer cancel()

	out, err := s.registry.Dispatch(toolCtx, call.Name, call.Arguments)
	if err != nil {
		var te *chatmodel.TimeoutError
		if ownDeadline && errors.As(err, &te) && te.Timeout == 0 {
			te.Timeout = cfg.ToolTimeout
		}
		res.Err = err
		if tool != nil {
			cb.OnToolError(ctx, tool, call.Arguments, err)
		}
		return res
	}

	res.Value = out
	if tool != nil {
		cb.OnToolEnd(ctx, tool, call.Arguments, out)
	}
	return res
}

// toolContext returns the context of a tool call.
// Cancellation of the run is observed between steps only, so the tool context
// is detached from it and keeps the run deadline. ownDeadline is true when
// the tool timeout expires before the run deadline.
func toolContext(ctx context.Context, timeout time.Duration) (context.Context, bool, context.CancelFunc) {
	toolCtx := context.WithoutCancel(ctx)

	deadline, hasDeadline := ctx.Deadline()
	ownDeadline := false
	if timeout > 0 {
		if own := time.Now().Add(timeout); !hasDeadline || own.Before(deadline) {
			deadline, hasDeadline, ownDeadline = own, true, true
		}
	}
	if !hasDeadline {
		return toolCtx, false, func() {}
	}
	toolCtx, cancel := context.WithDeadline(toolCtx, deadline)
	return toolCtx, ownDeadline, cancel
}

// runContextError converts the error of the caller context.
func runContextError(step int, err error) error {
	if errors.Is(err, context.Canceled) {
		return errors.WithStack(&chatmodel.CancelledError{Step: step, Cause: err})
	}
	return errors.WithStack(&chatmodel.TimeoutError{Op: "run", Cause: err})
}

func failureReason(err error) string {
	var (
		timeout   *chatmodel.TimeoutError
		cancelled *chatmodel.CancelledError
		backend   *chatmodel.BackendUnavailableError
		malformed *chatmodel.MalformedModelOutputError
		budget    *chatmodel.StepBudgetExceededError
	)
	switch {
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &cancelled):
		return "cancelled"
	case errors.As(err, &backend):
		return "backend"
	case errors.As(err, &malformed):
		return "malformed"
	case errors.As(err, &budget):
		return "budget"
	}
	return "other"
}

type nopCallback struct{}

func (nopCallback) OnToolStart(context.Context, tools.ITool, string) {}
func (nopCallback) OnToolEnd(context.Context, tools.ITool, string, string) {}
func (nopCallback) OnToolError(context.Context, tools.ITool, string, error) {}
func (nopCallback) OnRunStart(context.Context, string, string) {}
func (nopCallback) OnRunEnd(context.Context, string, *FinalAnswer) {}
func (nopCallback) OnRunError(context.Context, string, string, error) {}
func (nopCallback) OnLLMCallStart(context.Context, string, llms.Model, []llms.Message) {}
func (nopCallback) OnLLMCallEnd(context.Context, string, llms.Model, *llms.ContentResponse) {}
func (nopCallback) OnParseError(context.Context, string, string, error) {}
func (nopCallback) OnToolNotFound(context.Context, string, string) {}
