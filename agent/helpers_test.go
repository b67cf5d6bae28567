package agent_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/mocks/mockllms"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/toolagent/tools/calculator"
	"github.com/effective-security/toolagent/tools/currency"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// generateFunc is the signature of llms.Model.GenerateContent
type generateFunc func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error)

// recorder captures the requests sent to the mock model
type recorder struct {
	lock     sync.Mutex
	messages [][]llms.Message
	options  []*llms.CallOptions
}

func (r *recorder) add(messages []llms.Message, opts []llms.CallOption) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.messages = append(r.messages, messages)
	r.options = append(r.options, llms.NewCallOptions(opts...))
}

func (r *recorder) calls() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.messages)
}

func (r *recorder) last() []llms.Message {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.messages[len(r.messages)-1]
}

// messageText returns the text parts of the message
func messageText(m llms.Message) string {
	var text string
	for _, p := range m.Parts {
		if tc, ok := p.(llms.TextContent); ok {
			text += tc.Text
		}
	}
	return text
}

func newMockModel(ctrl *gomock.Controller, rec *recorder, fn generateFunc) *mockllms.MockModel {
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("gpt-4o-mini").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			rec.add(messages, options)
			return fn(ctx, messages, options...)
		}).AnyTimes()
	return m
}

// scripted returns the replies in order, and fails the test when the script is exhausted.
func scripted(t *testing.T, replies ...*llms.ContentResponse) generateFunc {
	var idx atomic.Int32
	return func(_ context.Context, _ []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
		i := int(idx.Add(1)) - 1
		if i >= len(replies) {
			t.Errorf("unexpected model call %d", i+1)
			return nil, errors.New("script exhausted")
		}
		return replies[i], nil
	}
}

func textReply(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    text,
				StopReason: "stop",
				GenerationInfo: map[string]any{
					"InputTokens":  int64(10),
					"OutputTokens": int64(5),
					"TotalTokens":  int64(15),
				},
			},
		},
	}
}

func callReply(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				StopReason: "tool_calls",
				ToolCalls:  calls,
			},
		},
	}
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

// rateTool is a fetch_live_rate tool with a fixed USD/EUR rate
func rateTool(t *testing.T, invoked *atomic.Int32) tools.ITool {
	tool, err := tools.NewFunc(currency.ToolName, "Fetch the live exchange rate",
		func(_ context.Context, req *currency.RateRequest) (*currency.Rate, error) {
			invoked.Add(1)
			if req.From == "USD" && req.To == "EUR" {
				r := currency.Rate(0.9)
				return &r, nil
			}
			return nil, errors.Newf("target currency %s not found", req.To)
		})
	require.NoError(t, err)
	return tool
}

type sleepRequest struct {
	Text  string `json:"text"`
	Delay int    `json:"delay_ms"`
}

// sleepTool echoes the text after the delay, or fails when the context is done
func sleepTool(t *testing.T) tools.ITool {
	tool, err := tools.NewFunc("sleep", "Echo the text after the delay",
		func(ctx context.Context, req *sleepRequest) (*string, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(req.Delay) * time.Millisecond):
			}
			return &req.Text, nil
		})
	require.NoError(t, err)
	return tool
}

func newRegistry(t *testing.T, invoked *atomic.Int32, extra ...tools.ITool) *tools.Registry {
	calc, err := calculator.New()
	require.NoError(t, err)
	list := append([]tools.ITool{rateTool(t, invoked), calc}, extra...)
	reg, err := tools.NewRegistry(list...)
	require.NoError(t, err)
	return reg
}

// eventRecorder records the callback events
type eventRecorder struct {
	lock   sync.Mutex
	events []string
}

var _ agent.Callback = (*eventRecorder)(nil)

func (r *eventRecorder) add(format string, args ...any) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *eventRecorder) list() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.events...)
}

func (r *eventRecorder) OnToolStart(_ context.Context, tool tools.ITool, _ string) {
	r.add("tool_start:%s", tool.Name())
}

func (r *eventRecorder) OnToolEnd(_ context.Context, tool tools.ITool, _ string, _ string) {
	r.add("tool_end:%s", tool.Name())
}

func (r *eventRecorder) OnToolError(_ context.Context, tool tools.ITool, _ string, _ error) {
	r.add("tool_error:%s", tool.Name())
}

func (r *eventRecorder) OnRunStart(_ context.Context, name string, _ string) {
	r.add("run_start:%s", name)
}

func (r *eventRecorder) OnRunEnd(_ context.Context, name string, _ *agent.FinalAnswer) {
	r.add("run_end:%s", name)
}

func (r *eventRecorder) OnRunError(_ context.Context, name string, _ string, _ error) {
	r.add("run_error:%s", name)
}

func (r *eventRecorder) OnLLMCallStart(_ context.Context, name string, _ llms.Model, _ []llms.Message) {
	r.add("llm_start:%s", name)
}

func (r *eventRecorder) OnLLMCallEnd(_ context.Context, name string, _ llms.Model, _ *llms.ContentResponse) {
	r.add("llm_end:%s", name)
}

func (r *eventRecorder) OnParseError(_ context.Context, name string, _ string, _ error) {
	r.add("parse_error:%s", name)
}

func (r *eventRecorder) OnToolNotFound(_ context.Context, name string, tool string) {
	r.add("tool_not_found:%s", tool)
}
