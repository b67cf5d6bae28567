package callbacks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct{ name string }

func (m *fakeModel) GetName() string { return m.name }
func (m *fakeModel) GetProviderType() llms.ProviderType { return llms.ProviderOpenAI }
func (m *fakeModel) GenerateContent(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, nil
}

type fakeTool struct{ name string }

func (t *fakeTool) Name() string { return t.name }
func (t *fakeTool) Description() string { return "desc" }
func (t *fakeTool) Parameters() *jsonschema.Schema { return nil }
func (t *fakeTool) Call(context.Context, string) (string, error) { return "", nil }

func newTestChatContext() (context.Context, chatmodel.ChatContext) {
	chatCtx := chatmodel.NewChatContext("chatid", nil)
	ctx := chatmodel.WithChatContext(context.Background(), chatCtx)
	return ctx, chatCtx
}

func TestScratchpad_Run(t *testing.T) {
	t.Parallel()
	sp := NewScratchpad(ModeVerbose)
	ctx, cctx := newTestChatContext()

	stats, log := sp.LastRun()
	assert.Nil(t, stats)
	assert.Nil(t, log)

	llm := &fakeModel{name: "gpt-4o-mini"}
	tool := &fakeTool{name: "T1"}
	payload := []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "foo"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
			ID:           "call_1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "T1", Arguments: "{}"},
		}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "call_1", Name: "T1", Content: "bar"}),
	}
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content: "Answer 1",
			GenerationInfo: map[string]any{
				"InputTokens":  int64(7),
				"OutputTokens": int64(3),
				"TotalTokens":  int64(10),
			},
		}},
	}

	sp.OnRunStart(ctx, "A1", "input")
	_, ok := sp.runs[cctx.RunID()]
	require.True(t, ok)

	sp.OnLLMCallStart(ctx, "A1", llm, payload)
	sp.OnLLMCallEnd(ctx, "A1", llm, resp)
	sp.OnParseError(ctx, "A1", "output", errors.New("parseerr"))
	sp.OnToolStart(ctx, tool, "tinput")
	sp.OnToolEnd(ctx, tool, "tinput", "toutput")
	sp.OnToolStart(ctx, tool, "tinput")
	sp.OnToolError(ctx, tool, "tinput", errors.New("terr"))
	sp.OnToolNotFound(ctx, "A1", "T2")
	sp.OnRunEnd(ctx, "A1", &agent.FinalAnswer{Text: "42", Steps: 1})

	_, ok = sp.runs[cctx.RunID()]
	assert.False(t, ok)

	stats, log = sp.LastRun()
	require.NotNil(t, stats)
	assert.Equal(t, "chatid", stats.ChatID)
	assert.Equal(t, cctx.RunID(), stats.RunID)
	assert.Equal(t, "A1", stats.Agent)
	assert.Equal(t, uint32(1), stats.LLMCalls)
	assert.Equal(t, uint32(1), stats.Steps)
	assert.Equal(t, uint32(3), stats.TotalMessages)
	assert.Equal(t, uint32(1), stats.ParseErrors)
	assert.Equal(t, uint32(3), stats.ToolCalls)
	assert.Equal(t, uint32(1), stats.ToolsSucceeded)
	assert.Equal(t, uint32(1), stats.ToolsFailed)
	assert.Equal(t, uint32(1), stats.ToolNotFound)
	assert.Equal(t, uint64(7), stats.LLMInputTokens)
	assert.Equal(t, uint64(3), stats.LLMOutputTokens)
	assert.Equal(t, uint64(10), stats.LLMTotalTokens)
	assert.NotZero(t, stats.LLMBytesOut)
	assert.Equal(t, uint64(len("Answer 1")), stats.LLMBytesIn)
	assert.False(t, stats.Failed)

	out := string(log)
	assert.Contains(t, out, "*** Run Started ***")
	assert.Contains(t, out, "A1 Input: input")
	assert.Contains(t, out, "*** LLM Call *** gpt-4o-mini model, 3 messages")
	assert.Contains(t, out, "ToolCall: call_1 (T1), input: {}")
	assert.Contains(t, out, "ToolCallResponse: call_1 (T1), response size: 3")
	assert.Contains(t, out, "7 input tokens, 3 output tokens, 10 total tokens")
	assert.Contains(t, out, "A1 Output: Answer 1")
	assert.Contains(t, out, "*** LLM Parse Error *** parseerr")
	assert.Contains(t, out, "T1 Output: toutput")
	assert.Contains(t, out, "T1 *** Tool Error *** terr")
	assert.Contains(t, out, "*** Tool Not Found *** T2")
	assert.Contains(t, out, "A1 Final Answer: 42")
	assert.Contains(t, out, "Tool calls: 3, Failed: 1, Not Found: 1")
	assert.Contains(t, out, "*** Run Ended.")

	// callbacks without a run are ignored
	sp.OnLLMCallStart(ctx, "A1", llm, nil)
	sp.OnLLMCallEnd(ctx, "A1", llm, resp)
	sp.OnParseError(ctx, "A1", "output", errors.New("parse2"))
	sp.OnToolStart(ctx, tool, "tinput")
	sp.OnToolEnd(ctx, tool, "tinput", "toutput")
	sp.OnToolError(ctx, tool, "tinput", errors.New("terr2"))
	sp.OnToolNotFound(ctx, "A1", "T3")
	sp.OnRunEnd(ctx, "A1", &agent.FinalAnswer{})
	sp.OnRunError(ctx, "A1", "input", errors.New("fail"))

	stats2, _ := sp.LastRun()
	assert.Equal(t, stats, stats2)
}

func TestScratchpad_RunError(t *testing.T) {
	t.Parallel()
	sp := NewScratchpad(ModeDefault)
	ctx, _ := newTestChatContext()

	sp.OnRunStart(ctx, "A1", "input")
	sp.OnToolEnd(ctx, &fakeTool{name: "T1"}, "tinput", "hidden")
	sp.OnRunError(ctx, "A1", "input", errors.New("no final answer after 3 steps"))

	stats, log := sp.LastRun()
	require.NotNil(t, stats)
	assert.True(t, stats.Failed)
	assert.Contains(t, string(log), "A1 *** Error *** no final answer after 3 steps")
	assert.NotContains(t, string(log), "hidden")
}

func TestScratchpad_getRun_nil(t *testing.T) {
	t.Parallel()
	sp := NewScratchpad(ModeDefault)
	// No chat context at all
	assert.Nil(t, sp.getRun(context.Background()))
	sp.OnRunStart(context.Background(), "A1", "input")
	assert.Empty(t, sp.runs)
	// Chat context not in runs
	ctx, _ := newTestChatContext()
	assert.Nil(t, sp.getRun(ctx))
}

func Test_run_print_format(t *testing.T) {
	_, chatCtx := newTestChatContext()
	r := &run{chatCtx: chatCtx}
	oldTimeFn := TimeNowFn
	TimeNowFn = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { TimeNowFn = oldTimeFn }()

	r.print("hello", "again")
	lines := strings.Split(r.w.String(), "\n")
	require.NotEmpty(t, lines[0])
	// Format: [timestamp chatID.runID] hello again
	assert.Equal(t, "2024-01-01 12:00:00 "+chatCtx.GetChatID()+"."+chatCtx.RunID()+" hello again", lines[0])
}
