package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/mocks/mockllms"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type modelRequest struct {
	agent    string
	provider llms.ProviderType
}

// withScriptedModel replaces the backend with a mock returning the replies in order
func withScriptedModel(t *testing.T, replies ...*llms.ContentResponse) *modelRequest {
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("gpt-4o-mini").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()

	var idx atomic.Int32
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			i := int(idx.Add(1)) - 1
			if i >= len(replies) {
				t.Errorf("unexpected model call %d", i+1)
				return nil, errors.New("script exhausted")
			}
			return replies[i], nil
		}).AnyTimes()

	req := new(modelRequest)
	old := newModel
	newModel = func(_ *app, agentName string, defaultProvider llms.ProviderType) (llms.Model, error) {
		req.agent = agentName
		req.provider = defaultProvider
		return m, nil
	}
	t.Cleanup(func() { newModel = old })
	return req
}

func textReply(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text, StopReason: "stop"}},
	}
}

func callReply(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			StopReason: "tool_calls",
			ToolCalls: []llms.ToolCall{{
				ID:           id,
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
			}},
		}},
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSearch(t *testing.T) {
	req := withScriptedModel(t,
		textReply("Thought: I know this.\nFinal Answer: Paris"),
	)

	out, err := execute(t, "What is the capital of France?\n\nexit\nnot asked\n", "search")
	require.NoError(t, err)
	assert.Equal(t, "search", req.agent)
	assert.Equal(t, llms.ProviderOllama, req.provider)
	assert.Contains(t, out, "search agent (type 'exit' to quit)")
	assert.Contains(t, out, "Answer: Paris")
	assert.Contains(t, out, "Goodbye!")
}

func TestSearch_ErrorsAreRecoverable(t *testing.T) {
	withScriptedModel(t,
		textReply("I am not sure what to do"),
		textReply("Final Answer: ok"),
	)

	out, err := execute(t, "first\nsecond\n", "search")
	require.NoError(t, err)
	assert.Contains(t, out, `Error: malformed model output: missing "Action:" or "Final Answer:"`)
	assert.Contains(t, out, "Answer: ok")
}

func TestCurrency(t *testing.T) {
	t.Run("query", func(t *testing.T) {
		req := withScriptedModel(t, textReply("100 USD is 90 EUR."))

		out, err := execute(t, "", "currency", "--query", "Convert 100 USD to EUR")
		require.NoError(t, err)
		assert.Equal(t, "currency", req.agent)
		assert.Equal(t, llms.ProviderOpenAI, req.provider)
		assert.Contains(t, out, "[Example 1]")
		assert.Contains(t, out, "Query: Convert 100 USD to EUR")
		assert.Contains(t, out, "Result: 100 USD is 90 EUR.")
		assert.NotContains(t, out, "[Example 2]")
	})

	t.Run("examples", func(t *testing.T) {
		withScriptedModel(t,
			textReply("0.9"),
			textReply(""),
			textReply("JPY gives the highest value."),
		)

		out, err := execute(t, "", "currency")
		require.NoError(t, err)
		for _, q := range CurrencyQueries {
			assert.Contains(t, out, "Query: "+q)
		}
		assert.Contains(t, out, "Result: 0.9")
		assert.Contains(t, out, "Error: malformed model output: empty response")
		assert.Contains(t, out, "Result: JPY gives the highest value.")
	})

	t.Run("budget", func(t *testing.T) {
		withScriptedModel(t,
			callReply("call_1", "calculate", `{"expression":"100 * 0.9"}`),
		)

		out, err := execute(t, "", "currency", "--max-steps", "1", "-q", "Convert 100 USD to EUR")
		require.NoError(t, err)
		assert.Contains(t, out, "Error: no final answer after 1 steps")
	})
}

func TestWeather(t *testing.T) {
	withScriptedModel(t,
		callReply("call_1", "get_weather", `{"city":"Paris"}`),
		textReply("It is sunny in Paris."),
	)

	out, err := execute(t, "\n", "weather", "--seed", "1", "--transcript", "-")
	require.NoError(t, err)
	for i, q := range WeatherQueries {
		assert.Contains(t, out, fmt.Sprintf("%d. %s", i+1, q))
	}
	assert.Contains(t, out, "[Using default query]: What's the weather like in Paris?")
	assert.Contains(t, out, "AGENT RESPONSE:")
	assert.Contains(t, out, "It is sunny in Paris.")

	// transcript dump
	assert.Contains(t, out, "kind: user_message")
	assert.Contains(t, out, "kind: tool_call")
	assert.Contains(t, out, "tool: get_weather")
	assert.Contains(t, out, "The weather in Paris is")
}

func TestWeather_TranscriptFile(t *testing.T) {
	withScriptedModel(t, textReply("No idea."))

	file := filepath.Join(t.TempDir(), "transcript.yaml")
	out, err := execute(t, "Is it hot in New York today?\n", "weather", "--transcript", file, "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "Query: Is it hot in New York today?")
	assert.Contains(t, out, "Run Start: weather")
	assert.Contains(t, out, "*** Run Ended.")

	body, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(body), "text: Is it hot in New York today?")
	assert.Contains(t, string(body), "text: No idea.")
}

func TestCurrency_TranscriptTOML(t *testing.T) {
	withScriptedModel(t,
		callReply("call_1", "calculate", `{"expression":"100 * 0.9"}`),
		textReply("100 USD is 90 EUR."),
	)

	out, err := execute(t, "", "currency", "-q", "Convert 100 USD at 0.9", "--transcript", "-", "--transcript-format", "toml")
	require.NoError(t, err)
	assert.Contains(t, out, `agent = "currency"`)
	assert.Contains(t, out, "[[entries]]")
	assert.Contains(t, out, `kind = "tool_result"`)
	assert.Contains(t, out, `value = "90"`)
	assert.Contains(t, out, "Result: 100 USD is 90 EUR.")
}

func TestUnsupportedProtocol(t *testing.T) {
	withScriptedModel(t)
	_, err := execute(t, "", "currency", "--protocol", "plan_and_execute")
	assert.EqualError(t, err, "unsupported protocol: plan_and_execute")
}

func TestCreateModel(t *testing.T) {
	t.Run("flags", func(t *testing.T) {
		m, err := createModel(&app{provider: "ollama", model: "qwen2.5"}, "search", llms.ProviderOpenAI)
		require.NoError(t, err)
		assert.Equal(t, llms.ProviderOllama, m.GetProviderType())
		assert.Equal(t, "qwen2.5", m.GetName())

		m, err = createModel(&app{}, "weather", llms.ProviderOllama)
		require.NoError(t, err)
		assert.Equal(t, llms.ProviderOllama, m.GetProviderType())
		assert.Equal(t, "llama3.2", m.GetName())

		t.Setenv("GOOGLE_API_KEY", "test-key")
		t.Setenv("GOOGLEAI_MODEL", "")
		m, err = createModel(&app{provider: "googleai", model: "gemini-2.5-pro"}, "currency", llms.ProviderOpenAI)
		require.NoError(t, err)
		assert.Equal(t, llms.ProviderGoogleAI, m.GetProviderType())
		assert.Equal(t, "gemini-2.5-pro", m.GetName())

		_, err = createModel(&app{provider: "azure"}, "weather", llms.ProviderOllama)
		assert.EqualError(t, err, "unsupported provider type: AZURE")
	})

	t.Run("config", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		cfg := filepath.Join("..", "..", "pkg", "llmfactory", "testdata", "llm.yaml")

		m, err := createModel(&app{configFile: cfg, provider: "OLLAMA"}, "search", llms.ProviderOllama)
		require.NoError(t, err)
		assert.Equal(t, "llama3.2", m.GetName())

		m, err = createModel(&app{configFile: cfg, model: "gpt-4o"}, "currency", llms.ProviderOpenAI)
		require.NoError(t, err)
		assert.Equal(t, llms.ProviderOpenAI, m.GetProviderType())
		assert.Equal(t, "gpt-4o", m.GetName())

		// --model takes precedence over agent_models
		m, err = createModel(&app{configFile: cfg, model: "gpt-4o"}, "weather", llms.ProviderOllama)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", m.GetName())

		m, err = createModel(&app{configFile: cfg}, "weather", llms.ProviderOllama)
		require.NoError(t, err)
		assert.Equal(t, "llama3.2", m.GetName())

		m, err = createModel(&app{configFile: cfg}, "currency", llms.ProviderOpenAI)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", m.GetName())

		_, err = createModel(&app{configFile: "missing.yaml"}, "currency", llms.ProviderOpenAI)
		assert.Error(t, err)
	})
}
