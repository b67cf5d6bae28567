package agent_test

import (
	"testing"
	"time"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/stretchr/testify/assert"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := agent.NewConfig()
	assert.Equal(t, agent.DefaultName, cfg.Name)
	assert.Equal(t, 10, cfg.MaxSteps)
	assert.Equal(t, agent.DefaultLLMTimeout, cfg.LLMTimeout)
	assert.Equal(t, agent.DefaultToolTimeout, cfg.ToolTimeout)
	assert.False(t, cfg.ParallelToolCalls)
	assert.False(t, cfg.ParseErrorRecovery)
	assert.False(t, cfg.ConversationMemory)
	assert.Nil(t, cfg.CallbackHandler)

	// temperature 0 is set explicitly for deterministic tool use
	co := llms.NewCallOptions(cfg.GetCallOptions()...)
	assert.True(t, co.TemperatureSet)
	assert.Equal(t, 0.0, co.Temperature)
	assert.Empty(t, co.Model)
	assert.Zero(t, co.MaxTokens)
}

func TestConfig_Options(t *testing.T) {
	cfg := agent.NewConfig(
		agent.WithName("weather"),
		agent.WithMaxSteps(3),
		agent.WithMaxSteps(0),
		agent.WithLLMTimeout(time.Second),
		agent.WithToolTimeout(0),
		agent.WithModel("llama3.2"),
		agent.WithMaxTokens(512),
		agent.WithTemperature(0.7),
		agent.WithSeed(42),
		agent.WithParallelToolCalls(true),
		agent.WithParseErrorRecovery(true),
		agent.WithConversationMemory(true),
	)
	assert.Equal(t, "weather", cfg.Name)
	assert.Equal(t, 3, cfg.MaxSteps)
	assert.Equal(t, time.Second, cfg.LLMTimeout)
	assert.Zero(t, cfg.ToolTimeout)
	assert.True(t, cfg.ParallelToolCalls)
	assert.True(t, cfg.ParseErrorRecovery)
	assert.True(t, cfg.ConversationMemory)

	co := llms.NewCallOptions(cfg.GetCallOptions()...)
	assert.Equal(t, "llama3.2", co.Model)
	assert.Equal(t, 512, co.MaxTokens)
	assert.Equal(t, 0.7, co.Temperature)
	assert.Equal(t, 42, co.Seed)

	// Apply does not modify the original
	cp := cfg.Apply(agent.WithMaxSteps(5), agent.WithModel(""))
	assert.Equal(t, 5, cp.MaxSteps)
	assert.Equal(t, 3, cfg.MaxSteps)
	assert.Empty(t, llms.NewCallOptions(cp.GetCallOptions()...).Model)
	assert.Equal(t, "llama3.2", llms.NewCallOptions(cfg.GetCallOptions()...).Model)
}

func TestProtocolByName(t *testing.T) {
	for _, name := range []string{"react", "ReAct"} {
		p, ok := agent.ProtocolByName(name)
		assert.True(t, ok)
		assert.Equal(t, "react", p.Name())
	}
	for _, name := range []string{"function_calling", "function-calling", "functions", "tools"} {
		p, ok := agent.ProtocolByName(name)
		assert.True(t, ok)
		assert.Equal(t, "function_calling", p.Name())
	}
	_, ok := agent.ProtocolByName("plan_and_execute")
	assert.False(t, ok)
}
