package llms_test

import (
	"testing"

	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	tools := []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name: "test",
			},
		},
	}
	meta := map[string]any{"test": "test"}
	stopWords := []string{"stop"}

	opts := llms.NewCallOptions(
		llms.WithModel("test"),
		llms.WithMaxTokens(100),
		llms.WithTemperature(0),
		llms.WithStopWords(stopWords),
		llms.WithTopP(0.5),
		llms.WithSeed(123),
		llms.WithTools(tools),
		llms.WithToolChoice("auto"),
		llms.WithMetadata(meta),
	)

	assert.Equal(t, "test", opts.Model)
	assert.Equal(t, 100, opts.MaxTokens)
	assert.Equal(t, 0.0, opts.Temperature)
	assert.True(t, opts.TemperatureSet)
	assert.Equal(t, stopWords, opts.StopWords)
	assert.Equal(t, 0.5, opts.TopP)
	assert.Equal(t, 123, opts.Seed)
	assert.Equal(t, tools, opts.Tools)
	assert.Equal(t, "auto", opts.ToolChoice)
	assert.Equal(t, meta, opts.Metadata)

	empty := llms.NewCallOptions()
	assert.False(t, empty.TemperatureSet)
	assert.Empty(t, empty.Tools)
}
