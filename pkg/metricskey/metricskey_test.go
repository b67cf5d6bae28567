package metricskey

import (
	"sort"
	"testing"

	"github.com/effective-security/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMetricsDefinitions(t *testing.T) {
	for _, m := range Metrics {
		assert.NotEmpty(t, m.Name, "Metric name should not be empty")
		assert.NotEmpty(t, m.Help, "Metric help text should not be empty")
		assert.NotEmpty(t, m.RequiredTags, "Metric should have required tags")
	}
	assert.Len(t, Metrics, 17)

	isSorted := sort.SliceIsSorted(Metrics, func(i, j int) bool {
		return Metrics[i].Name < Metrics[j].Name
	})
	assert.True(t, isSorted, "Metrics slice should be sorted by name")

	seen := make(map[string]bool)
	for _, m := range Metrics {
		assert.False(t, seen[m.Name], "Metric name should be unique: %s", m.Name)
		seen[m.Name] = true
	}

	t.Run("agent metrics have agent tag", func(t *testing.T) {
		list := []*metrics.Describe{
			&StatsLLMMessagesSent,
			&StatsLLMBytesSent,
			&StatsLLMBytesReceived,
			&StatsAgentRunsSucceeded,
			&StatsAgentRunsFailed,
			&StatsAgentSteps,
			&StatsAgentParseErrors,
			&PerfAgentRun,
			&PerfLLMCall,
		}
		for _, m := range list {
			assert.Contains(t, m.RequiredTags, "agent", "metric should have agent tag: %s", m.Name)
		}
	})

	t.Run("tool metrics have tool tag", func(t *testing.T) {
		list := []*metrics.Describe{
			&StatsToolCallsSucceeded,
			&StatsToolCallsFailed,
			&StatsToolCallsNotFound,
			&StatsToolCallsInvalidArgs,
			&PerfToolCall,
		}
		for _, m := range list {
			assert.Contains(t, m.RequiredTags, "tool", "metric should have tool tag: %s", m.Name)
		}
	})
}
