package calculator_test

import (
	"context"
	"testing"

	"github.com/effective-security/toolagent/tools/calculator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		expr string
		exp  float64
	}{
		{"100 * 0.85", 85},
		{"1000 * 0.9", 900},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"7 / 2", 3.5},
		{"-5 + 2", -3},
		{"2 ** 10", 1024},
		{" 42 ", 42},
	}
	for _, tc := range tcases {
		t.Run(tc.expr, func(t *testing.T) {
			v, err := calculator.Evaluate(tc.expr)
			require.NoError(t, err)
			assert.InDelta(t, tc.exp, v, 1e-9)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	t.Parallel()

	for _, e := range []string{
		"",
		"2 +",
		"len('abc')",
		"'abc'",
		"1 == 1",
		"1 / 0",
	} {
		t.Run(e, func(t *testing.T) {
			_, err := calculator.Evaluate(e)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "calculation error")
		})
	}
}

func TestTool(t *testing.T) {
	t.Parallel()

	tool, err := calculator.New()
	require.NoError(t, err)
	assert.Equal(t, calculator.ToolName, tool.Name())

	out, err := tool.Call(context.Background(), `{"expression":"100 * 0.9"}`)
	require.NoError(t, err)
	assert.Equal(t, "90", out)

	_, err = tool.Call(context.Background(), `{"expression":"import os"}`)
	assert.Error(t, err)

	assert.Equal(t, "0.5", calculator.Result(0.5).String())
}
