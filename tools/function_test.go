package tools_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/toolagent/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cityRequest struct {
	City string `json:"city" jsonschema:"description=Name of the city"`
}

type temperature int

func (t temperature) String() string {
	return strconv.Itoa(int(t))
}

func TestFunc(t *testing.T) {
	t.Parallel()

	tool, err := tools.NewFunc("get_temperature", "Returns the temperature in a city",
		func(_ context.Context, req *cityRequest) (*temperature, error) {
			if req.City == "" {
				return nil, errors.New("city is required")
			}
			v := temperature(21)
			return &v, nil
		})
	require.NoError(t, err)

	var _ tools.Tool[cityRequest, temperature] = tool

	assert.Equal(t, "get_temperature", tool.Name())
	assert.Equal(t, "Returns the temperature in a city", tool.Description())

	exp := `{
	"properties": {
		"city": {
			"type": "string",
			"description": "Name of the city"
		}
	},
	"additionalProperties": false,
	"type": "object",
	"required": [
		"city"
	]
}`
	assert.Equal(t, exp, llmutils.ToJSONIndent(tool.Parameters()))

	spec := tools.SpecOf(tool)
	name, ok := spec.SingleStringParam()
	assert.True(t, ok)
	assert.Equal(t, "city", name)

	ctx := context.Background()
	out, err := tool.Call(ctx, `{"city":"Paris"}`)
	require.NoError(t, err)
	assert.Equal(t, "21", out)

	// model output with fences is cleaned
	out, err = tool.Call(ctx, "```json\n{\"city\":\"Paris\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "21", out)

	_, err = tool.Call(ctx, "Paris")
	assert.ErrorIs(t, err, chatmodel.ErrFailedUnmarshalInput)

	_, err = tool.Call(ctx, `{}`)
	assert.EqualError(t, err, "city is required")

	res, err := tool.Run(ctx, &cityRequest{City: "Paris"})
	require.NoError(t, err)
	assert.Equal(t, temperature(21), *res)
}

func TestNewFunc_Errors(t *testing.T) {
	t.Parallel()

	_, err := tools.NewFunc[cityRequest, string]("", "", func(context.Context, *cityRequest) (*string, error) { return nil, nil })
	assert.EqualError(t, err, "tool name is required")

	_, err = tools.NewFunc[cityRequest, string]("x", "", nil)
	assert.EqualError(t, err, `tool "x": function is required`)

	_, err = tools.NewFunc[string, string]("x", "", func(context.Context, *string) (*string, error) { return nil, nil })
	assert.EqualError(t, err, `tool "x": failed to create schema: tool input must be a struct, got string`)

	assert.Panics(t, func() {
		tools.MustFunc[cityRequest, string]("", "", nil)
	})
}

func TestStringify(t *testing.T) {
	t.Parallel()

	first := "first"
	var nilString *string
	tcases := []struct {
		in  any
		exp string
	}{
		{in: "plain", exp: "plain"},
		{in: &first, exp: "first"},
		{in: nilString, exp: ""},
		{in: temperature(7), exp: "7"},
		{in: &cityRequest{City: "Paris"}, exp: `{"city":"Paris"}`},
		{in: 0.92, exp: "0.92"},
	}
	for _, tc := range tcases {
		out, err := tools.Stringify(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.exp, out)
	}
}
