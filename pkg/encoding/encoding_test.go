package encoding_test

import (
	"testing"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/encoding"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dump struct {
	Entries []chatmodel.Record `json:"entries" yaml:"entries" toml:"entries"`
}

func testDump() *dump {
	return &dump{
		Entries: []chatmodel.Record{
			{Kind: chatmodel.KindUserMessage, Text: "Convert 100 USD to EUR"},
			{
				Kind:  chatmodel.KindModelUtterance,
				Calls: []chatmodel.ToolCall{{ID: "call_1", Name: "fetch_live_rate", Arguments: `{"from_currency":"USD","to_currency":"EUR"}`}},
			},
			{Kind: chatmodel.KindToolCall, CallID: "call_1", Tool: "fetch_live_rate", Arguments: `{"from_currency":"USD","to_currency":"EUR"}`},
			{Kind: chatmodel.KindToolResult, CallID: "call_1", Tool: "fetch_live_rate", Value: "0.9"},
			{Kind: chatmodel.KindModelUtterance, Text: "100 USD is 90 EUR"},
		},
	}
}

func TestByFormat(t *testing.T) {
	for _, format := range encoding.Formats() {
		enc, err := encoding.ByFormat(format)
		require.NoError(t, err)
		assert.Equal(t, format, enc.Format())
	}

	enc, err := encoding.ByFormat("")
	require.NoError(t, err)
	assert.Equal(t, encoding.FormatYAML, enc.Format())

	enc, err = encoding.ByFormat(" YML ")
	require.NoError(t, err)
	assert.Equal(t, encoding.FormatYAML, enc.Format())

	_, err = encoding.ByFormat("xml")
	assert.EqualError(t, err, "unsupported format: xml")
}

func TestEncoders(t *testing.T) {
	exp := testDump()
	for _, format := range encoding.Formats() {
		t.Run(format, func(t *testing.T) {
			enc, err := encoding.ByFormat(format)
			require.NoError(t, err)

			bs, err := enc.Marshal(exp)
			require.NoError(t, err)
			assert.Contains(t, string(bs), "fetch_live_rate")
			assert.Contains(t, string(bs), "tool_result")

			var got dump
			require.NoError(t, enc.Unmarshal(bs, &got))
			if diff := cmp.Diff(exp, &got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshal_ModelOutput(t *testing.T) {
	type rate struct {
		From string  `json:"from" yaml:"from" toml:"from"`
		Rate float64 `json:"rate" yaml:"rate" toml:"rate"`
	}
	exp := rate{From: "USD", Rate: 0.9}

	tcases := []struct {
		format string
		text   string
	}{
		{encoding.FormatJSON, "Here is the rate:\n```json\n{\"from\": \"USD\", \"rate\": 0.9}\n```\nDone."},
		{encoding.FormatYAML, "```yaml\nfrom: USD\nrate: 0.9\n```"},
		{encoding.FormatTOML, "```toml\nfrom = \"USD\"\nrate = 0.9\n```"},
	}
	for _, tc := range tcases {
		t.Run(tc.format, func(t *testing.T) {
			enc, err := encoding.ByFormat(tc.format)
			require.NoError(t, err)

			var got rate
			require.NoError(t, enc.Unmarshal([]byte(tc.text), &got))
			assert.Equal(t, exp, got)
		})
	}
}
