package currency_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/toolagent/tools/currency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher(t *testing.T) {
	t.Parallel()

	var primaryCalls, fallbackCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackCalls.Add(1)
		assert.Equal(t, "/v1/currencies/usd.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"date":"2026-10-19","usd":{"eur":0.9,"gbp":0.78,"jpy":150.25}}`))
	}))
	defer fallback.Close()

	f := currency.NewFetcher(
		currency.WithEndpoints(primary.URL+"/v1/currencies/%s.json", fallback.URL+"/v1/currencies/%s.json"),
		currency.WithHTTPClient(fallback.Client()),
		currency.WithTimeout(time.Second),
	)

	ctx := context.Background()
	rate, err := f.FetchRate(ctx, "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, 0.9, rate)
	assert.Equal(t, int32(1), primaryCalls.Load())
	assert.Equal(t, int32(1), fallbackCalls.Load())

	rate, err = f.FetchRate(ctx, "usd", "jpy")
	require.NoError(t, err)
	assert.Equal(t, 150.25, rate)

	_, err = f.FetchRate(ctx, "USD", "XXX")
	assert.EqualError(t, err, "failed to fetch exchange rate from USD to XXX")

	_, err = f.FetchRate(ctx, "", "EUR")
	assert.EqualError(t, err, "both currency codes are required")
}

func TestTool(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"date":"2026-10-19","usd":{"eur":0.9}}`))
	}))
	defer server.Close()

	tool, err := currency.New(
		currency.WithEndpoints(server.URL+"/%s.json"),
		currency.WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)
	assert.Equal(t, currency.ToolName, tool.Name())

	r, err := tools.NewRegistry(tool)
	require.NoError(t, err)

	spec := r.Describe()[0]
	require.Len(t, spec.Params, 2)
	assert.Equal(t, "from_currency", spec.Params[0].Name)
	assert.Equal(t, "3-letter source currency code, e.g. USD", spec.Params[0].Description)
	assert.True(t, spec.Params[1].Required)

	out, err := r.Dispatch(context.Background(), currency.ToolName, `{"from_currency":"USD","to_currency":"EUR"}`)
	require.NoError(t, err)
	assert.Equal(t, "0.9", out)

	// codes must have 3 letters
	_, err = r.Dispatch(context.Background(), currency.ToolName, `{"from_currency":"US","to_currency":"EUR"}`)
	assert.Error(t, err)
}

func TestRate_String(t *testing.T) {
	assert.Equal(t, "0.9", currency.Rate(0.9).String())
	assert.Equal(t, "150.25", currency.Rate(150.25).String())
	assert.Equal(t, "1", currency.Rate(1).String())
}
