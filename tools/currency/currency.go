package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "currency")

// ToolName is the name of the exchange rate tool
const ToolName = "fetch_live_rate"

// DefaultEndpoints are the URL templates of the public currency API,
// `%s` is replaced with the lower-cased source currency code.
var DefaultEndpoints = []string{
	"https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1/currencies/%s.json",
	"https://latest.currency-api.pages.dev/v1/currencies/%s.json",
}

// DefaultTimeout is the timeout for each endpoint
const DefaultTimeout = 5 * time.Second

// RateRequest represents the tool input.
type RateRequest struct {
	From string `json:"from_currency" yaml:"from_currency" jsonschema:"description=3-letter source currency code\\, e.g. USD,minLength=3,maxLength=3"`
	To   string `json:"to_currency" yaml:"to_currency" jsonschema:"description=3-letter target currency code\\, e.g. EUR,minLength=3,maxLength=3"`
}

// Rate is the exchange rate, target units per one source unit.
type Rate float64

func (r Rate) String() string {
	return strconv.FormatFloat(float64(r), 'f', -1, 64)
}

// Fetcher retrieves live exchange rates, trying the endpoints in order.
type Fetcher struct {
	endpoints  []string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures the Fetcher
type Option func(*Fetcher)

// WithEndpoints sets the URL templates of the currency API.
func WithEndpoints(endpoints ...string) Option {
	return func(f *Fetcher) {
		f.endpoints = endpoints
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithTimeout sets the timeout for each endpoint.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = timeout
	}
}

// NewFetcher returns a Fetcher for the public currency API.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		endpoints:  DefaultEndpoints,
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New returns the fetch_live_rate tool.
func New(opts ...Option) (tools.Tool[RateRequest, Rate], error) {
	f := NewFetcher(opts...)
	tool, err := tools.NewFunc[RateRequest, Rate](ToolName,
		"Retrieve a live exchange rate from a public exchange rate API. Returns the target units per one source unit.",
		f.Run,
	)
	if err != nil {
		return nil, err
	}
	return tool, nil
}

// Run is the tool implementation
func (f *Fetcher) Run(ctx context.Context, req *RateRequest) (*Rate, error) {
	rate, err := f.FetchRate(ctx, req.From, req.To)
	if err != nil {
		return nil, err
	}
	r := Rate(rate)
	return &r, nil
}

// FetchRate returns the exchange rate from one currency to another.
func (f *Fetcher) FetchRate(ctx context.Context, from, to string) (float64, error) {
	base := strings.ToLower(strings.TrimSpace(from))
	target := strings.ToLower(strings.TrimSpace(to))
	if base == "" || target == "" {
		return 0, errors.New("both currency codes are required")
	}

	for _, tmpl := range f.endpoints {
		url := fmt.Sprintf(tmpl, base)
		rate, err := f.fetch(ctx, url, base, target)
		if err == nil {
			return rate, nil
		}
		if ctx.Err() != nil {
			return 0, errors.WithStack(ctx.Err())
		}
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "endpoint_failed",
			"url", url,
			"err", err.Error(),
		)
	}

	return 0, errors.Newf("failed to fetch exchange rate from %s to %s", from, to)
}

func (f *Fetcher) fetch(ctx context.Context, url, base, target string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.Newf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read response")
	}

	var data map[string]json.RawMessage
	if err = json.Unmarshal(body, &data); err != nil {
		return 0, errors.Wrap(err, "failed to decode response")
	}
	raw, ok := data[base]
	if !ok {
		return 0, errors.Newf("currency %s not found", base)
	}
	var rates map[string]float64
	if err = json.Unmarshal(raw, &rates); err != nil {
		return 0, errors.Wrap(err, "failed to decode rates")
	}
	rate, ok := rates[target]
	if !ok {
		return 0, errors.Newf("currency %s not found", target)
	}
	return rate, nil
}
