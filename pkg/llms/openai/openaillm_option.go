package openai

import (
	"net/http"
	"os"

	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/x/values"
)

const (
	tokenEnvVarName        = "OPENAI_API_KEY"      //nolint:gosec
	modelEnvVarName        = "OPENAI_MODEL"        //nolint:gosec
	baseURLEnvVarName      = "OPENAI_BASE_URL"     //nolint:gosec
	organizationEnvVarName = "OPENAI_ORGANIZATION" //nolint:gosec
)

// Defaults per provider
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultOllamaModel    = "llama3.2"
	DefaultOllamaBaseURL  = "http://localhost:11434/v1"
	DefaultLiteLLMBaseURL = "http://localhost:4000"
	// ollamaToken is sent to Ollama, which ignores it
	ollamaToken = "ollama"
)

type options struct {
	token        string
	model        string
	baseURL      string
	organization string
	provider     llms.ProviderType
	httpClient   *http.Client
	maxRetries   int
}

// Option is a functional option for the OpenAI client.
type Option func(*options)

// WithToken passes the OpenAI API token to the client. If not set, the token
// is read from the OPENAI_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithModel passes the OpenAI model to the client. If not set, the model
// is read from the OPENAI_MODEL environment variable.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithBaseURL passes the OpenAI base url to the client. If not set, the base url
// is read from the OPENAI_BASE_URL environment variable, or the provider default.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithOrganization passes the OpenAI organization to the client. If not set, the
// organization is read from the OPENAI_ORGANIZATION.
func WithOrganization(organization string) Option {
	return func(opts *options) {
		opts.organization = organization
	}
}

// WithProvider sets the OpenAI compatible provider: OPENAI, OLLAMA or LITELLM.
// If not set, the default value is ProviderOpenAI.
func WithProvider(provider llms.ProviderType) Option {
	return func(opts *options) {
		opts.provider = provider
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithMaxRetries sets the number of retries of the SDK client.
func WithMaxRetries(n int) Option {
	return func(opts *options) {
		opts.maxRetries = n
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		provider:   llms.ProviderOpenAI,
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(o)
	}

	switch o.provider {
	case llms.ProviderOllama:
		o.baseURL = values.StringsCoalesce(o.baseURL, DefaultOllamaBaseURL)
		o.model = values.StringsCoalesce(o.model, DefaultOllamaModel)
		o.token = values.StringsCoalesce(o.token, ollamaToken)
	case llms.ProviderLiteLLM:
		o.baseURL = values.StringsCoalesce(o.baseURL, os.Getenv(baseURLEnvVarName), DefaultLiteLLMBaseURL)
		o.model = values.StringsCoalesce(o.model, os.Getenv(modelEnvVarName), DefaultOpenAIModel)
		o.token = values.StringsCoalesce(o.token, os.Getenv(tokenEnvVarName))
	default:
		o.baseURL = values.StringsCoalesce(o.baseURL, os.Getenv(baseURLEnvVarName))
		o.model = values.StringsCoalesce(o.model, os.Getenv(modelEnvVarName), DefaultOpenAIModel)
		o.token = values.StringsCoalesce(o.token, os.Getenv(tokenEnvVarName))
		o.organization = values.StringsCoalesce(o.organization, os.Getenv(organizationEnvVarName))
	}
	return o
}
