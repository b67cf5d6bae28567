package googleai

import (
	"net/http"

	"cloud.google.com/go/auth"
	"google.golang.org/genai"
)

const (
	TokenEnvVarName = "GOOGLE_API_KEY" //nolint:gosec
	ModelEnvVarName = "GOOGLEAI_MODEL"
)

// Options is a set of options for Gemini API and Vertex AI clients.
type Options struct {
	Token   string
	Model   string
	BaseURL string

	// CloudProject and CloudLocation select Vertex AI
	CloudProject  string
	CloudLocation string
	Credentials   *auth.Credentials

	HarmThreshold genai.HarmBlockThreshold
	HTTPClient    *http.Client
}

type Option func(*Options)

// WithToken passes the Gemini API key to the client. If not set, the key
// is read from the GOOGLE_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithCloudProject selects Vertex AI in the GCP project.
func WithCloudProject(project string) Option {
	return func(opts *Options) {
		opts.CloudProject = project
	}
}

// WithCloudLocation sets the Vertex AI location, such as us-central1.
func WithCloudLocation(location string) Option {
	return func(opts *Options) {
		opts.CloudLocation = location
	}
}

// WithCredentials authenticates Vertex AI calls with the credentials,
// by default Application Default Credentials are used.
func WithCredentials(credentials *auth.Credentials) Option {
	return func(opts *Options) {
		if credentials == nil {
			return
		}
		opts.Credentials = credentials
	}
}

// WithHarmThreshold sets the safety setting for the harm categories.
func WithHarmThreshold(ht genai.HarmBlockThreshold) Option {
	return func(opts *Options) {
		opts.HarmThreshold = ht
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}
