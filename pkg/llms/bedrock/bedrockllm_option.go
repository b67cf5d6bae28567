package bedrock

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	RegionEnvVarName = "AWS_REGION"
	ModelEnvVarName  = "BEDROCK_MODEL"
)

type Options struct {
	Model   string
	Region  string
	BaseURL string

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	MaxRetries int

	client *bedrockruntime.Client
}

type Option func(*Options)

// WithModel sets the Bedrock model ID, for example
// `anthropic.claude-3-5-haiku-20241022-v1:0` or an inference profile
// such as `us.anthropic.claude-3-5-haiku-20241022-v1:0`.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithRegion sets the AWS region, by default it is resolved by the AWS SDK.
func WithRegion(region string) Option {
	return func(opts *Options) {
		opts.Region = region
	}
}

// WithBaseURL overrides the Bedrock runtime endpoint.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithStaticCredentials uses the access key instead of the default credentials chain.
func WithStaticCredentials(accessKeyID, secretAccessKey, sessionToken string) Option {
	return func(opts *Options) {
		opts.AccessKeyID = accessKeyID
		opts.SecretAccessKey = secretAccessKey
		opts.SessionToken = sessionToken
	}
}

// WithMaxRetries sets the maximum number of attempts of the SDK client.
func WithMaxRetries(n int) Option {
	return func(opts *Options) {
		opts.MaxRetries = n
	}
}

// WithClient uses the provided Bedrock runtime client,
// the region, endpoint and credentials options are ignored.
func WithClient(client *bedrockruntime.Client) Option {
	return func(opts *Options) {
		opts.client = client
	}
}
