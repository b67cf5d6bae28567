// Package bedrock implements the llms.Model for Anthropic models
// hosted on Amazon Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "bedrock")

var (
	ErrEmptyResponse          = errors.New("bedrock: no response")
	ErrUnsupportedModel       = errors.New("bedrock: only Anthropic models are supported")
	ErrUnsupportedMessageType = errors.New("bedrock: unsupported message type")
)

const (
	DefaultModel     = "anthropic.claude-3-5-haiku-20241022-v1:0"
	DefaultMaxTokens = 4096
)

// LLM is a Bedrock backend
type LLM struct {
	Client  *bedrockruntime.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a Bedrock backend,
// credentials are resolved by the default AWS chain unless static ones are provided.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Model:  os.Getenv(ModelEnvVarName),
		Region: os.Getenv(RegionEnvVarName),
	}
	for _, opt := range opts {
		opt(options)
	}
	options.Model = values.StringsCoalesce(options.Model, DefaultModel)

	if ModelProvider(options.Model) != "anthropic" {
		return nil, errors.WithMessagef(ErrUnsupportedModel, "model %s", options.Model)
	}

	client := options.client
	if client == nil {
		var loadOpts []func(*config.LoadOptions) error
		if options.Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(options.Region))
		}
		if options.AccessKeyID != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(options.AccessKeyID, options.SecretAccessKey, options.SessionToken),
			))
		}
		if options.MaxRetries > 0 {
			loadOpts = append(loadOpts, config.WithRetryMaxAttempts(options.MaxRetries))
		}

		cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "bedrock: failed to load AWS configuration")
		}
		client = bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
			if options.BaseURL != "" {
				o.BaseEndpoint = aws.String(options.BaseURL)
			}
		})
	}

	return &LLM{
		Client:  client,
		Options: options,
	}, nil
}

// ModelProvider returns the vendor of the model ID,
// the region prefix of an inference profile is skipped.
func ModelProvider(modelID string) string {
	parts := strings.Split(modelID, ".")
	if len(parts) >= 2 && len(parts[0]) == 2 && strings.ToLower(parts[0]) == parts[0] {
		return parts[1]
	}
	return parts[0]
}

// GetName implements the Model interface.
func (l *LLM) GetName() string {
	return l.Options.Model
}

// GetProviderType implements the Model interface.
func (l *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderBedrock
}

// GenerateContent implements the Model interface.
func (l *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)
	modelID := values.StringsCoalesce(opts.Model, l.Options.Model)

	input, err := ProcessMessages(messages)
	if err != nil {
		return nil, err
	}
	input.AnthropicVersion = AnthropicVersion
	input.MaxTokens = values.NumbersCoalesce(opts.MaxTokens, DefaultMaxTokens)
	input.StopSequences = opts.StopWords
	input.Tools = toTools(opts.Tools)
	if opts.TemperatureSet {
		input.Temperature = &opts.Temperature
	}
	if opts.TopP > 0 {
		input.TopP = &opts.TopP
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	resp, err := l.Client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "invoke_model",
			"model", modelID,
			"err", err.Error(),
		)
		return nil, errors.Wrap(err, "bedrock: failed to invoke model")
	}

	var output messagesOutput
	if err = json.Unmarshal(resp.Body, &output); err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to decode response")
	}
	if len(output.Content) == 0 {
		return nil, errors.WithStack(ErrEmptyResponse)
	}
	if output.StopReason == stopReasonMaxTokens {
		return nil, errors.Errorf("bedrock: completed due to %s, increase max tokens", output.StopReason)
	}

	in := int64(output.Usage.InputTokens)
	out := int64(output.Usage.OutputTokens)
	choice := &llms.ContentChoice{
		StopReason: output.StopReason,
		GenerationInfo: map[string]any{
			llmutils.InfoInputTokens:  in,
			llmutils.InfoOutputTokens: out,
			llmutils.InfoTotalTokens:  in + out,
			"ID":                      output.ID,
		},
	}
	for _, c := range output.Content {
		switch c.Type {
		case contentTypeText:
			if choice.Content != "" {
				choice.Content += "\n"
			}
			choice.Content += c.Text
		case contentTypeToolUse:
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   c.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      c.Name,
					Arguments: values.StringsCoalesce(string(c.Input), "{}"),
				},
			})
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{choice},
	}, nil
}
