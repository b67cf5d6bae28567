// Package googleai implements the llms.Model for Gemini models
// over the Gemini API or Vertex AI.
package googleai

import (
	"context"
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"google.golang.org/genai"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "googleai")

var (
	ErrEmptyResponse          = errors.New("googleai: no candidates in response")
	ErrMissingToken           = errors.New("googleai: missing API key, set it in the GOOGLE_API_KEY environment variable")
	ErrUnsupportedMessageType = errors.New("googleai: unsupported message type")
)

const (
	DefaultModel = "gemini-2.5-flash"

	roleUser  = "user"
	roleModel = "model"
)

// LLM is a Gemini backend
type LLM struct {
	Client  *genai.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a Gemini backend.
// Vertex AI is used when a cloud project is set, otherwise the Gemini API with the API key.
func New(ctx context.Context, opts ...Option) (*LLM, error) {
	options := &Options{
		Token:         os.Getenv(TokenEnvVarName),
		Model:         os.Getenv(ModelEnvVarName),
		HarmThreshold: genai.HarmBlockThresholdBlockOnlyHigh,
	}
	for _, opt := range opts {
		opt(options)
	}
	options.Model = values.StringsCoalesce(options.Model, DefaultModel)

	cfg := &genai.ClientConfig{
		HTTPClient: options.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: options.BaseURL,
		},
	}
	if options.CloudProject != "" {
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = options.CloudProject
		cfg.Location = options.CloudLocation
		cfg.Credentials = options.Credentials
	} else {
		if options.Token == "" {
			return nil, errors.WithStack(ErrMissingToken)
		}
		cfg.Backend = genai.BackendGeminiAPI
		cfg.APIKey = options.Token
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to create client")
	}
	return &LLM{
		Client:  client,
		Options: options,
	}, nil
}

// GetName implements the Model interface.
func (g *LLM) GetName() string {
	return g.Options.Model
}

// GetProviderType implements the Model interface.
func (g *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the Model interface.
func (g *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)
	model := values.StringsCoalesce(opts.Model, g.Options.Model)

	callCfg := &genai.GenerateContentConfig{
		CandidateCount:  1,
		MaxOutputTokens: int32(opts.MaxTokens),
		StopSequences:   opts.StopWords,
		SafetySettings:  g.safetySettings(),
	}
	if opts.TemperatureSet {
		callCfg.Temperature = float32Ptr(float32(opts.Temperature))
	}
	if opts.TopP > 0 {
		callCfg.TopP = float32Ptr(float32(opts.TopP))
	}
	if opts.Seed != 0 {
		seed := int32(opts.Seed)
		callCfg.Seed = &seed
	}

	var err error
	if callCfg.Tools, err = ConvertTools(opts.Tools); err != nil {
		return nil, err
	}

	history, system, err := ProcessMessages(messages)
	if err != nil {
		return nil, err
	}
	callCfg.SystemInstruction = system

	resp, err := g.Client.Models.GenerateContent(ctx, model, history, callCfg)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "generate_content",
			"model", model,
			"err", err.Error(),
		)
		return nil, errors.Wrap(err, "googleai: failed to generate content")
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.WithStack(ErrEmptyResponse)
	}
	return convertCandidates(resp.Candidates, resp.UsageMetadata)
}

func (g *LLM) safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
	}
	res := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		res = append(res, &genai.SafetySetting{
			Category:  c,
			Threshold: g.Options.HarmThreshold,
		})
	}
	return res
}

func convertCandidates(candidates []*genai.Candidate, usage *genai.GenerateContentResponseUsageMetadata) (*llms.ContentResponse, error) {
	res := &llms.ContentResponse{}
	for _, candidate := range candidates {
		choice := &llms.ContentChoice{
			StopReason:     string(candidate.FinishReason),
			GenerationInfo: map[string]any{},
		}
		if usage != nil {
			in := int64(usage.PromptTokenCount)
			out := int64(usage.CandidatesTokenCount) + int64(usage.ToolUsePromptTokenCount) + int64(usage.ThoughtsTokenCount)
			choice.GenerationInfo[llmutils.InfoInputTokens] = in
			choice.GenerationInfo[llmutils.InfoOutputTokens] = out
			choice.GenerationInfo[llmutils.InfoTotalTokens] = int64(usage.TotalTokenCount)
		}

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part == nil || part.Thought:
				case part.FunctionCall != nil:
					args, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return nil, errors.Wrap(err, "googleai: failed to marshal function call arguments")
					}
					choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
						ID:   part.FunctionCall.ID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: string(args),
						},
					})
				case part.Text != "":
					choice.Content += part.Text
				}
			}
		}
		res.Choices = append(res.Choices, choice)
	}
	return res, nil
}

// ProcessMessages converts the messages to the Gemini contents and the system instruction.
// Tool results are sent as user function responses,
// consecutive messages of the same role are merged.
func ProcessMessages(messages []llms.Message) ([]*genai.Content, *genai.Content, error) {
	var system *genai.Content
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		parts, err := convertParts(msg.Parts)
		if err != nil {
			return nil, nil, err
		}
		if len(parts) == 0 {
			continue
		}

		var role string
		switch msg.Role {
		case llms.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, parts...)
			continue
		case llms.RoleHuman, llms.RoleTool:
			role = roleUser
		case llms.RoleAI:
			role = roleModel
		default:
			return nil, nil, errors.WithMessagef(ErrUnsupportedMessageType, "googleai: %v", msg.Role)
		}

		if n := len(history); n > 0 && history[n-1].Role == role {
			history[n-1].Parts = append(history[n-1].Parts, parts...)
			continue
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: parts,
		})
	}
	return history, system, nil
}

func convertParts(parts []llms.ContentPart) ([]*genai.Part, error) {
	res := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case llms.TextContent:
			if p.Text == "" {
				continue
			}
			res = append(res, &genai.Part{Text: p.Text})
		case llms.ToolCall:
			if p.FunctionCall == nil {
				continue
			}
			var args map[string]any
			if err := json.Unmarshal([]byte(values.StringsCoalesce(p.FunctionCall.Arguments, "{}")), &args); err != nil {
				return nil, errors.Wrapf(err, "googleai: invalid tool call arguments for %s", p.FunctionCall.Name)
			}
			res = append(res, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   p.ID,
					Name: p.FunctionCall.Name,
					Args: args,
				},
			})
		case llms.ToolCallResponse:
			key := "output"
			if p.IsError {
				key = "error"
			}
			res = append(res, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       p.ToolCallID,
					Name:     p.Name,
					Response: map[string]any{key: p.Content},
				},
			})
		default:
			return nil, errors.Errorf("googleai: unsupported message part type: %T", part)
		}
	}
	return res, nil
}

func float32Ptr(f float32) *float32 {
	return &f
}
