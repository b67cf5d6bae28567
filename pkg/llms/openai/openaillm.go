package openai

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "openai")

// ErrEmptyResponse is returned when the API returns no choices.
var ErrEmptyResponse = errors.New("empty response")

// ErrMissingToken is returned when the API token is required but not set.
var ErrMissingToken = errors.New("missing the OpenAI API key, set it in the OPENAI_API_KEY environment variable")

// LLM is the OpenAI compatible chat completions backend.
type LLM struct {
	client   openai.Client
	model    string
	provider llms.ProviderType
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI compatible LLM.
func New(opts ...Option) (*LLM, error) {
	o := newOptions(opts...)
	if o.token == "" && o.provider == llms.ProviderOpenAI {
		return nil, errors.WithStack(ErrMissingToken)
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(o.token),
		option.WithMaxRetries(o.maxRetries),
	}
	if o.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(o.baseURL))
	}
	if o.organization != "" {
		sdkOpts = append(sdkOpts, option.WithOrganization(o.organization))
	}
	if o.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(o.httpClient))
	}

	return &LLM{
		client:   openai.NewClient(sdkOpts...),
		model:    o.model,
		provider: o.provider,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return o.provider
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)

	msgs, err := messagesFromMessages(messages)
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(values.StringsCoalesce(opts.Model, o.model)),
		Messages: msgs,
	}
	if opts.TemperatureSet {
		req.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.TopP > 0 {
		req.TopP = openai.Float(opts.TopP)
	}
	if opts.Seed != 0 {
		req.Seed = openai.Int(int64(opts.Seed))
	}
	if len(opts.StopWords) > 0 {
		req.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}
	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return nil, err
		}
		req.Tools = append(req.Tools, t)
	}
	if choice, ok := opts.ToolChoice.(string); ok && choice != "" && len(req.Tools) > 0 {
		req.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(choice)}
	}

	result, err := o.client.Chat.Completions.New(ctx, req)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "api_error",
				"provider", o.provider,
				"model", req.Model,
				"code", apiErr.StatusCode,
			)
		}
		return nil, errors.Wrap(err, "chat completion failed")
	}
	if len(result.Choices) == 0 {
		return nil, errors.WithStack(ErrEmptyResponse)
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
			GenerationInfo: map[string]any{
				llmutils.InfoInputTokens:  result.Usage.PromptTokens,
				llmutils.InfoOutputTokens: result.Usage.CompletionTokens,
				llmutils.InfoTotalTokens:  result.Usage.TotalTokens,
			},
		}
		for _, tc := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func messagesFromMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	res := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, mc := range messages {
		text, calls, responses := splitParts(mc.Parts)

		switch mc.Role {
		case llms.RoleSystem:
			res = append(res, openai.SystemMessage(text))
		case llms.RoleHuman:
			res = append(res, openai.UserMessage(text))
		case llms.RoleAI:
			if len(calls) == 0 {
				res = append(res, openai.AssistantMessage(text))
				continue
			}
			msg := openai.ChatCompletionAssistantMessageParam{}
			if text != "" {
				msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
			}
			for _, tc := range calls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.FunctionCall.Name,
							Arguments: tc.FunctionCall.Arguments,
						},
					},
				})
			}
			res = append(res, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		case llms.RoleTool:
			if len(responses) == 0 {
				return nil, errors.Errorf("expected tool call response for role %v", mc.Role)
			}
			for _, r := range responses {
				res = append(res, openai.ToolMessage(r.Content, r.ToolCallID))
			}
		default:
			return nil, errors.Errorf("role %v not supported", mc.Role)
		}
	}
	return res, nil
}

func splitParts(parts []llms.ContentPart) (string, []llms.ToolCall, []llms.ToolCallResponse) {
	var text string
	var calls []llms.ToolCall
	var responses []llms.ToolCallResponse
	for _, part := range parts {
		switch p := part.(type) {
		case llms.TextContent:
			if text != "" {
				text += "\n"
			}
			text += p.Text
		case llms.ToolCall:
			if p.FunctionCall != nil {
				calls = append(calls, p)
			}
		case llms.ToolCallResponse:
			responses = append(responses, p)
		}
	}
	return text, calls, responses
}

// toolFromTool converts an llms.Tool to a function tool.
func toolFromTool(t llms.Tool) (openai.ChatCompletionToolUnionParam, error) {
	if t.Type != "function" || t.Function == nil {
		return openai.ChatCompletionToolUnionParam{}, errors.Errorf("tool type %v not supported", t.Type)
	}

	def := openai.FunctionDefinitionParam{
		Name: t.Function.Name,
	}
	if t.Function.Description != "" {
		def.Description = openai.String(t.Function.Description)
	}
	if t.Function.Strict {
		def.Strict = openai.Bool(true)
	}
	if t.Function.Parameters != nil {
		js, err := json.Marshal(t.Function.Parameters)
		if err != nil {
			return openai.ChatCompletionToolUnionParam{}, errors.Wrap(err, "failed to marshal parameters")
		}
		params := openai.FunctionParameters{}
		if err = json.Unmarshal(js, &params); err != nil {
			return openai.ChatCompletionToolUnionParam{}, errors.Wrap(err, "failed to unmarshal parameters")
		}
		def.Parameters = params
	}
	return openai.ChatCompletionFunctionTool(def), nil
}
