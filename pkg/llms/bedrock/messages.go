package bedrock

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/invopop/jsonschema"
)

// AnthropicVersion is the Messages API version on Bedrock
const AnthropicVersion = "bedrock-2023-05-31"

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	contentTypeText       = "text"
	contentTypeToolUse    = "tool_use"
	contentTypeToolResult = "tool_result"

	stopReasonMaxTokens = "max_tokens"
)

// Request is the body of InvokeModel for Anthropic models.
// Ref: https://docs.aws.amazon.com/bedrock/latest/userguide/model-parameters-anthropic-claude-messages.html
type Request struct {
	AnthropicVersion string     `json:"anthropic_version"`
	MaxTokens        int        `json:"max_tokens"`
	System           string     `json:"system,omitempty"`
	Messages         []*message `json:"messages"`
	Temperature      *float64   `json:"temperature,omitempty"`
	TopP             *float64   `json:"top_p,omitempty"`
	StopSequences    []string   `json:"stop_sequences,omitempty"`
	Tools            []tool     `json:"tools,omitempty"`
}

type message struct {
	Role    string    `json:"role"`
	Content []content `json:"content"`
}

type content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

type messagesOutput struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Role       string    `json:"role"`
	Content    []content `json:"content"`
	StopReason string    `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// toTools converts the tool definitions, non-function tools are skipped.
func toTools(tools []llms.Tool) []tool {
	var res []tool
	for _, t := range tools {
		if t.Function == nil {
			continue
		}
		schema := t.Function.Parameters
		if schema == nil {
			schema = &jsonschema.Schema{Type: "object"}
		}
		res = append(res, tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: schema,
		})
	}
	return res
}

// ProcessMessages converts the messages to the Messages API body.
// System messages are joined into the system prompt,
// and consecutive messages of the same role are merged,
// so tool results and observations share one user turn.
func ProcessMessages(messages []llms.Message) (*Request, error) {
	input := &Request{}
	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}

		var role string
		switch msg.Role {
		case llms.RoleSystem:
			for _, part := range msg.Parts {
				text, ok := part.(llms.TextContent)
				if !ok {
					return nil, errors.New("bedrock: system prompt must be text")
				}
				if input.System != "" {
					input.System += "\n"
				}
				input.System += text.Text
			}
			continue
		case llms.RoleHuman, llms.RoleTool:
			role = roleUser
		case llms.RoleAI:
			role = roleAssistant
		default:
			return nil, errors.WithMessagef(ErrUnsupportedMessageType, "bedrock: %v", msg.Role)
		}

		contents, err := toContent(msg.Parts)
		if err != nil {
			return nil, err
		}
		if len(contents) == 0 {
			continue
		}

		if n := len(input.Messages); n > 0 && input.Messages[n-1].Role == role {
			input.Messages[n-1].Content = append(input.Messages[n-1].Content, contents...)
			continue
		}
		input.Messages = append(input.Messages, &message{
			Role:    role,
			Content: contents,
		})
	}
	return input, nil
}

func toContent(parts []llms.ContentPart) ([]content, error) {
	res := make([]content, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case llms.TextContent:
			if p.Text == "" {
				continue
			}
			res = append(res, content{Type: contentTypeText, Text: p.Text})
		case llms.ToolCall:
			if p.FunctionCall == nil {
				continue
			}
			args := values.StringsCoalesce(p.FunctionCall.Arguments, "{}")
			if !json.Valid([]byte(args)) {
				return nil, errors.Errorf("bedrock: invalid tool call arguments for %s", p.FunctionCall.Name)
			}
			res = append(res, content{
				Type:  contentTypeToolUse,
				ID:    p.ID,
				Name:  p.FunctionCall.Name,
				Input: json.RawMessage(args),
			})
		case llms.ToolCallResponse:
			res = append(res, content{
				Type:      contentTypeToolResult,
				ToolUseID: p.ToolCallID,
				Content:   p.Content,
				IsError:   p.IsError,
			})
		default:
			return nil, errors.Errorf("bedrock: unsupported message part type: %T", part)
		}
	}
	return res, nil
}
