package agent

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/effective-security/toolagent/tools"
)

// DefaultFunctionCallingPrompt is the default system prompt of the function calling protocol.
const DefaultFunctionCallingPrompt = `You are a helpful assistant.
{{- with .names }}
Use the provided tools when they help to answer: {{ join ", " . }}.
Call a tool only with the parameters it declares.
{{- end }}
When a tool returns an error, correct the call or answer without it.
Reply with the final answer when you have it.`

const functionCallingCorrectionPrompt = `Your previous reply could not be used: {{ .reason }}.
Call one of the tools, or reply with the final answer.`

var functionCallingCorrection = prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
	prompts.NewAIMessagePromptTemplate("{{ .output }}", []string{"output"}),
	prompts.NewHumanMessagePromptTemplate(functionCallingCorrectionPrompt, []string{"reason"}),
})

// FunctionCalling is the structured protocol: tools are offered as
// function definitions, and the model replies with tool calls.
type FunctionCalling struct {
	system *prompts.Template
}

// NewFunctionCalling returns the function calling protocol with the default system prompt.
func NewFunctionCalling() *FunctionCalling {
	return &FunctionCalling{
		system: prompts.MustTemplate("function_calling_system", DefaultFunctionCallingPrompt, []string{"names"}),
	}
}

// NewFunctionCallingWithPrompt returns the function calling protocol with a custom system prompt template.
// The template receives `names`, the list of tool names.
func NewFunctionCallingWithPrompt(prompt string) (*FunctionCalling, error) {
	tmpl, err := prompts.NewTemplate("function_calling_system", prompt, nil)
	if err != nil {
		return nil, err
	}
	return &FunctionCalling{system: tmpl}, nil
}

// Name implements Protocol.
func (p *FunctionCalling) Name() string {
	return "function_calling"
}

// Prepare implements Protocol.
func (p *FunctionCalling) Prepare(model llms.Model, specs []tools.Spec, transcript *chatmodel.Transcript) ([]llms.Message, []llms.CallOption, error) {
	pt := model.GetProviderType()
	if len(specs) > 0 && !pt.Supports(llms.CapabilityFunctionCalling) {
		return nil, nil, errors.Newf("provider %s does not support function calling", pt)
	}

	names := make([]string, 0, len(specs))
	defs := make([]llms.Tool, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Schema,
			},
		})
	}

	system, err := prompts.MessagePromptTemplate{
		Role:     llms.RoleSystem,
		Template: p.system,
	}.FormatMessage(map[string]any{"names": names})
	if err != nil {
		return nil, nil, err
	}

	messages := []llms.Message{system}

	for _, e := range transcript.Entries() {
		switch v := e.(type) {
		case chatmodel.UserMessage:
			messages = append(messages, llms.MessageFromTextParts(llms.RoleHuman, v.Text))
		case chatmodel.ModelUtterance:
			switch {
			case v.ParseError != "":
				correction, err := functionCallingCorrection.FormatPrompt(map[string]any{
					"output": v.Text,
					"reason": v.ParseError,
				})
				if err != nil {
					return nil, nil, err
				}
				messages = append(messages, correction.Messages()...)
			case v.IsFinal():
				messages = append(messages, llms.MessageFromTextParts(llms.RoleAI, v.Text))
			default:
				var parts []llms.ContentPart
				if v.Text != "" {
					parts = append(parts, llms.TextPart(v.Text))
				}
				for _, call := range v.Requested {
					parts = append(parts, llms.ToolCall{
						ID:   call.ID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      call.Name,
							Arguments: call.Arguments,
						},
					})
				}
				messages = append(messages, llms.MessageFromParts(llms.RoleAI, parts...))
			}
		case chatmodel.ToolResult:
			messages = append(messages, llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
				ToolCallID: v.CallID,
				Name:       v.Name,
				Content:    v.Content(),
				IsError:    v.Failed(),
			}))
		}
	}

	var opts []llms.CallOption
	if len(defs) > 0 {
		opts = append(opts, llms.WithTools(defs))
	}
	return messages, opts, nil
}

// Parse implements Protocol.
func (p *FunctionCalling) Parse(resp *llms.ContentResponse, _ []tools.Spec) (*Step, error) {
	text := strings.TrimSpace(resp.Text())

	toolCalls := resp.ToolCalls()
	if len(toolCalls) > 0 {
		step := &Step{Text: text}
		seen := make(map[string]bool, len(toolCalls))
		for _, tc := range toolCalls {
			if tc.FunctionCall == nil || tc.FunctionCall.Name == "" {
				return nil, &chatmodel.MalformedModelOutputError{
					Output: text,
					Reason: "tool call without function name",
				}
			}
			id := tc.ID
			if id == "" || seen[id] {
				id = newCallID()
			}
			seen[id] = true
			step.Calls = append(step.Calls, chatmodel.ToolCall{
				ID:        id,
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			})
		}
		return step, nil
	}

	if text == "" {
		return nil, &chatmodel.MalformedModelOutputError{Output: text, Reason: "empty response"}
	}
	return &Step{Text: text}, nil
}
