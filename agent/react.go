package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/effective-security/toolagent/tools"
	"github.com/google/uuid"
)

// ReActStopWord is the stop sequence of the ReAct protocol,
// the observation is always provided by the tool.
const ReActStopWord = "\nObservation:"

const reactSystemPrompt = `Answer the following questions as best you can. You have access to the following tools:

{{ range .tools -}}
{{ .Name }}: {{ .Description | trim }}
{{- with .Params }}
  Parameters:
{{- range . }}
    - {{ .Name }} ({{ .Type }}{{ if .Required }}, required{{ end }}){{ with .Description }}: {{ . }}{{ end }}
{{- end }}
{{- end }}
{{ end }}
Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [{{ .names | join ", " }}]
Action Input: the input to the action, a JSON object with the parameters of the tool
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original input question

Never write both an Action and a Final Answer in the same reply.
Stop after Action Input, the Observation is provided to you.
Begin!`

const reactCorrectionPrompt = `Your previous reply could not be parsed: {{ .reason }}.
Reply with either "Action:" followed by "Action Input:", or with "Final Answer:".`

var (
	reactSystemTemplate = prompts.NewSystemMessagePromptTemplate(reactSystemPrompt, []string{"tools", "names"})
	// reactCorrection replays the unparsable reply followed by the correction
	reactCorrection = prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewAIMessagePromptTemplate("{{ .output }}", []string{"output"}),
		prompts.NewHumanMessagePromptTemplate(reactCorrectionPrompt, []string{"reason"}),
	})

	reactActionRe = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
	reactActionOnlyRe = regexp.MustCompile(`(?m)^\s*Action\s*\d*\s*:`)
	reactFinalRe      = regexp.MustCompile(`(?s)Final Answer\s*:\s*(.*)`)
)

// ReAct is the free text protocol: the model writes
// Thought / Action / Action Input, and the tool result is offered as Observation.
type ReAct struct{}

// NewReAct returns the ReAct protocol.
func NewReAct() *ReAct {
	return &ReAct{}
}

// Name implements Protocol.
func (p *ReAct) Name() string {
	return "react"
}

// Prepare implements Protocol.
func (p *ReAct) Prepare(_ llms.Model, specs []tools.Spec, transcript *chatmodel.Transcript) ([]llms.Message, []llms.CallOption, error) {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	system, err := reactSystemTemplate.FormatMessage(map[string]any{
		"tools": specs,
		"names": names,
	})
	if err != nil {
		return nil, nil, err
	}

	messages := []llms.Message{system}

	for _, e := range transcript.Entries() {
		switch v := e.(type) {
		case chatmodel.UserMessage:
			messages = append(messages, llms.MessageFromTextParts(llms.RoleHuman, "Question: "+v.Text))
		case chatmodel.ModelUtterance:
			switch {
			case v.ParseError != "":
				correction, err := reactCorrection.FormatPrompt(map[string]any{
					"output": v.Text,
					"reason": v.ParseError,
				})
				if err != nil {
					return nil, nil, err
				}
				messages = append(messages, correction.Messages()...)
			case v.IsFinal():
				messages = append(messages, llms.MessageFromTextParts(llms.RoleAI, "Final Answer: "+v.Text))
			default:
				messages = append(messages, llms.MessageFromTextParts(llms.RoleAI, v.Text))
			}
		case chatmodel.ToolResult:
			messages = append(messages, llms.MessageFromTextParts(llms.RoleHuman, "Observation: "+v.Content()))
		}
	}

	opts := []llms.CallOption{
		llms.WithStopWords([]string{ReActStopWord}),
	}
	return messages, opts, nil
}

// Parse implements Protocol.
func (p *ReAct) Parse(resp *llms.ContentResponse, specs []tools.Spec) (*Step, error) {
	output := resp.Text()
	if idx := strings.Index(output, ReActStopWord); idx >= 0 {
		output = output[:idx]
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, &chatmodel.MalformedModelOutputError{Output: output, Reason: "empty response"}
	}

	final := reactFinalRe.FindStringSubmatch(output)
	action := reactActionRe.FindStringSubmatch(output)

	switch {
	case final != nil && (action != nil || reactActionOnlyRe.MatchString(output)):
		return nil, &chatmodel.MalformedModelOutputError{
			Output: output,
			Reason: "reply contains both an Action and a Final Answer",
		}
	case final != nil:
		answer := strings.TrimSpace(final[1])
		if answer == "" {
			return nil, &chatmodel.MalformedModelOutputError{Output: output, Reason: "empty Final Answer"}
		}
		return &Step{Text: answer}, nil
	case action == nil:
		if reactActionOnlyRe.MatchString(output) {
			return nil, &chatmodel.MalformedModelOutputError{
				Output: output,
				Reason: `missing "Action Input:" after "Action:"`,
			}
		}
		return nil, &chatmodel.MalformedModelOutputError{
			Output: output,
			Reason: `missing "Action:" or "Final Answer:"`,
		}
	}

	name := strings.Trim(strings.TrimSpace(action[1]), "`\"'[]")
	name = strings.TrimSuffix(name, "()")
	if name == "" {
		return nil, &chatmodel.MalformedModelOutputError{Output: output, Reason: "empty Action"}
	}

	return &Step{
		Text: output,
		Calls: []chatmodel.ToolCall{
			{
				ID:        newCallID(),
				Name:      name,
				Arguments: reactArguments(action[2], findSpec(specs, name)),
			},
		},
	}, nil
}

// reactArguments cleans the Action Input to a JSON object when possible.
// A plain text input of a single string parameter tool is wrapped as the parameter value.
func reactArguments(input string, spec *tools.Spec) string {
	input = strings.TrimSpace(llmutils.TrimBackticks(strings.TrimSpace(input)))

	if cleaned := llmutils.CleanJSON([]byte(input)); len(cleaned) > 0 && cleaned[0] == '{' && json.Valid(cleaned) {
		return string(cleaned)
	}

	if spec != nil {
		if param, ok := spec.SingleStringParam(); ok {
			js, _ := json.Marshal(map[string]string{param: strings.Trim(input, `"'`)})
			return string(js)
		}
	}
	return input
}

func findSpec(specs []tools.Spec, name string) *tools.Spec {
	for i := range specs {
		if specs[i].Name == name {
			return &specs[i]
		}
	}
	return nil
}

func newCallID() string {
	return "call_" + uuid.NewString()
}
