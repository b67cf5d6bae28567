package prompts

import (
	"strings"

	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
)

// ChatPromptValue is a prompt value that is a list of chat messages.
type ChatPromptValue []llms.Message

// String returns the chat message slice as a buffer string.
func (v ChatPromptValue) String() string {
	var buf strings.Builder
	llmutils.PrintMessages(&buf, v)
	return buf.String()
}

// Messages returns the Message slice.
func (v ChatPromptValue) Messages() []llms.Message {
	return v
}

// MessageFormatter renders a single message.
type MessageFormatter interface {
	FormatMessage(values map[string]any) (llms.Message, error)
}

// MessagePromptTemplate renders a message of the role from a template.
type MessagePromptTemplate struct {
	Role     llms.Role
	Template *Template
}

// FormatMessage implements MessageFormatter.
func (p MessagePromptTemplate) FormatMessage(values map[string]any) (llms.Message, error) {
	text, err := p.Template.Format(values)
	if err != nil {
		return llms.Message{}, err
	}
	return llms.MessageFromTextParts(p.Role, text), nil
}

// NewSystemMessagePromptTemplate returns a system message template.
func NewSystemMessagePromptTemplate(text string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:     llms.RoleSystem,
		Template: MustTemplate("system", text, inputVariables),
	}
}

// NewHumanMessagePromptTemplate returns a human message template.
func NewHumanMessagePromptTemplate(text string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:     llms.RoleHuman,
		Template: MustTemplate("human", text, inputVariables),
	}
}

// NewAIMessagePromptTemplate returns an AI message template.
func NewAIMessagePromptTemplate(text string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:     llms.RoleAI,
		Template: MustTemplate("ai", text, inputVariables),
	}
}

// ChatPromptTemplate renders a list of messages.
type ChatPromptTemplate struct {
	Messages []MessageFormatter
}

// NewChatPromptTemplate returns a template of the messages.
func NewChatPromptTemplate(messages []MessageFormatter) ChatPromptTemplate {
	return ChatPromptTemplate{Messages: messages}
}

// FormatPrompt renders all messages in order.
func (p ChatPromptTemplate) FormatPrompt(values map[string]any) (ChatPromptValue, error) {
	res := make(ChatPromptValue, 0, len(p.Messages))
	for _, m := range p.Messages {
		msg, err := m.FormatMessage(values)
		if err != nil {
			return nil, err
		}
		res = append(res, msg)
	}
	return res, nil
}
