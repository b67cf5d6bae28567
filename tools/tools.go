package tools

import (
	"context"

	"github.com/effective-security/toolagent/pkg/schema"
	"github.com/invopop/jsonschema"
)

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the JSON schema of the arguments object.
	Parameters() *jsonschema.Schema

	// Call executes the tool with the given JSON arguments and returns the result.
	// If the tool fails to parse the input, it should return ErrFailedUnmarshalInput error.
	Call(context.Context, string) (string, error)
}

// Callback receives the tool call events.
type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, input string)
	OnToolEnd(ctx context.Context, tool ITool, input string, output string)
	OnToolError(ctx context.Context, tool ITool, input string, err error)
}

// Tool is a typed tool.
type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

// Param describes a single named input of a tool.
type Param = schema.Param

// Spec is the description of a registered tool offered to the model.
type Spec struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Params      []Param            `json:"params,omitempty" yaml:"params,omitempty"`
	Schema      *jsonschema.Schema `json:"schema,omitempty" yaml:"-"`
}

// SpecOf returns the Spec of the tool.
func SpecOf(t ITool) Spec {
	params := t.Parameters()
	return Spec{
		Name:        t.Name(),
		Description: t.Description(),
		Params:      schema.Params(params),
		Schema:      params,
	}
}

// SingleStringParam returns the name of the only parameter,
// if the tool takes exactly one parameter of type string.
func (s Spec) SingleStringParam() (string, bool) {
	if len(s.Params) == 1 && s.Params[0].Type == "string" {
		return s.Params[0].Name, true
	}
	return "", false
}
