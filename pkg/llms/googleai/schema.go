package googleai

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/invopop/jsonschema"
	"google.golang.org/genai"
)

// ConvertTools converts the tool definitions to one genai tool with the function declarations.
func ConvertTools(tools []llms.Tool) ([]*genai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for i, tool := range tools {
		if tool.Type != "function" || tool.Function == nil {
			return nil, errors.Errorf("googleai: tool [%d]: unsupported type %q, want 'function'", i, tool.Type)
		}

		decl := &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
		}
		if tool.Function.Parameters != nil {
			decl.Parameters = ConvertSchema(tool.Function.Parameters)
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

// ConvertSchema converts a JSON schema to the OpenAPI subset Gemini accepts,
// unsupported keywords such as additionalProperties are dropped.
func ConvertSchema(js *jsonschema.Schema) *genai.Schema {
	if js == nil {
		return nil
	}

	s := &genai.Schema{
		Type:        ConvertType(js.Type),
		Description: js.Description,
		Required:    js.Required,
	}
	for _, e := range js.Enum {
		if v, ok := e.(string); ok {
			s.Enum = append(s.Enum, v)
		}
	}

	if js.Properties != nil {
		s.Properties = make(map[string]*genai.Schema, js.Properties.Len())
		for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
			s.Properties[pair.Key] = ConvertSchema(pair.Value)
			s.PropertyOrdering = append(s.PropertyOrdering, pair.Key)
		}
	}
	if js.Items != nil {
		s.Items = ConvertSchema(js.Items)
	}
	return s
}

// ConvertType converts a JSON schema type to the genai type
func ConvertType(dt string) genai.Type {
	switch dt {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}
