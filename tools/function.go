package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/toolagent/pkg/schema"
	"github.com/invopop/jsonschema"
)

// RunFunc is the typed implementation of a tool.
type RunFunc[I any, O any] func(context.Context, *I) (*O, error)

// Func adapts a typed function to a Tool.
// The parameters schema is reflected from I,
// the output is returned as String() if O implements fmt.Stringer, or JSON otherwise.
type Func[I any, O any] struct {
	name        string
	description string
	params      *jsonschema.Schema
	run         RunFunc[I, O]
}

// ensure Func implements the Tool interface
var _ Tool[struct{}, struct{}] = (*Func[struct{}, struct{}])(nil)

// NewFunc returns a new tool for the function.
func NewFunc[I any, O any](name, description string, run RunFunc[I, O]) (*Func[I, O], error) {
	if name == "" {
		return nil, errors.New("tool name is required")
	}
	if run == nil {
		return nil, errors.Newf("tool %q: function is required", name)
	}
	sc, err := schema.New(reflect.TypeOf((*I)(nil)).Elem())
	if err != nil {
		return nil, errors.WithMessagef(err, "tool %q: failed to create schema", name)
	}
	return &Func[I, O]{
		name:        name,
		description: description,
		params:      sc.Parameters,
		run:         run,
	}, nil
}

// MustFunc returns a new tool for the function, and panics on error.
func MustFunc[I any, O any](name, description string, run RunFunc[I, O]) *Func[I, O] {
	f, err := NewFunc(name, description, run)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Func[I, O]) Name() string {
	return f.name
}

func (f *Func[I, O]) Description() string {
	return f.description
}

func (f *Func[I, O]) Parameters() *jsonschema.Schema {
	return f.params
}

func (f *Func[I, O]) Run(ctx context.Context, req *I) (*O, error) {
	return f.run(ctx, req)
}

func (f *Func[I, O]) Call(ctx context.Context, input string) (string, error) {
	var req I
	if err := json.Unmarshal(llmutils.CleanJSON([]byte(input)), &req); err != nil {
		return "", errors.WithStack(chatmodel.ErrFailedUnmarshalInput)
	}
	out, err := f.run(ctx, &req)
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	return Stringify(out)
}

// Stringify returns strings as is, the String() of the value if implemented, or JSON.
func Stringify(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case *string:
		if s == nil {
			return "", nil
		}
		return *s, nil
	case fmt.Stringer:
		return s.String(), nil
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal output")
	}
	return string(bs), nil
}
