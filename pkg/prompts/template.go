package prompts

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
)

// Template is a compiled text/template with sprig functions,
// and the list of input variables that must be provided.
type Template struct {
	tmpl           *template.Template
	inputVariables []string
}

// NewTemplate compiles the template.
func NewTemplate(name, text string, inputVariables []string) (*Template, error) {
	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse template %q", name)
	}
	return &Template{
		tmpl:           tmpl,
		inputVariables: inputVariables,
	}, nil
}

// MustTemplate compiles the template and panics on error.
func MustTemplate(name, text string, inputVariables []string) *Template {
	t, err := NewTemplate(name, text, inputVariables)
	if err != nil {
		panic(err)
	}
	return t
}

// GetInputVariables returns the names of the required variables.
func (t *Template) GetInputVariables() []string {
	return t.inputVariables
}

// Format renders the template with the values.
func (t *Template) Format(values map[string]any) (string, error) {
	for _, name := range t.inputVariables {
		if _, ok := values[name]; !ok {
			return "", errors.Newf("template %q: missing input variable %q", t.tmpl.Name(), name)
		}
	}

	var b strings.Builder
	if err := t.tmpl.Execute(&b, values); err != nil {
		return "", errors.Wrapf(err, "failed to render template %q", t.tmpl.Name())
	}
	return b.String(), nil
}
