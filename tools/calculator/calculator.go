package calculator

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/tools"
	"github.com/expr-lang/expr"
)

// ToolName is the name of the calculator tool
const ToolName = "calculate"

// Request represents the tool input.
type Request struct {
	Expression string `json:"expression" yaml:"expression" jsonschema:"description=Arithmetic expression\\, e.g. 100 * 0.85"`
}

// Result is the numeric result of the expression.
type Result float64

func (r Result) String() string {
	return strconv.FormatFloat(float64(r), 'f', -1, 64)
}

// New returns the calculate tool.
func New() (tools.Tool[Request, Result], error) {
	tool, err := tools.NewFunc[Request, Result](ToolName,
		"Evaluate a basic arithmetic expression safely. Returns the numeric result.",
		run,
	)
	if err != nil {
		return nil, err
	}
	return tool, nil
}

func run(_ context.Context, req *Request) (*Result, error) {
	v, err := Evaluate(req.Expression)
	if err != nil {
		return nil, err
	}
	r := Result(v)
	return &r, nil
}

// Evaluate evaluates the arithmetic expression.
// Builtin functions and variables are not available.
func Evaluate(expression string) (float64, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return 0, errors.New("calculation error: empty expression")
	}

	program, err := expr.Compile(expression, expr.DisableAllBuiltins())
	if err != nil {
		return 0, errors.Newf("calculation error: %s", firstLine(err.Error()))
	}

	out, err := expr.Run(program, nil)
	if err != nil {
		return 0, errors.Newf("calculation error: %s", firstLine(err.Error()))
	}

	var res float64
	switch v := out.(type) {
	case int:
		res = float64(v)
	case int64:
		res = float64(v)
	case float64:
		res = v
	default:
		return 0, errors.Newf("calculation error: result is not a number: %v", out)
	}
	if math.IsInf(res, 0) || math.IsNaN(res) {
		return 0, errors.New("calculation error: result is not a finite number")
	}
	return res, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
