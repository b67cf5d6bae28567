package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/xeipuuv/gojsonschema"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "tools")

type registered struct {
	tool      ITool
	spec      Spec
	validator *gojsonschema.Schema
}

// Registry is a named set of tools.
// It is safe for concurrent Dispatch, and immutable once sealed.
type Registry struct {
	lock   sync.RWMutex
	tools  map[string]*registered
	order  []string
	sealed bool
}

// NewRegistry returns a registry with the tools registered in order.
func NewRegistry(list ...ITool) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]*registered),
	}
	for _, t := range list {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds the tool to the registry.
// The arguments schema of the tool is compiled once, and does not allow
// properties that are not declared.
func (r *Registry) Register(tool ITool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.sealed {
		return errors.WithStack(chatmodel.ErrRegistrySealed)
	}

	name := tool.Name()
	if name == "" {
		return errors.New("tool name is required")
	}
	if _, ok := r.tools[name]; ok {
		return errors.WithStack(&chatmodel.DuplicateToolError{Name: name})
	}

	validator, err := compileSchema(tool)
	if err != nil {
		return err
	}

	r.tools[name] = &registered{
		tool:      tool,
		spec:      SpecOf(tool),
		validator: validator,
	}
	r.order = append(r.order, name)

	logger.KV(xlog.DEBUG, "status", "registered", "tool", name)
	return nil
}

func compileSchema(tool ITool) (*gojsonschema.Schema, error) {
	doc := map[string]any{
		"type": "object",
	}
	if params := tool.Parameters(); params != nil {
		js, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrapf(err, "tool %q: failed to marshal schema", tool.Name())
		}
		doc = map[string]any{}
		if err = json.Unmarshal(js, &doc); err != nil {
			return nil, errors.Wrapf(err, "tool %q: failed to unmarshal schema", tool.Name())
		}
	}
	if _, ok := doc["additionalProperties"]; !ok {
		doc["additionalProperties"] = false
	}

	validator, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, errors.Wrapf(err, "tool %q: invalid schema", tool.Name())
	}
	return validator, nil
}

// Seal makes the registry immutable.
func (r *Registry) Seal() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.sealed = true
}

// Sealed returns true if the registry is immutable.
func (r *Registry) Sealed() bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.sealed
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.order)
}

// Names returns the names of the tools in registration order.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]string(nil), r.order...)
}

// Get returns the tool by name.
func (r *Registry) Get(name string) (ITool, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if t, ok := r.tools[name]; ok {
		return t.tool, true
	}
	return nil, false
}

// Describe returns the specs of the tools in registration order.
func (r *Registry) Describe() []Spec {
	r.lock.RLock()
	defer r.lock.RUnlock()
	list := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.tools[name].spec)
	}
	return list
}

// Validate checks the arguments against the schema of the tool.
func (r *Registry) Validate(name, args string) error {
	r.lock.RLock()
	t, ok := r.tools[name]
	r.lock.RUnlock()
	if !ok {
		return errors.WithStack(&chatmodel.UnknownToolError{Name: name, Available: r.Names()})
	}
	return validate(t, normalizeArgs(args))
}

// normalizeArgs treats blank arguments as an empty object,
// backends send them for tools without parameters.
func normalizeArgs(args string) string {
	if strings.TrimSpace(args) == "" {
		return "{}"
	}
	return args
}

func validate(t *registered, args string) error {
	if !json.Valid([]byte(args)) {
		return errors.WithStack(&chatmodel.InvalidArgumentsError{
			Tool:    t.spec.Name,
			Reasons: []string{"arguments are not valid JSON"},
		})
	}

	result, err := t.validator.Validate(gojsonschema.NewStringLoader(args))
	if err != nil {
		return errors.WithStack(&chatmodel.InvalidArgumentsError{
			Tool:    t.spec.Name,
			Reasons: []string{err.Error()},
		})
	}
	if !result.Valid() {
		var reasons []string
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return errors.WithStack(&chatmodel.InvalidArgumentsError{
			Tool:    t.spec.Name,
			Reasons: reasons,
		})
	}
	return nil
}

type callResult struct {
	output string
	err    error
}

// Dispatch validates the arguments and invokes the tool.
// Returns UnknownToolError, InvalidArgumentsError, ToolExecutionError or TimeoutError.
// The tool is not invoked when the arguments are invalid.
func (r *Registry) Dispatch(ctx context.Context, name, args string) (string, error) {
	r.lock.RLock()
	t, ok := r.tools[name]
	r.lock.RUnlock()

	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_not_found",
			"tool", name,
		)
		return "", errors.WithStack(&chatmodel.UnknownToolError{Name: name, Available: r.Names()})
	}

	args = normalizeArgs(args)
	if err := validate(t, args); err != nil {
		metricskey.StatsToolCallsInvalidArgs.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "invalid_arguments",
			"tool", name,
			"err", err.Error(),
		)
		return "", err
	}

	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, name)

	ch := make(chan callResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- callResult{err: errors.Newf("panic: %v", rec)}
			}
		}()
		out, err := t.tool.Call(ctx, args)
		ch <- callResult{output: out, err: err}
	}()

	var res callResult
	select {
	case <-ctx.Done():
		res.err = ctx.Err()
	case res = <-ch:
	}

	if res.err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_failed",
			"tool", name,
			"err", res.err.Error(),
		)
		if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.WithStack(&chatmodel.TimeoutError{
				Op:    fmt.Sprintf("tool:%s", name),
				Cause: res.err,
			})
		}
		return "", errors.WithStack(&chatmodel.ToolExecutionError{Tool: name, Cause: res.err})
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "tool_called",
		"tool", name,
		"elapsed", time.Since(started).String(),
	)
	return res.output, nil
}
