package agent

import (
	"time"

	"github.com/effective-security/toolagent/pkg/llms"
)

const (
	// DefaultMaxSteps is the default number of model turns in a run.
	DefaultMaxSteps = 10
	// DefaultLLMTimeout is the default timeout of a single model turn.
	DefaultLLMTimeout = 2 * time.Minute
	// DefaultToolTimeout is the default timeout of a single tool call.
	DefaultToolTimeout = 30 * time.Second
	// DefaultName is the default name of the agent, used in metrics and logs.
	DefaultName = "agent"
)

// Option is a function that can be used to modify the behavior of the session Config.
type Option func(*Config)

type Config struct {
	// Name is the name of the agent, used in metrics and logs.
	Name string
	// MaxSteps is the maximum number of model turns in a run.
	MaxSteps int
	// LLMTimeout is the timeout of a single model turn, zero for no timeout.
	LLMTimeout time.Duration
	// ToolTimeout is the timeout of a single tool call, zero for no timeout.
	ToolTimeout time.Duration

	// Model is the model to use in an LLM call.
	Model    string
	modelSet bool

	// MaxTokens is the maximum number of tokens to generate to use in an LLM call.
	MaxTokens    int
	maxTokensSet bool

	// Temperature is the temperature for sampling to use in an LLM call, between 0 and 1.
	Temperature    float64
	temperatureSet bool

	// Seed is a seed for deterministic sampling in an LLM call.
	Seed    int
	seedSet bool

	// CallbackHandler is the callback handler for the session
	CallbackHandler Callback

	// ParallelToolCalls runs the tool calls of a step concurrently,
	// the results are recorded in request order.
	ParallelToolCalls bool
	// ParseErrorRecovery records malformed model output in the transcript
	// and re-offers it to the model, instead of failing the run.
	ParseErrorRecovery bool
	// ConversationMemory keeps the transcript across runs.
	ConversationMemory bool
}

// NewConfig returns the Config with defaults and the options applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Name:           DefaultName,
		MaxSteps:       DefaultMaxSteps,
		LLMTimeout:     DefaultLLMTimeout,
		ToolTimeout:    DefaultToolTimeout,
		Temperature:    0,
		temperatureSet: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Apply returns a copy of the Config with the options applied.
func (c *Config) Apply(opts ...Option) *Config {
	cp := *c
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// WithName sets the name of the agent.
func WithName(name string) Option {
	return func(o *Config) {
		o.Name = name
	}
}

// WithMaxSteps sets the maximum number of model turns in a run.
// Values below 1 are ignored.
func WithMaxSteps(n int) Option {
	return func(o *Config) {
		if n > 0 {
			o.MaxSteps = n
		}
	}
}

// WithLLMTimeout sets the timeout of a single model turn.
func WithLLMTimeout(timeout time.Duration) Option {
	return func(o *Config) {
		o.LLMTimeout = timeout
	}
}

// WithToolTimeout sets the timeout of a single tool call.
func WithToolTimeout(timeout time.Duration) Option {
	return func(o *Config) {
		o.ToolTimeout = timeout
	}
}

// WithModel is an option for LLM.Call.
func WithModel(model string) Option {
	return func(o *Config) {
		o.Model = model
		o.modelSet = model != ""
	}
}

// WithMaxTokens is an option for LLM.Call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
		o.maxTokensSet = true
	}
}

// WithTemperature is an option for LLM.Call.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
		o.temperatureSet = true
	}
}

// WithSeed will add an option to use deterministic sampling for LLM.Call.
func WithSeed(seed int) Option {
	return func(o *Config) {
		o.Seed = seed
		o.seedSet = true
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// WithParallelToolCalls enables concurrent dispatch of the tool calls of a step.
func WithParallelToolCalls(enabled bool) Option {
	return func(o *Config) {
		o.ParallelToolCalls = enabled
	}
}

// WithParseErrorRecovery enables recording of malformed model output.
func WithParseErrorRecovery(enabled bool) Option {
	return func(o *Config) {
		o.ParseErrorRecovery = enabled
	}
}

// WithConversationMemory keeps the transcript across runs of the session.
func WithConversationMemory(enabled bool) Option {
	return func(o *Config) {
		o.ConversationMemory = enabled
	}
}

// GetCallOptions returns the LLM call options of the Config.
func (c *Config) GetCallOptions() []llms.CallOption {
	var opts []llms.CallOption
	if c.modelSet {
		opts = append(opts, llms.WithModel(c.Model))
	}
	if c.maxTokensSet {
		opts = append(opts, llms.WithMaxTokens(c.MaxTokens))
	}
	if c.temperatureSet {
		opts = append(opts, llms.WithTemperature(c.Temperature))
	}
	if c.seedSet {
		opts = append(opts, llms.WithSeed(c.Seed))
	}
	return opts
}
