// Package llms defines the backend boundary of the agent: the Model interface
// every LLM provider implements, the messages sent to it and the responses it returns.
//
// Each subpackage includes a provider-specific implementation:
// `openai` for OpenAI compatible endpoints (OpenAI, Ollama, LiteLLM) and `anthropic`.
//
// The `llms.go` file contains the provider types, capabilities and the Model interface.
//
// The `options.go` file provides the options to configure a GenerateContent call.
package llms
