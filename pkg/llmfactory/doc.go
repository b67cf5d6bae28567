// Package llmfactory provides configuration driven construction of chat backends, supporting OpenAI compatible providers (OpenAI, Ollama, LiteLLM) and Anthropic, with per-agent model selection.
package llmfactory
