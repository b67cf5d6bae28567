package llms

import (
	"context"
	"strings"
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderOpenAI is the OpenAI API.
	ProviderOpenAI ProviderType = "OPENAI"
	// ProviderOllama is a local Ollama server exposing the OpenAI compatible API.
	ProviderOllama ProviderType = "OLLAMA"
	// ProviderLiteLLM is a LiteLLM proxy exposing the OpenAI compatible API.
	ProviderLiteLLM ProviderType = "LITELLM"
	// ProviderAnthropic is the Anthropic API.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderBedrock is Anthropic models on Amazon Bedrock.
	ProviderBedrock ProviderType = "BEDROCK"
	// ProviderGoogleAI is the Gemini API, or Vertex AI when a cloud project is set.
	ProviderGoogleAI ProviderType = "GOOGLEAI"
)

// ParseProviderType returns the provider type for the given name,
// the name is case insensitive and `OPEN_AI` is accepted as an alias.
func ParseProviderType(name string) ProviderType {
	p := strings.ToUpper(strings.TrimSpace(name))
	if p == "OPEN_AI" {
		return ProviderOpenAI
	}
	return ProviderType(p)
}

// Model is an interface LLM backends implement.
type Model interface {
	// GetName returns the name of the model.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Capability is a bitmask indicating supported features of an LLM provider.
type Capability uint64

const (
	// Basic text or chat generation
	CapabilityText Capability = 1 << iota

	// Function/tool calling
	CapabilityFunctionCalling
	CapabilityMultiToolCalling

	// System prompt support
	CapabilitySystemPrompt

	// Open weight models / self-hosted
	CapabilitySelfHosted
)

var providerCapabilities = map[ProviderType]Capability{
	ProviderOpenAI: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	ProviderOllama: CapabilityText |
		CapabilityFunctionCalling |
		CapabilitySystemPrompt |
		CapabilitySelfHosted,

	ProviderLiteLLM: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	ProviderAnthropic: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	ProviderBedrock: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	ProviderGoogleAI: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,
}

func ProviderCapabilities(pt ProviderType) Capability {
	return providerCapabilities[pt]
}

func (p ProviderType) Supports(cap Capability) bool {
	return ProviderCapabilities(p)&cap != 0
}
