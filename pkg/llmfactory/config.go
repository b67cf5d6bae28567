package llmfactory

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" validate:"dive,required"`
	// DefaultProvider specifies the default provider to use
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
	// AgentModels specifies the mapping of agents to models.
	// key is the agent name, value is the list of preferred model names.
	// Use `default: <model_name>` as the default model for agents.
	AgentModels map[string][]string `json:"agent_models" yaml:"agent_models"`
}

// ProviderConfig for a chat backend
type ProviderConfig struct {
	Name            string       `json:"name" yaml:"name" validate:"required"`
	Token           string       `json:"token,omitempty" yaml:"token,omitempty"`
	DefaultModel    string       `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string     `json:"available_models,omitempty" yaml:"available_models,omitempty"`
	OpenAI          OpenAIConfig `json:"open_ai" yaml:"open_ai"`
	// Bedrock specifies the AWS options of the BEDROCK provider
	Bedrock BedrockConfig `json:"bedrock,omitempty" yaml:"bedrock,omitempty"`
	// GoogleAI specifies the Vertex AI options of the GOOGLEAI provider,
	// the Gemini API with Token is used when Project is empty.
	GoogleAI GoogleAIConfig `json:"google_ai,omitempty" yaml:"google_ai,omitempty"`
}

// BedrockConfig specifies the AWS options,
// the default credentials chain is used when AccessKeyID is empty.
type BedrockConfig struct {
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty" validate:"required_with=AccessKeyID"`
	SessionToken    string `json:"session_token,omitempty" yaml:"session_token,omitempty"`
}

// GoogleAIConfig specifies the Vertex AI project
type GoogleAIConfig struct {
	Project  string `json:"project,omitempty" yaml:"project,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty" validate:"required_with=Project"`
}

// OpenAIConfig specifies options config
type OpenAIConfig struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	// APIType specifies the type of API to use:
	// OPENAI|OLLAMA|LITELLM|ANTHROPIC|BEDROCK|GOOGLEAI
	APIType string `json:"api_type,omitempty" yaml:"api_type,omitempty" validate:"required"`
	// OrgID specifies which organization's quota and billing should be used when making API requests.
	OrgID string `json:"org_id,omitempty" yaml:"org_id,omitempty"`
	// MaxRetries specifies the number of retries of the SDK client, zero for the SDK default.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty" validate:"gte=0"`
}

// ProviderType returns the normalized provider type
func (c *ProviderConfig) ProviderType() llms.ProviderType {
	return llms.ParseProviderType(c.OpenAI.APIType)
}

func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// Validate returns an error if the configuration is invalid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.WithMessage(err, "invalid LLM configuration")
	}
	for _, p := range c.Providers {
		switch p.ProviderType() {
		case llms.ProviderOpenAI, llms.ProviderOllama, llms.ProviderLiteLLM, llms.ProviderAnthropic,
			llms.ProviderBedrock, llms.ProviderGoogleAI:
		default:
			return errors.Newf("invalid LLM configuration: unsupported provider type %q for %q", p.OpenAI.APIType, p.Name)
		}
	}
	if c.DefaultProvider != "" && !slices.ContainsFunc(c.Providers, func(p *ProviderConfig) bool {
		return p.Name == c.DefaultProvider
	}) {
		return errors.Newf("invalid LLM configuration: default provider %q is not configured", c.DefaultProvider)
	}
	return nil
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
