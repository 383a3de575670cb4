package config

// LLMConfig configures the Provider Adapters available to the Turn Engine.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain specifies provider IDs to try if the default provider
	// fails, tried in order until one succeeds.
	FallbackChain []string `yaml:"fallback_chain"`

	// Bedrock configures AWS Bedrock credentials and region for the
	// bedrockruntime-backed adapter.
	Bedrock BedrockConfig `yaml:"bedrock"`
}

// LLMProviderConfig configures one named provider entry. BaseURL and
// APIVersion are used by the OpenAI-compatible adapter for custom
// (self-hosted or gateway) endpoints.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	APIVersion   string `yaml:"api_version"`
}

// BedrockConfig configures the AWS Bedrock provider adapter.
type BedrockConfig struct {
	Region string `yaml:"region"`
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
}
