// Package config implements YAML configuration loading for the
// orchestration core: the global config, agent definitions file, and MCP
// servers file are all YAML documents, following the teacher's
// internal/config/config.go load/defaults/validate pipeline.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentcore/orchestrator/internal/mcp"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the orchestrator.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	LLM         LLMConfig         `yaml:"llm"`
	Agents      AgentsConfig      `yaml:"agents"`
	MCP         mcp.Config        `yaml:"mcp"`
	Tools       ToolsConfig       `yaml:"tools"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Logging     LoggingConfig     `yaml:"logging"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings"`
}

// EmbeddingsConfig holds credentials for embedding-model providers. No
// MODULE in the orchestration core's spec consumes embeddings (there is no
// vector-store or retrieval operation); this only satisfies §6's
// requirement that VOYAGE_API_KEY be recognized and superseded by config.
type EmbeddingsConfig struct {
	VoyageAPIKey string `yaml:"voyage_api_key"`
}

// ServerConfig configures the A2A HTTP server (cmd/a2a-server).
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// AgentsConfig points at the agent definitions file: a YAML list of
// agent.Definition records (name, provider, model, system prompt template,
// tool_names, transfer targets).
type AgentsConfig struct {
	DefinitionsFile string `yaml:"definitions_file"`
}

// PersistenceConfig configures the conversation store (internal/persistence).
type PersistenceConfig struct {
	DataDir      string        `yaml:"data_dir"`
	PruneHorizon time.Duration `yaml:"prune_horizon"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("expected a single YAML document")}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigError wraps a load/parse failure with the offending file path,
// following the teacher's typed-error-kind convention (internal/agent/errors.go).
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyLLMDefaults(&cfg.LLM)
	applyToolsDefaults(&cfg.Tools)
	applyPersistenceDefaults(&cfg.Persistence)
	applyLoggingDefaults(&cfg.Logging)

	if cfg.Agents.DefinitionsFile == "" {
		cfg.Agents.DefinitionsFile = "agents.yaml"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
}

func applyPersistenceDefaults(cfg *PersistenceConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data/conversations"
	}
	if cfg.PruneHorizon == 0 {
		cfg.PruneHorizon = 30 * 24 * time.Hour
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_HTTP_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("ORCHESTRATOR_METRICS_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}
	// Chat/completion providers: each env var supplies the provider's
	// llm.providers.<name>.api_key entry unless the config file already set
	// one (§6: "Keys in the global config supersede environment values").
	providerEnvVars := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"gemini":    "GEMINI_API_KEY",
		"groq":      "GROQ_API_KEY",
		"deepinfra": "DEEPINFRA_API_KEY",
	}
	for name, envVar := range providerEnvVars {
		if value := strings.TrimSpace(os.Getenv(envVar)); value != "" {
			setProviderAPIKey(cfg, name, value)
		}
	}

	// Tool-specific credentials that aren't chat providers.
	if value := strings.TrimSpace(os.Getenv("TAVILY_API_KEY")); value != "" && cfg.Tools.Search.TavilyAPIKey == "" {
		cfg.Tools.Search.TavilyAPIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("VOYAGE_API_KEY")); value != "" && cfg.Embeddings.VoyageAPIKey == "" {
		cfg.Embeddings.VoyageAPIKey = value
	}
}

func setProviderAPIKey(cfg *Config, provider, key string) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]LLMProviderConfig)
	}
	entry := cfg.LLM.Providers[provider]
	if entry.APIKey == "" {
		entry.APIKey = key
		cfg.LLM.Providers[provider] = entry
	}
}

// ConfigValidationError collects every validation issue found in one pass,
// following the teacher's aggregate-then-report validation style.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if defaultProvider != "" {
		if _, ok := cfg.LLM.Providers[defaultProvider]; !ok {
			if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
				issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
			}
		}
	}
	for _, provider := range cfg.LLM.FallbackChain {
		key := strings.ToLower(strings.TrimSpace(provider))
		if _, ok := cfg.LLM.Providers[key]; !ok {
			if _, ok := cfg.LLM.Providers[provider]; !ok {
				issues = append(issues, fmt.Sprintf("llm.fallback_chain references unknown provider %q", provider))
			}
		}
	}

	if cfg.Tools.Execution.MaxIterations < 0 {
		issues = append(issues, "tools.execution.max_iterations must be >= 0")
	}
	if cfg.Tools.Execution.Parallelism < 0 {
		issues = append(issues, "tools.execution.parallelism must be >= 0")
	}
	if cfg.Tools.Execution.Timeout < 0 {
		issues = append(issues, "tools.execution.timeout must be >= 0")
	}
	if profile := strings.ToLower(strings.TrimSpace(cfg.Tools.Execution.Approval.Profile)); profile != "" {
		switch profile {
		case "coding", "messaging", "readonly", "full", "minimal":
		default:
			issues = append(issues, "tools.execution.approval.profile must be \"coding\", \"messaging\", \"readonly\", \"full\", or \"minimal\"")
		}
	}

	if cfg.Persistence.PruneHorizon < 0 {
		issues = append(issues, "persistence.prune_horizon must be >= 0")
	}

	for _, server := range cfg.MCP.Servers {
		if err := server.Validate(); err != nil {
			issues = append(issues, err.Error())
		}
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
