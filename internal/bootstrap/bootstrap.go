// Package bootstrap assembles the orchestration core's shared runtime
// (agent manager, tool registry, provider adapters, persistence, and turn
// engine) from a loaded Config, shared by cmd/chat and cmd/a2a-server so
// neither binary re-implements the wiring, following the teacher's
// service.Service construction in cmd/nexus/main.go's buildServeCmd.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/agentcore/orchestrator/internal/agent"
	"github.com/agentcore/orchestrator/internal/config"
	"github.com/agentcore/orchestrator/internal/models"
	"github.com/agentcore/orchestrator/internal/observability"
	"github.com/agentcore/orchestrator/internal/persistence"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/internal/tool"
	"github.com/agentcore/orchestrator/internal/tools/policy"
	"github.com/agentcore/orchestrator/internal/tools/shellexec"
	"github.com/agentcore/orchestrator/internal/tools/websearch"
	"github.com/agentcore/orchestrator/internal/turn"
)

// Exit codes per the CLI surface contract: 0 normal, 1 configuration
// error, 2 missing credentials, 3 internal error.
const (
	ExitOK          = 0
	ExitConfig      = 1
	ExitCredentials = 2
	ExitInternal    = 3
)

// CLIError carries the exit code a command should terminate with.
type CLIError struct {
	Code int
	Err  error
}

func (e *CLIError) Error() string { return e.Err.Error() }
func (e *CLIError) Unwrap() error { return e.Err }

func configErr(err error) error      { return &CLIError{Code: ExitConfig, Err: err} }
func credentialsErr(err error) error { return &CLIError{Code: ExitCredentials, Err: err} }
func internalErr(err error) error    { return &CLIError{Code: ExitInternal, Err: err} }

// ExitCode unwraps err to a CLIError's code, defaulting to ExitInternal for
// any other non-nil error and ExitOK for nil.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitInternal
}

// Runtime bundles the shared components both binaries drive.
type Runtime struct {
	Config  *config.Config
	Agents  *agent.Manager
	Tools   *tool.Registry
	Store   *persistence.Store
	Engine  *turn.Engine
	Metrics *observability.Metrics
	Events  *observability.EventRecorder
}

// Options overrides config values with CLI flags; zero values mean "keep
// whatever the config file and its defaults already decided".
type Options struct {
	ConfigPath       string
	ProviderOverride string
}

// Build loads configuration, constructs the provider adapters, agent
// definitions, tool registry, and persistence store, and assembles the
// shared Engine. Errors are wrapped in a CLIError carrying the exit code
// the caller's main() should use.
func Build(ctx context.Context, opts Options, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, configErr(fmt.Errorf("load config: %w", err))
	}

	if opts.ProviderOverride != "" {
		cfg.LLM.DefaultProvider = opts.ProviderOverride
	}

	adapters, err := buildAdapters(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, ok := adapters[strings.ToLower(cfg.LLM.DefaultProvider)]; !ok {
		return nil, credentialsErr(fmt.Errorf("no configured adapter for default provider %q", cfg.LLM.DefaultProvider))
	}

	defs, err := agent.LoadDefinitions(cfg.Agents.DefinitionsFile)
	if err != nil {
		return nil, configErr(fmt.Errorf("load agent definitions: %w", err))
	}

	mgr := agent.NewManager(resolveProviderFromCatalog)
	for _, def := range defs {
		mgr.Register(def)
	}

	tools := buildToolRegistry(cfg, logger)

	store, err := persistence.NewStore(cfg.Persistence.DataDir, logger)
	if err != nil {
		return nil, internalErr(fmt.Errorf("open conversation store: %w", err))
	}

	engine := turn.NewEngine(mgr, tools, store, adapters, logger)
	if cfg.Tools.Execution.Parallelism > 0 {
		engine.SetToolConcurrency(cfg.Tools.Execution.Parallelism)
	}

	metrics := observability.NewMetrics()
	events := observability.NewEventRecorder(observability.NewMemoryEventStore(1000), observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}))
	engine.SetObservability(metrics, events)

	return &Runtime{Config: cfg, Agents: mgr, Tools: tools, Store: store, Engine: engine, Metrics: metrics, Events: events}, nil
}

// resolveProviderFromCatalog resolves a model id to its provider using the
// shared model catalog (internal/models), closing the loop between
// agent.Manager.SwitchModel and the catalog's own provider metadata.
func resolveProviderFromCatalog(modelID string) (string, error) {
	m, ok := models.Get(modelID)
	if !ok {
		return "", fmt.Errorf("unknown model %q", modelID)
	}
	return string(m.Provider), nil
}

func buildAdapters(ctx context.Context, cfg *config.Config) (map[string]provider.Adapter, error) {
	adapters := make(map[string]provider.Adapter)

	if entry, ok := providerEntry(cfg, "anthropic"); ok && entry.APIKey != "" {
		a, err := provider.NewAnthropicAdapter(provider.AnthropicConfig{
			APIKey:       entry.APIKey,
			BaseURL:      entry.BaseURL,
			DefaultModel: entry.DefaultModel,
		})
		if err != nil {
			return nil, credentialsErr(fmt.Errorf("anthropic adapter: %w", err))
		}
		adapters[a.Name()] = a
	}

	if entry, ok := providerEntry(cfg, "openai"); ok && entry.APIKey != "" {
		a := provider.NewOpenAIAdapter(provider.OpenAIConfig{
			APIKey:  entry.APIKey,
			BaseURL: entry.BaseURL,
		})
		adapters[a.Name()] = a
	}

	if entry, ok := providerEntry(cfg, "gemini"); ok && entry.APIKey != "" {
		a, err := provider.NewGeminiAdapter(ctx, provider.GeminiConfig{APIKey: entry.APIKey})
		if err != nil {
			return nil, credentialsErr(fmt.Errorf("gemini adapter: %w", err))
		}
		adapters[a.Name()] = a
	}

	if entry, ok := providerEntry(cfg, "groq"); ok && entry.APIKey != "" {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = "https://api.groq.com/openai/v1"
		}
		a := provider.NewOpenAICompatibleAdapter("groq", provider.OpenAIConfig{APIKey: entry.APIKey, BaseURL: baseURL})
		adapters[a.Name()] = a
	}

	if entry, ok := providerEntry(cfg, "deepinfra"); ok && entry.APIKey != "" {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = "https://api.deepinfra.com/v1/openai"
		}
		a := provider.NewOpenAICompatibleAdapter("deepinfra", provider.OpenAIConfig{APIKey: entry.APIKey, BaseURL: baseURL})
		adapters[a.Name()] = a
	}

	if entry, ok := providerEntry(cfg, "bedrock"); ok {
		a, err := provider.NewBedrockAdapter(ctx, provider.BedrockConfig{
			Region:          cfg.LLM.Bedrock.Region,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			DefaultModel:    entry.DefaultModel,
		})
		if err != nil {
			return nil, internalErr(fmt.Errorf("bedrock adapter: %w", err))
		}
		adapters[a.Name()] = a
	}

	return adapters, nil
}

func providerEntry(cfg *config.Config, name string) (config.LLMProviderConfig, bool) {
	if cfg.LLM.Providers == nil {
		return config.LLMProviderConfig{}, false
	}
	entry, ok := cfg.LLM.Providers[name]
	return entry, ok
}

// buildToolRegistry registers the orchestrator's built-in tools (web
// search, current time, shell execution) behind the configured approval
// policy.
func buildToolRegistry(cfg *config.Config, logger *slog.Logger) *tool.Registry {
	resolver := policy.NewResolver()
	reg := tool.NewRegistry(resolver, logger)

	_ = reg.Register(tool.NewCurrentTimeDescriptor())

	approval := cfg.Tools.Execution.Approval
	if contains(approval.Allowlist, "web_search") || contains(approval.Allowlist, "group:web") || approval.Profile == "full" || approval.Profile == "coding" {
		_ = reg.Register(tool.NewWebSearchDescriptor(&websearch.Config{
			SearXNGURL:   cfg.Tools.Search.SearXNGURL,
			BraveAPIKey:  cfg.Tools.Search.BraveAPIKey,
			TavilyAPIKey: cfg.Tools.Search.TavilyAPIKey,
		}))
	}

	if contains(approval.Allowlist, "run_shell_command") || contains(approval.Allowlist, "group:shell") || approval.Profile == "full" || approval.Profile == "coding" {
		for _, d := range tool.NewShellExecDescriptors(shellexec.Config{
			Allowlist: cfg.Tools.Shell.Allowlist,
			WorkDir:   cfg.Tools.Shell.WorkDir,
		}, logger) {
			_ = reg.Register(d)
		}
	}

	return reg
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
