package config

import "time"

// ToolsConfig configures tool dispatch behavior for the Turn Engine
// (internal/turn) and the tool approval policy (internal/tools/policy).
type ToolsConfig struct {
	Execution ToolExecutionConfig `yaml:"execution"`
	Search    SearchConfig        `yaml:"search"`
	Shell     ShellConfig         `yaml:"shell"`
}

// SearchConfig configures the web_search tool's backends
// (internal/tools/websearch). A value set here supersedes the matching
// environment variable (SEARXNG_URL, BRAVE_API_KEY, TAVILY_API_KEY) per §6.
type SearchConfig struct {
	SearXNGURL   string `yaml:"searxng_url"`
	BraveAPIKey  string `yaml:"brave_api_key"`
	TavilyAPIKey string `yaml:"tavily_api_key"`
}

// ShellConfig configures the run_shell_command/check_shell_command tools
// (internal/tools/shellexec).
type ShellConfig struct {
	// Allowlist restricts run_shell_command to these executables. Empty
	// allows any executable that passes internal/exec's safety checks.
	Allowlist []string `yaml:"allowlist"`

	// WorkDir is the working directory every command runs in.
	WorkDir string `yaml:"work_dir"`
}

// ToolExecutionConfig controls the Turn Engine's tool dispatch loop: how
// many buffered tool calls run concurrently (§5's "small concurrency
// bound") and the approval policy gating which tools may run at all.
type ToolExecutionConfig struct {
	MaxIterations int            `yaml:"max_iterations"`
	Parallelism   int            `yaml:"parallelism"`
	Timeout       time.Duration  `yaml:"timeout"`
	Approval      ApprovalConfig `yaml:"approval"`
}

// ApprovalConfig selects a tools/policy.Profile and layers explicit
// allow/deny rules on top of it.
type ApprovalConfig struct {
	// Profile is a pre-configured tool access level: "coding", "messaging",
	// "readonly", "full", or "minimal". See internal/tools/policy.Profile.
	Profile string `yaml:"profile"`

	// Allowlist contains tools that are always allowed. Supports patterns
	// like "mcp:*", and group references like "group:fs".
	Allowlist []string `yaml:"allowlist"`

	// Denylist contains tools that are always denied.
	Denylist []string `yaml:"denylist"`
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.Execution.MaxIterations == 0 {
		cfg.Execution.MaxIterations = 25
	}
	if cfg.Execution.Parallelism == 0 {
		cfg.Execution.Parallelism = 4
	}
	if cfg.Execution.Timeout == 0 {
		cfg.Execution.Timeout = 2 * time.Minute
	}
	if cfg.Execution.Approval.Profile == "" {
		cfg.Execution.Approval.Profile = "minimal"
	}
}
