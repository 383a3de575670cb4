// Package shellexec implements the "run_shell_command" tool: it validates an
// executable and its arguments before running them (internal/exec) and
// tracks the resulting process through a shared internal/shell.ProcessRegistry
// so a long-running command can be backgrounded and its output drained
// across separate tool calls, grounded on the teacher's command-execution
// tool backed by bash process tracking.
package shellexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/uuid"

	internalexec "github.com/agentcore/orchestrator/internal/exec"
	"github.com/agentcore/orchestrator/internal/shell"
)

// Config controls which executables the tool is permitted to launch and how
// long a command may run before it is either killed (foreground) or handed
// off to the background.
type Config struct {
	// Allowlist restricts the executable to one of these bare names or
	// paths. Empty means any value that passes internal/exec's safety
	// checks is allowed.
	Allowlist []string

	// ForegroundTimeout bounds how long Execute waits for the command to
	// finish before backgrounding it and returning its session ID instead
	// of its output.
	ForegroundTimeout time.Duration

	// WorkDir is the working directory every command runs in. Empty means
	// the host process's current directory.
	WorkDir string
}

func (c *Config) timeout() time.Duration {
	if c.ForegroundTimeout > 0 {
		return c.ForegroundTimeout
	}
	return 10 * time.Second
}

// Tool implements the tool.Handler contract for running shell commands
// under validation and process tracking.
type Tool struct {
	cfg      Config
	registry *shell.ProcessRegistry
}

// New creates a Tool backed by its own ProcessRegistry sweeper.
func New(cfg Config, logger *slog.Logger) *Tool {
	return &Tool{cfg: cfg, registry: shell.NewProcessRegistry(logger)}
}

type runParams struct {
	Command    string   `json:"command"`
	Args       []string `json:"args,omitempty"`
	Background bool     `json:"background,omitempty"`
}

// Name returns the tool's registration name.
func (t *Tool) Name() string { return "run_shell_command" }

// Description returns the tool's registry-facing description.
func (t *Tool) Description() string {
	return "Run a shell command with validated arguments. Long-running commands can be backgrounded; use check_shell_command to poll their output."
}

// Schema returns the JSON schema describing Execute's parameters.
func (t *Tool) Schema() json.RawMessage {
	allowed := t.cfg.Allowlist
	props := map[string]any{
		"command": map[string]any{
			"type":        "string",
			"description": "The executable to run, as a bare name or path.",
		},
		"args": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Arguments passed to the command.",
		},
		"background": map[string]any{
			"type":        "boolean",
			"description": "Run the command in the background and return a session ID immediately.",
		},
	}
	if len(allowed) > 0 {
		props["command"].(map[string]any)["enum"] = allowed
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"command"},
	}
	out, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return out
}

// Execute validates the command and its arguments, runs it, and either
// returns its collected output or, if it outlives ForegroundTimeout (or the
// caller asked for background=true), returns a session ID for later polling.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (string, bool, error) {
	var p runParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Sprintf("invalid parameters: %v", err), true, nil
		}
	}

	command, err := internalexec.SanitizeExecutableValue(p.Command)
	if err != nil {
		return fmt.Sprintf("rejected command: %v", err), true, nil
	}
	if !t.allowed(command) {
		return fmt.Sprintf("command %q is not in the configured allowlist", command), true, nil
	}
	args, err := internalexec.SanitizeArguments(p.Args)
	if err != nil {
		return fmt.Sprintf("rejected arguments: %v", err), true, nil
	}

	session := newProcessSession(command, args, t.cfg.WorkDir)
	t.registry.AddSession(session)

	cmd := exec.CommandContext(ctx, command, args...)
	if t.cfg.WorkDir != "" {
		cmd.Dir = t.cfg.WorkDir
	}

	if p.Background {
		return t.runBackground(cmd, session)
	}
	return t.runForeground(ctx, cmd, session)
}

func (t *Tool) allowed(command string) bool {
	if len(t.cfg.Allowlist) == 0 {
		return true
	}
	for _, a := range t.cfg.Allowlist {
		if a == command {
			return true
		}
	}
	return false
}

func (t *Tool) runForeground(ctx context.Context, cmd *exec.Cmd, session *shell.ProcessSession) (string, bool, error) {
	done := make(chan struct{})
	var output []byte
	var runErr error

	go func() {
		output, runErr = cmd.CombinedOutput()
		close(done)
	}()

	timer := time.NewTimer(t.cfg.timeout())
	defer timer.Stop()

	select {
	case <-done:
		t.registry.AppendOutput(session, "stdout", string(output))
		exitCode := 0
		status := shell.ProcessStatusCompleted
		if runErr != nil {
			status = shell.ProcessStatusFailed
			exitCode = exitCodeOf(runErr)
		}
		t.registry.MarkExited(session, &exitCode, "", status)
		if runErr != nil {
			return string(output), true, nil
		}
		return string(output), false, nil
	case <-timer.C:
		t.registry.MarkBackgrounded(session)
		return fmt.Sprintf("command backgrounded after %s, session_id=%s", t.cfg.timeout(), session.ID), false, nil
	case <-ctx.Done():
		t.registry.MarkExited(session, nil, "killed", shell.ProcessStatusKilled)
		return "", true, ctx.Err()
	}
}

func (t *Tool) runBackground(cmd *exec.Cmd, session *shell.ProcessSession) (string, bool, error) {
	t.registry.MarkBackgrounded(session)
	go func() {
		output, err := cmd.CombinedOutput()
		t.registry.AppendOutput(session, "stdout", string(output))
		exitCode := 0
		status := shell.ProcessStatusCompleted
		if err != nil {
			status = shell.ProcessStatusFailed
			exitCode = exitCodeOf(err)
		}
		t.registry.MarkExited(session, &exitCode, "", status)
	}()
	return fmt.Sprintf("session_id=%s", session.ID), false, nil
}

type checkParams struct {
	SessionID string `json:"session_id"`
}

// CheckSchema returns the JSON schema describing CheckSession's parameters.
func (t *Tool) CheckSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"session_id": {
				"type": "string",
				"description": "The session_id returned by a backgrounded run_shell_command call."
			}
		},
		"required": ["session_id"]
	}`)
}

// CheckSession drains a backgrounded session's output, reporting whether it
// is still running.
func (t *Tool) CheckSession(_ context.Context, params json.RawMessage) (string, bool, error) {
	var p checkParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Sprintf("invalid parameters: %v", err), true, nil
	}

	if session, ok := t.registry.GetSession(p.SessionID); ok {
		stdout, stderr := t.registry.DrainSession(session)
		return fmt.Sprintf("status=running\nstdout:\n%s\nstderr:\n%s", stdout, stderr), false, nil
	}
	if finished, ok := t.registry.GetFinishedSession(p.SessionID); ok {
		exitCode := -1
		if finished.ExitCode != nil {
			exitCode = *finished.ExitCode
		}
		return fmt.Sprintf("status=%s exit_code=%d\n%s", finished.Status, exitCode, finished.Aggregated), finished.Status != shell.ProcessStatusCompleted, nil
	}
	return fmt.Sprintf("no session found for id %q", p.SessionID), true, nil
}

func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func newProcessSession(command string, args []string, workDir string) *shell.ProcessSession {
	full := command
	for _, a := range args {
		full += " " + a
	}
	return &shell.ProcessSession{
		ID:        uuid.NewString(),
		Command:   full,
		StartedAt: time.Now(),
		CWD:       workDir,
	}
}
