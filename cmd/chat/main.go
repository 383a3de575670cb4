// Package main provides the interactive console chat CLI: a REPL that
// drives the turn engine against stdin/stdout, following the teacher's
// cmd/nexus console-mode conventions (slash commands via internal/commands,
// structured logging to stderr so it never pollutes the transcript).
//
// # Basic Usage
//
//	chat --config orchestrator.yaml
//
// # Environment Variables
//
//   - ORCHESTRATOR_CONFIG: Path to configuration file (default: orchestrator.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentcore/orchestrator/internal/bootstrap"
	"github.com/agentcore/orchestrator/internal/commands"
	"github.com/agentcore/orchestrator/internal/persistence"
	"github.com/agentcore/orchestrator/internal/turn"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("chat exited with error", "error", err)
		os.Exit(bootstrap.ExitCode(err))
	}
}

func buildRootCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		agentName  string
	)

	root := &cobra.Command{
		Use:          "chat",
		Short:        "Interactive console chat against the agent orchestration core",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), configPath, provider, agentName, os.Stdin, os.Stdout)
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to YAML configuration file")
	root.Flags().StringVar(&provider, "provider", "", "override llm.default_provider")
	root.Flags().StringVar(&agentName, "agent", "", "agent to select at startup (defaults to the first registered agent)")

	return root
}

func defaultConfigPath() string {
	if v := os.Getenv("ORCHESTRATOR_CONFIG"); v != "" {
		return v
	}
	return "orchestrator.yaml"
}

func runChat(ctx context.Context, configPath, provider, agentName string, in io.Reader, out io.Writer) error {
	rt, err := bootstrap.Build(ctx, bootstrap.Options{ConfigPath: configPath, ProviderOverride: provider}, slog.Default())
	if err != nil {
		return err
	}

	if agentName != "" {
		if _, err := rt.Agents.Select(agentName); err != nil {
			return &bootstrap.CLIError{Code: bootstrap.ExitConfig, Err: err}
		}
	}

	registry := commands.NewRegistry(slog.Default())
	if err := commands.RegisterBuiltins(registry); err != nil {
		return &bootstrap.CLIError{Code: bootstrap.ExitInternal, Err: fmt.Errorf("register commands: %w", err)}
	}
	parser := commands.NewParser(registry)

	conv := persistence.NewConversation(uuid.NewString(), "console session")

	fmt.Fprintf(out, "connected as %s (type /help for commands, Ctrl-D to exit)\n", rt.Agents.Current().Name())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if parser.IsCommand(line) {
			if handled := runSlashCommand(ctx, registry, parser, rt, line, out); handled {
				continue
			}
		}

		if err := runTurn(ctx, rt.Engine, conv, line, out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func runSlashCommand(ctx context.Context, registry *commands.Registry, parser *commands.Parser, rt *bootstrap.Runtime, line string, out io.Writer) bool {
	detection := parser.Parse(line)
	if detection.Primary == nil || !detection.IsControlCommand {
		return false
	}

	inv := &commands.Invocation{
		Name:    detection.Primary.Name,
		Args:    detection.Primary.Args,
		RawText: line,
		Context: map[string]any{
			"phase":    string(rt.Engine.Phase()),
			"agent":    rt.Agents.Current().Name(),
			"provider": rt.Config.LLM.DefaultProvider,
			"model":    rt.Agents.Current().Def.Model,
		},
	}

	result, err := registry.Execute(ctx, inv)
	if err != nil {
		fmt.Fprintf(out, "command error: %v\n", err)
		return true
	}
	if result != nil && !result.Suppress {
		fmt.Fprintln(out, result.Text)
	}
	return true
}

func runTurn(ctx context.Context, engine *turn.Engine, conv *persistence.Conversation, text string, out io.Writer) error {
	events, err := engine.Run(ctx, conv, text)
	if err != nil {
		return err
	}

	for ev := range events {
		switch ev.Kind {
		case turn.EventText:
			fmt.Fprint(out, ev.Text)
		case turn.EventToolStart:
			fmt.Fprintf(out, "\n[calling %s]\n", ev.ToolName)
		case turn.EventToolResult:
			if ev.ToolError {
				fmt.Fprintf(out, "[%s failed: %s]\n", ev.ToolName, ev.ToolResult)
			}
		case turn.EventTransfer:
			fmt.Fprintf(out, "\n[handed off to %s]\n", ev.AgentName)
		case turn.EventError:
			fmt.Fprintf(out, "\n[error: %v]\n", ev.Err)
		case turn.EventStop:
			fmt.Fprintln(out)
		}
	}
	return nil
}
