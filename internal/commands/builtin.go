package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentcore/orchestrator/internal/status"
	"github.com/agentcore/orchestrator/internal/turn"
	"github.com/agentcore/orchestrator/internal/usage"
)

// RegisterBuiltins registers the orchestrator's builtin slash commands:
// /help, /debug, /agents, /model, and /new. Callers populate Invocation's
// Context map with the live turn-engine/agent-manager values each handler
// reads; the handlers themselves hold no state.
func RegisterBuiltins(r *Registry) error {
	mustRegister := func(cmd *Command) error {
		return r.Register(cmd)
	}

	if err := mustRegister(&Command{
		Name:        "help",
		Aliases:     []string{"h", "?", "commands"},
		Description: "Show available commands",
		Usage:       "/help [command]",
		AcceptsArgs: true,
		Category:    "system",
		Source:      "builtin",
		Handler:     helpHandler(r),
	}); err != nil {
		return err
	}

	if err := mustRegister(&Command{
		Name:        "debug",
		Description: "Show turn-engine phase, active agent, model, and token/cost totals",
		Category:    "system",
		Source:      "builtin",
		Handler:     debugHandler(),
	}); err != nil {
		return err
	}

	if err := mustRegister(&Command{
		Name:        "agents",
		Description: "List registered agents and the one currently active",
		Category:    "system",
		Source:      "builtin",
		Handler:     agentsHandler(),
	}); err != nil {
		return err
	}

	if err := mustRegister(&Command{
		Name:        "model",
		Description: "Show or request a switch of the current model",
		Usage:       "/model [model_name]",
		AcceptsArgs: true,
		Category:    "config",
		Source:      "builtin",
		Handler:     modelHandler(),
	}); err != nil {
		return err
	}

	if err := mustRegister(&Command{
		Name:        "new",
		Aliases:     []string{"reset"},
		Description: "Start a new conversation",
		Category:    "session",
		Source:      "builtin",
		Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
			return &Result{
				Text: "Starting new conversation...",
				Data: map[string]any{"action": "new_conversation"},
			}, nil
		},
	}); err != nil {
		return err
	}

	return nil
}

func debugHandler() CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		args := status.DebugArgs{Now: time.Now()}
		if inv.Context != nil {
			if v, ok := inv.Context["phase"].(string); ok {
				args.Phase = turn.Phase(v)
			}
			if v, ok := inv.Context["agent"].(string); ok {
				args.AgentName = v
			}
			if v, ok := inv.Context["provider"].(string); ok {
				args.Provider = v
			}
			if v, ok := inv.Context["model"].(string); ok {
				args.Model = v
			}
			if v, ok := inv.Context["context_limit"].(int); ok {
				args.ContextLimit = v
			}
			if u, ok := inv.Context["usage"].(*usage.Usage); ok {
				args.Usage = u
			}
			if c, ok := inv.Context["cost"].(*usage.Cost); ok {
				args.Cost = c
			}
			if t, ok := inv.Context["updated_at"].(time.Time); ok {
				args.UpdatedAt = &t
			}
		}
		return &Result{Text: status.BuildDebugMessage(args)}, nil
	}
}

func agentsHandler() CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		var names []string
		current := ""
		if inv.Context != nil {
			if v, ok := inv.Context["agent_names"].([]string); ok {
				names = v
			}
			if v, ok := inv.Context["current_agent"].(string); ok {
				current = v
			}
		}
		if len(names) == 0 {
			return &Result{Text: "No agents registered."}, nil
		}
		var sb strings.Builder
		sb.WriteString("Agents:\n")
		for _, name := range names {
			marker := ""
			if name == current {
				marker = " (active)"
			}
			fmt.Fprintf(&sb, "  %s%s\n", name, marker)
		}
		return &Result{Text: strings.TrimRight(sb.String(), "\n")}, nil
	}
}

func modelHandler() CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		requested := strings.TrimSpace(inv.Args)
		if requested == "" {
			current := ""
			if inv.Context != nil {
				if v, ok := inv.Context["model"].(string); ok {
					current = v
				}
			}
			text := "Current model: (use /model <name> to switch)"
			if current != "" {
				text = fmt.Sprintf("Current model: %s", current)
			}
			return &Result{Text: text, Data: map[string]any{"action": "get_model"}}, nil
		}
		return &Result{
			Text: fmt.Sprintf("Requesting switch to model: %s", requested),
			Data: map[string]any{"action": "switch_model", "model": requested},
		}, nil
	}
}

// titleCase converts the first letter to uppercase.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func helpHandler(r *Registry) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if inv.Args != "" {
			cmdName := strings.ToLower(strings.TrimSpace(inv.Args))
			cmdName = strings.TrimPrefix(cmdName, "/")

			cmd, exists := r.Get(cmdName)
			if !exists {
				return &Result{
					Text: fmt.Sprintf("Unknown command: %s\n\nUse /help to see available commands.", cmdName),
				}, nil
			}

			var sb strings.Builder
			sb.WriteString(fmt.Sprintf("**/%s**\n", cmd.Name))
			if cmd.Description != "" {
				sb.WriteString(fmt.Sprintf("%s\n", cmd.Description))
			}
			if cmd.Usage != "" {
				sb.WriteString(fmt.Sprintf("\nUsage: `%s`\n", cmd.Usage))
			}
			if len(cmd.Aliases) > 0 {
				aliases := make([]string, len(cmd.Aliases))
				for i, a := range cmd.Aliases {
					aliases[i] = "/" + a
				}
				sb.WriteString(fmt.Sprintf("\nAliases: %s\n", strings.Join(aliases, ", ")))
			}

			return &Result{Text: sb.String(), Markdown: true}, nil
		}

		byCategory := r.ListByCategory()
		categories := make([]string, 0, len(byCategory))
		for cat := range byCategory {
			categories = append(categories, cat)
		}
		sort.Strings(categories)

		var sb strings.Builder
		sb.WriteString("**Available Commands**\n\n")

		for _, category := range categories {
			cmds := byCategory[category]
			if len(cmds) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("**%s**\n", titleCase(category)))
			for _, cmd := range cmds {
				desc := cmd.Description
				if desc == "" {
					desc = "No description"
				}
				sb.WriteString(fmt.Sprintf("  `/%s` - %s\n", cmd.Name, desc))
			}
			sb.WriteString("\n")
		}

		sb.WriteString("Use `/help <command>` for more details.")

		return &Result{Text: sb.String(), Markdown: true}, nil
	}
}
