package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/internal/usage"
)

func requireBuiltins(t *testing.T, r *Registry) {
	t.Helper()
	require.NoError(t, RegisterBuiltins(r))
}

func TestTitleCase(t *testing.T) {
	tests := map[string]string{
		"":       "",
		"hello":  "Hello",
		"Hello":  "Hello",
		"HELLO":  "HELLO",
		"h":      "H",
		"system": "System",
	}
	for input, want := range tests {
		assert.Equal(t, want, titleCase(input))
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry(nil)
	requireBuiltins(t, r)

	for _, name := range []string{"help", "debug", "agents", "model", "new"} {
		_, found := r.Get(name)
		assert.Truef(t, found, "builtin command %q not registered", name)
	}

	aliases := map[string]string{
		"h":        "help",
		"?":        "help",
		"commands": "help",
		"reset":    "new",
	}
	for alias, want := range aliases {
		cmd, found := r.Get(alias)
		require.Truef(t, found, "alias %q not registered", alias)
		assert.Equal(t, want, cmd.Name)
	}
}

func TestBuiltinHandlers_Debug(t *testing.T) {
	r := NewRegistry(nil)
	requireBuiltins(t, r)

	result, err := r.Execute(context.Background(), &Invocation{
		Name: "debug",
		Context: map[string]any{
			"phase":    "idle",
			"agent":    "triage",
			"provider": "anthropic",
			"model":    "claude-sonnet-4-20250514",
			"usage":    &usage.Usage{InputTokens: 100, OutputTokens: 50},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Phase: idle")
	assert.Contains(t, result.Text, "Agent: triage")
	assert.Contains(t, result.Text, "Model: anthropic/claude-sonnet-4-20250514")
}

func TestBuiltinHandlers_Agents(t *testing.T) {
	r := NewRegistry(nil)
	requireBuiltins(t, r)

	t.Run("none registered", func(t *testing.T) {
		result, err := r.Execute(context.Background(), &Invocation{Name: "agents"})
		require.NoError(t, err)
		assert.Contains(t, result.Text, "No agents")
	})

	t.Run("marks active agent", func(t *testing.T) {
		result, err := r.Execute(context.Background(), &Invocation{
			Name: "agents",
			Context: map[string]any{
				"agent_names":   []string{"triage", "billing"},
				"current_agent": "billing",
			},
		})
		require.NoError(t, err)
		assert.Contains(t, result.Text, "triage")
		assert.Contains(t, result.Text, "billing (active)")
	})
}

func TestBuiltinHandlers_Model(t *testing.T) {
	r := NewRegistry(nil)
	requireBuiltins(t, r)

	t.Run("get without context", func(t *testing.T) {
		result, err := r.Execute(context.Background(), &Invocation{Name: "model"})
		require.NoError(t, err)
		assert.Equal(t, "get_model", result.Data["action"])
	})

	t.Run("get with context", func(t *testing.T) {
		result, err := r.Execute(context.Background(), &Invocation{
			Name:    "model",
			Context: map[string]any{"model": "claude-3"},
		})
		require.NoError(t, err)
		assert.Contains(t, result.Text, "claude-3")
	})

	t.Run("request switch", func(t *testing.T) {
		result, err := r.Execute(context.Background(), &Invocation{Name: "model", Args: "gpt-4o"})
		require.NoError(t, err)
		assert.Equal(t, "switch_model", result.Data["action"])
		assert.Equal(t, "gpt-4o", result.Data["model"])
	})
}

func TestBuiltinHandlers_New(t *testing.T) {
	r := NewRegistry(nil)
	requireBuiltins(t, r)

	result, err := r.Execute(context.Background(), &Invocation{Name: "new"})
	require.NoError(t, err)
	assert.Equal(t, "new_conversation", result.Data["action"])
}

func TestBuiltinHandlers_Help(t *testing.T) {
	r := NewRegistry(nil)
	requireBuiltins(t, r)

	t.Run("list all commands", func(t *testing.T) {
		result, err := r.Execute(context.Background(), &Invocation{Name: "help"})
		require.NoError(t, err)
		assert.Contains(t, result.Text, "Available Commands")
		assert.True(t, result.Markdown)
	})

	t.Run("specific command", func(t *testing.T) {
		result, err := r.Execute(context.Background(), &Invocation{Name: "help", Args: "model"})
		require.NoError(t, err)
		assert.Contains(t, result.Text, "/model")
	})

	t.Run("unknown command", func(t *testing.T) {
		result, err := r.Execute(context.Background(), &Invocation{Name: "help", Args: "nonexistent"})
		require.NoError(t, err)
		assert.Contains(t, result.Text, "Unknown command")
	})

	t.Run("with slash prefix", func(t *testing.T) {
		result, err := r.Execute(context.Background(), &Invocation{Name: "help", Args: "/model"})
		require.NoError(t, err)
		assert.Contains(t, result.Text, "/model")
	})
}
