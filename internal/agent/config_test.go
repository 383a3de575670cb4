package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/internal/tools/policy"
)

func writeDefinitions(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644))
	return path
}

func TestLoadDefinitions(t *testing.T) {
	path := writeDefinitions(t, `
agents:
  - name: triage
    description: First point of contact
    system_prompt: "You triage requests for {{org}}."
    tools: ["transfer", "websearch"]
    tool_policy:
      profile: coding
      allow: ["webfetch"]
      deny: ["exec"]
    provider: anthropic
    model: claude-sonnet-4-20250514
  - name: billing
    system_prompt: "You handle billing."
    temperature: 0.2
    remote: true
    endpoint: "https://billing.internal/agents/billing"
`)

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	triage := defs[0]
	assert.Equal(t, "triage", triage.Name)
	assert.Equal(t, "First point of contact", triage.Description)
	assert.Equal(t, []string{"transfer", "websearch"}, triage.ToolNames)
	assert.Equal(t, "anthropic", triage.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", triage.Model)
	require.NotNil(t, triage.ToolPolicy)
	assert.Equal(t, policy.ProfileCoding, triage.ToolPolicy.Profile)
	assert.Equal(t, []string{"webfetch"}, triage.ToolPolicy.Allow)
	assert.Equal(t, []string{"exec"}, triage.ToolPolicy.Deny)
	assert.False(t, triage.IsRemote)

	billing := defs[1]
	assert.Equal(t, "billing", billing.Name)
	assert.Equal(t, 0.2, billing.Temperature)
	assert.True(t, billing.IsRemote)
	assert.Equal(t, "https://billing.internal/agents/billing", billing.Endpoint)
	require.NotNil(t, billing.ToolPolicy)
	assert.Equal(t, policy.ProfileMinimal, billing.ToolPolicy.Profile)
}

func TestLoadDefinitions_ExpandsEnv(t *testing.T) {
	t.Setenv("BILLING_ENDPOINT", "https://billing.example.com/agent")
	path := writeDefinitions(t, `
agents:
  - name: billing
    system_prompt: "handle billing"
    remote: true
    endpoint: "${BILLING_ENDPOINT}"
`)

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "https://billing.example.com/agent", defs[0].Endpoint)
}

func TestLoadDefinitions_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDefinitions(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("missing name", func(t *testing.T) {
		path := writeDefinitions(t, `
agents:
  - system_prompt: "no name"
`)
		_, err := LoadDefinitions(path)
		assert.Error(t, err)
	})

	t.Run("duplicate name", func(t *testing.T) {
		path := writeDefinitions(t, `
agents:
  - name: triage
    system_prompt: "a"
  - name: triage
    system_prompt: "b"
`)
		_, err := LoadDefinitions(path)
		assert.Error(t, err)
	})

	t.Run("remote without endpoint", func(t *testing.T) {
		path := writeDefinitions(t, `
agents:
  - name: triage
    system_prompt: "a"
    remote: true
`)
		_, err := LoadDefinitions(path)
		assert.Error(t, err)
	})

	t.Run("empty list", func(t *testing.T) {
		path := writeDefinitions(t, `
agents: []
`)
		_, err := LoadDefinitions(path)
		assert.Error(t, err)
	})
}
