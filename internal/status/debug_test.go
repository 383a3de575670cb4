package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentcore/orchestrator/internal/turn"
	"github.com/agentcore/orchestrator/internal/usage"
)

func TestBuildDebugMessage(t *testing.T) {
	now := time.Now()
	updatedAt := now.Add(-5 * time.Minute)

	args := DebugArgs{
		Phase:        turn.PhaseIdle,
		AgentName:    "triage",
		Provider:     "anthropic",
		Model:        "claude-sonnet-4-20250514",
		ContextLimit: 200000,
		Usage: &usage.Usage{
			InputTokens:  1200,
			OutputTokens: 500,
		},
		Cost: &usage.Cost{
			Input:  3.0,
			Output: 15.0,
		},
		UpdatedAt: &updatedAt,
		Now:       now,
	}

	result := BuildDebugMessage(args)

	for _, substr := range []string{
		"Phase: idle",
		"Agent: triage",
		"Model: anthropic/claude-sonnet-4-20250514",
		"Tokens: 1.2k in / 500 out",
		"Context 1.7k/200k",
		"Cost: $0.01",
		"Updated: 5m ago",
	} {
		assert.Contains(t, result, substr)
	}
}

func TestBuildDebugMessage_NoAgentNoUsage(t *testing.T) {
	result := BuildDebugMessage(DebugArgs{Phase: turn.PhaseStreaming})

	assert.Contains(t, result, "Phase: streaming")
	assert.Contains(t, result, "Agent: (none)")
	assert.Contains(t, result, "Model: /(none)")
	assert.NotContains(t, result, "Tokens:")
	assert.NotContains(t, result, "Cost:")
	assert.NotContains(t, result, "Updated:")
}
