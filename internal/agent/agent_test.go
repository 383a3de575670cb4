package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentcore/orchestrator/pkg/message"
)

func TestDefinition_RenderSystemPrompt(t *testing.T) {
	def := &Definition{SystemPromptTemplate: "You are {{name}}, speaking {{language}}."}
	rendered := def.RenderSystemPrompt(map[string]string{"name": "Nova", "language": "English"})
	assert.Equal(t, "You are Nova, speaking English.", rendered)
}

func TestDefinition_HasTool(t *testing.T) {
	def := &Definition{ToolNames: []string{"read_file", "transfer"}}
	assert.True(t, def.HasTool("transfer"))
	assert.False(t, def.HasTool("shell_exec"))
}

func TestAgent_AppendHistory_SnapshotIsIndependentCopy(t *testing.T) {
	a := NewAgent(&Definition{Name: "Router"})
	a.AppendHistory(message.NewUserText("hi"))

	snap := a.Snapshot()
	require := assert.New(t)
	require.Len(snap, 1)

	a.AppendHistory(message.NewUserText("second"))
	require.Len(snap, 1, "snapshot must not observe later appends")
	require.Len(a.Snapshot(), 2)
}

func TestAgent_MarkToolsRegistered(t *testing.T) {
	a := NewAgent(&Definition{Name: "Router"})
	assert.False(t, a.ToolsRegisteredWithLLM())
	a.MarkToolsRegistered()
	assert.True(t, a.ToolsRegisteredWithLLM())
}
