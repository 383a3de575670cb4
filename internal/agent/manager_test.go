package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/pkg/message"
)

func newTestManager() (*Manager, *Agent, *Agent) {
	m := NewManager(nil)
	router := m.Register(&Definition{Name: "Router", SystemPromptTemplate: "route requests", ToolNames: []string{"transfer"}})
	coder := m.Register(&Definition{Name: "Coder", SystemPromptTemplate: "fix bugs"})
	return m, router, coder
}

func TestManager_Register_FirstAgentIsActive(t *testing.T) {
	m, router, coder := newTestManager()
	assert.True(t, router.Active())
	assert.False(t, coder.Active())
	assert.Equal(t, router, m.Current())
}

func TestManager_Select_ActivatesTarget(t *testing.T) {
	m, router, coder := newTestManager()
	activated, err := m.Select("Coder")
	require.NoError(t, err)
	assert.Equal(t, coder, activated)
	assert.True(t, coder.Active())
	assert.False(t, router.Active())
}

func TestManager_Select_RejectedMidTurn(t *testing.T) {
	m, _, _ := newTestManager()
	m.BeginTurn()
	_, err := m.Select("Coder")
	assert.Error(t, err)
}

func TestManager_Select_UnknownAgent(t *testing.T) {
	m, _, _ := newTestManager()
	_, err := m.Select("Ghost")
	require.Error(t, err)
	var unknown *ErrUnknownAgent
	require.ErrorAs(t, err, &unknown)
}

func TestManager_Transfer_ProjectsSelectedHistory(t *testing.T) {
	m, router, coder := newTestManager()
	router.AppendHistory(message.NewUserText("fix bug in foo.py"))
	router.AppendHistory(message.NewSystemText("irrelevant aside"))

	result, err := m.Transfer(TransferRequest{
		FromAgent:        "Router",
		ToAgent:          "Coder",
		Task:             "fix bug in foo.py",
		RelevantMessages: []int{0},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, coder, result.Target)

	history := coder.Snapshot()
	require.Len(t, history, 3)
	assert.Equal(t, message.RoleSystem, history[0].Role)
	assert.Equal(t, "fix bug in foo.py", history[1].Parts[0].(message.Text).Content)
	assert.Equal(t, message.RoleUser, history[2].Role)
	assert.Equal(t, "fix bug in foo.py", history[2].Parts[0].(message.Text).Content)

	assert.True(t, coder.Active())
	assert.False(t, router.Active())
	assert.Len(t, router.Snapshot(), 2, "source history must be unchanged by transfer")
}

func TestManager_Transfer_DropsOutOfRangeIndices(t *testing.T) {
	m, router, _ := newTestManager()
	router.AppendHistory(message.NewUserText("only message"))

	result, err := m.Transfer(TransferRequest{
		FromAgent:        "Router",
		ToAgent:          "Coder",
		Task:             "task",
		RelevantMessages: []int{0, 5, -1},
	}, nil)
	require.NoError(t, err)

	history := result.Target.Snapshot()
	// system prompt + message[0] + synthetic task user message; indices 5 and -1 dropped.
	require.Len(t, history, 3)
}

func TestManager_SwitchModel_NoChangeWhenSameProvider(t *testing.T) {
	m := NewManager(func(modelID string) (string, error) { return "anthropic", nil })
	m.Register(&Definition{Name: "Router"})
	m.currentProvider = "anthropic"

	changed, provider, err := m.SwitchModel("claude-opus-4-20250514")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "anthropic", provider)
}

func TestManager_SwitchModel_ReactivatesOnProviderChange(t *testing.T) {
	m := NewManager(func(modelID string) (string, error) { return "openai", nil })
	router := m.Register(&Definition{Name: "Router"})
	router.MarkToolsRegistered()
	m.currentProvider = "anthropic"

	changed, provider, err := m.SwitchModel("gpt-4o")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "openai", provider)
	assert.False(t, router.ToolsRegisteredWithLLM())
	assert.True(t, router.Active())
}
