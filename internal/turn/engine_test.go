package turn

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/internal/agent"
	"github.com/agentcore/orchestrator/internal/persistence"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/internal/tool"
)

// scriptedAdapter replays a fixed sequence of StreamEvent batches, one batch
// per call to Stream, so a test can script a multi-round tool-use loop.
type scriptedAdapter struct {
	name    string
	batches [][]provider.StreamEvent
	calls   int
}

func (a *scriptedAdapter) Name() string                  { return a.name }
func (a *scriptedAdapter) Models() []provider.ModelInfo   { return nil }
func (a *scriptedAdapter) SupportsTools() bool            { return true }

func (a *scriptedAdapter) Stream(ctx context.Context, req *provider.Request) (<-chan provider.StreamEvent, error) {
	idx := a.calls
	a.calls++
	if idx >= len(a.batches) {
		idx = len(a.batches) - 1
	}
	ch := make(chan provider.StreamEvent, len(a.batches[idx]))
	for _, ev := range a.batches[idx] {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newTestEngine(t *testing.T, adapter provider.Adapter, def *agent.Definition) (*Engine, *agent.Manager, *tool.Registry, *persistence.Store) {
	t.Helper()
	mgr := agent.NewManager(nil)
	mgr.Register(def)

	reg := tool.NewRegistry(nil, nil)
	store, err := persistence.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	eng := NewEngine(mgr, reg, store, map[string]provider.Adapter{adapter.Name(): adapter}, nil)
	return eng, mgr, reg, store
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestEngine_SimpleTurn_EndsIdleAndPersists(t *testing.T) {
	adapter := &scriptedAdapter{
		name: "fake",
		batches: [][]provider.StreamEvent{
			{
				{Kind: provider.EventTextDelta, Text: "hi "},
				{Kind: provider.EventTextDelta, Text: "there"},
				{Kind: provider.EventStop, StopReason: provider.StopEndTurn},
			},
		},
	}
	def := &agent.Definition{Name: "Assistant", Provider: "fake", Model: "m1"}
	eng, _, _, store := newTestEngine(t, adapter, def)

	conv := persistence.NewConversation("conv-1", "")
	events, err := eng.Run(context.Background(), conv, "hello")
	require.NoError(t, err)

	evs := drain(events)
	require.NotEmpty(t, evs)
	assert.Equal(t, EventStop, evs[len(evs)-1].Kind)
	assert.Equal(t, PhaseIdle, eng.Phase())

	loaded, err := store.Load(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, loaded.TurnLog, 1)
	require.Len(t, loaded.Histories["Assistant"], 2)
	assert.Equal(t, "hi there", loaded.Histories["Assistant"][1].Texts())
}

func TestEngine_ToolUseLoop_DispatchesThenContinues(t *testing.T) {
	adapter := &scriptedAdapter{
		name: "fake",
		batches: [][]provider.StreamEvent{
			{
				{Kind: provider.EventToolCallStart, ToolCallID: "t1", ToolCallName: "echo"},
				{Kind: provider.EventToolCallArgsDelta, ToolCallID: "t1", ArgsDelta: `{"msg":"hi"}`},
				{Kind: provider.EventToolCallEnd, ToolCallID: "t1"},
				{Kind: provider.EventStop, StopReason: provider.StopToolUse},
			},
			{
				{Kind: provider.EventTextDelta, Text: "done"},
				{Kind: provider.EventStop, StopReason: provider.StopEndTurn},
			},
		},
	}
	def := &agent.Definition{Name: "Assistant", Provider: "fake", Model: "m1", ToolNames: []string{"echo"}}
	eng, _, reg, _ := newTestEngine(t, adapter, def)

	var gotParams json.RawMessage
	require.NoError(t, reg.Register(&tool.Descriptor{
		Name: "echo",
		Handler: tool.HandlerFunc(func(ctx context.Context, params json.RawMessage) (string, bool, error) {
			gotParams = params
			return "echoed", false, nil
		}),
	}))

	conv := persistence.NewConversation("conv-2", "")
	events, err := eng.Run(context.Background(), conv, "run echo")
	require.NoError(t, err)

	evs := drain(events)
	assert.JSONEq(t, `{"msg":"hi"}`, string(gotParams))

	var sawToolResult, sawStop bool
	for _, ev := range evs {
		if ev.Kind == EventToolResult {
			sawToolResult = true
			assert.Equal(t, "echoed", ev.ToolResult)
		}
		if ev.Kind == EventStop {
			sawStop = true
		}
	}
	assert.True(t, sawToolResult)
	assert.True(t, sawStop)
}

func TestEngine_Transfer_ReplacesTargetHistoryAndLeavesSourceUnchanged(t *testing.T) {
	adapter := &scriptedAdapter{
		name: "fake",
		batches: [][]provider.StreamEvent{
			{
				{Kind: provider.EventToolCallStart, ToolCallID: "t1", ToolCallName: "transfer"},
				{Kind: provider.EventToolCallArgsDelta, ToolCallID: "t1", ArgsDelta: `{"target_agent":"Coder","task":"fix bug in foo.py","relevant_messages":[0]}`},
				{Kind: provider.EventToolCallEnd, ToolCallID: "t1"},
				{Kind: provider.EventStop, StopReason: provider.StopToolUse},
			},
			{
				{Kind: provider.EventTextDelta, Text: "fixed"},
				{Kind: provider.EventStop, StopReason: provider.StopEndTurn},
			},
		},
	}
	router := &agent.Definition{Name: "Router", Provider: "fake", Model: "m1", ToolNames: []string{"transfer"}}
	coder := &agent.Definition{Name: "Coder", Provider: "fake", Model: "m1", SystemPromptTemplate: "you fix code"}

	mgr := agent.NewManager(nil)
	mgr.Register(router)
	mgr.Register(coder)
	reg := tool.NewRegistry(nil, nil)
	store, err := persistence.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	eng := NewEngine(mgr, reg, store, map[string]provider.Adapter{"fake": adapter}, nil)

	conv := persistence.NewConversation("conv-3", "")
	events, err := eng.Run(context.Background(), conv, "fix bug in foo.py")
	require.NoError(t, err)
	evs := drain(events)

	var sawTransfer bool
	for _, ev := range evs {
		if ev.Kind == EventTransfer {
			sawTransfer = true
			assert.Equal(t, "Coder", ev.AgentName)
		}
	}
	assert.True(t, sawTransfer)

	routerAgent, _ := mgr.Get("Router")
	coderAgent, _ := mgr.Get("Coder")

	require.Len(t, routerAgent.Snapshot(), 2, "source history is only the turn's own commit, untouched by Transfer itself")
	coderHistory := coderAgent.Snapshot()
	require.Len(t, coderHistory, 3)
	assert.Equal(t, "you fix code", coderHistory[0].Texts())
	assert.Equal(t, "fix bug in foo.py", coderHistory[1].Texts())
	assert.Equal(t, "fix bug in foo.py", coderHistory[2].Texts())
	assert.True(t, coderAgent.Active())
}

func TestEngine_Cancellation_LeavesHistoryAtTurnStart(t *testing.T) {
	blockCh := make(chan provider.StreamEvent)
	adapter := &blockingAdapter{name: "fake", ch: blockCh}
	def := &agent.Definition{Name: "Assistant", Provider: "fake", Model: "m1"}
	eng, mgr, _, _ := newTestEngine(t, adapter, def)

	ctx, cancel := context.WithCancel(context.Background())
	conv := persistence.NewConversation("conv-4", "")
	events, err := eng.Run(ctx, conv, "hello")
	require.NoError(t, err)

	cancel()

	evs := drain(events)
	require.NotEmpty(t, evs)
	assert.Equal(t, EventStop, evs[len(evs)-1].Kind)

	current, _ := mgr.Get("Assistant")
	history := current.Snapshot()
	require.Len(t, history, 1, "only the turn-start user message should remain")
	assert.Equal(t, "hello", history[0].Texts())

	// engine settles back to idle after a cancelled turn
	require.Eventually(t, func() bool { return eng.Phase() == PhaseIdle }, time.Second, time.Millisecond)
}

// blockingAdapter streams from a caller-controlled channel so a test can
// simulate mid-stream cancellation.
type blockingAdapter struct {
	name string
	ch   chan provider.StreamEvent
}

func (a *blockingAdapter) Name() string                { return a.name }
func (a *blockingAdapter) Models() []provider.ModelInfo { return nil }
func (a *blockingAdapter) SupportsTools() bool          { return true }
func (a *blockingAdapter) Stream(ctx context.Context, req *provider.Request) (<-chan provider.StreamEvent, error) {
	return a.ch, nil
}
