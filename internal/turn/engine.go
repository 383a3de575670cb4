// Package turn implements the Turn Engine (§4.5): the central loop that
// takes user input, drives a Provider Adapter in streaming mode, interprets
// tool-call deltas, dispatches buffered tool calls through the Tool
// Registry, feeds results back, and repeats until the assistant stops.
// Grounded on the teacher's AgenticLoop (internal/agent/loop.go) and its
// parallel Executor (internal/agent/executor.go), generalized from the
// teacher's fixed session/job model onto the canonical Message/Part
// conversation model and the AgentManager transfer contract.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/orchestrator/internal/agent"
	"github.com/agentcore/orchestrator/internal/datetime"
	"github.com/agentcore/orchestrator/internal/infra"
	"github.com/agentcore/orchestrator/internal/observability"
	"github.com/agentcore/orchestrator/internal/persistence"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/internal/tool"
	"github.com/agentcore/orchestrator/pkg/message"
)

// Phase is the Turn Engine's state, per the §4.5 transition table.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseStreaming Phase = "streaming"
	PhaseTools     Phase = "tools"
	PhaseCancelled Phase = "cancelled"
)

// DefaultToolConcurrency bounds how many buffered tool calls from one
// Stop(tool_use) batch run at once (§5: "a small concurrency bound").
const DefaultToolConcurrency = 4

// streamRetryConfig governs retries of a Provider Adapter's Stream call
// itself (connection setup, not mid-stream errors), grounded on the
// teacher's per-provider RetryWithBackoff applied uniformly here instead
// of duplicated per adapter.
var streamRetryConfig = &infra.RetryConfig{
	MaxAttempts:    2,
	InitialDelay:   250 * time.Millisecond,
	MaxDelay:       2 * time.Second,
	Strategy:       infra.BackoffExponential,
	JitterFraction: 0.2,
	RetryIf:        provider.IsRetryable,
}

// StopCancelled marks a Stop Event caused by context cancellation during
// STREAMING, rather than a provider-reported stop reason (§4.5 "cancel").
const StopCancelled provider.StopReason = "cancelled"

// EventKind tags the concrete shape of an Event.
type EventKind string

const (
	EventText       EventKind = "text"
	EventThinking   EventKind = "thinking"
	EventToolStart  EventKind = "tool_start"
	EventToolResult EventKind = "tool_result"
	EventTransfer   EventKind = "transfer"
	EventStop       EventKind = "stop"
	EventError      EventKind = "error"
)

// Event is one UI-facing notification emitted while a turn runs. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	Text      string // EventText / EventThinking
	AgentName string // EventTransfer: the newly active agent

	ToolCallID string // EventToolStart / EventToolResult
	ToolName   string
	ToolResult string
	ToolError  bool

	StopReason provider.StopReason
	Err        error
}

// ErrUnknownProvider is returned when an agent's configured provider has no
// corresponding Adapter in the Engine's adapter map.
type ErrUnknownProvider struct{ Provider string }

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("turn: no adapter registered for provider %q", e.Provider)
}

// Engine drives turns for a single conversation's current agent against its
// resolved Provider Adapter. One Engine is created per live conversation;
// the Model Registry, Tool Registry, Agent Manager, and Persistence it wraps
// remain process-wide singletons (§5 "Shared resources").
type Engine struct {
	mu    sync.Mutex
	phase Phase

	agents   *agent.Manager
	tools    *tool.Registry
	store    *persistence.Store
	adapters map[string]provider.Adapter

	toolConcurrency int64
	logger          *slog.Logger

	metrics *observability.Metrics
	events  *observability.EventRecorder
}

// SetObservability wires the engine's optional metrics/event recording.
// Either argument may be nil to skip that surface (e.g. in tests).
func (e *Engine) SetObservability(metrics *observability.Metrics, events *observability.EventRecorder) {
	e.mu.Lock()
	e.metrics = metrics
	e.events = events
	e.mu.Unlock()
}

// NewEngine creates an Engine. adapters maps a Provider Adapter's Name() to
// the adapter instance; store may be nil to run without persistence (e.g.
// in tests).
func NewEngine(agents *agent.Manager, tools *tool.Registry, store *persistence.Store, adapters map[string]provider.Adapter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		phase:           PhaseIdle,
		agents:          agents,
		tools:           tools,
		store:           store,
		adapters:        adapters,
		toolConcurrency: DefaultToolConcurrency,
		logger:          logger.With("component", "turn_engine"),
	}
}

// SetToolConcurrency overrides DefaultToolConcurrency.
func (e *Engine) SetToolConcurrency(n int) {
	if n > 0 {
		e.mu.Lock()
		e.toolConcurrency = int64(n)
		e.mu.Unlock()
	}
}

// Phase returns the engine's current state.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// promptVars returns the system-prompt placeholder substitutions every
// activation renders (§4.4 "rendering {current_date} and similar
// placeholders").
func promptVars() map[string]string {
	now := time.Now().UTC()
	return map[string]string{
		"current_date": datetime.FormatUserTimeWithTimezone(now, "UTC", datetime.Resolved24Hour),
	}
}

// bufferedCall accumulates one in-flight tool call's streamed argument
// fragments until its ToolCallEnd arrives.
type bufferedCall struct {
	id   string
	name string
	args strings.Builder
}

// Run drives the turn engine from IDLE through to its next IDLE (or
// CANCELLED) state for a single user message, emitting Events as it goes.
// The returned channel is closed when the turn ends; callers must drain it.
func (e *Engine) Run(ctx context.Context, conv *persistence.Conversation, userText string) (<-chan Event, error) {
	current := e.agents.Current()
	if current == nil {
		return nil, fmt.Errorf("turn: no current agent selected")
	}

	events := make(chan Event, 16)

	e.agents.BeginTurn()
	conv.EnsureAgent(current.Name())

	userMsg := message.NewUserText(userText)
	current.AppendHistory(userMsg)
	userIdx := len(current.Snapshot()) - 1
	preview := userText
	if len(preview) > 80 {
		preview = preview[:80]
	}

	runID := uuid.NewString()
	runStart := time.Now()
	if e.events != nil {
		ctx = observability.AddRunID(ctx, runID)
		_ = e.events.RecordRunStart(ctx, runID, map[string]any{"conversation_id": conv.ID, "agent": current.Name()})
	}
	observability.EmitRunAttempt(&observability.RunAttemptEvent{SessionID: conv.ID, RunID: runID, Attempt: 1})

	go func() {
		defer close(events)
		defer e.agents.EndTurn()
		runErr := e.loop(ctx, conv, current, userIdx, preview, events)
		if e.events != nil {
			_ = e.events.RecordRunEnd(ctx, time.Since(runStart), runErr)
		}
		if e.metrics != nil {
			status := "success"
			if runErr != nil {
				status = "error"
			}
			e.metrics.RecordRunAttempt(status)
		}
	}()

	return events, nil
}

func (e *Engine) loop(ctx context.Context, conv *persistence.Conversation, current *agent.Agent, userIdx int, preview string, events chan<- Event) error {
	vars := promptVars()

	for {
		e.setPhase(PhaseStreaming)

		adapter, ok := e.adapters[current.Def.Provider]
		if !ok {
			err := &ErrUnknownProvider{Provider: current.Def.Provider}
			events <- Event{Kind: EventError, Err: err}
			e.setPhase(PhaseIdle)
			return err
		}

		visible := filterByAgentToolNames(e.tools.ForAgent(current.Name(), current.Def.ToolPolicy), current.Def)
		req := &provider.Request{
			Model:    current.Def.Model,
			System:   current.Def.RenderSystemPrompt(vars),
			Messages: current.Snapshot(),
			Tools:    tool.Descriptors(visible),
		}

		llmStart := time.Now()
		stream, retryResult := infra.Retry(ctx, streamRetryConfig, func(ctx context.Context) (<-chan provider.StreamEvent, error) {
			return adapter.Stream(ctx, req)
		})
		if retryResult.LastError != nil {
			events <- Event{Kind: EventError, Err: retryResult.LastError}
			e.setPhase(PhaseIdle)
			if e.metrics != nil {
				e.metrics.RecordLLMRequest(adapter.Name(), req.Model, "error", time.Since(llmStart).Seconds(), 0, 0)
				e.metrics.RecordError("turn_engine", "stream_start")
			}
			return retryResult.LastError
		}

		var text strings.Builder
		var thinkingText strings.Builder
		var thinkingSig []byte
		buffered := make(map[string]*bufferedCall)
		var order []string
		var stopReason provider.StopReason
		var stopErr error
		var inputTokens, outputTokens int
		cancelled := false

	drain:
		for {
			select {
			case <-ctx.Done():
				cancelled = true
				break drain
			case ev, ok := <-stream:
				if !ok {
					break drain
				}
				switch ev.Kind {
				case provider.EventTextDelta:
					text.WriteString(ev.Text)
					events <- Event{Kind: EventText, Text: ev.Text}
				case provider.EventThinkingDelta:
					thinkingText.WriteString(ev.Text)
					events <- Event{Kind: EventThinking, Text: ev.Text}
				case provider.EventThinkingSignature:
					thinkingSig = ev.Signature
				case provider.EventToolCallStart:
					buffered[ev.ToolCallID] = &bufferedCall{id: ev.ToolCallID, name: ev.ToolCallName}
					order = append(order, ev.ToolCallID)
				case provider.EventToolCallArgsDelta:
					if bc, ok := buffered[ev.ToolCallID]; ok {
						bc.args.WriteString(ev.ArgsDelta)
					}
				case provider.EventToolCallEnd:
					// arguments are fully accumulated; nothing further to do here.
				case provider.EventUsageUpdate:
					inputTokens, outputTokens = ev.InputTokens, ev.OutputTokens
				case provider.EventStop:
					stopReason = ev.StopReason
					stopErr = ev.Err
					break drain
				}
			}
		}

		if e.metrics != nil {
			status := "success"
			switch {
			case cancelled:
				status = "cancelled"
			case stopErr != nil || stopReason == provider.StopError:
				status = "error"
			}
			e.metrics.RecordLLMRequest(adapter.Name(), req.Model, status, time.Since(llmStart).Seconds(), inputTokens, outputTokens)
		}
		if !cancelled {
			observability.EmitModelUsage(&observability.ModelUsageEvent{
				SessionID:  conv.ID,
				Provider:   adapter.Name(),
				Model:      req.Model,
				Usage:      observability.UsageDetails{Input: int64(inputTokens), Output: int64(outputTokens)},
				DurationMs: time.Since(llmStart).Milliseconds(),
			})
		}

		if cancelled {
			e.setPhase(PhaseCancelled)
			events <- Event{Kind: EventStop, StopReason: StopCancelled}
			e.setPhase(PhaseIdle)
			return context.Canceled
		}

		var parts []message.Part
		if thinkingText.Len() > 0 || len(thinkingSig) > 0 {
			parts = append(parts, message.Thinking{Text: thinkingText.String(), Signature: thinkingSig})
		}
		if text.Len() > 0 {
			parts = append(parts, message.Text{Content: text.String()})
		}
		var calls []bufferedCall
		for _, id := range order {
			bc := buffered[id]
			parts = append(parts, message.ToolCall{ID: bc.id, Name: bc.name, Args: json.RawMessage(bc.args.String())})
			calls = append(calls, *bc)
		}
		if len(parts) > 0 {
			current.AppendHistory(message.Message{Role: message.RoleAssistant, Parts: parts, Timestamp: time.Now()})
		}

		if stopErr != nil || stopReason == provider.StopError {
			events <- Event{Kind: EventError, Err: stopErr}
			e.setPhase(PhaseIdle)
			return stopErr
		}

		if stopReason != provider.StopToolUse || len(calls) == 0 {
			conv.RecordTurn(current.Name(), userIdx, preview)
			if e.store != nil {
				if err := e.store.Save(ctx, conv); err != nil {
					e.logger.Warn("failed to persist conversation", "conversation_id", conv.ID, "error", err)
				}
			}
			events <- Event{Kind: EventStop, StopReason: stopReason}
			e.setPhase(PhaseIdle)
			return nil
		}

		e.setPhase(PhaseTools)

		if transferCall, ok := findTransfer(calls); ok {
			target, err := e.handleTransfer(current, transferCall, vars)
			if err != nil {
				events <- Event{Kind: EventError, Err: err}
				e.setPhase(PhaseIdle)
				return err
			}
			current = target
			conv.EnsureAgent(current.Name())
			events <- Event{Kind: EventTransfer, AgentName: current.Name()}
			continue
		}

		results := e.dispatchAll(ctx, calls, events)
		for _, r := range results {
			current.AppendHistory(message.Message{
				Role:       message.RoleTool,
				Parts:      []message.Part{r},
				ToolCallID: r.ToolCallID,
				Timestamp:  time.Now(),
			})
		}
	}
}

// filterByAgentToolNames intersects the registry's policy/visibility-filtered
// tools with the agent's own tool_names allow-list (§4.4: "for each tool in
// agent.tool_names registers it from T").
func filterByAgentToolNames(visible []*tool.Descriptor, def *agent.Definition) []*tool.Descriptor {
	if len(def.ToolNames) == 0 {
		return nil
	}
	out := make([]*tool.Descriptor, 0, len(visible))
	for _, d := range visible {
		if def.HasTool(d.Name) {
			out = append(out, d)
		}
	}
	return out
}

// findTransfer reports the first buffered call named "transfer", if any
// (§5: "a transfer call suppresses all sibling calls").
func findTransfer(calls []bufferedCall) (bufferedCall, bool) {
	for _, c := range calls {
		if c.name == "transfer" {
			return c, true
		}
	}
	return bufferedCall{}, false
}

func (e *Engine) handleTransfer(current *agent.Agent, call bufferedCall, vars map[string]string) (*agent.Agent, error) {
	var args struct {
		TargetAgent      string `json:"target_agent"`
		Task             string `json:"task"`
		RelevantMessages []int  `json:"relevant_messages"`
	}
	if err := json.Unmarshal([]byte(call.args.String()), &args); err != nil {
		return nil, fmt.Errorf("turn: invalid transfer arguments: %w", err)
	}

	result, err := e.agents.Transfer(agent.TransferRequest{
		FromAgent:        current.Name(),
		ToAgent:          args.TargetAgent,
		Task:             args.Task,
		RelevantMessages: args.RelevantMessages,
	}, vars)
	if err != nil {
		return nil, err
	}
	return result.Target, nil
}

// dispatchAll executes calls in parallel, bounded by toolConcurrency,
// preserving input order in the returned results (§4.5, §5).
func (e *Engine) dispatchAll(ctx context.Context, calls []bufferedCall, events chan<- Event) []message.ToolResult {
	e.mu.Lock()
	bound := e.toolConcurrency
	e.mu.Unlock()

	sem := infra.NewSemaphore(bound)
	results := make([]message.ToolResult, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		events <- Event{Kind: EventToolStart, ToolCallID: call.id, ToolName: call.name}
		if e.events != nil {
			_ = e.events.RecordToolStart(ctx, call.name, json.RawMessage(call.args.String()))
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = message.ToolResult{ToolCallID: call.id, Content: err.Error(), IsError: true}
			continue
		}

		wg.Add(1)
		go func(i int, c bufferedCall) {
			defer wg.Done()
			defer sem.Release(1)

			start := time.Now()
			content, isError, err := e.tools.Dispatch(ctx, c.name, json.RawMessage(c.args.String()))
			if err != nil {
				content = err.Error()
				isError = true
			}
			results[i] = message.ToolResult{ToolCallID: c.id, Content: content, IsError: isError}
			events <- Event{Kind: EventToolResult, ToolCallID: c.id, ToolName: c.name, ToolResult: content, ToolError: isError}

			if e.metrics != nil {
				status := "success"
				if isError {
					status = "error"
				}
				e.metrics.RecordToolExecution(c.name, status, time.Since(start).Seconds())
				if isError {
					e.metrics.RecordError("tool_dispatch", c.name)
				}
			}
			if e.events != nil {
				_ = e.events.RecordToolEnd(ctx, c.name, time.Since(start), content, err)
			}
		}(i, call)
	}

	wg.Wait()
	return results
}
