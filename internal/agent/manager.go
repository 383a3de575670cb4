package agent

import (
	"fmt"
	"sync"

	"github.com/agentcore/orchestrator/pkg/message"
)

// ResolveProviderFunc maps a model id to the provider adapter name that
// serves it (e.g. "claude-opus-4-20250514" -> "anthropic"), as configured
// in the global config's model registry.
type ResolveProviderFunc func(modelID string) (providerName string, err error)

// Manager is the process-wide singleton owning every Agent, the
// current-agent pointer, and the transfer() contract between them (§3,
// §4.2). Mutation is confined to Manager's own lock; each Agent's history
// is otherwise owned exclusively by that Agent.
type Manager struct {
	mu sync.Mutex

	agents          map[string]*Agent
	order           []string
	current         *Agent
	currentProvider string
	resolveProvider ResolveProviderFunc

	// inTurn is true between BeginTurn and EndTurn; Select rejects a
	// reselection while true (§3: "selection during mid-turn is rejected").
	inTurn bool
}

// NewManager creates an empty manager. resolveProvider may be nil if
// SwitchModel is never called (e.g. single-provider deployments).
func NewManager(resolveProvider ResolveProviderFunc) *Manager {
	return &Manager{
		agents:          make(map[string]*Agent),
		resolveProvider: resolveProvider,
	}
}

// Register adds an agent definition to the registry. The first registered
// agent becomes current by default.
func (m *Manager) Register(def *Definition) *Agent {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := NewAgent(def)
	m.agents[def.Name] = a
	m.order = append(m.order, def.Name)
	if m.current == nil {
		m.current = a
		a.setActive(true)
	}
	return a
}

// Get returns the named agent, if registered.
func (m *Manager) Get(name string) (*Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[name]
	return a, ok
}

// Current returns the currently active agent.
func (m *Manager) Current() *Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Names returns every registered agent name in registration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// BeginTurn marks a stream as in flight against the current agent; Select
// and SwitchModel reject while a turn is active.
func (m *Manager) BeginTurn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inTurn = true
}

// EndTurn clears the in-flight marker once a stream reaches STOP or
// CANCELLED.
func (m *Manager) EndTurn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inTurn = false
}

// Select deactivates the current agent (if any) and activates name against
// the currently selected provider. Rejected if a turn is mid-flight.
func (m *Manager) Select(name string) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inTurn {
		return nil, fmt.Errorf("agent: cannot select %q while a turn is in progress", name)
	}

	target, ok := m.agents[name]
	if !ok {
		return nil, &ErrUnknownAgent{Name: name}
	}

	if m.current != nil && m.current != target {
		m.current.setActive(false)
	}
	target.setActive(true)
	m.current = target
	return target, nil
}

// SwitchModel resolves the Provider Adapter for modelID. If it differs
// from the current adapter, the current agent is deactivated on the old
// adapter and reactivated on the new one, forcing tool re-registration;
// the conversation history is left as canonical Message/Part and is
// translated by each Adapter's own convertMessages at stream time (§3,
// Message Normalizer).
func (m *Manager) SwitchModel(modelID string) (providerChanged bool, newProvider string, err error) {
	if m.resolveProvider == nil {
		return false, "", fmt.Errorf("agent: no provider resolver configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inTurn {
		return false, "", fmt.Errorf("agent: cannot switch model while a turn is in progress")
	}

	provider, err := m.resolveProvider(modelID)
	if err != nil {
		return false, "", fmt.Errorf("agent: resolve provider for model %s: %w", modelID, err)
	}

	if provider == m.currentProvider {
		return false, provider, nil
	}

	if m.current != nil {
		m.current.setActive(false)
		m.current.mu.Lock()
		m.current.toolsRegisteredWithLLM = false
		m.current.mu.Unlock()
		m.current.setActive(true)
	}
	m.currentProvider = provider
	return true, provider, nil
}

// TransferRequest is the decoded argument set of a source agent's
// `transfer` tool call (§3).
type TransferRequest struct {
	FromAgent        string
	ToAgent          string
	Task             string
	RelevantMessages []int
}

// TransferResult describes the target agent now owning the conversation.
type TransferResult struct {
	Target *Agent
}

// Transfer implements the handoff contract (§3): it builds the target's
// new turn context as (a) the target's rendered system prompt, (b) the
// slice of the source's history selected by RelevantMessages (bounds
// checked, out-of-range indices dropped silently), and (c) a synthetic
// user message carrying Task. This REPLACES the target's history for this
// turn; the source's history is left unchanged. Transfers form a chain,
// not a stack: there is no automatic "return".
func (m *Manager) Transfer(req TransferRequest, systemPromptVars map[string]string) (*TransferResult, error) {
	m.mu.Lock()
	source, sourceOK := m.agents[req.FromAgent]
	target, targetOK := m.agents[req.ToAgent]
	m.mu.Unlock()

	if !sourceOK {
		return nil, &ErrUnknownAgent{Name: req.FromAgent}
	}
	if !targetOK {
		return nil, &ErrUnknownAgent{Name: req.ToAgent}
	}

	sourceHistory := source.Snapshot()

	var projected []message.Message
	projected = append(projected, message.NewSystemText(target.Def.RenderSystemPrompt(systemPromptVars)))
	for _, idx := range req.RelevantMessages {
		if idx < 0 || idx >= len(sourceHistory) {
			continue // out-of-range entries are dropped silently (§3)
		}
		projected = append(projected, sourceHistory[idx])
	}
	projected = append(projected, message.NewUserText(req.Task))

	target.ReplaceHistory(projected)

	m.mu.Lock()
	if m.current != nil && m.current != target {
		m.current.setActive(false)
	}
	target.setActive(true)
	m.current = target
	m.mu.Unlock()

	return &TransferResult{Target: target}, nil
}
