// Package agent implements the Agent and Agent Manager: the registry of
// agents, the current-agent pointer, and the transfer() handoff contract
// between them. Handoffs are explicit tool calls carrying a target agent,
// a task, and a set of relevant message indices rather than named routing
// rules or automatic triggers.
package agent

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/agentcore/orchestrator/internal/templates"
	"github.com/agentcore/orchestrator/internal/tools/policy"
	"github.com/agentcore/orchestrator/pkg/message"
)

// promptEngine renders every agent's SystemPromptTemplate. It is process-wide
// and stateless, so one shared instance is enough for every Definition.
var promptEngine = templates.NewVariableEngine()

// bareVarPattern matches a template action that is a single bare identifier,
// e.g. {{name}}, with no leading dot, pipe, or function call. Agent config
// files predate the richer engine and use this shorthand; rewriting it to
// {{.name}} lets it resolve against the vars map without forcing every
// existing prompt to switch to dotted field access.
var bareVarPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

func toDottedTemplate(tmpl string) string {
	return bareVarPattern.ReplaceAllString(tmpl, "{{.$1}}")
}

// Definition describes a configured agent: its identity, prompt template,
// and tool access. Loaded from the agents config file (§ ambient config).
type Definition struct {
	Name                string
	Description         string
	SystemPromptTemplate string
	ToolNames           []string
	ToolPolicy          *policy.Policy
	Temperature         float64
	IsRemote            bool
	Endpoint            string
	Provider            string
	Model               string
}

// RenderSystemPrompt returns the agent's system prompt with vars substituted
// in through the shared text/template engine (internal/templates), so a
// prompt template can use the full {{upper .name}}/{{default ...}} function
// set rather than bare {{var}} substitution. A malformed template renders to
// the raw template text rather than failing the turn.
func (d *Definition) RenderSystemPrompt(vars map[string]string) string {
	rendered, err := promptEngine.Process(toDottedTemplate(d.SystemPromptTemplate), stringMapToAny(vars))
	if err != nil {
		return d.SystemPromptTemplate
	}
	return rendered
}

func stringMapToAny(vars map[string]string) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// HasTool reports whether name appears in the agent's tool allow-list.
func (d *Definition) HasTool(name string) bool {
	for _, t := range d.ToolNames {
		if t == name {
			return true
		}
	}
	return false
}

// Agent is a live, in-memory agent instance: a Definition bound to its own
// conversation history and activation state. Invariant (§3): at most one
// Agent per (AgentManager, ProviderAdapter) pair has Active=true at any
// instant outside a transfer critical section.
type Agent struct {
	mu sync.Mutex

	Def     *Definition
	History []message.Message

	active                bool
	toolsRegisteredWithLLM bool
}

// NewAgent creates an inactive agent bound to def, with empty history.
func NewAgent(def *Definition) *Agent {
	return &Agent{Def: def}
}

// Name returns the agent's unique identifier.
func (a *Agent) Name() string { return a.Def.Name }

// Active reports whether the agent currently owns the turn.
func (a *Agent) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *Agent) setActive(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = active
}

// ToolsRegisteredWithLLM reports whether this agent's tool set has already
// been sent to the provider for the current activation, so the turn
// engine can skip redundant tool-schema re-registration mid-conversation.
func (a *Agent) ToolsRegisteredWithLLM() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.toolsRegisteredWithLLM
}

// MarkToolsRegistered records that the provider has seen this agent's tool
// definitions; cleared whenever the agent's active adapter changes.
func (a *Agent) MarkToolsRegistered() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.toolsRegisteredWithLLM = true
}

// AppendHistory appends msg to the agent's own history. History is owned
// exclusively by this Agent; cross-agent access happens only through
// AgentManager.Transfer, and only between turns.
func (a *Agent) AppendHistory(msg message.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.History = append(a.History, msg)
}

// Snapshot returns a copy of the current history slice, safe to hand to a
// provider request without racing a concurrent append.
func (a *Agent) Snapshot() []message.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]message.Message, len(a.History))
	copy(out, a.History)
	return out
}

// ReplaceHistory overwrites the agent's history wholesale. Used by
// AgentManager.Transfer to install the target's freshly constructed turn
// context, and by the A2A endpoint to seed an agent invoked from outside
// the process with its caller-supplied relevant_messages.
func (a *Agent) ReplaceHistory(msgs []message.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.History = msgs
	a.toolsRegisteredWithLLM = false
}

// ErrUnknownAgent is returned when a name does not resolve to a registered
// agent.
type ErrUnknownAgent struct{ Name string }

func (e *ErrUnknownAgent) Error() string { return fmt.Sprintf("agent: unknown agent %q", e.Name) }
