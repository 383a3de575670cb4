// Package tool implements the Tool Registry: per-agent tool visibility via
// enabled_for_agents allow-lists, MCP namespacing (<server-id>.<tool-name>),
// and input_schema validation before dispatch, grounded on the teacher's
// agent.ToolRegistry (internal/agent/tool_registry.go) and its policy
// resolver (internal/tools/policy).
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/internal/tools/policy"
)

// Handler executes a tool call and returns its result content.
type Handler interface {
	// Execute runs the tool with validated JSON params and returns the
	// result content (and IsError for a tool-level, non-fatal failure).
	Execute(ctx context.Context, params json.RawMessage) (content string, isError bool, err error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (string, bool, error)

func (f HandlerFunc) Execute(ctx context.Context, params json.RawMessage) (string, bool, error) {
	return f(ctx, params)
}

// Descriptor is a registered tool: its wire-visible definition plus the
// handler that executes it and the set of agents it is visible to.
type Descriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler

	// EnabledForAgents restricts visibility to the named agents; empty
	// means visible to every agent (§4.3).
	EnabledForAgents []string
}

// Registry holds every built-in and MCP-backed tool the core knows about,
// and resolves a per-agent, policy-filtered view for the turn engine.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*Descriptor
	schemas  map[string]*jsonschema.Schema
	resolver *policy.Resolver
	guard    ResultGuard
	logger   *slog.Logger
}

// SetGuard installs the redaction/truncation rules applied to every
// dispatched tool result.
func (r *Registry) SetGuard(g ResultGuard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guard = g
}

// NewRegistry creates an empty registry. resolver may be nil, in which case
// only EnabledForAgents filtering applies (no profile/allow/deny policy).
func NewRegistry(resolver *policy.Resolver, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:    make(map[string]*Descriptor),
		schemas:  make(map[string]*jsonschema.Schema),
		resolver: resolver,
		logger:   logger.With("component", "tool_registry"),
	}
}

// Register adds or replaces a tool. The schema is compiled eagerly so a
// malformed input_schema fails at registration time, not at first dispatch.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("tool: descriptor must have a name")
	}

	compiled, err := compileSchema(d.Name, d.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %s: invalid input_schema: %w", d.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Name] = d
	r.schemas[d.Name] = compiled
	return nil
}

// RegisterMCPTools namespaces and registers every tool exposed by an MCP
// server as <server-id>.<tool-name> (§4.3), wiring execution through call.
func (r *Registry) RegisterMCPTools(serverID string, tools []MCPToolSpec, call func(ctx context.Context, toolName string, args json.RawMessage) (string, bool, error)) error {
	for _, t := range tools {
		namespaced := serverID + "." + t.Name
		toolName := t.Name
		if err := r.Register(&Descriptor{
			Name:        namespaced,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Handler: HandlerFunc(func(ctx context.Context, params json.RawMessage) (string, bool, error) {
				return call(ctx, toolName, params)
			}),
		}); err != nil {
			return err
		}
	}
	return nil
}

// MCPToolSpec is the registry-facing view of a tool discovered from an MCP
// server's tools/list response.
type MCPToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Unregister removes a tool, e.g. when its MCP server disconnects.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// UnregisterServer removes every tool namespaced under serverID, used when
// an MCP Supervisor detects a crashed subprocess (§4.3).
func (r *Registry) UnregisterServer(serverID string) {
	prefix := serverID + "."
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.tools {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			delete(r.tools, name)
			delete(r.schemas, name)
		}
	}
}

// ForAgent returns the tool descriptors visible to agentID: every tool
// whose EnabledForAgents is empty or contains agentID, filtered further by
// an optional tool policy.
func (r *Registry) ForAgent(agentID string, toolPolicy *policy.Policy) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var visible []*Descriptor
	for _, d := range r.tools {
		if !visibleToAgent(d, agentID) {
			continue
		}
		if r.resolver != nil && toolPolicy != nil && !r.resolver.IsAllowed(toolPolicy, d.Name) {
			continue
		}
		visible = append(visible, d)
	}
	return visible
}

func visibleToAgent(d *Descriptor, agentID string) bool {
	if len(d.EnabledForAgents) == 0 {
		return true
	}
	for _, id := range d.EnabledForAgents {
		if id == agentID {
			return true
		}
	}
	return false
}

// Descriptors converts a slice of Descriptor into the provider-facing
// ToolDescriptor shape expected by an Adapter's Request.Tools.
func Descriptors(tools []*Descriptor) []provider.ToolDescriptor {
	out := make([]provider.ToolDescriptor, len(tools))
	for i, d := range tools {
		out[i] = provider.ToolDescriptor{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
	}
	return out
}

// Dispatch validates params against the tool's compiled schema and, if
// valid, executes it. A ToolError is returned for both "tool not found" and
// schema validation failures, per §7; the turn engine turns these into a
// ToolResult part with IsError=true rather than aborting the turn.
func (r *Registry) Dispatch(ctx context.Context, name string, params json.RawMessage) (content string, isError bool, err error) {
	r.mu.RLock()
	d, ok := r.tools[name]
	schema := r.schemas[name]
	guard := r.guard
	r.mu.RUnlock()

	if !ok {
		return "", true, &ToolError{Tool: name, Reason: "tool not found"}
	}

	if schema != nil {
		var doc any
		if len(params) == 0 {
			doc = map[string]any{}
		} else if jsonErr := json.Unmarshal(params, &doc); jsonErr != nil {
			return "", true, &ToolError{Tool: name, Reason: "invalid JSON arguments", Cause: jsonErr}
		}
		if valErr := schema.Validate(doc); valErr != nil {
			r.logger.Debug("tool call failed schema validation", "tool", name, "error", valErr)
			return "", true, &ToolError{Tool: name, Reason: "schema validation failed", Cause: valErr}
		}
	}

	content, isError, err = d.Handler.Execute(ctx, params)
	if err != nil {
		return "", true, &ToolError{Tool: name, Reason: "execution failed", Cause: err}
	}
	return guard.Apply(name, content, r.resolver), isError, nil
}

