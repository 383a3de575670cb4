package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/internal/tools/policy"
)

func echoDescriptor(name string, schema string) *Descriptor {
	return &Descriptor{
		Name:        name,
		Description: "echoes its params back",
		InputSchema: json.RawMessage(schema),
		Handler: HandlerFunc(func(ctx context.Context, params json.RawMessage) (string, bool, error) {
			return string(params), false, nil
		}),
	}
}

func TestRegistry_RegisterAndDispatch(t *testing.T) {
	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Register(echoDescriptor("echo", `{"type":"object","properties":{"msg":{"type":"string"}},"required":["msg"]}`)))

	content, isError, err := reg.Dispatch(context.Background(), "echo", json.RawMessage(`{"msg":"hi"}`))
	require.NoError(t, err)
	assert.False(t, isError)
	assert.JSONEq(t, `{"msg":"hi"}`, content)
}

func TestRegistry_Dispatch_UnknownTool(t *testing.T) {
	reg := NewRegistry(nil, nil)
	_, isError, err := reg.Dispatch(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, isError)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "missing", toolErr.Tool)
}

func TestRegistry_Dispatch_SchemaValidationFailure(t *testing.T) {
	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Register(echoDescriptor("echo", `{"type":"object","properties":{"msg":{"type":"string"}},"required":["msg"]}`)))

	_, isError, err := reg.Dispatch(context.Background(), "echo", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, isError)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "schema validation failed", toolErr.Reason)
}

func TestRegistry_Register_InvalidSchemaRejected(t *testing.T) {
	reg := NewRegistry(nil, nil)
	err := reg.Register(echoDescriptor("broken", `{"type": 123}`))
	require.Error(t, err)
}

func TestRegistry_ForAgent_EnabledForAgentsFilter(t *testing.T) {
	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Register(&Descriptor{Name: "general", Handler: HandlerFunc(noop)}))
	require.NoError(t, reg.Register(&Descriptor{Name: "billing_only", EnabledForAgents: []string{"billing"}, Handler: HandlerFunc(noop)}))

	generalView := reg.ForAgent("support", nil)
	assert.Len(t, generalView, 1)
	assert.Equal(t, "general", generalView[0].Name)

	billingView := reg.ForAgent("billing", nil)
	assert.Len(t, billingView, 2)
}

func TestRegistry_ForAgent_PolicyFilter(t *testing.T) {
	resolver := policy.NewResolver()
	reg := NewRegistry(resolver, nil)
	require.NoError(t, reg.Register(&Descriptor{Name: "shell_exec", Handler: HandlerFunc(noop)}))
	require.NoError(t, reg.Register(&Descriptor{Name: "read_file", Handler: HandlerFunc(noop)}))

	p := &policy.Policy{Allow: []string{"read_file"}}
	visible := reg.ForAgent("agent-1", p)
	require.Len(t, visible, 1)
	assert.Equal(t, "read_file", visible[0].Name)
}

func TestRegistry_UnregisterServer_RemovesNamespacedTools(t *testing.T) {
	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.RegisterMCPTools("github", []MCPToolSpec{{Name: "list_issues"}}, func(ctx context.Context, toolName string, args json.RawMessage) (string, bool, error) {
		return "", false, nil
	}))
	require.NoError(t, reg.Register(echoDescriptor("native_tool", "")))

	reg.UnregisterServer("github")

	all := reg.ForAgent("any", nil)
	require.Len(t, all, 1)
	assert.Equal(t, "native_tool", all[0].Name)
}

func TestRegistry_Dispatch_AppliesResultGuard(t *testing.T) {
	reg := NewRegistry(nil, nil)
	reg.SetGuard(ResultGuard{SanitizeSecrets: true})
	require.NoError(t, reg.Register(&Descriptor{
		Name: "leaky",
		Handler: HandlerFunc(func(ctx context.Context, params json.RawMessage) (string, bool, error) {
			return "api_key=sk-abcdefghijklmnopqrstuvwxyz", false, nil
		}),
	}))

	content, isError, err := reg.Dispatch(context.Background(), "leaky", nil)
	require.NoError(t, err)
	assert.False(t, isError)
	assert.Contains(t, content, "[REDACTED]")
	assert.NotContains(t, content, "sk-abcdefghijklmnopqrstuvwxyz")
}

func noop(ctx context.Context, params json.RawMessage) (string, bool, error) {
	return "", false, nil
}
