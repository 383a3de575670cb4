package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/agentcore/orchestrator/internal/tool"
	"github.com/agentcore/orchestrator/internal/tools/policy"
)

const maxToolNameLen = 64

// RegisterBridges republishes every tool, resource, and prompt exposed by
// mgr's connected servers into reg, giving each a "safe" LLM-facing name
// (mcp_<server>_<tool>, truncated/hashed if over maxToolNameLen) and, when
// resolver is non-nil, a policy alias back to its canonical
// "mcp:<server>.<name>" form so allow/deny rules can reference either
// spelling (§4.3). Resources and prompts are bridged as synthetic tools
// (resources_list, resource_read, prompts_list, prompt_get per server)
// since the Tool Registry has no native resource/prompt concept.
func RegisterBridges(reg *tool.Registry, mgr *Manager, resolver *policy.Resolver) []string {
	if reg == nil || mgr == nil {
		return nil
	}

	entries := listToolsSorted(mgr)
	used := make(map[string]struct{})
	registered := make([]string, 0, len(entries)+4*len(listServerIDs(mgr)))
	serverTools := make(map[string][]string)

	for _, entry := range entries {
		name := safeToolName(entry.serverID, entry.tool.Name, used)
		serverID, toolName := entry.serverID, entry.tool.Name
		_ = reg.Register(&tool.Descriptor{
			Name:        name,
			Description: bridgeDescription(serverID, toolName, entry.tool.Description),
			InputSchema: bridgeSchema(entry.tool.InputSchema),
			Handler: tool.HandlerFunc(func(ctx context.Context, params json.RawMessage) (string, bool, error) {
				var arguments map[string]any
				if len(params) > 0 {
					if err := json.Unmarshal(params, &arguments); err != nil {
						return "", true, err
					}
				}
				result, err := mgr.CallTool(ctx, serverID, toolName, arguments)
				if err != nil {
					return "", true, err
				}
				content, isError := formatToolCallResult(result)
				return content, isError, nil
			}),
		})
		registered = append(registered, name)
		serverTools[serverID] = append(serverTools[serverID], toolName)
		if resolver != nil {
			resolver.RegisterAlias(name, canonicalToolName(serverID, toolName))
		}
	}

	for _, serverID := range listServerIDs(mgr) {
		sid := serverID
		resListName := safeToolName(sid, "resources_list", used)
		resReadName := safeToolName(sid, "resource_read", used)
		promptListName := safeToolName(sid, "prompts_list", used)
		promptGetName := safeToolName(sid, "prompt_get", used)

		_ = reg.Register(&tool.Descriptor{
			Name:        resListName,
			Description: fmt.Sprintf("List MCP resources for %s", sid),
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler: tool.HandlerFunc(func(ctx context.Context, params json.RawMessage) (string, bool, error) {
				payload, err := json.Marshal(mgr.AllResources()[sid])
				if err != nil {
					return "", true, err
				}
				return string(payload), false, nil
			}),
		})
		_ = reg.Register(&tool.Descriptor{
			Name:        resReadName,
			Description: fmt.Sprintf("Read an MCP resource from %s (provide uri)", sid),
			InputSchema: json.RawMessage(`{"type":"object","properties":{"uri":{"type":"string"}},"required":["uri"]}`),
			Handler: tool.HandlerFunc(func(ctx context.Context, params json.RawMessage) (string, bool, error) {
				var input struct {
					URI string `json:"uri"`
				}
				if err := json.Unmarshal(params, &input); err != nil {
					return "", true, err
				}
				if strings.TrimSpace(input.URI) == "" {
					return "", true, fmt.Errorf("uri is required")
				}
				contents, err := mgr.ReadResource(ctx, sid, input.URI)
				if err != nil {
					return "", true, err
				}
				content, isError := formatResourceContents(contents)
				return content, isError, nil
			}),
		})
		_ = reg.Register(&tool.Descriptor{
			Name:        promptListName,
			Description: fmt.Sprintf("List MCP prompts for %s", sid),
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler: tool.HandlerFunc(func(ctx context.Context, params json.RawMessage) (string, bool, error) {
				payload, err := json.Marshal(mgr.AllPrompts()[sid])
				if err != nil {
					return "", true, err
				}
				return string(payload), false, nil
			}),
		})
		_ = reg.Register(&tool.Descriptor{
			Name:        promptGetName,
			Description: fmt.Sprintf("Fetch an MCP prompt from %s (provide name, arguments)", sid),
			InputSchema: json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"},"arguments":{"type":"object"}},"required":["name"]}`),
			Handler: tool.HandlerFunc(func(ctx context.Context, params json.RawMessage) (string, bool, error) {
				var input struct {
					Name      string            `json:"name"`
					Arguments map[string]string `json:"arguments,omitempty"`
				}
				if err := json.Unmarshal(params, &input); err != nil {
					return "", true, err
				}
				if strings.TrimSpace(input.Name) == "" {
					return "", true, fmt.Errorf("name is required")
				}
				result, err := mgr.GetPrompt(ctx, sid, input.Name, input.Arguments)
				if err != nil {
					return "", true, err
				}
				content, isError := formatPromptResult(result)
				return content, isError, nil
			}),
		})

		registered = append(registered, resListName, resReadName, promptListName, promptGetName)
		if resolver != nil {
			resolver.RegisterAlias(resListName, canonicalResourceList(sid))
			resolver.RegisterAlias(resReadName, canonicalResourceRead(sid))
			resolver.RegisterAlias(promptListName, canonicalPromptList(sid))
			resolver.RegisterAlias(promptGetName, canonicalPromptGet(sid))
		}
		serverTools[sid] = append(serverTools[sid], "resources.list", "resources.read", "prompts.list", "prompts.get")
	}

	if resolver != nil {
		for serverID, names := range serverTools {
			resolver.RegisterMCPServer(serverID, names)
		}
	}

	return registered
}

// RegisterReconnectTool adds the builtin mcp_reconnect(server_id) tool,
// which disconnects and reconnects the named MCP server and re-bridges its
// tools/resources/prompts into reg. Exposed to every agent by default since
// a dropped MCP server otherwise requires a process restart to recover.
func RegisterReconnectTool(reg *tool.Registry, mgr *Manager, resolver *policy.Resolver) error {
	return reg.Register(&tool.Descriptor{
		Name:        "mcp_reconnect",
		Description: "Reconnect a disconnected MCP server and republish its tools",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"server_id":{"type":"string"}},"required":["server_id"]}`),
		Handler: tool.HandlerFunc(func(ctx context.Context, params json.RawMessage) (string, bool, error) {
			var input struct {
				ServerID string `json:"server_id"`
			}
			if err := json.Unmarshal(params, &input); err != nil {
				return "", true, err
			}
			if strings.TrimSpace(input.ServerID) == "" {
				return "", true, fmt.Errorf("server_id is required")
			}

			_ = mgr.Disconnect(input.ServerID)
			if err := mgr.Connect(ctx, input.ServerID); err != nil {
				return "", true, fmt.Errorf("reconnect %s: %w", input.ServerID, err)
			}

			names := RegisterBridges(reg, mgr, resolver)
			payload, err := json.Marshal(map[string]any{"server_id": input.ServerID, "tools": names})
			if err != nil {
				return "", true, err
			}
			return string(payload), false, nil
		}),
	})
}

func bridgeDescription(serverID, toolName, desc string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s.%s", serverID, toolName)
	}
	return fmt.Sprintf("MCP tool %s.%s: %s", serverID, toolName, desc)
}

func bridgeSchema(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}

type toolEntry struct {
	serverID string
	tool     *MCPTool
}

func listToolsSorted(mgr *Manager) []toolEntry {
	all := mgr.AllTools()
	if len(all) == 0 {
		return nil
	}

	serverIDs := make([]string, 0, len(all))
	for id := range all {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)

	var entries []toolEntry
	for _, serverID := range serverIDs {
		tools := all[serverID]
		sort.Slice(tools, func(i, j int) bool {
			return tools[i].Name < tools[j].Name
		})
		for _, t := range tools {
			entries = append(entries, toolEntry{serverID: serverID, tool: t})
		}
	}
	return entries
}

func listServerIDs(mgr *Manager) []string {
	seen := make(map[string]struct{})
	for id := range mgr.AllTools() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllResources() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllPrompts() {
		seen[id] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func safeToolName(serverID, toolName string, used map[string]struct{}) string {
	base := "mcp_" + sanitizeToolPart(serverID) + "_" + sanitizeToolPart(toolName)
	name := base
	if len(name) > maxToolNameLen {
		name = truncateWithHash(base, serverID, toolName)
	}

	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, serverID, toolName)
	}

	used[name] = struct{}{}
	return name
}

func sanitizeToolPart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func toolNameHash(serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	if maxToolNameLen <= len(suffix) {
		return suffix[len(suffix)-maxToolNameLen:]
	}
	trimLen := maxToolNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	name := base + suffix
	if len(name) <= maxToolNameLen {
		return name
	}
	return truncateWithHash(base, serverID, toolName)
}

func formatToolCallResult(result *ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	allText := true
	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			allText = false
			break
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}

	if allText && combined.Len() > 0 {
		return combined.String(), result.IsError
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", result.IsError
	}
	return string(payload), result.IsError
}

func formatResourceContents(contents []*ResourceContent) (string, bool) {
	if len(contents) == 0 {
		return "", false
	}
	if len(contents) == 1 && contents[0].Text != "" {
		return contents[0].Text, false
	}
	payload, err := json.Marshal(contents)
	if err != nil {
		return "", false
	}
	return string(payload), false
}

func formatPromptResult(result *GetPromptResult) (string, bool) {
	if result == nil || len(result.Messages) == 0 {
		return "", false
	}
	if len(result.Messages) == 1 && result.Messages[0].Content.Type == "text" {
		return result.Messages[0].Content.Text, false
	}
	payload, err := json.Marshal(result.Messages)
	if err != nil {
		return "", false
	}
	return string(payload), false
}

func canonicalToolName(serverID, toolName string) string {
	return fmt.Sprintf("mcp:%s.%s", serverID, toolName)
}

func canonicalResourceList(serverID string) string {
	return fmt.Sprintf("mcp:%s.resources.list", serverID)
}

func canonicalResourceRead(serverID string) string {
	return fmt.Sprintf("mcp:%s.resources.read", serverID)
}

func canonicalPromptList(serverID string) string {
	return fmt.Sprintf("mcp:%s.prompts.list", serverID)
}

func canonicalPromptGet(serverID string) string {
	return fmt.Sprintf("mcp:%s.prompts.get", serverID)
}
