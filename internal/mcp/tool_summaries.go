package mcp

import "encoding/json"

// ToolSummary is a lightweight description of a bridged tool, used by
// introspection endpoints (e.g. `/tools` over the A2A server) that need a
// flat list without pulling in the full Tool Registry.
type ToolSummary struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Source      string          `json:"source"`
	Namespace   string          `json:"namespace"`
	Canonical   string          `json:"canonical"`
}

// ToolSummaries returns tool metadata for all MCP tools, resources, and
// prompts with the same safe names RegisterBridges would assign, for
// display purposes only (it does not register anything).
func ToolSummaries(mgr *Manager) []ToolSummary {
	if mgr == nil {
		return nil
	}

	entries := listToolsSorted(mgr)
	used := make(map[string]struct{})
	summaries := make([]ToolSummary, 0, len(entries))

	for _, entry := range entries {
		name := safeToolName(entry.serverID, entry.tool.Name, used)
		summaries = append(summaries, ToolSummary{
			Name:        name,
			Description: entry.tool.Description,
			Schema:      entry.tool.InputSchema,
			Source:      "mcp",
			Namespace:   entry.serverID,
			Canonical:   canonicalToolName(entry.serverID, entry.tool.Name),
		})
	}

	for _, serverID := range listServerIDs(mgr) {
		resListName := safeToolName(serverID, "resources_list", used)
		resReadName := safeToolName(serverID, "resource_read", used)
		promptListName := safeToolName(serverID, "prompts_list", used)
		promptGetName := safeToolName(serverID, "prompt_get", used)

		summaries = append(summaries,
			ToolSummary{Name: resListName, Description: "List MCP resources for " + serverID, Source: "mcp", Namespace: serverID, Canonical: canonicalResourceList(serverID)},
			ToolSummary{Name: resReadName, Description: "Read an MCP resource from " + serverID, Source: "mcp", Namespace: serverID, Canonical: canonicalResourceRead(serverID)},
			ToolSummary{Name: promptListName, Description: "List MCP prompts for " + serverID, Source: "mcp", Namespace: serverID, Canonical: canonicalPromptList(serverID)},
			ToolSummary{Name: promptGetName, Description: "Fetch an MCP prompt from " + serverID, Source: "mcp", Namespace: serverID, Canonical: canonicalPromptGet(serverID)},
		)
	}

	return summaries
}
