package mcp

import (
	"strings"
	"testing"
)

func TestSafeToolNameSanitizes(t *testing.T) {
	used := make(map[string]struct{})
	name := safeToolName("git-hub", "search/repo", used)
	if name != "mcp_git_hub_search_repo" {
		t.Fatalf("expected sanitized name, got %q", name)
	}
}

func TestSafeToolNameDeduplicates(t *testing.T) {
	used := make(map[string]struct{})
	first := safeToolName("foo-bar", "baz", used)
	second := safeToolName("foo_bar", "baz", used)

	if first == second {
		t.Fatalf("expected unique name for duplicate tool, got %q", second)
	}
	if !strings.HasPrefix(second, first+"_") {
		t.Fatalf("expected duplicate name to include hash suffix, got %q", second)
	}
}

func TestSafeToolNameTruncates(t *testing.T) {
	used := make(map[string]struct{})
	serverID := strings.Repeat("server", 10)
	toolName := strings.Repeat("tool", 10)
	name := safeToolName(serverID, toolName, used)

	if len(name) > maxToolNameLen {
		t.Fatalf("expected name length <= %d, got %d (%q)", maxToolNameLen, len(name), name)
	}
	if !strings.HasSuffix(name, toolNameHash(serverID, toolName)) {
		t.Fatalf("expected truncated name to include hash suffix, got %q", name)
	}
}

func TestFormatToolCallResult_AllTextConcatenates(t *testing.T) {
	result := &ToolCallResult{
		Content: []ToolResultContent{{Type: "text", Text: "line one"}, {Type: "text", Text: "line two"}},
	}
	content, isError := formatToolCallResult(result)
	if content != "line one\nline two" {
		t.Fatalf("expected concatenated text, got %q", content)
	}
	if isError {
		t.Fatalf("expected isError false")
	}
}

func TestFormatToolCallResult_NonTextFallsBackToJSON(t *testing.T) {
	result := &ToolCallResult{
		Content: []ToolResultContent{{Type: "image", Data: "base64=="}},
		IsError: true,
	}
	content, isError := formatToolCallResult(result)
	if !strings.Contains(content, "base64==") {
		t.Fatalf("expected JSON fallback to include raw data, got %q", content)
	}
	if !isError {
		t.Fatalf("expected isError true to propagate")
	}
}

func TestFormatResourceContents_SingleTextShortcut(t *testing.T) {
	content, _ := formatResourceContents([]*ResourceContent{{URI: "file:///a", Text: "hello"}})
	if content != "hello" {
		t.Fatalf("expected shortcut text, got %q", content)
	}
}
