package tool

import "fmt"

// ToolError represents a tool-level failure: unknown tool name, malformed
// arguments, schema validation failure, or a handler error. The turn engine
// converts this into a ToolResult part with IsError=true rather than
// aborting the turn (§7 edge cases).
type ToolError struct {
	Tool   string
	Reason string
	Cause  error
}

func (e *ToolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Reason, e.Cause)
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Reason)
}

func (e *ToolError) Unwrap() error { return e.Cause }
