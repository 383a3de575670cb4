// Package provider defines the uniform Provider Adapter contract that every
// LLM backend (Anthropic, OpenAI, Bedrock, or an OpenAI-compatible custom
// endpoint) is translated into, and the StreamEvent sequence every adapter
// emits regardless of the vendor's own wire format.
package provider

import (
	"context"
	"encoding/json"

	"github.com/agentcore/orchestrator/pkg/message"
)

// Adapter is the uniform contract every LLM backend is translated into.
// Implementations own their own retry/backoff policy and must be safe for
// concurrent use: the turn engine may hold several in-flight Stream calls
// against the same Adapter for different conversations.
type Adapter interface {
	// Name returns the adapter's stable identifier, e.g. "anthropic".
	Name() string

	// Models returns the models this adapter can serve.
	Models() []ModelInfo

	// SupportsTools reports whether the backend accepts tool definitions.
	SupportsTools() bool

	// Stream sends req and returns a channel of StreamEvents. The channel is
	// closed after a Stop event or a terminal error; callers must drain it
	// to avoid leaking the adapter's internal goroutine.
	Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error)
}

// Request is the canonical completion request, built from the turn engine's
// history (a []message.Message) rather than any vendor's own format.
type Request struct {
	Model                string
	System               string
	Messages             []message.Message
	Tools                []ToolDescriptor
	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int
}

// ToolDescriptor is the adapter-facing view of a registered tool: just
// enough to build the vendor's tool-definition wire format.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ModelInfo describes a model an Adapter can serve.
type ModelInfo struct {
	ID             string
	Name           string
	ContextSize    int
	SupportsVision bool
}

// EventKind tags the concrete shape of a StreamEvent, per §3's StreamEvent
// enum: TextDelta, ThinkingDelta, ThinkingSignature, ToolCallStart,
// ToolCallArgsDelta, ToolCallEnd, UsageUpdate, Stop.
type EventKind string

const (
	EventTextDelta         EventKind = "text_delta"
	EventThinkingDelta     EventKind = "thinking_delta"
	EventThinkingSignature EventKind = "thinking_signature"
	EventToolCallStart     EventKind = "tool_call_start"
	EventToolCallArgsDelta EventKind = "tool_call_args_delta"
	EventToolCallEnd       EventKind = "tool_call_end"
	EventUsageUpdate       EventKind = "usage_update"
	EventStop              EventKind = "stop"
)

// StopReason classifies why a Stop event was emitted.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopError     StopReason = "error"
)

// StreamEvent is one element of the uniform event sequence an Adapter
// emits. Only the fields relevant to Kind are populated.
type StreamEvent struct {
	Kind EventKind

	// TextDelta / ThinkingDelta
	Text string

	// ThinkingSignature: an opaque, provider-issued credential that must be
	// carried back byte-for-byte on a subsequent tool-use continuation.
	Signature []byte

	// ToolCallStart
	ToolCallID   string
	ToolCallName string

	// ToolCallArgsDelta: a fragment of the tool call's JSON arguments,
	// to be concatenated in order and parsed once ToolCallEnd arrives.
	ArgsDelta string

	// UsageUpdate
	InputTokens  int
	OutputTokens int

	// Stop
	StopReason StopReason
	Err        error
}
