// Package message defines the canonical, provider-agnostic conversation
// model shared by every component of the orchestration core. Providers,
// persistence, and inter-agent transfer all operate on this representation;
// down-conversion to a specific vendor wire format happens only inside a
// Provider Adapter's Message Normalizer.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Message is the canonical, superset representation of a single turn
// element. Every provider's wire format is either a subset or a flattening
// of this shape; no Provider Adapter invents content when translating it,
// it only drops or serializes parts the vendor cannot express (§4.7).
type Message struct {
	Role Role `json:"role"`

	// Parts holds the ordered content of the message. A message may carry
	// more than one part, e.g. narration text followed by a tool call.
	Parts []Part `json:"parts"`

	// ToolCallID links a tool-role message back to the ToolCall it answers.
	// Populated for convenience; the authoritative link also lives on the
	// ToolResult part itself.
	ToolCallID string `json:"tool_call_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// PartKind tags the concrete type of a Part for JSON (de)serialization.
type PartKind string

const (
	KindText       PartKind = "text"
	KindImage      PartKind = "image"
	KindDocument   PartKind = "document"
	KindToolCall   PartKind = "tool_call"
	KindToolResult PartKind = "tool_result"
	KindThinking   PartKind = "thinking"
)

// Part is one element of a Message's content. It is a closed set of
// variants (Text, Image, Document, ToolCall, ToolResult, Thinking); callers
// switch on Kind() to interpret the concrete value.
type Part interface {
	Kind() PartKind
}

// Text is narration or assistant prose.
type Text struct {
	Content string `json:"content"`
}

func (Text) Kind() PartKind { return KindText }

// Image is inline visual media, e.g. a user-attached screenshot.
type Image struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

func (Image) Kind() PartKind { return KindImage }

// Document is a non-image file attachment (PDF, text, office document).
// The core persists the raw bytes; parsing is an external collaborator.
type Document struct {
	MimeType string `json:"mime_type"`
	Name     string `json:"name"`
	Data     []byte `json:"data"`
}

func (Document) Kind() PartKind { return KindDocument }

// ToolCall is the assistant's request to invoke a named tool.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

func (ToolCall) Kind() PartKind { return KindToolCall }

// ToolResult is the outcome of executing a ToolCall. Content may be a
// plain string or a structured (JSON) value; IsError marks tool-level
// failures that are surfaced to the LLM rather than aborting the turn.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

func (ToolResult) Kind() PartKind { return KindToolResult }

// Thinking is a provider-emitted reasoning trace. Signature, when present,
// is an opaque, provider-issued credential that must be preserved
// byte-for-byte across a tool-use continuation (§4.2.3, Testable Property 4).
type Thinking struct {
	Text      string `json:"text"`
	Signature []byte `json:"signature,omitempty"`
}

func (Thinking) Kind() PartKind { return KindThinking }

// Texts concatenates every Text part's content, in order. Useful for
// producers that only care about the narration, e.g. CLI echo.
func (m Message) Texts() string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(Text); ok {
			out += t.Content
		}
	}
	return out
}

// ToolCalls returns every ToolCall part in the message, in order.
func (m Message) ToolCalls() []ToolCall {
	var out []ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCall); ok {
			out = append(out, tc)
		}
	}
	return out
}

// ToolResults returns every ToolResult part in the message, in order.
func (m Message) ToolResults() []ToolResult {
	var out []ToolResult
	for _, p := range m.Parts {
		if tr, ok := p.(ToolResult); ok {
			out = append(out, tr)
		}
	}
	return out
}

// HasToolCalls reports whether the message carries at least one ToolCall.
func (m Message) HasToolCalls() bool {
	for _, p := range m.Parts {
		if _, ok := p.(ToolCall); ok {
			return true
		}
	}
	return false
}

// Thinking returns every Thinking part in the message, in order. Preserved
// verbatim by callers that re-submit the message after a tool-use round.
func (m Message) ThinkingParts() []Thinking {
	var out []Thinking
	for _, p := range m.Parts {
		if t, ok := p.(Thinking); ok {
			out = append(out, t)
		}
	}
	return out
}

// NewUserText is a convenience constructor for a plain user text message.
func NewUserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{Text{Content: text}}, Timestamp: time.Now()}
}

// NewSystemText is a convenience constructor for a plain system message,
// used for synthetic transfer payloads (§4.4 AgentManager.transfer).
func NewSystemText(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{Text{Content: text}}, Timestamp: time.Now()}
}

// wireMessage is Message's on-disk/wire shape; Parts is decoded through
// wirePart so the Part interface survives a JSON round-trip (required by
// persistence's load(save(C)) == C invariant).
type wireMessage struct {
	Role       Role            `json:"role"`
	Parts      []wirePart      `json:"parts"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

type wirePart struct {
	Kind PartKind        `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON tags each Part with its Kind so UnmarshalJSON can reconstruct
// the concrete type.
func (m Message) MarshalJSON() ([]byte, error) {
	wire := wireMessage{
		Role:       m.Role,
		ToolCallID: m.ToolCallID,
		Timestamp:  m.Timestamp,
	}
	for _, p := range m.Parts {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("message: marshal part %s: %w", p.Kind(), err)
		}
		wire.Parts = append(wire.Parts, wirePart{Kind: p.Kind(), Data: data})
	}
	return json.Marshal(wire)
}

// UnmarshalJSON reconstructs each Part's concrete type from its Kind tag.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	m.Role = wire.Role
	m.ToolCallID = wire.ToolCallID
	m.Timestamp = wire.Timestamp
	m.Parts = nil

	for _, wp := range wire.Parts {
		part, err := unmarshalPart(wp.Kind, wp.Data)
		if err != nil {
			return err
		}
		m.Parts = append(m.Parts, part)
	}
	return nil
}

func unmarshalPart(kind PartKind, data json.RawMessage) (Part, error) {
	switch kind {
	case KindText:
		var p Text
		return p, json.Unmarshal(data, &p)
	case KindImage:
		var p Image
		return p, json.Unmarshal(data, &p)
	case KindDocument:
		var p Document
		return p, json.Unmarshal(data, &p)
	case KindToolCall:
		var p ToolCall
		return p, json.Unmarshal(data, &p)
	case KindToolResult:
		var p ToolResult
		return p, json.Unmarshal(data, &p)
	case KindThinking:
		var p Thinking
		return p, json.Unmarshal(data, &p)
	default:
		return nil, fmt.Errorf("message: unknown part kind %q", kind)
	}
}
