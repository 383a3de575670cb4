package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_JSONRoundTrip_PreservesEveryPartKind(t *testing.T) {
	original := Message{
		Role: RoleAssistant,
		Parts: []Part{
			Text{Content: "let me check that"},
			Thinking{Text: "reasoning trace", Signature: []byte{0x01, 0x02}},
			ToolCall{ID: "call_1", Name: "read_file", Args: json.RawMessage(`{"path":"foo.py"}`)},
			Image{MimeType: "image/png", Data: []byte{0xff, 0xd8}},
			Document{MimeType: "application/pdf", Name: "report.pdf", Data: []byte("pdf-bytes")},
			ToolResult{ToolCallID: "call_1", Content: "file contents", IsError: false},
		},
		ToolCallID: "call_1",
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.Role, decoded.Role)
	assert.Equal(t, original.ToolCallID, decoded.ToolCallID)
	assert.True(t, original.Timestamp.Equal(decoded.Timestamp))
	require.Len(t, decoded.Parts, len(original.Parts))
	for i, p := range original.Parts {
		assert.Equal(t, p, decoded.Parts[i], "part %d", i)
	}
}

func TestMessage_UnmarshalJSON_UnknownKindErrors(t *testing.T) {
	raw := `{"role":"user","parts":[{"kind":"bogus","data":{}}],"timestamp":"2026-01-01T00:00:00Z"}`
	var m Message
	err := json.Unmarshal([]byte(raw), &m)
	require.Error(t, err)
}

func TestMessage_Texts_ConcatenatesTextParts(t *testing.T) {
	m := Message{Parts: []Part{Text{Content: "a"}, ToolCall{Name: "x"}, Text{Content: "b"}}}
	assert.Equal(t, "ab", m.Texts())
}
