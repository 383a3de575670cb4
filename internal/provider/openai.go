package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentcore/orchestrator/pkg/message"
)

// OpenAIAdapter implements Adapter against the OpenAI chat-completions API.
// It also backs any `openai_compatible` custom_llm_providers entry from the
// global config, since go-openai accepts an arbitrary base URL.
type OpenAIAdapter struct {
	client *openai.Client
	r      retrier
	name   string
}

// OpenAIConfig configures an OpenAIAdapter. BaseURL is set for
// OpenAI-compatible custom endpoints; left empty for api.openai.com.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// NewOpenAIAdapter builds an adapter; an empty APIKey yields an adapter
// whose Stream calls fail, mirroring the teacher's "unconfigured" provider.
func NewOpenAIAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	return NewOpenAICompatibleAdapter("openai", cfg)
}

// NewOpenAICompatibleAdapter builds an adapter against any endpoint that
// speaks the OpenAI chat-completions wire format (Groq, DeepInfra, and
// other gateway providers all do), registered under name rather than
// "openai" so the Turn Engine's per-provider adapter map and metrics keep
// them distinct.
func NewOpenAICompatibleAdapter(name string, cfg OpenAIConfig) *OpenAIAdapter {
	if cfg.APIKey == "" {
		return &OpenAIAdapter{r: newRetrier(cfg.MaxRetries, cfg.RetryDelay), name: name}
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientCfg),
		r:      newRetrier(cfg.MaxRetries, cfg.RetryDelay),
		name:   name,
	}
}

func (a *OpenAIAdapter) Name() string {
	if a.name != "" {
		return a.name
	}
	return "openai"
}

func (a *OpenAIAdapter) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextSize: 16385, SupportsVision: false},
	}
}

func (a *OpenAIAdapter) SupportsTools() bool { return true }

func (a *OpenAIAdapter) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	if a.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	messages, err := a.convertMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = a.convertTools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	err = a.r.retry(ctx, IsRetryable, func() error {
		s, e := a.client.CreateChatCompletionStream(ctx, chatReq)
		if e != nil {
			return NewError(a.Name(), req.Model, e)
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go a.processStream(ctx, stream, events)
	return events, nil
}

type pendingToolCall struct {
	id, name string
	args     string
	started  bool
}

func (a *OpenAIAdapter) processStream(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- StreamEvent) {
	defer close(events)
	defer stream.Close()

	calls := make(map[int]*pendingToolCall)
	var inputTokens, outputTokens int

	flush := func() {
		for _, idx := range orderedKeys(calls) {
			tc := calls[idx]
			if tc.id == "" || tc.name == "" {
				continue
			}
			if !tc.started {
				events <- StreamEvent{Kind: EventToolCallStart, ToolCallID: tc.id, ToolCallName: tc.name}
				tc.started = true
			}
			if tc.args != "" {
				events <- StreamEvent{Kind: EventToolCallArgsDelta, ToolCallID: tc.id, ArgsDelta: tc.args}
			}
			events <- StreamEvent{Kind: EventToolCallEnd, ToolCallID: tc.id, ToolCallName: tc.name}
		}
		calls = make(map[int]*pendingToolCall)
	}

	for {
		select {
		case <-ctx.Done():
			events <- StreamEvent{Kind: EventStop, StopReason: StopError, Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				events <- StreamEvent{Kind: EventUsageUpdate, InputTokens: inputTokens, OutputTokens: outputTokens}
				events <- StreamEvent{Kind: EventStop, StopReason: StopEndTurn}
				return
			}
			events <- StreamEvent{Kind: EventStop, StopReason: StopError, Err: NewError(a.Name(), "", err)}
			return
		}
		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			events <- StreamEvent{Kind: EventTextDelta, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if calls[idx] == nil {
				calls[idx] = &pendingToolCall{}
			}
			if tc.ID != "" {
				calls[idx].id = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				calls[idx].args += tc.Function.Arguments
			}
		}

		if resp.Choices[0].FinishReason == "tool_calls" {
			flush()
		}
	}
}

func orderedKeys(m map[int]*pendingToolCall) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// convertMessages flattens the canonical Message/Part model into OpenAI's
// chat-message array. Tool results become dedicated role:"tool" messages,
// one per ToolResult part, since OpenAI does not allow multiple tool
// results within a single message (§4.7 Message Normalizer).
func (a *OpenAIAdapter) convertMessages(messages []message.Message, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		role := string(msg.Role)
		var text string
		var images []message.Image
		var toolCalls []openai.ToolCall
		var toolResults []message.ToolResult

		for _, part := range msg.Parts {
			switch p := part.(type) {
			case message.Text:
				text += p.Content
			case message.Image:
				images = append(images, p)
			case message.ToolCall:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   p.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      p.Name,
						Arguments: string(p.Args),
					},
				})
			case message.ToolResult:
				toolResults = append(toolResults, p)
			}
		}

		if len(toolResults) > 0 {
			for _, tr := range toolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
			continue
		}

		oaiMsg := openai.ChatCompletionMessage{Role: role}
		if len(images) > 0 {
			parts := []openai.ChatMessagePart{}
			if text != "" {
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
			}
			for _, img := range images {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL(img.MimeType, img.Data),
						Detail: openai.ImageURLDetailAuto,
					},
				})
			}
			oaiMsg.MultiContent = parts
		} else {
			oaiMsg.Content = text
		}
		if len(toolCalls) > 0 {
			oaiMsg.ToolCalls = toolCalls
		}
		result = append(result, oaiMsg)
	}

	return result, nil
}

func dataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

func (a *OpenAIAdapter) convertTools(tools []ToolDescriptor) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}
