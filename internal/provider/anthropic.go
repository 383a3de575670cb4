package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentcore/orchestrator/pkg/message"
)

// AnthropicAdapter implements Adapter against Anthropic's Messages API,
// including extended thinking (with signature preservation) and native
// streaming tool use.
type AnthropicAdapter struct {
	client       anthropic.Client
	r            retrier
	defaultModel string
}

// AnthropicConfig configures an AnthropicAdapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewAnthropicAdapter validates config and builds the SDK client.
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicAdapter{
		client:       anthropic.NewClient(opts...),
		r:            newRetrier(cfg.MaxRetries, cfg.RetryDelay),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextSize: 200000, SupportsVision: true},
	}
}

func (a *AnthropicAdapter) SupportsTools() bool { return true }

func (a *AnthropicAdapter) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	events := make(chan StreamEvent)

	go func() {
		defer close(events)

		model := a.model(req.Model)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		err := a.r.retry(ctx, IsRetryable, func() error {
			s, buildErr := a.createStream(ctx, req, model)
			if buildErr != nil {
				return a.wrapError(buildErr, model)
			}
			stream = s
			return nil
		})
		if err != nil {
			events <- StreamEvent{Kind: EventStop, StopReason: StopError, Err: err}
			return
		}

		a.processStream(stream, events, model)
	}()

	return events, nil
}

func (a *AnthropicAdapter) createStream(ctx context.Context, req *Request, model string) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	messages, err := a.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(a.maxTokens(req.MaxTokens)),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	if len(req.Tools) > 0 {
		tools, err := a.convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	if req.EnableThinking {
		budget := int64(req.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	return a.client.Messages.NewStreaming(ctx, params), nil
}

const maxEmptyStreamEvents = 300

func (a *AnthropicAdapter) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- StreamEvent, model string) {
	var currentToolID, currentToolName string
	var inThinking bool
	var inputTokens, outputTokens int
	empty := 0

	for stream.Next() {
		ev := stream.Current()
		handled := false

		switch ev.Type {
		case "message_start":
			start := ev.AsMessageStart()
			if start.Message.Usage.InputTokens > 0 {
				inputTokens = int(start.Message.Usage.InputTokens)
			}
			handled = true

		case "content_block_start":
			block := ev.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "thinking":
				inThinking = true
				handled = true
			case "tool_use":
				tu := block.AsToolUse()
				currentToolID, currentToolName = tu.ID, tu.Name
				events <- StreamEvent{Kind: EventToolCallStart, ToolCallID: currentToolID, ToolCallName: currentToolName}
				handled = true
			}

		case "content_block_delta":
			delta := ev.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					events <- StreamEvent{Kind: EventTextDelta, Text: delta.Text}
					handled = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					events <- StreamEvent{Kind: EventThinkingDelta, Text: delta.Thinking}
					handled = true
				}
			case "signature_delta":
				if delta.Signature != "" {
					events <- StreamEvent{Kind: EventThinkingSignature, Signature: []byte(delta.Signature)}
					handled = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					events <- StreamEvent{Kind: EventToolCallArgsDelta, ToolCallID: currentToolID, ArgsDelta: delta.PartialJSON}
					handled = true
				}
			}

		case "content_block_stop":
			if inThinking {
				inThinking = false
				handled = true
			} else if currentToolID != "" {
				events <- StreamEvent{Kind: EventToolCallEnd, ToolCallID: currentToolID, ToolCallName: currentToolName}
				currentToolID, currentToolName = "", ""
				handled = true
			}

		case "message_delta":
			md := ev.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
			handled = true

		case "message_stop":
			events <- StreamEvent{Kind: EventUsageUpdate, InputTokens: inputTokens, OutputTokens: outputTokens}
			events <- StreamEvent{Kind: EventStop, StopReason: StopEndTurn}
			return

		case "error":
			events <- StreamEvent{Kind: EventStop, StopReason: StopError, Err: a.wrapError(errors.New("anthropic stream error"), model)}
			return
		}

		if handled {
			empty = 0
		} else {
			empty++
			if empty >= maxEmptyStreamEvents {
				events <- StreamEvent{Kind: EventStop, StopReason: StopError, Err: a.wrapError(fmt.Errorf("stream appears malformed: %d consecutive empty events", empty), model)}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		events <- StreamEvent{Kind: EventStop, StopReason: StopError, Err: a.wrapError(err, model)}
	}
}

// convertMessages flattens the canonical Message/Part model into Anthropic's
// content-block array, per the Message Normalizer (§4.7): a message may
// carry several parts, each becomes one content block in order.
func (a *AnthropicAdapter) convertMessages(messages []message.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == message.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case message.Text:
				if p.Content != "" {
					content = append(content, anthropic.NewTextBlock(p.Content))
				}
			case message.ToolResult:
				content = append(content, anthropic.NewToolResultBlock(p.ToolCallID, p.Content, p.IsError))
			case message.ToolCall:
				var input map[string]any
				if len(p.Args) > 0 {
					if err := json.Unmarshal(p.Args, &input); err != nil {
						return nil, fmt.Errorf("invalid tool call args for %s: %w", p.Name, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(p.ID, input, p.Name))
			case message.Image:
				if block, ok := anthropicImageBlock(p.MimeType, p.Data); ok {
					content = append(content, block)
				}
			case message.Thinking:
				content = append(content, anthropic.NewThinkingBlock(string(p.Signature), p.Text))
			}
		}

		if len(content) == 0 {
			continue
		}

		if msg.Role == message.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

func anthropicImageBlock(mimeType string, data []byte) (anthropic.ContentBlockParamUnion, bool) {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return anthropic.NewImageBlockBase64(mimeType, encodeBase64(data)), true
	default:
		return anthropic.ContentBlockParamUnion{}, false
	}
}

func (a *AnthropicAdapter) convertTools(tools []ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func (a *AnthropicAdapter) model(requested string) string {
	if requested == "" {
		return a.defaultModel
	}
	return requested
}

func (a *AnthropicAdapter) maxTokens(requested int) int {
	if requested <= 0 {
		return 4096
	}
	return requested
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (a *AnthropicAdapter) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := (&Error{Provider: "anthropic", Model: model, Cause: err, Reason: FailoverUnknown}).WithStatus(apiErr.StatusCode)

		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				if payload.Error.Message != "" {
					pe = pe.WithMessage(payload.Error.Message)
				}
				if payload.Error.Type != "" {
					pe = pe.WithCode(payload.Error.Type)
				}
				if payload.RequestID != "" {
					pe = pe.WithRequestID(payload.RequestID)
				}
			}
		}
		if pe.Message == "" {
			pe.Message = "anthropic request failed"
		}
		return pe
	}

	return NewError("anthropic", model, err)
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
