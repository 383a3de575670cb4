package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/agentcore/orchestrator/pkg/message"
)

// GeminiAdapter implements Adapter against Google's Gemini API, grounded on
// the teacher's GoogleProvider (internal/agent/providers/google.go), ported
// onto the core's message.Message/StreamEvent model and the go-openai/
// anthropic adapters' shared retrier instead of the teacher's own
// RetryWithBackoff.
type GeminiAdapter struct {
	client *genai.Client
	r      retrier
}

// GeminiConfig configures a GeminiAdapter.
type GeminiConfig struct {
	APIKey     string
	MaxRetries int
	RetryDelay time.Duration
}

// NewGeminiAdapter builds an adapter; an empty APIKey yields an adapter
// whose Stream calls fail, mirroring the teacher's "unconfigured" provider
// convention already used by the OpenAI/Anthropic adapters.
func NewGeminiAdapter(ctx context.Context, cfg GeminiConfig) (*GeminiAdapter, error) {
	if cfg.APIKey == "" {
		return &GeminiAdapter{r: newRetrier(cfg.MaxRetries, cfg.RetryDelay)}, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &GeminiAdapter{client: client, r: newRetrier(cfg.MaxRetries, cfg.RetryDelay)}, nil
}

func (a *GeminiAdapter) Name() string { return "gemini" }

func (a *GeminiAdapter) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1_000_000, SupportsVision: true},
		{ID: "gemini-2.0-flash-lite", Name: "Gemini 2.0 Flash Lite", ContextSize: 1_000_000, SupportsVision: true},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextSize: 2_000_000, SupportsVision: true},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", ContextSize: 1_000_000, SupportsVision: true},
		{ID: "gemini-1.5-flash-8b", Name: "Gemini 1.5 Flash-8B", ContextSize: 1_000_000, SupportsVision: true},
	}
}

func (a *GeminiAdapter) SupportsTools() bool { return true }

func (a *GeminiAdapter) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	if a.client == nil {
		return nil, errors.New("gemini: API key not configured")
	}

	contents, err := a.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to convert messages: %w", err)
	}
	config := a.buildConfig(req)

	events := make(chan StreamEvent)
	go a.stream(ctx, req.Model, contents, config, events)
	return events, nil
}

// stream drives the Gemini SDK's iter.Seq2 streaming response under the
// shared retrier, translating each candidate part into a StreamEvent.
func (a *GeminiAdapter) stream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig, events chan<- StreamEvent) {
	defer close(events)

	var inputTokens, outputTokens int
	err := a.r.retry(ctx, IsRetryable, func() error {
		inputTokens, outputTokens = 0, 0
		streamErr := a.processStream(ctx, model, contents, config, events, &inputTokens, &outputTokens)
		if streamErr != nil {
			return NewError("gemini", model, streamErr)
		}
		return nil
	})
	if err != nil {
		events <- StreamEvent{Kind: EventStop, StopReason: StopError, Err: err}
		return
	}

	events <- StreamEvent{Kind: EventUsageUpdate, InputTokens: inputTokens, OutputTokens: outputTokens}
	events <- StreamEvent{Kind: EventStop, StopReason: StopEndTurn}
}

func (a *GeminiAdapter) processStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig, events chan<- StreamEvent, inputTokens, outputTokens *int) error {
	seq := a.client.Models.GenerateContentStream(ctx, model, contents, config)

	toolCallIndex := 0
	for resp, err := range seq {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			*inputTokens = int(resp.UsageMetadata.PromptTokenCount)
			*outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					events <- StreamEvent{Kind: EventTextDelta, Text: part.Text}
				}
				if part.FunctionCall != nil {
					argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						argsJSON = []byte("{}")
					}
					id := fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, toolCallIndex)
					toolCallIndex++
					events <- StreamEvent{Kind: EventToolCallStart, ToolCallID: id, ToolCallName: part.FunctionCall.Name}
					events <- StreamEvent{Kind: EventToolCallArgsDelta, ToolCallID: id, ArgsDelta: string(argsJSON)}
					events <- StreamEvent{Kind: EventToolCallEnd, ToolCallID: id, ToolCallName: part.FunctionCall.Name}
				}
			}
		}
	}
	return nil
}

// convertMessages translates the canonical Message/Part model into Gemini's
// Content/Part array. Tool results are matched back to their call's name via
// a running id->name map built while scanning prior ToolCall parts, since
// Gemini's FunctionResponse is keyed by name rather than call ID.
func (a *GeminiAdapter) convertMessages(messages []message.Message) ([]*genai.Content, error) {
	toolNames := make(map[string]string)
	result := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		content := &genai.Content{}
		switch msg.Role {
		case message.RoleUser, message.RoleTool:
			content.Role = genai.RoleUser
		case message.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			continue
		}

		for _, part := range msg.Parts {
			switch p := part.(type) {
			case message.Text:
				if p.Content != "" {
					content.Parts = append(content.Parts, &genai.Part{Text: p.Content})
				}
			case message.Image:
				content.Parts = append(content.Parts, a.convertImage(p))
			case message.ToolCall:
				toolNames[p.ID] = p.Name
				var args map[string]any
				if err := json.Unmarshal(p.Args, &args); err != nil {
					args = make(map[string]any)
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: p.Name, Args: args},
				})
			case message.ToolResult:
				name := toolNames[p.ToolCallID]
				if name == "" {
					name = p.ToolCallID
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						Name:     name,
						Response: map[string]any{"result": p.Content, "error": p.IsError},
					},
				})
			}
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result, nil
}

func (a *GeminiAdapter) convertImage(img message.Image) *genai.Part {
	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &genai.Part{InlineData: &genai.Blob{Data: img.Data, MIMEType: mimeType}}
}

func (a *GeminiAdapter) convertTools(tools []ToolDescriptor) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(t.InputSchema, &schemaMap); err != nil {
			continue
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(schemaMap),
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertSchema translates a JSON Schema map (as produced by every tool's
// Descriptor.InputSchema) into Gemini's own Schema type, grounded on the
// teacher's toolconv.ToGeminiSchema.
func convertSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = convertSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = convertSchema(items)
	}
	return schema
}

func (a *GeminiAdapter) buildConfig(req *Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(min(req.MaxTokens, math.MaxInt32))
	}
	if len(req.Tools) > 0 {
		config.Tools = a.convertTools(req.Tools)
	}
	return config
}
