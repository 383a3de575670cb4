package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentcore/orchestrator/pkg/message"
)

// BedrockAdapter implements Adapter against AWS Bedrock's Converse /
// ConverseStream API, demonstrating a third streaming wire shape (an AWS
// event stream) behind the same contract as Anthropic's SSE and OpenAI's
// chunked JSON.
type BedrockAdapter struct {
	client       *bedrockruntime.Client
	r            retrier
	defaultModel string
}

// BedrockConfig configures a BedrockAdapter.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
	RetryDelay      time.Duration
}

// NewBedrockAdapter loads AWS credentials (explicit or default chain) and
// builds the Converse client.
func NewBedrockAdapter(ctx context.Context, cfg BedrockConfig) (*BedrockAdapter, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockAdapter{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		r:            newRetrier(cfg.MaxRetries, cfg.RetryDelay),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (b *BedrockAdapter) Name() string { return "bedrock" }

func (b *BedrockAdapter) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "anthropic.claude-3-sonnet-20240229-v1:0", Name: "Claude 3 Sonnet (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "meta.llama3-70b-instruct-v1:0", Name: "Llama 3 70B (Bedrock)", ContextSize: 8192, SupportsVision: false},
		{ID: "mistral.mixtral-8x7b-instruct-v0:1", Name: "Mixtral 8x7B (Bedrock)", ContextSize: 32768, SupportsVision: false},
	}
}

func (b *BedrockAdapter) SupportsTools() bool { return true }

func (b *BedrockAdapter) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	if b.client == nil {
		return nil, NewError("bedrock", req.Model, errors.New("bedrock client not initialized"))
	}

	model := req.Model
	if model == "" {
		model = b.defaultModel
	}

	messages, err := b.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to convert messages: %w", err)
	}

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		converseReq.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		converseReq.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	}
	if len(req.Tools) > 0 {
		converseReq.ToolConfig = b.convertTools(req.Tools)
	}

	var out *bedrockruntime.ConverseStreamOutput
	err = b.r.retry(ctx, IsRetryable, func() error {
		o, e := b.client.ConverseStream(ctx, converseReq)
		if e != nil {
			return b.wrapError(e, model)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go b.processStream(ctx, out, events, model)
	return events, nil
}

func (b *BedrockAdapter) processStream(ctx context.Context, out *bedrockruntime.ConverseStreamOutput, events chan<- StreamEvent, model string) {
	defer close(events)
	stream := out.GetStream()
	defer stream.Close()

	var currentToolID, currentToolName string
	eventChan := stream.Events()

	for {
		select {
		case <-ctx.Done():
			events <- StreamEvent{Kind: EventStop, StopReason: StopError, Err: ctx.Err()}
			return
		case ev, ok := <-eventChan:
			if !ok {
				if currentToolID != "" {
					events <- StreamEvent{Kind: EventToolCallEnd, ToolCallID: currentToolID, ToolCallName: currentToolName}
				}
				if err := stream.Err(); err != nil {
					events <- StreamEvent{Kind: EventStop, StopReason: StopError, Err: b.wrapError(err, model)}
				} else {
					events <- StreamEvent{Kind: EventStop, StopReason: StopEndTurn}
				}
				return
			}

			switch v := ev.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					currentToolID = aws.ToString(toolUse.Value.ToolUseId)
					currentToolName = aws.ToString(toolUse.Value.Name)
					events <- StreamEvent{Kind: EventToolCallStart, ToolCallID: currentToolID, ToolCallName: currentToolName}
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := v.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						events <- StreamEvent{Kind: EventTextDelta, Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						events <- StreamEvent{Kind: EventToolCallArgsDelta, ToolCallID: currentToolID, ArgsDelta: *delta.Value.Input}
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if currentToolID != "" {
					events <- StreamEvent{Kind: EventToolCallEnd, ToolCallID: currentToolID, ToolCallName: currentToolName}
					currentToolID, currentToolName = "", ""
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				events <- StreamEvent{Kind: EventStop, StopReason: StopEndTurn}
				return

			case *types.ConverseStreamOutputMemberMetadata:
				if v.Value.Usage != nil {
					events <- StreamEvent{
						Kind:         EventUsageUpdate,
						InputTokens:  int(aws.ToInt32(v.Value.Usage.InputTokens)),
						OutputTokens: int(aws.ToInt32(v.Value.Usage.OutputTokens)),
					}
				}
			}
		}
	}
}

// convertMessages flattens the canonical Message/Part model into Bedrock's
// Converse content-block array.
func (b *BedrockAdapter) convertMessages(messages []message.Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == message.RoleSystem {
			continue
		}

		var content []types.ContentBlock
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case message.Text:
				if p.Content != "" {
					content = append(content, &types.ContentBlockMemberText{Value: p.Content})
				}
			case message.Image:
				if format, ok := bedrockImageFormat(p.MimeType); ok {
					content = append(content, &types.ContentBlockMemberImage{
						Value: types.ImageBlock{Format: format, Source: &types.ImageSourceMemberBytes{Value: p.Data}},
					})
				}
			case message.ToolResult:
				content = append(content, &types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(p.ToolCallID),
						Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: p.Content}},
					},
				})
			case message.ToolCall:
				var input any = map[string]any{}
				if len(p.Args) > 0 {
					_ = json.Unmarshal(p.Args, &input)
				}
				content = append(content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(p.ID),
						Name:      aws.String(p.Name),
						Input:     document.NewLazyDocument(input),
					},
				})
			}
		}

		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == message.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}

	return result, nil
}

func bedrockImageFormat(mimeType string) (types.ImageFormat, bool) {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return types.ImageFormatPng, true
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	default:
		return "", false
	}
}

func (b *BedrockAdapter) convertTools(tools []ToolDescriptor) *types.ToolConfiguration {
	specs := make([]types.Tool, 0, len(tools))
	for _, tool := range tools {
		var schemaDoc any
		if err := json.Unmarshal(tool.InputSchema, &schemaDoc); err != nil {
			schemaDoc = map[string]any{"type": "object"}
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(tool.Name),
				Description: aws.String(tool.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaDoc)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}
}

func (b *BedrockAdapter) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	return NewError("bedrock", model, err)
}
