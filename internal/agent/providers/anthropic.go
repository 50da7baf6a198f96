package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/pkg/models"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicConfig holds configuration for the Anthropic adapter.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	// BaseURL overrides the default API base URL.
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// MaxRetries bounds retries for transient failures. Default: 3.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff. Default: 1s.
	RetryDelay time.Duration
}

// AnthropicClient implements agent.LLMClient against the Anthropic Messages
// API. Responses are always consumed as SSE streams; the assembled turn is
// returned once the stream completes. Safe for concurrent use.
type AnthropicClient struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

var _ agent.LLMClient = (*AnthropicClient)(nil)

// NewAnthropicClient creates an Anthropic adapter.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		client:       anthropic.NewClient(options...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// Name returns the provider tag.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Models returns the available Claude models.
func (c *AnthropicClient) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextSize: 200000},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextSize: 200000},
	}
}

// Chat produces one assistant turn. When a token sink is supplied, text
// fragments are delivered to it as they arrive on the stream; the sink is
// never invoked after Chat returns.
func (c *AnthropicClient) Chat(ctx context.Context, req *agent.ChatRequest) (*agent.ChatResponse, error) {
	if req == nil {
		return nil, errors.New("anthropic: request is nil")
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	params, err := c.buildParams(req, model)
	if err != nil {
		return nil, NewProviderError("anthropic", model, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay * (1 << (attempt - 1))):
			}
		}

		stream := c.client.Messages.NewStreaming(ctx, params)
		resp, delivered, err := c.consumeStream(stream, model, req.Sink)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Once fragments have reached the sink the turn is partially
		// delivered; retrying would replay them.
		if delivered || !isRetryableAnthropicError(err) {
			return nil, NewProviderError("anthropic", model, err)
		}
	}
	return nil, NewProviderError("anthropic", model, lastErr)
}

// consumeStream assembles one full turn from the SSE stream. Tool input JSON
// arrives as fragments and is accumulated until the content block closes.
func (c *AnthropicClient) consumeStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], model string, sink agent.TokenSink) (*agent.ChatResponse, bool, error) {
	var content strings.Builder
	var toolCalls []models.ToolCall
	var currentTool *models.ToolCall
	var currentInput strings.Builder
	var stopReason string
	var inputTokens, outputTokens int
	delivered := false

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			messageStart := event.AsMessageStart()
			if messageStart.Message.Usage.InputTokens > 0 {
				inputTokens = int(messageStart.Message.Usage.InputTokens)
			}

		case "content_block_start":
			contentBlock := event.AsContentBlockStart().ContentBlock
			if contentBlock.Type == "tool_use" {
				toolUse := contentBlock.AsToolUse()
				currentTool = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					content.WriteString(delta.Text)
					if sink != nil {
						sink(delta.Text)
						delivered = true
					}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentInput.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if currentTool != nil {
				input := currentInput.String()
				if input == "" {
					input = "{}"
				}
				currentTool.Input = json.RawMessage(input)
				toolCalls = append(toolCalls, *currentTool)
				currentTool = nil
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Delta.StopReason != "" {
				stopReason = string(messageDelta.Delta.StopReason)
			}
			if messageDelta.Usage.OutputTokens > 0 {
				outputTokens = int(messageDelta.Usage.OutputTokens)
			}

		case "message_stop":
			return &agent.ChatResponse{
				Content:      content.String(),
				ToolCalls:    toolCalls,
				FinishReason: mapAnthropicStopReason(stopReason, len(toolCalls)),
				Model:        model,
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
			}, delivered, nil

		case "error":
			return nil, delivered, errors.New("anthropic stream error")
		}
	}

	if err := stream.Err(); err != nil {
		return nil, delivered, err
	}
	return nil, delivered, errors.New("stream ended without message_stop")
}

func (c *AnthropicClient) buildParams(req *agent.ChatRequest, model string) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	messages, err := convertMessagesToAnthropic(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolsToAnthropic(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func convertMessagesToAnthropic(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion

		switch msg.Role {
		case models.RoleTool:
			isError := strings.HasPrefix(msg.Content, "Error: ")
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isError))
		default:
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, toolCall := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal(toolCall.Input, &input); err != nil {
					return nil, errors.New("invalid tool call input for " + toolCall.Name)
				}
				content = append(content, anthropic.NewToolUseBlock(toolCall.ID, input, toolCall.Name))
			}
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertToolsToAnthropic(tools []agent.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam

	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, errors.New("invalid tool schema for " + tool.Name)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, errors.New("invalid tool schema for " + tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func mapAnthropicStopReason(reason string, toolCallCount int) agent.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return agent.FinishStop
	case "tool_use":
		return agent.FinishToolCalls
	case "max_tokens":
		return agent.FinishLength
	case "refusal":
		return agent.FinishContentFilter
	default:
		if toolCallCount > 0 {
			return agent.FinishToolCalls
		}
		return agent.FinishStop
	}
}

func isRetryableAnthropicError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") {
		return true
	}
	if strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "529") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "internal server error") ||
		strings.Contains(msg, "service unavailable") {
		return true
	}
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused")
}
