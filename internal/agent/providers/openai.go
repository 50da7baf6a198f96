package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/pkg/models"
)

// OpenAIConfig holds configuration for the OpenAI adapter.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL overrides the API endpoint, e.g. for compatible gateways.
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// MaxRetries bounds retries for transient failures. Default: 3.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff. Default: 1s.
	RetryDelay time.Duration
}

// OpenAIClient implements agent.LLMClient against the OpenAI chat API.
// Safe for concurrent use.
type OpenAIClient struct {
	client       *openai.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

var _ agent.LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient creates an OpenAI adapter.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	}

	return &OpenAIClient{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// Name returns the provider tag.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Models returns the commonly used chat models.
func (c *OpenAIClient) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextSize: 128000},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000},
		{ID: "o1", Name: "o1", ContextSize: 200000},
	}
}

// Chat produces one assistant turn. When a token sink is supplied the
// request streams and every content fragment is delivered to the sink in
// arrival order before Chat returns.
func (c *OpenAIClient) Chat(ctx context.Context, req *agent.ChatRequest) (*agent.ChatResponse, error) {
	if req == nil {
		return nil, errors.New("openai: request is nil")
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    c.convertMessages(req),
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsToOpenAI(req.Tools)
	}

	if req.Sink != nil {
		return c.chatStream(ctx, chatReq, model, req.Sink)
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err = c.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			break
		}
		if !isRetryableOpenAIError(err) || attempt == c.maxRetries {
			return nil, NewProviderError("openai", model, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay * (1 << attempt)):
		}
	}

	if len(resp.Choices) == 0 {
		return nil, NewProviderError("openai", model, errors.New("empty response"))
	}
	choice := resp.Choices[0]

	return &agent.ChatResponse{
		Content:      choice.Message.Content,
		ToolCalls:    convertToolCallsFromOpenAI(choice.Message.ToolCalls),
		FinishReason: mapOpenAIFinishReason(string(choice.FinishReason), len(choice.Message.ToolCalls)),
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenAIClient) chatStream(ctx context.Context, chatReq openai.ChatCompletionRequest, model string, sink agent.TokenSink) (*agent.ChatResponse, error) {
	chatReq.Stream = true
	chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, NewProviderError("openai", model, err)
	}
	defer stream.Close()

	var content strings.Builder
	var finishReason string
	var usage *openai.Usage

	// Tool call fragments arrive interleaved across chunks, keyed by index.
	toolCalls := map[int]*openai.ToolCall{}
	var order []int

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, NewProviderError("openai", model, err)
		}
		if response.Usage != nil {
			usage = response.Usage
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			sink(choice.Delta.Content)
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			existing, ok := toolCalls[idx]
			if !ok {
				copied := tc
				toolCalls[idx] = &copied
				order = append(order, idx)
				continue
			}
			if tc.ID != "" {
				existing.ID = tc.ID
			}
			if tc.Function.Name != "" {
				existing.Function.Name = tc.Function.Name
			}
			existing.Function.Arguments += tc.Function.Arguments
		}
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
	}

	assembled := make([]openai.ToolCall, 0, len(order))
	for _, idx := range order {
		assembled = append(assembled, *toolCalls[idx])
	}

	resp := &agent.ChatResponse{
		Content:      content.String(),
		ToolCalls:    convertToolCallsFromOpenAI(assembled),
		FinishReason: mapOpenAIFinishReason(finishReason, len(assembled)),
		Model:        model,
	}
	if usage != nil {
		resp.InputTokens = usage.PromptTokens
		resp.OutputTokens = usage.CompletionTokens
	}
	return resp, nil
}

func (c *OpenAIClient) convertMessages(req *agent.ChatRequest) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if req.System != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					}
				}
			}
			result = append(result, oaiMsg)
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}
	return result
}

func convertToolsToOpenAI(tools []agent.ToolDescriptor) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var params any
		if err := json.Unmarshal(tool.Schema, &params); err != nil {
			params = map[string]any{"type": "object"}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return result
}

func convertToolCallsFromOpenAI(calls []openai.ToolCall) []models.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]models.ToolCall, len(calls))
	for i, tc := range calls {
		input := json.RawMessage(tc.Function.Arguments)
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		result[i] = models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		}
	}
	return result
}

func mapOpenAIFinishReason(reason string, toolCallCount int) agent.FinishReason {
	switch reason {
	case "stop":
		return agent.FinishStop
	case "tool_calls", "function_call":
		return agent.FinishToolCalls
	case "length":
		return agent.FinishLength
	case "content_filter":
		return agent.FinishContentFilter
	default:
		if toolCallCount > 0 {
			return agent.FinishToolCalls
		}
		return agent.FinishStop
	}
}

func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "rate limit")
}
