package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/pkg/models"
)

// OllamaConfig holds configuration for the Ollama adapter.
type OllamaConfig struct {
	// BaseURL of the Ollama server. Default: http://localhost:11434.
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// Timeout bounds the whole HTTP exchange. Default: 2 minutes.
	Timeout time.Duration
}

// OllamaClient implements agent.LLMClient against a local Ollama server's
// chat API. Responses are consumed as NDJSON streams.
type OllamaClient struct {
	client       *http.Client
	baseURL      string
	defaultModel string
}

var _ agent.LLMClient = (*OllamaClient)(nil)

// NewOllamaClient creates an Ollama adapter.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaClient{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
	}
}

// Name returns the provider tag.
func (c *OllamaClient) Name() string {
	return "ollama"
}

// Models returns the configured default model, when set.
func (c *OllamaClient) Models() []agent.Model {
	if c.defaultModel == "" {
		return nil
	}
	return []agent.Model{{ID: c.defaultModel, Name: c.defaultModel}}
}

// Chat produces one assistant turn from the Ollama chat endpoint.
func (c *OllamaClient) Chat(ctx context.Context, req *agent.ChatRequest) (*agent.ChatResponse, error) {
	if req == nil {
		return nil, errors.New("ollama: request is nil")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		return nil, NewProviderError("ollama", "", errors.New("model is required"))
	}

	payload := ollamaChatRequest{
		Model:    model,
		Stream:   true,
		Messages: buildOllamaMessages(req),
	}
	if len(req.Tools) > 0 {
		payload.Tools = convertToolsToOpenAI(req.Tools)
	}
	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if len(options) > 0 {
		payload.Options = options
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProviderError("ollama", model, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError("ollama", model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, NewProviderError("ollama", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		if readErr != nil {
			return nil, NewProviderError("ollama", model, fmt.Errorf("ollama status %d (read body failed: %w)", resp.StatusCode, readErr)).WithStatus(resp.StatusCode)
		}
		return nil, NewProviderError("ollama", model, fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).WithStatus(resp.StatusCode)
	}

	return c.consumeStream(ctx, resp.Body, model, req.Sink)
}

func (c *OllamaClient) consumeStream(ctx context.Context, body io.Reader, model string, sink agent.TokenSink) (*agent.ChatResponse, error) {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64<<10)
	scanner.Buffer(buf, 1<<20)

	var content strings.Builder
	var toolCalls []models.ToolCall
	var doneReason string
	var inputTokens, outputTokens int
	seen := map[string]struct{}{}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return nil, NewProviderError("ollama", model, fmt.Errorf("decode response: %w", err))
		}
		if chunk.Error != "" {
			return nil, NewProviderError("ollama", model, errors.New(chunk.Error))
		}

		if chunk.Message != nil {
			if chunk.Message.Content != "" {
				content.WriteString(chunk.Message.Content)
				if sink != nil {
					sink(chunk.Message.Content)
				}
			}
			for _, tc := range chunk.Message.ToolCalls {
				key := ollamaToolCallKey(tc)
				if key == "" {
					key = uuid.NewString()
				}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}

				callID := strings.TrimSpace(tc.ID)
				if callID == "" {
					callID = uuid.NewString()
				}
				input := tc.Function.Arguments
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				toolCalls = append(toolCalls, models.ToolCall{
					ID:    callID,
					Name:  strings.TrimSpace(tc.Function.Name),
					Input: input,
				})
			}
		}

		if chunk.Done {
			doneReason = chunk.DoneReason
			inputTokens = chunk.PromptEvalCount
			outputTokens = chunk.EvalCount
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, NewProviderError("ollama", model, err)
	}

	return &agent.ChatResponse{
		Content:      content.String(),
		ToolCalls:    toolCalls,
		FinishReason: mapOllamaDoneReason(doneReason, len(toolCalls)),
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

func mapOllamaDoneReason(reason string, toolCallCount int) agent.FinishReason {
	if toolCallCount > 0 {
		return agent.FinishToolCalls
	}
	switch reason {
	case "length":
		return agent.FinishLength
	default:
		return agent.FinishStop
	}
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []openai.Tool       `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaChatResponse struct {
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	DoneReason      string             `json:"done_reason"`
	Error           string             `json:"error"`
	EvalCount       int                `json:"eval_count"`
	PromptEvalCount int                `json:"prompt_eval_count"`
}

type ollamaToolCall struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func buildOllamaMessages(req *agent.ChatRequest) []ollamaChatMessage {
	messages := make([]ollamaChatMessage, 0, len(req.Messages)+1)

	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: system})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleAssistant:
			out := ollamaChatMessage{Role: "assistant", Content: msg.Content}
			if len(msg.ToolCalls) > 0 {
				out.ToolCalls = make([]ollamaToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					args := tc.Input
					if len(args) == 0 {
						args = json.RawMessage(`{}`)
					}
					out.ToolCalls[i] = ollamaToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: ollamaToolFunction{
							Name:      tc.Name,
							Arguments: args,
						},
					}
				}
			}
			messages = append(messages, out)
		case models.RoleTool:
			messages = append(messages, ollamaChatMessage{
				Role:     "tool",
				Content:  msg.Content,
				ToolName: msg.ToolName,
			})
		default:
			messages = append(messages, ollamaChatMessage{Role: string(msg.Role), Content: msg.Content})
		}
	}
	return messages
}

func ollamaToolCallKey(tc ollamaToolCall) string {
	if strings.TrimSpace(tc.ID) != "" {
		return strings.TrimSpace(tc.ID)
	}
	name := strings.TrimSpace(tc.Function.Name)
	args := strings.TrimSpace(string(tc.Function.Arguments))
	if name == "" && args == "" {
		return ""
	}
	return name + ":" + args
}
