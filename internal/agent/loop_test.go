package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/hive/pkg/models"
)

// scriptedClient replays a fixed sequence of turns and records the requests
// it saw.
type scriptedClient struct {
	mu       sync.Mutex
	turns    []scriptedTurn
	requests []*ChatRequest
}

type scriptedTurn struct {
	resp *ChatResponse
	err  error
}

func (c *scriptedClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.turns) == 0 {
		return nil, errors.New("script exhausted")
	}
	turn := c.turns[0]
	c.turns = c.turns[1:]
	if turn.err != nil {
		return nil, turn.err
	}
	if req.Sink != nil && turn.resp.Content != "" {
		req.Sink(turn.resp.Content)
	}
	return turn.resp, nil
}

func (c *scriptedClient) Name() string    { return "scripted" }
func (c *scriptedClient) Models() []Model { return nil }

func textTurn(content string) scriptedTurn {
	return scriptedTurn{resp: &ChatResponse{
		Content:      content,
		FinishReason: FinishStop,
		InputTokens:  10,
		OutputTokens: 5,
	}}
}

func toolTurn(content string, calls ...models.ToolCall) scriptedTurn {
	return scriptedTurn{resp: &ChatResponse{
		Content:      content,
		ToolCalls:    calls,
		FinishReason: FinishToolCalls,
		InputTokens:  10,
		OutputTokens: 5,
	}}
}

func newTestAgent(t *testing.T, client LLMClient, tools *Registry, maxSteps int) *Agent {
	t.Helper()
	a, err := New(Config{
		ID:           "test-agent",
		Name:         "Test Agent",
		SystemPrompt: "You are a test agent.",
		MaxSteps:     maxSteps,
	}, client, tools)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestExecuteDirectAnswer(t *testing.T) {
	client := &scriptedClient{turns: []scriptedTurn{textTurn("the answer is 4")}}
	a := newTestAgent(t, client, nil, 0)

	result, err := a.Execute(context.Background(), "what is 2+2?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Response != "the answer is 4" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Steps != 1 {
		t.Fatalf("expected 1 step, got %d", result.Steps)
	}

	stats := result.Trace.Stats
	if stats.Steps != 1 || stats.LLMCalls != 1 || stats.ToolCalls != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.InputTokens != 10 || stats.OutputTokens != 5 {
		t.Fatalf("token counters not accumulated: %+v", stats)
	}

	// System prompt travels separately from the message list.
	req := client.requests[0]
	if req.System != "You are a test agent." {
		t.Fatalf("system prompt not split out: %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != models.RoleUser {
		t.Fatalf("unexpected request messages %+v", req.Messages)
	}
}

func TestExecuteSingleToolCall(t *testing.T) {
	registry := NewRegistry()
	tool := NewFuncTool("calculator", "adds numbers", nil,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			return "4", nil
		})
	if err := registry.Register(tool); err != nil {
		t.Fatal(err)
	}

	call := models.ToolCall{ID: "call-1", Name: "calculator", Input: json.RawMessage(`{"a":2,"b":2}`)}
	client := &scriptedClient{turns: []scriptedTurn{
		toolTurn("", call),
		textTurn("2+2 is 4"),
	}}
	a := newTestAgent(t, client, registry, 0)

	result, err := a.Execute(context.Background(), "add 2 and 2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Response != "2+2 is 4" {
		t.Fatalf("unexpected response %q", result.Response)
	}
	// Turn one requests the tool, turn two executes it, turn three answers.
	if result.Steps != 3 {
		t.Fatalf("expected 3 steps, got %d", result.Steps)
	}

	stats := result.Trace.Stats
	if stats.ToolCalls != 1 || stats.SuccessfulToolCalls != 1 || stats.FailedToolCalls != 0 {
		t.Fatalf("unexpected tool stats %+v", stats)
	}
	if stats.SuccessfulToolCalls+stats.FailedToolCalls != stats.ToolCalls {
		t.Fatalf("tool call counters disagree: %+v", stats)
	}

	// The tool result is threaded back as a tool message with the call id.
	var toolMsg *models.Message
	for i := range result.Conversation {
		if result.Conversation[i].Role == models.RoleTool {
			toolMsg = &result.Conversation[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("no tool message in conversation")
	}
	if toolMsg.ToolCallID != "call-1" || toolMsg.Content != "4" {
		t.Fatalf("tool message not threaded: %+v", toolMsg)
	}

	// The second LLM request sees the assistant turn and the tool result.
	second := client.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != models.RoleTool || last.ToolCallID != "call-1" {
		t.Fatalf("second request missing tool result: %+v", last)
	}
}

func TestExecuteToolErrorRecovered(t *testing.T) {
	registry := NewRegistry()
	tool := NewFuncTool("fragile", "fails once per execution", nil,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			return nil, errors.New("backend unavailable")
		})
	if err := registry.Register(tool); err != nil {
		t.Fatal(err)
	}

	call := models.ToolCall{ID: "call-1", Name: "fragile"}
	client := &scriptedClient{turns: []scriptedTurn{
		toolTurn("", call),
		textTurn("the tool failed, answering from memory"),
	}}
	a := newTestAgent(t, client, registry, 0)

	result, err := a.Execute(context.Background(), "try the tool", nil)
	if err != nil {
		t.Fatalf("tool failure must not fail the run: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}

	stats := result.Trace.Stats
	if stats.FailedToolCalls != 1 || stats.SuccessfulToolCalls != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	// The model sees the failure as an Error: message.
	second := client.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != models.RoleTool || last.Content != "Error: backend unavailable" {
		t.Fatalf("failure not surfaced to the model: %+v", last)
	}
}

func TestExecuteMaxStepsExceeded(t *testing.T) {
	registry := NewRegistry()
	tool := NewFuncTool("loop", "always gets called again", nil,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			return "again", nil
		})
	if err := registry.Register(tool); err != nil {
		t.Fatal(err)
	}

	// Every LLM turn requests another tool call, so the loop can never finish.
	var turns []scriptedTurn
	for i := 0; i < 10; i++ {
		turns = append(turns, toolTurn("", models.ToolCall{ID: fmt.Sprintf("c%d", i), Name: "loop"}))
	}
	client := &scriptedClient{turns: turns}
	a := newTestAgent(t, client, registry, 4)

	result, err := a.Execute(context.Background(), "never finish", nil)
	if !IsCode(err, models.ErrCodeMaxSteps) {
		t.Fatalf("expected MAX_STEPS_EXCEEDED, got %v", err)
	}
	if result == nil || result.Success {
		t.Fatal("result should report failure")
	}
	if result.Steps != 4 {
		t.Fatalf("expected exactly 4 steps, got %d", result.Steps)
	}
	if result.Err == nil || result.Err.Code != models.ErrCodeMaxSteps {
		t.Fatalf("result.Err = %+v", result.Err)
	}
}

func TestExecuteLLMError(t *testing.T) {
	client := &scriptedClient{turns: []scriptedTurn{{err: errors.New("api down")}}}
	a := newTestAgent(t, client, nil, 0)

	result, err := a.Execute(context.Background(), "anything", nil)
	if !IsCode(err, models.ErrCodeLLM) {
		t.Fatalf("expected LLM_ERROR, got %v", err)
	}
	if result.Success {
		t.Fatal("result should report failure")
	}
	var agentErr *Error
	if !errors.As(err, &agentErr) || agentErr.Cause == nil {
		t.Fatalf("cause not preserved: %+v", err)
	}
}

func TestExecuteCancellation(t *testing.T) {
	registry := NewRegistry()
	tool := NewFuncTool("slow", "waits for cancellation", nil,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	if err := registry.Register(tool); err != nil {
		t.Fatal(err)
	}

	client := &scriptedClient{turns: []scriptedTurn{
		toolTurn("", models.ToolCall{ID: "c1", Name: "slow"}),
		textTurn("never reached"),
	}}
	a := newTestAgent(t, client, registry, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	result, err := a.Execute(ctx, "run the slow tool", nil)
	if !IsCode(err, models.ErrCodeCancelled) {
		t.Fatalf("expected CANCELLED, got %v", err)
	}
	if result.Success {
		t.Fatal("result should report failure")
	}
}

func TestExecuteMaxStepsOverride(t *testing.T) {
	client := &scriptedClient{turns: []scriptedTurn{
		toolTurn("", models.ToolCall{ID: "c1", Name: "missing"}),
		toolTurn("", models.ToolCall{ID: "c2", Name: "missing"}),
	}}
	a := newTestAgent(t, client, nil, 8)

	result, err := a.Execute(context.Background(), "task", &Overrides{MaxSteps: 2})
	if !IsCode(err, models.ErrCodeMaxSteps) {
		t.Fatalf("expected MAX_STEPS_EXCEEDED, got %v", err)
	}
	if result.Steps != 2 {
		t.Fatalf("override not applied, ran %d steps", result.Steps)
	}
}

func TestExecuteGeneratesToolCallIDs(t *testing.T) {
	registry := NewRegistry()
	tool := NewFuncTool("anon", "called without an id", nil,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			return "ok", nil
		})
	if err := registry.Register(tool); err != nil {
		t.Fatal(err)
	}

	client := &scriptedClient{turns: []scriptedTurn{
		toolTurn("", models.ToolCall{Name: "anon"}),
		textTurn("done"),
	}}
	a := newTestAgent(t, client, registry, 0)

	result, err := a.Execute(context.Background(), "task", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range result.Conversation {
		if msg.Role == models.RoleTool && msg.ToolCallID == "" {
			t.Fatal("tool message has no call id")
		}
	}
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Config{ID: "x"}, nil, nil)
	if !errors.Is(err, ErrNoClient) {
		t.Fatalf("expected ErrNoClient, got %v", err)
	}
}
