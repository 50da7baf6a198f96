package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/hive/pkg/models"
)

func echoTool(name string) Tool {
	return NewFuncTool(name, "echoes its input back", nil,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			return string(input), nil
		})
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(echoTool("echo"))
	if !IsCode(err, models.ErrCodeDuplicateTool) {
		t.Fatalf("expected DUPLICATE_TOOL_NAME, got %v", err)
	}

	if !r.Unregister("echo") {
		t.Fatal("unregister reported no tool removed")
	}
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("re-register after unregister: %v", err)
	}
}

func TestRegistryRegisterValidation(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		tool Tool
	}{
		{"nil tool", nil},
		{"empty name", echoTool("  ")},
		{"no description", NewFuncTool("bare", "", nil, func(ctx context.Context, input json.RawMessage) (any, error) {
			return nil, nil
		})},
		{"bad schema", NewFuncTool("bad", "has a broken schema", json.RawMessage(`{"type": 42}`), func(ctx context.Context, input json.RawMessage) (any, error) {
			return nil, nil
		})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Register(tc.tool)
			if !IsCode(err, models.ErrCodeInvalidTool) {
				t.Fatalf("expected INVALID_TOOL_DEFINITION, got %v", err)
			}
		})
	}
	if r.Len() != 0 {
		t.Fatalf("registry should stay empty, has %d tools", r.Len())
	}
}

func TestRegistryInvokeNotFound(t *testing.T) {
	r := NewRegistry()
	result := r.Invoke(context.Background(), models.ToolCall{ID: "c1", Name: "missing"})
	if !result.Failed() {
		t.Fatal("expected failure")
	}
	if result.Error.Code != models.ErrCodeToolNotFound {
		t.Fatalf("expected TOOL_NOT_FOUND, got %s", result.Error.Code)
	}
	if result.ToolCallID != "c1" {
		t.Fatalf("result lost its call id: %q", result.ToolCallID)
	}
}

func TestRegistryInvokeSchemaValidation(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"n": {"type": "number"}},
		"required": ["n"]
	}`)
	r := NewRegistry()
	tool := NewFuncTool("typed", "wants a number", schema,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			return "ok", nil
		})
	if err := r.Register(tool); err != nil {
		t.Fatal(err)
	}

	result := r.Invoke(context.Background(), models.ToolCall{ID: "c1", Name: "typed", Input: json.RawMessage(`{"n": "nope"}`)})
	if !result.Failed() || result.Error.Code != models.ErrCodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %+v", result)
	}
	if result.Error.Detail == "" {
		t.Fatal("validation failure should carry detail")
	}

	result = r.Invoke(context.Background(), models.ToolCall{ID: "c2", Name: "typed", Input: json.RawMessage(`{"n": 7}`)})
	if result.Failed() {
		t.Fatalf("valid input rejected: %+v", result.Error)
	}
}

func TestRegistryInvokeRetryThenSucceed(t *testing.T) {
	var calls atomic.Int32
	tool := NewFuncTool("flaky", "fails twice then succeeds", nil,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			if calls.Add(1) <= 2 {
				return nil, errors.New("transient failure")
			}
			return "recovered", nil
		})

	r := NewRegistry()
	err := r.RegisterWithConfig(tool, ToolConfig{
		Timeout:     time.Second,
		MaxAttempts: 3,
		Backoff:     10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	result := r.Invoke(context.Background(), models.ToolCall{ID: "c1", Name: "flaky"})
	elapsed := time.Since(start)

	if result.Failed() {
		t.Fatalf("expected success after retries, got %+v", result.Error)
	}
	if result.Content != "recovered" {
		t.Fatalf("unexpected content %q", result.Content)
	}
	if result.Meta.Retries != 2 {
		t.Fatalf("expected 2 retries, got %d", result.Meta.Retries)
	}
	// Waits are 1x then 2x the base backoff.
	if elapsed < 30*time.Millisecond {
		t.Fatalf("backoff not applied, finished in %s", elapsed)
	}
}

func TestRegistryInvokeRetriesExhausted(t *testing.T) {
	tool := NewFuncTool("doomed", "always fails", nil,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			return nil, errors.New("persistent failure")
		})

	r := NewRegistry()
	if err := r.RegisterWithConfig(tool, ToolConfig{MaxAttempts: 2, Backoff: time.Millisecond}); err != nil {
		t.Fatal(err)
	}

	result := r.Invoke(context.Background(), models.ToolCall{ID: "c1", Name: "doomed"})
	if !result.Failed() || result.Error.Code != models.ErrCodeExecution {
		t.Fatalf("expected EXECUTION_ERROR, got %+v", result)
	}
	if result.Error.Message != "persistent failure" {
		t.Fatalf("expected last error message, got %q", result.Error.Message)
	}
	if result.Meta.Retries != 1 {
		t.Fatalf("expected 1 retry, got %d", result.Meta.Retries)
	}
}

func TestRegistryInvokeTimeout(t *testing.T) {
	tool := NewFuncTool("slow", "sleeps past its deadline", nil,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			select {
			case <-time.After(time.Second):
				return "too late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})

	r := NewRegistry()
	if err := r.RegisterWithConfig(tool, ToolConfig{Timeout: 20 * time.Millisecond, MaxAttempts: 1}); err != nil {
		t.Fatal(err)
	}

	result := r.Invoke(context.Background(), models.ToolCall{ID: "c1", Name: "slow"})
	if !result.Failed() || result.Error.Code != models.ErrCodeExecution {
		t.Fatalf("expected EXECUTION_ERROR, got %+v", result)
	}
	if !strings.HasPrefix(result.Error.Message, "Timeout after 20ms") {
		t.Fatalf("unexpected timeout message %q", result.Error.Message)
	}
}

func TestRegistryInvokeTimedOutAttemptsCountAgainstBudget(t *testing.T) {
	var calls atomic.Int32
	tool := NewFuncTool("sluggish", "times out every attempt", nil,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			calls.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		})

	r := NewRegistry()
	if err := r.RegisterWithConfig(tool, ToolConfig{
		Timeout:     15 * time.Millisecond,
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
	}); err != nil {
		t.Fatal(err)
	}

	result := r.Invoke(context.Background(), models.ToolCall{ID: "c1", Name: "sluggish"})
	if !result.Failed() {
		t.Fatal("expected failure")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", got)
	}
	if !strings.HasPrefix(result.Error.Message, "Timeout after") {
		t.Fatalf("unexpected message %q", result.Error.Message)
	}
}

func TestRegistryInvokePanicRecovered(t *testing.T) {
	tool := NewFuncTool("bomb", "panics on execute", nil,
		func(ctx context.Context, input json.RawMessage) (any, error) {
			panic("boom")
		})

	r := NewRegistry()
	if err := r.Register(tool); err != nil {
		t.Fatal(err)
	}

	result := r.Invoke(context.Background(), models.ToolCall{ID: "c1", Name: "bomb"})
	if !result.Failed() || result.Error.Code != models.ErrCodeExecution {
		t.Fatalf("expected EXECUTION_ERROR, got %+v", result)
	}
	if !strings.Contains(result.Error.Message, "boom") {
		t.Fatalf("panic value missing from message %q", result.Error.Message)
	}
}

func TestRegistryInvokeAllParallelAndOrdered(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		name := name
		tool := NewFuncTool(name, "sleeps then answers", nil,
			func(ctx context.Context, input json.RawMessage) (any, error) {
				time.Sleep(50 * time.Millisecond)
				return "done:" + name, nil
			})
		if err := r.Register(tool); err != nil {
			t.Fatal(err)
		}
	}

	calls := []models.ToolCall{
		{ID: "c1", Name: "a"},
		{ID: "c2", Name: "b"},
		{ID: "c3", Name: "c"},
	}
	start := time.Now()
	results := r.InvokeAll(context.Background(), calls)
	elapsed := time.Since(start)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, result := range results {
		if result.ToolCallID != calls[i].ID {
			t.Fatalf("results out of request order: results[%d].ToolCallID = %q", i, result.ToolCallID)
		}
		if result.Content != "done:"+calls[i].Name {
			t.Fatalf("unexpected content %q", result.Content)
		}
	}
	// Three 50ms tools running concurrently should finish well under 150ms.
	if elapsed > 120*time.Millisecond {
		t.Fatalf("calls did not run in parallel, took %s", elapsed)
	}
}

func TestRegistryDescriptors(t *testing.T) {
	r := NewRegistry()
	schema := json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)
	withSchema := NewFuncTool("zeta", "has a schema", schema,
		func(ctx context.Context, input json.RawMessage) (any, error) { return nil, nil })
	if err := r.Register(withSchema); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(echoTool("alpha")); err != nil {
		t.Fatal(err)
	}

	descriptors := r.Descriptors()
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descriptors))
	}
	if descriptors[0].Name != "alpha" || descriptors[1].Name != "zeta" {
		t.Fatalf("descriptors not sorted: %s, %s", descriptors[0].Name, descriptors[1].Name)
	}
	if string(descriptors[0].Schema) != `{"type":"object"}` {
		t.Fatalf("schemaless tool should advertise a permissive object, got %s", descriptors[0].Schema)
	}
	if string(descriptors[1].Schema) != string(schema) {
		t.Fatalf("schema not passed through: %s", descriptors[1].Schema)
	}
}

func TestSerializePayload(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "plain", "plain"},
		{"raw json", json.RawMessage(`{"a":1}`), `{"a":1}`},
		{"bytes", []byte("raw"), "raw"},
		{"stringer", time.Duration(5 * time.Second), "5s"},
		{"struct", map[string]int{"n": 3}, `{"n":3}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := serializePayload(tc.value)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("serializePayload(%v) = %q, want %q", tc.value, got, tc.want)
			}
		})
	}

	if _, err := serializePayload(func() {}); err == nil {
		t.Fatal("unserializable value should error")
	}
}
