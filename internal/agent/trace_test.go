package agent

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/hive/pkg/models"
)

func TestRecorderCounters(t *testing.T) {
	r := NewRecorder("exec-1", "agent-1")
	r.AgentStart("task")
	r.StepStart(1)
	r.LLMRequest(1, 2, 1)
	r.LLMResponse(1, &ChatResponse{
		ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "a"},
			{ID: "c2", Name: "b"},
		},
		FinishReason: FinishToolCalls,
		InputTokens:  100,
		OutputTokens: 20,
	}, time.Millisecond)
	r.StepStart(2)
	r.ToolCallDone(2, &models.ToolResult{ToolCallID: "c1", ToolName: "a", Content: "ok"})
	r.ToolCallDone(2, &models.ToolResult{ToolCallID: "c2", ToolName: "b", Error: &models.ResultError{
		Code:    models.ErrCodeExecution,
		Message: "broke",
	}})
	r.AgentEnd(true)

	stats := r.Stats()
	if stats.Steps != 2 {
		t.Fatalf("Steps = %d", stats.Steps)
	}
	if stats.LLMCalls != 1 {
		t.Fatalf("LLMCalls = %d", stats.LLMCalls)
	}
	// Tool calls count at the response that requested them.
	if stats.ToolCalls != 2 {
		t.Fatalf("ToolCalls = %d", stats.ToolCalls)
	}
	if stats.SuccessfulToolCalls != 1 || stats.FailedToolCalls != 1 {
		t.Fatalf("tool outcome counters = %d/%d", stats.SuccessfulToolCalls, stats.FailedToolCalls)
	}
	if stats.SuccessfulToolCalls+stats.FailedToolCalls != stats.ToolCalls {
		t.Fatalf("counters disagree: %+v", stats)
	}
	if stats.InputTokens != 100 || stats.OutputTokens != 20 {
		t.Fatalf("token counters = %d/%d", stats.InputTokens, stats.OutputTokens)
	}
}

func TestRecorderTimestampsNonDecreasing(t *testing.T) {
	r := NewRecorder("exec-1", "agent-1")
	for i := 0; i < 100; i++ {
		r.StepStart(i + 1)
	}
	trace := r.Snapshot()
	for i := 1; i < len(trace.Events); i++ {
		if trace.Events[i].Timestamp.Before(trace.Events[i-1].Timestamp) {
			t.Fatalf("timestamp went backwards at event %d", i)
		}
	}
}

func TestRecorderSnapshotIndependent(t *testing.T) {
	r := NewRecorder("exec-1", "agent-1")
	r.AgentStart("task")
	snapshot := r.Snapshot()
	if len(snapshot.Events) != 1 {
		t.Fatalf("snapshot has %d events", len(snapshot.Events))
	}

	r.StepStart(1)
	r.StepStart(2)
	if len(snapshot.Events) != 1 {
		t.Fatal("snapshot mutated by later appends")
	}
}

func TestRecorderAgentEndFreezesTiming(t *testing.T) {
	r := NewRecorder("exec-1", "agent-1")
	r.AgentStart("task")
	time.Sleep(5 * time.Millisecond)
	r.AgentEnd(true)

	trace := r.Snapshot()
	if trace.EndedAt.IsZero() {
		t.Fatal("EndedAt not set")
	}
	if trace.Duration <= 0 {
		t.Fatalf("Duration = %s", trace.Duration)
	}
}

func TestWriteTraceJSONL(t *testing.T) {
	r := NewRecorder("exec-1", "agent-1")
	r.AgentStart("task")
	r.StepStart(1)
	r.AgentEnd(true)

	var buf bytes.Buffer
	if err := WriteTraceJSONL(&buf, r.Snapshot()); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// Header plus three events.
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}

	var header map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("header is not JSON: %v", err)
	}
	if header["id"] != "exec-1" || header["agent_id"] != "agent-1" {
		t.Fatalf("unexpected header %v", header)
	}

	for i, line := range lines[1:] {
		var event models.TraceEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("event line %d is not JSON: %v", i, err)
		}
	}
}
