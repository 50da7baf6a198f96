package agent

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/haasonsaas/hive/pkg/models"
)

// StreamEventType identifies the kind of projection event.
type StreamEventType string

const (
	// StreamStep marks the start of a loop step.
	StreamStep StreamEventType = "step"

	// StreamThought carries assistant text that accompanies tool calls.
	StreamThought StreamEventType = "thought"

	// StreamToolCall announces one requested tool call.
	StreamToolCall StreamEventType = "tool_call"

	// StreamToolResult carries one finished tool result, failed or not.
	StreamToolResult StreamEventType = "tool_result"

	// StreamFinalAnswer is always the last event of a successful run.
	StreamFinalAnswer StreamEventType = "final_answer"

	// StreamError reports a terminal failure other than the step bound.
	StreamError StreamEventType = "error"
)

// StreamEvent is one semantic event projected from a running execution.
type StreamEvent struct {
	Type      StreamEventType    `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	Step      int                `json:"step,omitempty"`
	Content   string             `json:"content,omitempty"`
	ToolCall  *models.ToolCall   `json:"tool_call,omitempty"`
	Result    *models.ToolResult `json:"result,omitempty"`
	Answer    string             `json:"answer,omitempty"`
	Err       *Error             `json:"-"`
	ErrCode   models.ErrorCode   `json:"code,omitempty"`
}

type emitFunc func(StreamEvent)

// Stream is a consumer-paced projection of one execution. Events are
// delivered on an unbuffered channel, so the loop advances only as fast as
// the consumer reads. After the channel closes, Err and Result report the
// outcome; MAX_STEPS_EXCEEDED surfaces only there, never as an error event.
type Stream struct {
	events chan StreamEvent
	done   chan struct{}
	result *Result
	err    error
}

// Events returns the event channel. It is closed when the execution ends.
func (s *Stream) Events() <-chan StreamEvent {
	return s.events
}

// Err returns the terminal error, if any. Valid after Events is closed.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Result returns the full execution result. Valid after Events is closed.
func (s *Stream) Result() *Result {
	<-s.done
	return s.result
}

// Stream runs the task and projects it as a lazy event sequence. The
// producer suspends at every event until the consumer receives it; the full
// execution does not run ahead of the reader. Cancelling ctx releases the
// producer even if the consumer stops reading.
func (a *Agent) Stream(ctx context.Context, task string, ov *Overrides) *Stream {
	s := &Stream{
		events: make(chan StreamEvent),
		done:   make(chan struct{}),
	}

	emit := func(event StreamEvent) {
		select {
		case s.events <- event:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(s.done)
		defer close(s.events)
		s.result, s.err = a.run(ctx, task, ov, emit)
	}()

	return s
}

// ExecuteWithEvents runs the task, delivering projection events to the
// callback as they occur. Callback panics are logged and swallowed; the
// execution continues undisturbed.
func (a *Agent) ExecuteWithEvents(ctx context.Context, task string, ov *Overrides, callback func(StreamEvent)) (*Result, error) {
	if callback == nil {
		return a.run(ctx, task, ov, nil)
	}
	emit := func(event StreamEvent) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Warn("stream consumer panicked",
					"event", string(event.Type),
					"panic", rec,
					"stack", string(debug.Stack()))
			}
		}()
		callback(event)
	}
	return a.run(ctx, task, ov, emit)
}

func (a *Agent) emitEvent(emit emitFunc, event StreamEvent) {
	if emit == nil {
		return
	}
	event.Timestamp = time.Now()
	emit(event)
}
