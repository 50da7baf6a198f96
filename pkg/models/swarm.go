package models

import "time"

// RoutingDecision selects one specialist for a task.
type RoutingDecision struct {
	SpecialistID string  `json:"specialist_id"`
	Reason       string  `json:"reason"`
	Confidence   float64 `json:"confidence"`
}

// SpecialistOutcome is the result of running one routed specialist.
type SpecialistOutcome struct {
	SpecialistID   string          `json:"specialist_id"`
	Specialization string          `json:"specialization,omitempty"`
	Response       string          `json:"response,omitempty"`
	Success        bool            `json:"success"`
	Error          *ResultError    `json:"error,omitempty"`
	Trace          *ExecutionTrace `json:"trace,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	Duration       time.Duration   `json:"duration"`
}

// SwarmEvent is a trace event annotated with the specialist that produced it,
// used in the merged swarm trace.
type SwarmEvent struct {
	SpecialistID string     `json:"specialist_id"`
	Event        TraceEvent `json:"event"`
}

// SwarmStats summarizes a swarm execution.
type SwarmStats struct {
	// Invoked counts the specialists that were routed and run.
	Invoked   int `json:"invoked"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// Concurrent is how many specialists ran concurrently (1 in
	// sequential mode).
	Concurrent int `json:"concurrent"`

	TotalDuration time.Duration `json:"total_duration"`

	// Merged sums the per-specialist trace statistics.
	Merged TraceStats `json:"merged"`
}

// SwarmResult is the aggregate outcome of a swarm execution.
//
// In parallel mode Outcomes appear in completion order; in sequential mode
// they follow routing order. MergedTrace is always sorted by timestamp, with
// routing order breaking ties.
type SwarmResult struct {
	ID       string `json:"id"`
	Task     string `json:"task"`
	Response string `json:"response"`

	// Success is true only when every routed specialist succeeded.
	Success bool `json:"success"`

	Decisions []RoutingDecision   `json:"decisions"`
	Outcomes  []SpecialistOutcome `json:"outcomes"`

	// MergedTrace interleaves all specialist traces by timestamp.
	MergedTrace []SwarmEvent `json:"merged_trace,omitempty"`

	// SupervisorTrace holds events from supervisor routing and synthesis
	// calls, when a supervisor was consulted.
	SupervisorTrace []TraceEvent `json:"supervisor_trace,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Stats     SwarmStats    `json:"stats"`
}
