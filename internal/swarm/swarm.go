// Package swarm coordinates multiple specialist agents under a supervisor.
// A task is routed to one or more specialists, executed sequentially or in
// parallel, and the specialist responses are synthesized into one answer.
package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/pkg/models"
)

// DefaultMaxConcurrent bounds parallel specialist execution when the config
// does not set a limit.
const DefaultMaxConcurrent = 3

// Specialist pairs an agent with the routing metadata the swarm uses to
// select it.
type Specialist struct {
	// ID uniquely identifies the specialist within the swarm.
	ID string

	// Agent executes tasks routed to this specialist.
	Agent *agent.Agent

	// Specialization describes what the specialist is good at. Shown to
	// the supervisor during routing and synthesis.
	Specialization string

	// Keywords route tasks to this specialist when they appear in the
	// task text.
	Keywords []string

	// Priority orders keyword matches; higher wins.
	Priority int
}

// Config configures a Swarm.
type Config struct {
	// Supervisor routes tasks and synthesizes responses when no custom
	// router or synthesizer is installed. Required.
	Supervisor *agent.Agent

	// Specialists are the agents the swarm can route to. At least one is
	// required and IDs must be unique.
	Specialists []Specialist

	// Parallel runs routed specialists concurrently instead of in routing
	// order.
	Parallel bool

	// MaxConcurrent bounds parallel execution. Defaults to
	// DefaultMaxConcurrent.
	MaxConcurrent int

	// SpecialistTimeout bounds each specialist's execution. Zero means no
	// timeout.
	SpecialistTimeout time.Duration

	// Router replaces the built-in routing pipeline.
	Router CustomRouter

	// Synthesizer replaces the built-in synthesis step.
	Synthesizer CustomSynthesizer

	// Observer receives swarm lifecycle events.
	Observer Observer

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Swarm coordinates specialist agents for a supervisor.
type Swarm struct {
	supervisor  *agent.Agent
	specialists []Specialist
	byID        map[string]Specialist

	parallel      bool
	maxConcurrent int
	timeout       time.Duration

	router      CustomRouter
	synthesizer CustomSynthesizer
	observer    Observer

	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  oteltrace.Tracer
}

// New validates the config and builds a Swarm.
func New(cfg Config) (*Swarm, error) {
	if cfg.Supervisor == nil {
		return nil, agent.NewError(models.ErrCodeInvalidSwarmConfig, "supervisor agent is required")
	}
	if len(cfg.Specialists) == 0 {
		return nil, agent.NewError(models.ErrCodeInvalidSwarmConfig, "at least one specialist is required")
	}

	byID := make(map[string]Specialist, len(cfg.Specialists))
	for _, sp := range cfg.Specialists {
		if sp.ID == "" {
			return nil, agent.NewError(models.ErrCodeInvalidSwarmConfig, "specialist ID must not be empty")
		}
		if sp.Agent == nil {
			return nil, agent.Errorf(models.ErrCodeInvalidSwarmConfig, "specialist %q has no agent", sp.ID)
		}
		if _, dup := byID[sp.ID]; dup {
			return nil, agent.Errorf(models.ErrCodeDuplicateSpecialist, "duplicate specialist ID %q", sp.ID)
		}
		byID[sp.ID] = sp
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Swarm{
		supervisor:    cfg.Supervisor,
		specialists:   cfg.Specialists,
		byID:          byID,
		parallel:      cfg.Parallel,
		maxConcurrent: maxConcurrent,
		timeout:       cfg.SpecialistTimeout,
		router:        cfg.Router,
		synthesizer:   cfg.Synthesizer,
		observer:      cfg.Observer,
		logger:        logger.With(slog.String("component", "swarm")),
		metrics:       cfg.Metrics,
		tracer:        otel.Tracer("hive/swarm"),
	}, nil
}

// Execute routes the task, runs the selected specialists, and synthesizes
// their responses. Specialist failures are recorded in the result, not
// propagated as errors; only routing failures and context cancellation
// return an error.
func (s *Swarm) Execute(ctx context.Context, task string) (*models.SwarmResult, error) {
	swarmID := uuid.NewString()
	ctx = observability.WithSwarmID(ctx, swarmID)

	ctx, span := s.tracer.Start(ctx, "swarm.execute",
		oteltrace.WithAttributes(
			attribute.String("swarm.id", swarmID),
			attribute.Bool("swarm.parallel", s.parallel),
			attribute.Int("swarm.specialists", len(s.specialists)),
		))
	defer span.End()

	started := time.Now()
	result := &models.SwarmResult{
		ID:        swarmID,
		Task:      task,
		StartedAt: started,
	}

	s.logger.Info("swarm execution started",
		slog.String("swarm_id", swarmID),
		slog.Bool("parallel", s.parallel))
	s.emit(Event{Type: EventSwarmStart, Timestamp: started, Task: task})

	decisions, supervisorTrace, err := s.route(ctx, task)
	if err != nil {
		result.Duration = time.Since(started)
		result.SupervisorTrace = supervisorTrace
		s.emit(Event{Type: EventSwarmError, Timestamp: time.Now(), Task: task, Error: err.Error()})
		s.recordExecution("error", result.Duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	result.Decisions = decisions

	now := time.Now()
	for _, d := range decisions {
		supervisorTrace = append(supervisorTrace, routingTraceEvent(d, now))
		s.emit(Event{Type: EventSwarmRouting, Timestamp: now, Task: task, SpecialistID: d.SpecialistID, Decision: &d})
	}

	if err := ctx.Err(); err != nil {
		cancelErr := agent.NewError(models.ErrCodeCancelled, "swarm execution cancelled").WithCause(err)
		result.Duration = time.Since(started)
		result.SupervisorTrace = supervisorTrace
		s.emit(Event{Type: EventSwarmError, Timestamp: time.Now(), Task: task, Error: cancelErr.Error()})
		s.recordExecution("error", result.Duration)
		return result, cancelErr
	}

	outcomes := s.runSpecialists(ctx, task, decisions)
	result.Outcomes = outcomes

	s.emit(Event{Type: EventSwarmSynthesis, Timestamp: time.Now(), Task: task})
	response, synthTrace := s.synthesize(ctx, task, outcomes)
	supervisorTrace = append(supervisorTrace, synthTrace...)

	result.Response = response
	result.SupervisorTrace = supervisorTrace
	result.MergedTrace = mergeTraces(decisions, outcomes)
	result.Duration = time.Since(started)
	result.Success = true
	for _, o := range outcomes {
		if !o.Success {
			result.Success = false
			break
		}
	}
	result.Stats = s.buildStats(outcomes, result.Duration)

	status := "success"
	if !result.Success {
		status = "error"
	}
	s.recordExecution(status, result.Duration)
	s.logger.Info("swarm execution finished",
		slog.String("swarm_id", swarmID),
		slog.Bool("success", result.Success),
		slog.Int("specialists", len(outcomes)),
		slog.Duration("duration", result.Duration))
	s.emit(Event{Type: EventSwarmComplete, Timestamp: time.Now(), Task: task})
	span.SetAttributes(attribute.Bool("swarm.success", result.Success))

	return result, nil
}

// runSpecialists executes the routed specialists. Sequential mode preserves
// routing order in the outcomes; parallel mode bounds concurrency with a
// semaphore and appends outcomes as they complete.
func (s *Swarm) runSpecialists(ctx context.Context, task string, decisions []models.RoutingDecision) []models.SpecialistOutcome {
	if !s.parallel || len(decisions) == 1 {
		outcomes := make([]models.SpecialistOutcome, 0, len(decisions))
		for _, d := range decisions {
			outcomes = append(outcomes, s.runOne(ctx, task, s.byID[d.SpecialistID]))
		}
		return outcomes
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make([]models.SpecialistOutcome, 0, len(decisions))
		sem      = make(chan struct{}, s.maxConcurrent)
	)
	for _, d := range decisions {
		sp := s.byID[d.SpecialistID]
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := s.runOne(ctx, task, sp)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return outcomes
}

// runOne executes a single specialist, enforcing the per-specialist timeout.
// Failures become failed outcomes; the swarm keeps going.
func (s *Swarm) runOne(ctx context.Context, task string, sp Specialist) models.SpecialistOutcome {
	ctx = observability.WithSpecialistID(ctx, sp.ID)
	ctx, span := s.tracer.Start(ctx, "specialist.run",
		oteltrace.WithAttributes(attribute.String("specialist.id", sp.ID)))
	defer span.End()
	started := time.Now()

	s.emit(Event{Type: EventSpecialistStart, Timestamp: started, Task: task, SpecialistID: sp.ID})
	s.logger.Debug("specialist started", slog.String("specialist_id", sp.ID))

	outcome := models.SpecialistOutcome{
		SpecialistID:   sp.ID,
		Specialization: sp.Specialization,
		StartedAt:      started,
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if s.timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type execResult struct {
		result *agent.Result
		err    error
	}
	done := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("specialist panicked",
					slog.String("specialist_id", sp.ID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				done <- execResult{err: agent.Errorf(models.ErrCodeExecution, "specialist panicked: %v", r)}
			}
		}()
		result, err := sp.Agent.Execute(execCtx, task, nil)
		done <- execResult{result: result, err: err}
	}()

	var timeoutCh <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-done:
		outcome.Duration = time.Since(started)
		if res.result != nil {
			outcome.Response = res.result.Response
			outcome.Trace = res.result.Trace
		}
		switch {
		case s.timeout > 0 && res.err != nil && execCtx.Err() == context.DeadlineExceeded:
			outcome.Success = false
			outcome.Error = &models.ResultError{
				Code:    models.ErrCodeTimeout,
				Message: fmt.Sprintf("specialist execution timeout after %dms", s.timeout.Milliseconds()),
			}
		case res.err != nil || (res.result != nil && !res.result.Success):
			outcome.Success = false
			outcome.Error = specialistError(res.result, res.err)
		default:
			outcome.Success = true
		}
	case <-timeoutCh:
		outcome.Duration = time.Since(started)
		outcome.Success = false
		outcome.Error = &models.ResultError{
			Code:    models.ErrCodeTimeout,
			Message: fmt.Sprintf("specialist execution timeout after %dms", s.timeout.Milliseconds()),
		}
	}

	status := "success"
	eventType := EventSpecialistComplete
	if !outcome.Success {
		status = "error"
		eventType = EventSpecialistError
		if outcome.Error != nil {
			span.SetStatus(codes.Error, outcome.Error.Message)
		}
		if s.metrics != nil && outcome.Error != nil {
			s.metrics.RecordError("swarm", string(outcome.Error.Code))
		}
	}
	if s.metrics != nil {
		s.metrics.RecordSpecialist(sp.ID, status, outcome.Duration.Seconds())
	}
	s.logger.Debug("specialist finished",
		slog.String("specialist_id", sp.ID),
		slog.Bool("success", outcome.Success),
		slog.Duration("duration", outcome.Duration))
	s.emit(Event{Type: eventType, Timestamp: time.Now(), Task: task, SpecialistID: sp.ID, Outcome: &outcome})

	return outcome
}

// specialistError normalizes an execution failure into a ResultError.
func specialistError(result *agent.Result, err error) *models.ResultError {
	if result != nil && result.Err != nil {
		return &models.ResultError{
			Code:    result.Err.Code,
			Message: result.Err.Message,
		}
	}
	if agentErr, ok := agent.AsError(err); ok {
		return &models.ResultError{
			Code:    agentErr.Code,
			Message: agentErr.Message,
		}
	}
	msg := "specialist execution failed"
	if err != nil {
		msg = err.Error()
	}
	return &models.ResultError{
		Code:    models.ErrCodeExecution,
		Message: msg,
	}
}

// mergeTraces interleaves all specialist trace events into a single
// timeline sorted by timestamp. Routing order breaks timestamp ties so the
// merged view is deterministic.
func mergeTraces(decisions []models.RoutingDecision, outcomes []models.SpecialistOutcome) []models.SwarmEvent {
	order := make(map[string]int, len(decisions))
	for i, d := range decisions {
		if _, seen := order[d.SpecialistID]; !seen {
			order[d.SpecialistID] = i
		}
	}

	var merged []models.SwarmEvent
	for _, o := range outcomes {
		if o.Trace == nil {
			continue
		}
		for _, ev := range o.Trace.Events {
			merged = append(merged, models.SwarmEvent{SpecialistID: o.SpecialistID, Event: ev})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ti, tj := merged[i].Event.Timestamp, merged[j].Event.Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return order[merged[i].SpecialistID] < order[merged[j].SpecialistID]
	})
	return merged
}

func (s *Swarm) buildStats(outcomes []models.SpecialistOutcome, total time.Duration) models.SwarmStats {
	stats := models.SwarmStats{
		Invoked:       len(outcomes),
		Concurrent:    1,
		TotalDuration: total,
	}
	if s.parallel {
		stats.Concurrent = s.maxConcurrent
		if len(outcomes) < stats.Concurrent {
			stats.Concurrent = len(outcomes)
		}
	}
	for _, o := range outcomes {
		if o.Success {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
		if o.Trace == nil {
			continue
		}
		ts := o.Trace.Stats
		stats.Merged.Steps += ts.Steps
		stats.Merged.LLMCalls += ts.LLMCalls
		stats.Merged.ToolCalls += ts.ToolCalls
		stats.Merged.SuccessfulToolCalls += ts.SuccessfulToolCalls
		stats.Merged.FailedToolCalls += ts.FailedToolCalls
		stats.Merged.InputTokens += ts.InputTokens
		stats.Merged.OutputTokens += ts.OutputTokens
	}
	return stats
}

func (s *Swarm) recordExecution(status string, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordSwarmExecution(status, duration.Seconds())
	}
}

// emit delivers an event to the observer, isolating observer panics.
func (s *Swarm) emit(event Event) {
	if s.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("swarm observer panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	s.observer.OnSwarmEvent(event)
}
