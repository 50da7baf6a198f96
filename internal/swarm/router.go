package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/pkg/models"
)

// CustomRouter replaces the built-in routing pipeline. It returns the
// specialists to invoke for a task; an error aborts the swarm with a
// routing failure.
type CustomRouter func(ctx context.Context, task string, specialists []Specialist) ([]models.RoutingDecision, error)

const (
	keywordConfidence  = 0.8
	fallbackConfidence = 0.3
)

// route produces the routing decisions for a task. Precedence: a custom
// router wins outright, then keyword matching, then asking the supervisor,
// then falling back to the first registered specialist.
func (s *Swarm) route(ctx context.Context, task string) ([]models.RoutingDecision, []models.TraceEvent, error) {
	if s.router != nil {
		decisions, err := s.router(ctx, task, s.specialists)
		if err != nil {
			return nil, nil, agent.NewError(models.ErrCodeRoutingFailed, "custom router failed").WithCause(err)
		}
		decisions = s.filterRegistered(decisions)
		if len(decisions) == 0 {
			return nil, nil, agent.NewError(models.ErrCodeRoutingFailed, "custom router selected no registered specialists")
		}
		return decisions, nil, nil
	}

	if decisions := s.routeByKeywords(task); len(decisions) > 0 {
		return decisions, nil, nil
	}

	decisions, supervisorTrace := s.routeBySupervisor(ctx, task)
	if len(decisions) > 0 {
		return decisions, supervisorTrace, nil
	}

	// Last resort: hand the task to the first registered specialist.
	first := s.specialists[0]
	fallback := []models.RoutingDecision{{
		SpecialistID: first.ID,
		Reason:       "fallback",
		Confidence:   fallbackConfidence,
	}}
	return fallback, supervisorTrace, nil
}

// routeByKeywords matches specialist keywords as case-insensitive substrings
// of the task. Matching specialists are ordered by priority descending;
// registration order breaks ties.
func (s *Swarm) routeByKeywords(task string) []models.RoutingDecision {
	lowered := strings.ToLower(task)

	type match struct {
		specialist Specialist
		keywords   []string
		index      int
	}
	var matches []match
	for i, sp := range s.specialists {
		var hit []string
		for _, kw := range sp.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(kw)) {
				hit = append(hit, kw)
			}
		}
		if len(hit) > 0 {
			matches = append(matches, match{specialist: sp, keywords: hit, index: i})
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].specialist.Priority != matches[j].specialist.Priority {
			return matches[i].specialist.Priority > matches[j].specialist.Priority
		}
		return matches[i].index < matches[j].index
	})

	decisions := make([]models.RoutingDecision, 0, len(matches))
	for _, m := range matches {
		decisions = append(decisions, models.RoutingDecision{
			SpecialistID: m.specialist.ID,
			Reason:       "matched keywords: " + strings.Join(m.keywords, ", "),
			Confidence:   keywordConfidence,
		})
	}
	return decisions
}

// routeBySupervisor asks the supervisor agent to pick specialists. Any
// failure (LLM error, unparseable output, no registered IDs) returns nil
// decisions so the caller can fall back; routing never hard-fails on the
// supervisor. The supervisor's trace events are returned either way.
func (s *Swarm) routeBySupervisor(ctx context.Context, task string) ([]models.RoutingDecision, []models.TraceEvent) {
	prompt := buildRoutingPrompt(task, s.specialists)

	result, err := s.supervisor.Execute(ctx, prompt, nil)
	var supervisorTrace []models.TraceEvent
	if result != nil && result.Trace != nil {
		supervisorTrace = result.Trace.Events
	}
	if err != nil {
		s.logger.Warn("supervisor routing failed",
			slog.String("error", err.Error()))
		return nil, supervisorTrace
	}

	decisions := parseRoutingResponse(result.Response)
	decisions = s.filterRegistered(decisions)
	if len(decisions) == 0 {
		s.logger.Warn("supervisor routing produced no usable decisions",
			slog.String("response", result.Response))
		return nil, supervisorTrace
	}
	return decisions, supervisorTrace
}

// filterRegistered drops decisions naming unknown specialists.
func (s *Swarm) filterRegistered(decisions []models.RoutingDecision) []models.RoutingDecision {
	kept := decisions[:0:0]
	for _, d := range decisions {
		if _, ok := s.byID[d.SpecialistID]; ok {
			kept = append(kept, d)
		}
	}
	return kept
}

func buildRoutingPrompt(task string, specialists []Specialist) string {
	var b strings.Builder
	b.WriteString("You are a routing supervisor. Select the specialist(s) best suited for the task below.\n\n")
	b.WriteString("Available specialists:\n")
	for _, sp := range specialists {
		fmt.Fprintf(&b, "- id: %s, specialization: %s", sp.ID, sp.Specialization)
		if len(sp.Keywords) > 0 {
			fmt.Fprintf(&b, ", keywords: %s", strings.Join(sp.Keywords, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nTask: ")
	b.WriteString(task)
	b.WriteString("\n\nRespond with JSON only: either a single object or an array of objects of the form ")
	b.WriteString(`{"specialistId": "<id>", "reason": "<why>", "confidence": <0.0-1.0>}.`)
	return b.String()
}

type routingChoice struct {
	SpecialistID string  `json:"specialistId"`
	Reason       string  `json:"reason"`
	Confidence   float64 `json:"confidence"`
}

// parseRoutingResponse extracts the first balanced JSON object or array from
// the supervisor's response and decodes routing choices from it. Models often
// wrap JSON in prose or code fences, so the surrounding text is ignored.
func parseRoutingResponse(response string) []models.RoutingDecision {
	raw := extractJSON(response)
	if raw == "" {
		return nil
	}

	var choices []routingChoice
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &choices); err != nil {
			return nil
		}
	} else {
		var one routingChoice
		if err := json.Unmarshal([]byte(raw), &one); err != nil {
			return nil
		}
		choices = []routingChoice{one}
	}

	decisions := make([]models.RoutingDecision, 0, len(choices))
	for _, c := range choices {
		if c.SpecialistID == "" {
			continue
		}
		decisions = append(decisions, models.RoutingDecision{
			SpecialistID: c.SpecialistID,
			Reason:       c.Reason,
			Confidence:   c.Confidence,
		})
	}
	return decisions
}

// extractJSON returns the first balanced top-level JSON object or array in
// the text, or empty string. Brackets inside JSON strings are skipped.
func extractJSON(text string) string {
	start := -1
	for i, r := range text {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// routingTraceEvent builds the supervisor pseudo-event for one decision.
func routingTraceEvent(d models.RoutingDecision, ts time.Time) models.TraceEvent {
	return models.TraceEvent{
		Type:      models.TraceRoutingDecision,
		Timestamp: ts,
		Data: map[string]any{
			"specialist_id": d.SpecialistID,
			"reason":        d.Reason,
			"confidence":    d.Confidence,
		},
	}
}
