package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/hive/pkg/models"
)

// CustomSynthesizer replaces the built-in synthesis step. It combines the
// specialist outcomes into the swarm's final response.
type CustomSynthesizer func(ctx context.Context, task string, outcomes []models.SpecialistOutcome) (string, error)

// synthesize produces the final swarm response from the specialist
// outcomes. A single outcome is returned verbatim. With multiple outcomes
// the supervisor is asked to merge them; if the supervisor (or a custom
// synthesizer) fails, a plain concatenation is used so the swarm still
// returns every specialist's work. Supervisor trace events from the
// synthesis call are returned alongside the response.
func (s *Swarm) synthesize(ctx context.Context, task string, outcomes []models.SpecialistOutcome) (string, []models.TraceEvent) {
	if len(outcomes) == 0 {
		return "", nil
	}

	if s.synthesizer != nil {
		response, err := s.synthesizer(ctx, task, outcomes)
		if err != nil {
			s.logger.Warn("custom synthesizer failed, falling back to concatenation",
				slog.String("error", err.Error()))
			return concatOutcomes(outcomes), nil
		}
		return response, nil
	}

	if len(outcomes) == 1 {
		if outcomes[0].Success {
			return outcomes[0].Response, nil
		}
		return concatOutcomes(outcomes), nil
	}

	prompt := buildSynthesisPrompt(task, outcomes)
	result, err := s.supervisor.Execute(ctx, prompt, nil)
	var supervisorTrace []models.TraceEvent
	if result != nil && result.Trace != nil {
		supervisorTrace = result.Trace.Events
	}
	if err != nil || result.Response == "" {
		if err != nil {
			s.logger.Warn("supervisor synthesis failed, falling back to concatenation",
				slog.String("error", err.Error()))
		}
		return concatOutcomes(outcomes), supervisorTrace
	}
	return result.Response, supervisorTrace
}

func buildSynthesisPrompt(task string, outcomes []models.SpecialistOutcome) string {
	var b strings.Builder
	b.WriteString("You are a synthesis supervisor. Combine the specialist responses below into one coherent answer to the task.\n\n")
	b.WriteString("Task: ")
	b.WriteString(task)
	b.WriteString("\n\nSpecialist responses:\n")
	for _, o := range outcomes {
		fmt.Fprintf(&b, "\n--- %s (%s) ---\n", o.SpecialistID, o.Specialization)
		if o.Success {
			b.WriteString(o.Response)
		} else if o.Error != nil {
			fmt.Fprintf(&b, "(failed: %s)", o.Error.Message)
		} else {
			b.WriteString("(failed)")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with the combined answer only.")
	return b.String()
}

// concatOutcomes joins the specialist responses with attribution headers.
func concatOutcomes(outcomes []models.SpecialistOutcome) string {
	var parts []string
	for _, o := range outcomes {
		header := o.SpecialistID
		if o.Specialization != "" {
			header += " (" + o.Specialization + ")"
		}
		body := o.Response
		if !o.Success {
			if o.Error != nil {
				body = "failed: " + o.Error.Message
			} else {
				body = "failed"
			}
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s", header, body))
	}
	return strings.Join(parts, "\n\n")
}
