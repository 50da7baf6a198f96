package agent

import (
	"encoding/json"
	"io"

	"github.com/haasonsaas/hive/pkg/models"
)

// WriteTraceJSONL writes a trace as JSON Lines: a header object with the
// execution metadata and stats, then one line per event. The format is
// append-friendly and plays well with log shippers and jq.
func WriteTraceJSONL(w io.Writer, trace *models.ExecutionTrace) error {
	enc := json.NewEncoder(w)

	header := struct {
		ID        string            `json:"id"`
		AgentID   string            `json:"agent_id"`
		StartedAt string            `json:"started_at"`
		Duration  string            `json:"duration"`
		Stats     models.TraceStats `json:"stats"`
	}{
		ID:        trace.ID,
		AgentID:   trace.AgentID,
		StartedAt: trace.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		Duration:  trace.Duration.String(),
		Stats:     trace.Stats,
	}
	if err := enc.Encode(header); err != nil {
		return err
	}

	for _, event := range trace.Events {
		if err := enc.Encode(event); err != nil {
			return err
		}
	}
	return nil
}
