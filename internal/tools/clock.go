package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/hive/internal/agent"
)

type clockArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name such as America/New_York. Defaults to UTC."`
}

// NewClock returns a tool reporting the current time.
func NewClock() agent.Tool {
	return newClockWithNow(time.Now)
}

func newClockWithNow(now func() time.Time) agent.Tool {
	return agent.NewFuncTool(
		"clock",
		"Returns the current date and time, optionally in a specific timezone.",
		schemaFor[clockArgs](),
		func(ctx context.Context, input json.RawMessage) (any, error) {
			var args clockArgs
			if err := json.Unmarshal(input, &args); err != nil {
				return nil, err
			}

			loc := time.UTC
			if args.Timezone != "" {
				var err error
				loc, err = time.LoadLocation(args.Timezone)
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q", args.Timezone)
				}
			}

			t := now().In(loc)
			return map[string]any{
				"time":     t.Format(time.RFC3339),
				"timezone": loc.String(),
				"unix":     t.Unix(),
			}, nil
		},
	)
}
