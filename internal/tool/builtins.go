package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentcore/orchestrator/internal/datetime"
	"github.com/agentcore/orchestrator/internal/tools/shellexec"
	"github.com/agentcore/orchestrator/internal/tools/websearch"
)

// NewShellExecDescriptors wraps a shellexec.Tool as a pair of Descriptors:
// one to run a validated, process-tracked shell command and one to poll a
// backgrounded command's output, sharing the same underlying Tool (and so
// the same ProcessRegistry) between them.
func NewShellExecDescriptors(cfg shellexec.Config, logger *slog.Logger) []*Descriptor {
	t := shellexec.New(cfg, logger)
	return []*Descriptor{
		{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
			Handler:     HandlerFunc(t.Execute),
		},
		{
			Name:        "check_shell_command",
			Description: "Poll a backgrounded run_shell_command session for its current output and status.",
			InputSchema: t.CheckSchema(),
			Handler:     HandlerFunc(t.CheckSession),
		},
	}
}

// NewWebSearchDescriptor wraps a websearch.WebSearchTool as a Descriptor,
// exposing its own name, description and schema so the registry doesn't
// need to know anything about search backends.
func NewWebSearchDescriptor(cfg *websearch.Config) *Descriptor {
	t := websearch.NewWebSearchTool(cfg)
	return &Descriptor{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Schema(),
		Handler:     HandlerFunc(t.Execute),
	}
}

type currentTimeParams struct {
	Timezone string `json:"timezone,omitempty"`
}

// NewCurrentTimeDescriptor returns a Descriptor exposing the host's
// datetime helpers as a "current_time" tool: resolves the caller's
// timezone (falling back to the host's) and renders it the way the
// conversational UI would for a user (§ internal/datetime).
func NewCurrentTimeDescriptor() *Descriptor {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"timezone": {
				"type": "string",
				"description": "IANA timezone name, e.g. America/Los_Angeles. Defaults to the host's timezone."
			}
		}
	}`)

	return &Descriptor{
		Name:        "current_time",
		Description: "Return the current date and time, optionally in a specific timezone.",
		InputSchema: schema,
		Handler: HandlerFunc(func(ctx context.Context, params json.RawMessage) (string, bool, error) {
			var p currentTimeParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return fmt.Sprintf("invalid parameters: %v", err), true, nil
				}
			}

			tz := datetime.ResolveUserTimezone(p.Timezone)
			now := time.Now()
			formatted := datetime.FormatUserTimeWithTimezone(now, tz, datetime.ResolveUserTimeFormat(datetime.TimeFormatAuto))
			return formatted, false, nil
		}),
	}
}
