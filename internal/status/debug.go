package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentcore/orchestrator/internal/turn"
	"github.com/agentcore/orchestrator/internal/usage"
)

// DebugArgs carries everything BuildDebugMessage needs to render one
// conversation's current turn-engine snapshot.
type DebugArgs struct {
	Phase     turn.Phase
	AgentName string
	Provider  string
	Model     string

	// ContextLimit is the active model's context window, used only to
	// compute the usage percentage; zero means unknown.
	ContextLimit int
	Usage        *usage.Usage
	Cost         *usage.Cost

	UpdatedAt *time.Time
	Now       time.Time
}

// BuildDebugMessage renders the /debug command's response: a deterministic
// text block with no per-run randomness, suitable for diffing across
// invocations against an unchanged conversation.
func BuildDebugMessage(args DebugArgs) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Phase: %s\n", args.Phase)

	agentName := args.AgentName
	if agentName == "" {
		agentName = "(none)"
	}
	fmt.Fprintf(&b, "Agent: %s\n", agentName)

	model := args.Model
	if model == "" {
		model = "(none)"
	}
	fmt.Fprintf(&b, "Model: %s/%s\n", args.Provider, model)

	if args.Usage != nil {
		total := int(args.Usage.Total())
		line := fmt.Sprintf("Tokens: %s in / %s out", usage.FormatTokenCount(args.Usage.InputTokens), usage.FormatTokenCount(args.Usage.OutputTokens))
		line += " (" + FormatContextUsageShort(total, args.ContextLimit) + ")"
		b.WriteString(line + "\n")

		if args.Cost != nil {
			if costUSD := args.Cost.Estimate(args.Usage); costUSD > 0 {
				fmt.Fprintf(&b, "Cost: %s\n", usage.FormatUSD(costUSD))
			}
		}
	}

	if args.UpdatedAt != nil {
		now := args.Now
		if now.IsZero() {
			now = time.Now()
		}
		fmt.Fprintf(&b, "Updated: %s\n", FormatAge(now.Sub(*args.UpdatedAt)))
	}

	return strings.TrimRight(b.String(), "\n")
}
