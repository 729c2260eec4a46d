package orchestration

import (
	"context"
	"time"

	"github.com/outdial/outdial-core/core/llms"
)

func parseRFC3339(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, value)
}

type transferCallArgs struct {
	Reason string `json:"reason,omitempty" jsonschema:"description=Why the callee asked for a human operator"`
}

type endCallArgs struct{}

// callControlTools exposes the dispatcher's closed function set to the
// conversation engine. ctx is the session context, so tool side effects are
// cancelled together with the session.
func callControlTools(ctx context.Context, d *dispatcher) []llms.Tool {
	return []llms.Tool{
		llms.NewTool(functionLookupAvailability,
			"Look up open appointment slots. Use when the callee asks about availability.",
			func(args lookupAvailabilityArgs) (string, error) {
				return d.lookupAvailability(ctx, args)
			},
		),
		llms.NewTool(functionConfirmAppointment,
			"Book the slot the callee agreed to. Use only after the callee confirmed a specific time.",
			func(args confirmAppointmentArgs) (string, error) {
				return d.confirmAppointment(ctx, args)
			},
		),
		llms.NewTool(functionTransferCall,
			"Transfer the call to a human operator. Use when the callee asks for a person.",
			func(transferCallArgs) (string, error) {
				return d.transferCall(ctx)
			},
		),
		llms.NewTool(functionEndCall,
			"End the call. Use when the conversation is finished or the callee asks to hang up.",
			func(endCallArgs) (string, error) {
				return d.endCall(ctx)
			},
		),
	}
}
