package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/outdial/outdial-core/core/events"
	"github.com/outdial/outdial-core/core/llms"
	"github.com/outdial/outdial-core/core/media"
	"github.com/outdial/outdial-core/core/scheduling"
)

// The closed set of call control functions the conversation engine may
// invoke.
const (
	functionLookupAvailability = "lookup_availability"
	functionConfirmAppointment = "confirm_appointment"
	functionTransferCall       = "transfer_call"
	functionEndCall            = "end_call"
)

// dispatcher executes structured action requests emitted mid-conversation.
// Results always come back as text for the model; only the session-mutating
// functions touch orchestrator state. Mutating functions are idempotent once
// settled: a repeated invocation is answered with the cached result.
type dispatcher struct {
	session      *CallSession
	scheduler    Scheduler
	transfers    *transferCoordinator
	bridgePolicy BridgePolicy

	// originalLeg returns the live callee leg, nil before dialing completed.
	originalLeg func() media.Leg
	// requestEnd asks the orchestrator to tear the session down. The
	// dispatcher never performs teardown itself.
	requestEnd func(reason EndReason)

	emitEvent eventEmitter

	mu     sync.Mutex
	cached map[string]string
}

func newDispatcher(session *CallSession, emitEvent eventEmitter) *dispatcher {
	if emitEvent == nil {
		emitEvent = noopEventEmitter
	}
	return &dispatcher{
		session:    session,
		emitEvent:  emitEvent,
		requestEnd: func(EndReason) {},
		cached:     map[string]string{},
	}
}

// dispatch routes a tool call by name. Unrecognized names produce a failure
// result the model can relay, not a session fault.
func (d *dispatcher) dispatch(ctx context.Context, call llms.ToolCall) string {
	d.emitEvent(events.NewToolCallStarted(call.ID, call.Name, call.Arguments))

	result, err := d.execute(ctx, call)
	if err != nil {
		d.emitEvent(events.NewToolCallFailed(call.ID, call.Name, err.Error()))
		return fmt.Sprintf("The %s action failed: %v. Apologize and continue without it.", call.Name, err)
	}

	d.emitEvent(events.NewToolCallCompleted(call.ID, call.Name, result))
	return result
}

func (d *dispatcher) execute(ctx context.Context, call llms.ToolCall) (string, error) {
	switch call.Name {
	case functionLookupAvailability:
		var args lookupAvailabilityArgs
		if err := unmarshalArguments(call.Arguments, &args); err != nil {
			return "", err
		}
		return d.lookupAvailability(ctx, args)

	case functionConfirmAppointment:
		var args confirmAppointmentArgs
		if err := unmarshalArguments(call.Arguments, &args); err != nil {
			return "", err
		}
		return d.confirmAppointment(ctx, args)

	case functionTransferCall:
		return d.transferCall(ctx)

	case functionEndCall:
		return d.endCall(ctx)

	default:
		return "", fmt.Errorf("unsupported function %q", call.Name)
	}
}

func unmarshalArguments(arguments string, out any) error {
	if arguments == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(arguments), out); err != nil {
		return fmt.Errorf("malformed arguments: %w", err)
	}
	return nil
}

type lookupAvailabilityArgs struct {
	Date string `json:"date" jsonschema:"description=The date or date range the callee asked about,example=next Tuesday afternoon"`
}

// lookupAvailability is a pure query; a backend failure or timeout is
// returned as an explanation the model can relay.
func (d *dispatcher) lookupAvailability(ctx context.Context, args lookupAvailabilityArgs) (string, error) {
	if d.scheduler == nil {
		return "Scheduling is not available on this call.", nil
	}

	slots, err := d.scheduler.LookupAvailability(ctx, args.Date)
	if err != nil {
		return fmt.Sprintf("Availability could not be checked right now (%v). Offer to follow up later.", err), nil
	}
	if len(slots) == 0 {
		return fmt.Sprintf("No open slots around %q.", args.Date), nil
	}

	descriptions := make([]string, 0, len(slots))
	for _, slot := range slots {
		descriptions = append(descriptions, slot.Start.Format("Monday Jan 2 3:04 PM"))
	}
	return "Open slots: " + strings.Join(descriptions, "; "), nil
}

type confirmAppointmentArgs struct {
	Start string `json:"start" jsonschema:"description=Start of the chosen slot in RFC 3339 format"`
	End   string `json:"end,omitempty" jsonschema:"description=End of the chosen slot in RFC 3339 format"`
}

func (d *dispatcher) confirmAppointment(ctx context.Context, args confirmAppointmentArgs) (string, error) {
	if d.scheduler == nil {
		return "Scheduling is not available on this call.", nil
	}

	slot, err := args.toSlot()
	if err != nil {
		return "", err
	}

	confirmation, err := d.scheduler.ConfirmAppointment(ctx, d.session.PhoneNumber, slot)
	if err != nil {
		return fmt.Sprintf("The appointment could not be confirmed (%v). Offer to follow up later.", err), nil
	}
	return fmt.Sprintf("Appointment %s confirmed for %s.",
		confirmation.AppointmentID, confirmation.Start.Format("Monday Jan 2 3:04 PM")), nil
}

func (a confirmAppointmentArgs) toSlot() (scheduling.Slot, error) {
	slot := scheduling.Slot{}
	var err error
	if slot.Start, err = parseRFC3339(a.Start); err != nil {
		return slot, fmt.Errorf("malformed start time: %w", err)
	}
	if a.End != "" {
		if slot.End, err = parseRFC3339(a.End); err != nil {
			return slot, fmt.Errorf("malformed end time: %w", err)
		}
	}
	return slot, nil
}

// transferCall hands the call to a human operator. The conversation stays
// live while the operator leg is dialed; only a confirmed bridge ends it.
// Only settled outcomes are cached: a failed attempt stays retryable.
func (d *dispatcher) transferCall(ctx context.Context) (string, error) {
	if cached, ok := d.lookupCached(functionTransferCall); ok {
		return cached, nil
	}

	target := d.session.TransferTo
	if target == "" {
		return "No transfer number is configured for this call.", nil
	}
	if d.transfers == nil || d.originalLeg == nil || d.originalLeg() == nil {
		return "", fmt.Errorf("transfer is not available on this call")
	}

	if err := d.session.transitionTo(StateTransferRequested); err != nil {
		return "", err
	}
	if err := d.session.transitionTo(StateTransferring); err != nil {
		return "", err
	}

	attempt := d.transfers.Transfer(ctx, d.session, d.originalLeg(), target)
	switch attempt.State {
	case TransferBridged:
		if d.bridgePolicy == BridgePolicyStayOnCall {
			if err := d.session.transitionTo(StateActive); err != nil {
				return "", err
			}
			return d.storeCached(functionTransferCall,
				"Transfer connected. You may stay silent unless addressed."), nil
		}
		d.requestEnd(EndReasonTransferredToHuman)
		return d.storeCached(functionTransferCall, "Transfer connected. Say goodbye briefly."), nil

	case TransferAbandoned:
		return d.storeCached(functionTransferCall,
			"The transfer was abandoned because the call is ending."), nil

	default:
		// Failed: stay on the call and let the conversation recover.
		if err := d.session.transitionTo(StateActive); err != nil {
			return "", err
		}
		return "The operator could not be reached. Apologize and continue helping directly.", nil
	}
}

// endCall always succeeds from the dispatcher's point of view; the actual
// teardown belongs to the orchestrator.
func (d *dispatcher) endCall(context.Context) (string, error) {
	return d.cachedResult(functionEndCall, func() (string, error) {
		d.requestEnd(EndReasonCompleted)
		return "The call is ending. Say a brief goodbye.", nil
	})
}

func (d *dispatcher) cachedResult(name string, compute func() (string, error)) (string, error) {
	if cached, ok := d.lookupCached(name); ok {
		return cached, nil
	}

	result, err := compute()
	if err != nil {
		return "", err
	}
	return d.storeCached(name, result), nil
}

func (d *dispatcher) lookupCached(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cached, ok := d.cached[name]
	return cached, ok
}

func (d *dispatcher) storeCached(name, result string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached[name] = result
	return result
}
