package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/outdial/outdial-core/core/events"
	"github.com/outdial/outdial-core/core/media"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TransferAttemptState is the lifecycle of one attempt to bridge the call to
// a human operator.
type TransferAttemptState string

const (
	TransferDialing   TransferAttemptState = "dialing"
	TransferBridged   TransferAttemptState = "bridged"
	TransferFailed    TransferAttemptState = "failed"
	TransferAbandoned TransferAttemptState = "abandoned"
)

// TransferAttempt records the outcome of dialing a transfer target. It is
// owned by the transfer coordinator and only referenced by the session.
type TransferAttempt struct {
	Target    string
	State     TransferAttemptState
	StartedAt time.Time
	EndedAt   *time.Time
	Error     string
}

func (a *TransferAttempt) finish(state TransferAttemptState, errText string) {
	now := time.Now()
	a.State = state
	a.EndedAt = &now
	a.Error = errText
}

// BridgePolicy decides what happens to the agent leg once a transfer bridge
// is confirmed.
type BridgePolicy string

const (
	// BridgePolicyHandOff releases the agent leg after the bridge is
	// confirmed, ending the session.
	BridgePolicyHandOff BridgePolicy = "hand_off"
	// BridgePolicyStayOnCall keeps the agent leg alive as a silent monitor.
	BridgePolicyStayOnCall BridgePolicy = "stay_on_call"
)

type transferCoordinator struct {
	adapter media.Adapter
	timeout time.Duration

	emitEvent eventEmitter
}

func newTransferCoordinator(adapter media.Adapter, timeout time.Duration, emitEvent eventEmitter) *transferCoordinator {
	if emitEvent == nil {
		emitEvent = noopEventEmitter
	}
	return &transferCoordinator{adapter: adapter, timeout: timeout, emitEvent: emitEvent}
}

// Transfer dials the target and bridges it with the original leg. The
// original leg is left untouched unless the bridge is confirmed. The returned
// attempt is always in a terminal state.
func (c *transferCoordinator) Transfer(ctx context.Context, session *CallSession, originalLeg media.Leg, target string) *TransferAttempt {
	ctx, span := tracer.Start(ctx, "transfer call")
	defer span.End()
	span.SetAttributes(attribute.String("transfer.target", target))

	attempt := &TransferAttempt{Target: target, State: TransferDialing, StartedAt: time.Now()}
	session.setTransfer(attempt)
	c.emitEvent(events.NewTransferDialing(session.ID, target))

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	failAttempt := func(err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		attempt.finish(TransferFailed, err.Error())
		c.emitEvent(events.NewTransferFailed(session.ID, target, err.Error()))
	}

	operatorLeg, err := c.adapter.Dial(dialCtx, target, media.WithEncodingInfo(originalLeg.Encoding()))
	if err != nil {
		failAttempt(fmt.Errorf("failed to dial transfer target: %w", err))
		return attempt
	}

	if err := c.awaitAnswer(dialCtx, operatorLeg); err != nil {
		_ = operatorLeg.Close(ctx)
		if ctx.Err() != nil {
			attempt.finish(TransferAbandoned, "session ended during transfer")
			c.emitEvent(events.NewTransferAbandoned(session.ID, target))
			return attempt
		}
		failAttempt(err)
		return attempt
	}

	if err := c.adapter.Bridge(ctx, originalLeg, operatorLeg); err != nil {
		_ = operatorLeg.Close(ctx)
		failAttempt(fmt.Errorf("failed to bridge legs: %w", err))
		return attempt
	}

	attempt.finish(TransferBridged, "")
	c.emitEvent(events.NewTransferBridged(session.ID, target))
	return attempt
}

func (c *transferCoordinator) awaitAnswer(ctx context.Context, leg media.Leg) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("transfer target did not answer: %w", ctx.Err())
		case signal, ok := <-leg.Signals():
			if !ok {
				return fmt.Errorf("transfer leg signaling closed before answer")
			}
			switch signal.Kind {
			case media.SignalAnswered:
				return nil
			case media.SignalEnded, media.SignalFailed:
				return fmt.Errorf("transfer target unreachable: %s", signal.Reason)
			}
		}
	}
}
