package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/outdial/outdial-core/core/llms"
	"github.com/outdial/outdial-core/core/media"
	"github.com/outdial/outdial-core/core/scheduling"
)

type schedulerStub struct {
	lookupAvailability func(ctx context.Context, dateHint string) ([]scheduling.Slot, error)
	confirmAppointment func(ctx context.Context, phoneNumber string, slot scheduling.Slot) (*scheduling.Confirmation, error)
}

func (s schedulerStub) LookupAvailability(ctx context.Context, dateHint string) ([]scheduling.Slot, error) {
	return s.lookupAvailability(ctx, dateHint)
}

func (s schedulerStub) ConfirmAppointment(ctx context.Context, phoneNumber string, slot scheduling.Slot) (*scheduling.Confirmation, error) {
	return s.confirmAppointment(ctx, phoneNumber, slot)
}

type endRecorder struct {
	mu      sync.Mutex
	reasons []EndReason
}

func (r *endRecorder) requestEnd(reason EndReason) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
}

func (r *endRecorder) recorded() []EndReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EndReason(nil), r.reasons...)
}

func TestEndCallIsIdempotent(t *testing.T) {
	session := sessionInState(t, StateActive)
	recorder := &endRecorder{}
	d := newDispatcher(session, nil)
	d.requestEnd = recorder.requestEnd

	first := d.dispatch(context.Background(), llms.ToolCall{ID: "1", Name: functionEndCall})
	second := d.dispatch(context.Background(), llms.ToolCall{ID: "2", Name: functionEndCall})

	if first != second {
		t.Fatalf("expected repeated end_call to return the cached result, got %q then %q", first, second)
	}
	if reasons := recorder.recorded(); len(reasons) != 1 || reasons[0] != EndReasonCompleted {
		t.Fatalf("expected exactly one completed end request, got %v", reasons)
	}
}

func TestUnsupportedFunctionIsRelayableFailure(t *testing.T) {
	session := sessionInState(t, StateActive)
	d := newDispatcher(session, nil)

	result := d.dispatch(context.Background(), llms.ToolCall{ID: "1", Name: "play_music"})

	if !strings.Contains(result, "play_music") || !strings.Contains(result, "failed") {
		t.Fatalf("expected a relayable failure result, got %q", result)
	}
	if got := session.State(); got != StateActive {
		t.Fatalf("expected the session to stay active, got %s", got)
	}
}

func TestLookupAvailabilityFailureIsRelayable(t *testing.T) {
	session := sessionInState(t, StateActive)
	d := newDispatcher(session, nil)
	d.scheduler = schedulerStub{
		lookupAvailability: func(context.Context, string) ([]scheduling.Slot, error) {
			return nil, fmt.Errorf("backend timeout")
		},
	}

	result := d.dispatch(context.Background(), llms.ToolCall{
		ID: "1", Name: functionLookupAvailability, Arguments: `{"date":"next tuesday"}`,
	})

	if !strings.Contains(result, "could not be checked") {
		t.Fatalf("expected a relayable lookup failure, got %q", result)
	}
	if got := session.State(); got != StateActive {
		t.Fatalf("expected the session to stay active, got %s", got)
	}
}

func TestLookupAvailabilityFormatsSlots(t *testing.T) {
	session := sessionInState(t, StateActive)
	d := newDispatcher(session, nil)
	d.scheduler = schedulerStub{
		lookupAvailability: func(_ context.Context, dateHint string) ([]scheduling.Slot, error) {
			if dateHint != "next tuesday" {
				t.Fatalf("expected the date hint to be forwarded, got %q", dateHint)
			}
			return []scheduling.Slot{
				{Start: time.Date(2026, time.September, 1, 14, 0, 0, 0, time.UTC)},
			}, nil
		},
	}

	result := d.dispatch(context.Background(), llms.ToolCall{
		ID: "1", Name: functionLookupAvailability, Arguments: `{"date":"next tuesday"}`,
	})

	if !strings.Contains(result, "Tuesday Sep 1") {
		t.Fatalf("expected a spoken-friendly slot description, got %q", result)
	}
}

func TestLookupAvailabilityWithoutSchedulerIsGraceful(t *testing.T) {
	session := sessionInState(t, StateActive)
	d := newDispatcher(session, nil)

	result := d.dispatch(context.Background(), llms.ToolCall{ID: "1", Name: functionLookupAvailability})

	if !strings.Contains(result, "not available") {
		t.Fatalf("expected a graceful no-scheduler result, got %q", result)
	}
}

func TestConfirmAppointmentRejectsMalformedTime(t *testing.T) {
	session := sessionInState(t, StateActive)
	d := newDispatcher(session, nil)
	d.scheduler = schedulerStub{}

	result := d.dispatch(context.Background(), llms.ToolCall{
		ID: "1", Name: functionConfirmAppointment, Arguments: `{"start":"tomorrow-ish"}`,
	})

	if !strings.Contains(result, "failed") {
		t.Fatalf("expected a relayable argument failure, got %q", result)
	}
	if got := session.State(); got != StateActive {
		t.Fatalf("expected the session to stay active, got %s", got)
	}
}

func TestTransferCallWithoutTargetDoesNotDial(t *testing.T) {
	session := sessionInState(t, StateActive)
	adapter := &fakeAdapter{
		dial: func(context.Context, string, ...media.DialOption) (media.Leg, error) {
			t.Fatalf("expected no dial without a transfer target")
			return nil, nil
		},
	}

	d := newDispatcher(session, nil)
	d.transfers = newTransferCoordinator(adapter, time.Second, nil)
	d.originalLeg = func() media.Leg { return newFakeLeg("callee") }

	result := d.dispatch(context.Background(), llms.ToolCall{ID: "1", Name: functionTransferCall})

	if !strings.Contains(result, "No transfer number") {
		t.Fatalf("expected a missing-target result, got %q", result)
	}
	if got := session.State(); got != StateActive {
		t.Fatalf("expected the session to stay active, got %s", got)
	}
}

func TestTransferFailureResumesConversation(t *testing.T) {
	session := sessionInState(t, StateActive, WithTransferTo("+19995551212"))
	originalLeg := newFakeLeg("callee")
	adapter := &fakeAdapter{
		dial: func(context.Context, string, ...media.DialOption) (media.Leg, error) {
			return nil, fmt.Errorf("operator trunk busy")
		},
	}

	recorder := &endRecorder{}
	d := newDispatcher(session, nil)
	d.transfers = newTransferCoordinator(adapter, time.Second, nil)
	d.originalLeg = func() media.Leg { return originalLeg }
	d.requestEnd = recorder.requestEnd

	result := d.dispatch(context.Background(), llms.ToolCall{ID: "1", Name: functionTransferCall})

	if !strings.Contains(result, "could not be reached") {
		t.Fatalf("expected a recoverable transfer failure result, got %q", result)
	}
	if got := session.State(); got != StateActive {
		t.Fatalf("expected the session to resume active after a failed transfer, got %s", got)
	}
	if originalLeg.isClosed() {
		t.Fatalf("expected the original leg to stay open")
	}
	if len(recorder.recorded()) != 0 {
		t.Fatalf("expected no end request after a failed transfer")
	}
}

func TestTransferRetriesAfterFailedAttempt(t *testing.T) {
	session := sessionInState(t, StateActive, WithTransferTo("+19995551212"))
	operatorLeg := newFakeLeg("operator")
	operatorLeg.signals <- media.SignalEvent{Kind: media.SignalAnswered}

	var attempts int
	adapter := &fakeAdapter{
		dial: func(context.Context, string, ...media.DialOption) (media.Leg, error) {
			attempts++
			if attempts == 1 {
				return nil, fmt.Errorf("operator trunk busy")
			}
			return operatorLeg, nil
		},
	}

	recorder := &endRecorder{}
	d := newDispatcher(session, nil)
	d.transfers = newTransferCoordinator(adapter, time.Second, nil)
	d.bridgePolicy = BridgePolicyHandOff
	d.originalLeg = func() media.Leg { return newFakeLeg("callee") }
	d.requestEnd = recorder.requestEnd

	first := d.dispatch(context.Background(), llms.ToolCall{ID: "1", Name: functionTransferCall})
	second := d.dispatch(context.Background(), llms.ToolCall{ID: "2", Name: functionTransferCall})

	if !strings.Contains(first, "could not be reached") {
		t.Fatalf("expected a recoverable failure on the first attempt, got %q", first)
	}
	if !strings.Contains(second, "Transfer connected") {
		t.Fatalf("expected the second attempt to dial the operator again, got %q", second)
	}
	if attempts != 2 {
		t.Fatalf("expected two dial attempts, got %d", attempts)
	}
	if reasons := recorder.recorded(); len(reasons) != 1 || reasons[0] != EndReasonTransferredToHuman {
		t.Fatalf("expected exactly one transferred end request, got %v", reasons)
	}
}

func TestTransferBridgedHandOffRequestsEnd(t *testing.T) {
	session := sessionInState(t, StateActive, WithTransferTo("+19995551212"))
	operatorLeg := newFakeLeg("operator")
	operatorLeg.signals <- media.SignalEvent{Kind: media.SignalAnswered}
	adapter := &fakeAdapter{
		dial: func(context.Context, string, ...media.DialOption) (media.Leg, error) {
			return operatorLeg, nil
		},
	}

	recorder := &endRecorder{}
	d := newDispatcher(session, nil)
	d.transfers = newTransferCoordinator(adapter, time.Second, nil)
	d.bridgePolicy = BridgePolicyHandOff
	d.originalLeg = func() media.Leg { return newFakeLeg("callee") }
	d.requestEnd = recorder.requestEnd

	first := d.dispatch(context.Background(), llms.ToolCall{ID: "1", Name: functionTransferCall})
	second := d.dispatch(context.Background(), llms.ToolCall{ID: "2", Name: functionTransferCall})

	if !strings.Contains(first, "Transfer connected") {
		t.Fatalf("expected a bridged transfer result, got %q", first)
	}
	if first != second {
		t.Fatalf("expected repeated transfer_call to return the cached result")
	}
	if reasons := recorder.recorded(); len(reasons) != 1 || reasons[0] != EndReasonTransferredToHuman {
		t.Fatalf("expected exactly one transferred end request, got %v", reasons)
	}
}

func TestTransferBridgedStayOnCallResumesActive(t *testing.T) {
	session := sessionInState(t, StateActive, WithTransferTo("+19995551212"))
	operatorLeg := newFakeLeg("operator")
	operatorLeg.signals <- media.SignalEvent{Kind: media.SignalAnswered}
	adapter := &fakeAdapter{
		dial: func(context.Context, string, ...media.DialOption) (media.Leg, error) {
			return operatorLeg, nil
		},
	}

	recorder := &endRecorder{}
	d := newDispatcher(session, nil)
	d.transfers = newTransferCoordinator(adapter, time.Second, nil)
	d.bridgePolicy = BridgePolicyStayOnCall
	d.originalLeg = func() media.Leg { return newFakeLeg("callee") }
	d.requestEnd = recorder.requestEnd

	result := d.dispatch(context.Background(), llms.ToolCall{ID: "1", Name: functionTransferCall})

	if !strings.Contains(result, "stay silent") {
		t.Fatalf("expected a stay-on-call result, got %q", result)
	}
	if got := session.State(); got != StateActive {
		t.Fatalf("expected the session to return to active, got %s", got)
	}
	if len(recorder.recorded()) != 0 {
		t.Fatalf("expected no end request under the stay-on-call policy")
	}
}
