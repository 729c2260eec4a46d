package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	orchestration "github.com/outdial/outdial-core/core"
	"github.com/outdial/outdial-core/core/audio"
	"github.com/outdial/outdial-core/core/media"
)

type stubLeg struct {
	signals chan media.SignalEvent
	audio   chan []byte
}

func newStubLeg() *stubLeg {
	return &stubLeg{
		signals: make(chan media.SignalEvent, 4),
		audio:   make(chan []byte),
	}
}

func (l *stubLeg) ID() string                        { return "stub" }
func (l *stubLeg) SendAudio([]byte) error            { return nil }
func (l *stubLeg) Audio() <-chan []byte              { return l.audio }
func (l *stubLeg) Signals() <-chan media.SignalEvent { return l.signals }
func (l *stubLeg) Encoding() audio.EncodingInfo      { return audio.GetDefaultEncodingInfo() }
func (l *stubLeg) Close(context.Context) error       { return nil }

type stubAdapter struct{}

func (stubAdapter) Dial(context.Context, string, ...media.DialOption) (media.Leg, error) {
	leg := newStubLeg()
	leg.signals <- media.SignalEvent{Kind: media.SignalEnded, Reason: "test hangup"}
	return leg, nil
}

func (stubAdapter) Bridge(context.Context, media.Leg, media.Leg) error { return nil }

// countingFactory builds real orchestrators over a stub adapter, counting
// invocations.
func countingFactory(created *atomic.Int32) orchestratorFactory {
	return func(session *orchestration.CallSession) (*orchestration.Orchestrator, error) {
		created.Add(1)
		return orchestration.NewOrchestrator(session, stubAdapter{},
			orchestration.WithTimeouts(orchestration.Timeouts{Answer: 50 * time.Millisecond}),
		)
	}
}

func testService(t *testing.T, created *atomic.Int32) *Service {
	t.Helper()

	config := &Config{}
	config.applyDefaults()
	config.Gateway.URL = "ws://gateway.test"

	service, err := NewService(config, WithOrchestratorFactory(countingFactory(created)))
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func TestCreateCallStartsExactlyOneSession(t *testing.T) {
	var created atomic.Int32
	service := testService(t, &created)
	server := httptest.NewServer(service.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/call", "application/json",
		strings.NewReader(`{"phone_number":"+15550001111","transfer_to":"+19995551212"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var body callResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.ID == "" {
		t.Fatalf("expected a session id in the response")
	}
	if got := created.Load(); got != 1 {
		t.Fatalf("expected exactly one orchestrator, got %d", got)
	}

	// The stub call winds down on its own, so the session may already have
	// moved from the live map to the archive.
	service.mu.Lock()
	_, live := service.sessions[body.ID]
	_, retired := service.archive[body.ID]
	service.mu.Unlock()
	if !live && !retired {
		t.Fatalf("expected session %s to be tracked", body.ID)
	}
}

func TestCreateCallRejectsMissingPhoneNumber(t *testing.T) {
	var created atomic.Int32
	service := testService(t, &created)
	server := httptest.NewServer(service.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/call", "application/json",
		strings.NewReader(`{"transfer_to":"+19995551212"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if got := created.Load(); got != 0 {
		t.Fatalf("expected no orchestrator for a rejected request, got %d", got)
	}
}

func TestCreateCallRejectsMalformedBody(t *testing.T) {
	var created atomic.Int32
	service := testService(t, &created)
	server := httptest.NewServer(service.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/call", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if got := created.Load(); got != 0 {
		t.Fatalf("expected no orchestrator for a rejected request, got %d", got)
	}
}

func TestGetCallReportsSnapshot(t *testing.T) {
	var created atomic.Int32
	service := testService(t, &created)
	server := httptest.NewServer(service.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/call", "application/json",
		strings.NewReader(`{"phone_number":"+15550001111","metadata":{"campaign":"reminders"}}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var creation callResponse
	if err := json.NewDecoder(resp.Body).Decode(&creation); err != nil {
		t.Fatalf("failed to decode creation response: %v", err)
	}
	resp.Body.Close()

	getResp, err := http.Get(server.URL + "/call/" + creation.ID)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer getResp.Body.Close()

	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}
	var snapshot callSnapshot
	if err := json.NewDecoder(getResp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snapshot.ID != creation.ID {
		t.Fatalf("expected snapshot for %s, got %s", creation.ID, snapshot.ID)
	}
	if snapshot.PhoneNumber != "+15550001111" {
		t.Fatalf("expected the dialed number, got %q", snapshot.PhoneNumber)
	}
	if snapshot.Metadata["campaign"] != "reminders" {
		t.Fatalf("expected metadata to round-trip, got %v", snapshot.Metadata)
	}
}

func TestFinishedSessionIsRetiredButStaysQueryable(t *testing.T) {
	var created atomic.Int32
	service := testService(t, &created)
	server := httptest.NewServer(service.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/call", "application/json",
		strings.NewReader(`{"phone_number":"+15550001111"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var creation callResponse
	if err := json.NewDecoder(resp.Body).Decode(&creation); err != nil {
		t.Fatalf("failed to decode creation response: %v", err)
	}
	resp.Body.Close()

	retired := func() bool {
		service.mu.Lock()
		defer service.mu.Unlock()
		_, live := service.sessions[creation.ID]
		_, archived := service.archive[creation.ID]
		return !live && archived
	}
	deadline := time.Now().Add(2 * time.Second)
	for !retired() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for session %s to retire", creation.ID)
		}
		time.Sleep(10 * time.Millisecond)
	}

	getResp, err := http.Get(server.URL + "/call/" + creation.ID)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for a retired session, got %d", getResp.StatusCode)
	}
	var snapshot callSnapshot
	if err := json.NewDecoder(getResp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snapshot.State != string(orchestration.StateFailed) && snapshot.State != string(orchestration.StateEnded) {
		t.Fatalf("expected a terminal state in the archived snapshot, got %s", snapshot.State)
	}

	endResp, err := http.Post(server.URL+"/call/"+creation.ID+"/end", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer endResp.Body.Close()
	if endResp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected ending a retired session to be a 202 no-op, got %d", endResp.StatusCode)
	}
}

func TestGetCallUnknownSessionIs404(t *testing.T) {
	var created atomic.Int32
	service := testService(t, &created)
	server := httptest.NewServer(service.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/call/no-such-session")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestEndCallIsAcceptedForLiveSession(t *testing.T) {
	var created atomic.Int32
	service := testService(t, &created)
	server := httptest.NewServer(service.Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/call", "application/json",
		strings.NewReader(`{"phone_number":"+15550001111"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var creation callResponse
	if err := json.NewDecoder(resp.Body).Decode(&creation); err != nil {
		t.Fatalf("failed to decode creation response: %v", err)
	}
	resp.Body.Close()

	endResp, err := http.Post(server.URL+"/call/"+creation.ID+"/end", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer endResp.Body.Close()
	if endResp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", endResp.StatusCode)
	}

	missingResp, err := http.Post(server.URL+"/call/no-such-session/end", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer missingResp.Body.Close()
	if missingResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown session, got %d", missingResp.StatusCode)
	}
}
