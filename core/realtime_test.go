package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/outdial/outdial-core/core/audio"
	"github.com/outdial/outdial-core/core/llms"
	"github.com/outdial/outdial-core/core/media"
)

type realtimeLLMStub struct {
	mu       sync.Mutex
	sessions []*realtimeSessionStub
	connect  func() error
}

func (s *realtimeLLMStub) Connect(_ context.Context, callbacks llms.RealtimeCallbacks) (llms.RealtimeSession, error) {
	if s.connect != nil {
		if err := s.connect(); err != nil {
			return nil, err
		}
	}

	session := &realtimeSessionStub{callbacks: callbacks}
	s.mu.Lock()
	s.sessions = append(s.sessions, session)
	s.mu.Unlock()
	return session, nil
}

func (s *realtimeLLMStub) connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions) > 0
}

func (s *realtimeLLMStub) session(t *testing.T) *realtimeSessionStub {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) == 0 {
		t.Fatalf("expected a realtime session to be connected")
	}
	return s.sessions[len(s.sessions)-1]
}

type realtimeSessionStub struct {
	callbacks llms.RealtimeCallbacks

	mu           sync.Mutex
	instructions string
	tools        []llms.Tool
	said         []string
	toolResults  map[string]string
	cancels      int
	closed       bool
}

func (s *realtimeSessionStub) Configure(instructions string, tools []llms.Tool, _ audio.EncodingInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instructions = instructions
	s.tools = tools
	return nil
}

func (s *realtimeSessionStub) SendAudio([]byte) error { return nil }

func (s *realtimeSessionStub) SendToolResult(callID, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.toolResults == nil {
		s.toolResults = map[string]string{}
	}
	s.toolResults[callID] = output
	return nil
}

func (s *realtimeSessionStub) CancelResponse() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	return nil
}

func (s *realtimeSessionStub) Say(instructions string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.said = append(s.said, instructions)
	return nil
}

func (s *realtimeSessionStub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *realtimeSessionStub) tool(t *testing.T, name string) llms.Tool {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tool := range s.tools {
		if tool.Function.Name == name {
			return tool
		}
	}
	t.Fatalf("expected tool %q to be configured, got %d tools", name, len(s.tools))
	return llms.Tool{}
}

func (s *realtimeSessionStub) saidLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

func (s *realtimeSessionStub) toolResult(callID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.toolResults[callID]
	return result, ok
}

func (s *realtimeSessionStub) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

func TestRealtimeModelReportsAnsweringMachine(t *testing.T) {
	leg := answeredHumanLeg()
	adapter := &fakeAdapter{
		dial: func(context.Context, string, ...media.DialOption) (media.Leg, error) {
			return leg, nil
		},
	}

	llmClient := &realtimeLLMStub{}
	session := NewCallSession("+15550001111")
	o, err := NewOrchestrator(session, adapter,
		WithRealtimeLLM(llmClient),
		WithVoicemailMessage("Sorry we missed you."),
		WithTimeouts(Timeouts{Drain: 20 * time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	waitFor(t, func() bool { return session.State() == StateActive && llmClient.connected() }, "the realtime session to connect")
	realtime := llmClient.session(t)
	realtime.tool(t, "detected_answering_machine")

	// Delivered over the session socket, the way the model reports it.
	realtime.callbacks.OnToolCall(llms.ToolCall{ID: "amd1", Name: "detected_answering_machine", Arguments: "{}"})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean run, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the session to end")
	}

	if got := session.EndReason(); got != EndReasonVoicemailLeftMessage {
		t.Fatalf("expected voicemail_left_message reason, got %s", got)
	}
	result, ok := realtime.toolResult("amd1")
	if !ok || result == "" {
		t.Fatalf("expected an acknowledgment on the session socket, got %q", result)
	}
	if strings.Contains(result, "failed") {
		t.Fatalf("expected the configured tool to handle the report, got %q", result)
	}

	var voicemailSaid bool
	for _, line := range realtime.saidLines() {
		if strings.Contains(line, "Sorry we missed you.") {
			voicemailSaid = true
		}
	}
	if !voicemailSaid {
		t.Fatalf("expected the prepared message in a say request, got %v", realtime.saidLines())
	}
}

func TestRealtimeHeadersSkipStraightToVoicemail(t *testing.T) {
	leg := newFakeLeg("callee")
	leg.signals <- media.SignalEvent{
		Kind:    media.SignalAnswered,
		Headers: map[string]string{"P-AMD-Result": "machine"},
	}
	adapter := &fakeAdapter{
		dial: func(context.Context, string, ...media.DialOption) (media.Leg, error) {
			return leg, nil
		},
	}

	llmClient := &realtimeLLMStub{}
	session := NewCallSession("+15550001111")
	o, err := NewOrchestrator(session, adapter,
		WithRealtimeLLM(llmClient),
		WithTimeouts(Timeouts{Drain: 20 * time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("expected a clean run, got %v", err)
	}
	if got := session.EndReason(); got != EndReasonVoicemailLeftMessage {
		t.Fatalf("expected voicemail_left_message reason, got %s", got)
	}

	said := llmClient.session(t).saidLines()
	if len(said) != 1 {
		t.Fatalf("expected only the voicemail say request, got %v", said)
	}
}

func TestRealtimeToolCallIsAnsweredOnTheSession(t *testing.T) {
	leg := answeredHumanLeg()
	adapter := &fakeAdapter{
		dial: func(context.Context, string, ...media.DialOption) (media.Leg, error) {
			return leg, nil
		},
	}

	llmClient := &realtimeLLMStub{}
	session := NewCallSession("+15550001111")
	o, err := NewOrchestrator(session, adapter, WithRealtimeLLM(llmClient))
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	waitFor(t, func() bool { return session.State() == StateActive && llmClient.connected() }, "the realtime session to connect")
	realtime := llmClient.session(t)

	realtime.callbacks.OnUserTranscript("please hang up")
	realtime.callbacks.OnToolCall(llms.ToolCall{ID: "t1", Name: functionEndCall, Arguments: "{}"})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean run, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the session to end")
	}

	if got := session.EndReason(); got != EndReasonCompleted {
		t.Fatalf("expected completed reason, got %s", got)
	}
	if result, ok := realtime.toolResult("t1"); !ok || result == "" {
		t.Fatalf("expected a tool result on the session socket, got %q", result)
	}

	snapshot := session.Snapshot()
	if len(snapshot.Turns) != 1 || snapshot.Turns[0].Text != "please hang up" {
		t.Fatalf("expected the caller transcript to be recorded, got %+v", snapshot.Turns)
	}
}

func TestRealtimeBargeInCancelsModelResponse(t *testing.T) {
	leg := answeredHumanLeg()
	adapter := &fakeAdapter{
		dial: func(context.Context, string, ...media.DialOption) (media.Leg, error) {
			return leg, nil
		},
	}

	llmClient := &realtimeLLMStub{}
	session := NewCallSession("+15550001111")
	o, err := NewOrchestrator(session, adapter, WithRealtimeLLM(llmClient))
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	waitFor(t, func() bool { return session.State() == StateActive && llmClient.connected() }, "the realtime session to connect")
	realtime := llmClient.session(t)

	realtime.callbacks.OnSpeechStarted()
	if got := realtime.cancelCount(); got != 1 {
		t.Fatalf("expected caller speech to cancel the in-flight response, got %d cancels", got)
	}

	o.EndCall()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean run, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the session to end")
	}
}

func TestRealtimeConnectRetriesOnce(t *testing.T) {
	leg := answeredHumanLeg()
	adapter := &fakeAdapter{
		dial: func(context.Context, string, ...media.DialOption) (media.Leg, error) {
			return leg, nil
		},
	}

	var attempts atomic.Int32
	llmClient := &realtimeLLMStub{connect: func() error {
		if attempts.Add(1) == 1 {
			return fmt.Errorf("socket refused")
		}
		return nil
	}}

	session := NewCallSession("+15550001111")
	o, err := NewOrchestrator(session, adapter, WithRealtimeLLM(llmClient))
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	waitFor(t, func() bool { return session.State() == StateActive && attempts.Load() == 2 && llmClient.connected() }, "the second connect attempt to succeed")
	o.EndCall()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean run, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the session to end")
	}
}
