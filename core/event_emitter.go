package orchestration

import (
	"log"
	"sync"

	"github.com/outdial/outdial-core/core/events"
)

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

// telemetrySink decouples event consumers from the call path. Events are
// queued and delivered on a single goroutine; a full queue drops the event
// rather than stall audio processing.
type telemetrySink struct {
	mu     sync.Mutex
	queue  chan events.Event
	closed bool

	drained chan struct{}
}

const telemetryQueueSize = 256

func newTelemetrySink(consume func(events.Event)) *telemetrySink {
	sink := &telemetrySink{
		queue:   make(chan events.Event, telemetryQueueSize),
		drained: make(chan struct{}),
	}

	go func() {
		defer close(sink.drained)
		for event := range sink.queue {
			consume(event)
		}
	}()

	return sink
}

// Emit queues an event for delivery. Stragglers arriving after Close are
// dropped; provider callbacks can outlive the session by a beat.
func (s *telemetrySink) Emit(event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- event:
	default:
		log.Printf("Telemetry queue full, dropping %s event", event.Kind())
	}
}

// Close flushes queued events and waits for the consumer to finish.
func (s *telemetrySink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.drained
}
