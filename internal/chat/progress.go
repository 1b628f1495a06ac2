package chat

import (
	"sync"
	"time"
)

// EventType tags one unit of incremental turn status.
type EventType string

const (
	EventStatus           EventType = "status"
	EventTestResult       EventType = "test_result"
	EventAnalysis         EventType = "analysis"
	EventCodeUpdate       EventType = "code_update"
	EventAnalysisComplete EventType = "analysis_complete"
	EventSuccess          EventType = "success"
	EventFinalFailure     EventType = "final_failure"
	EventFinalResponse    EventType = "final_response"
)

// Event is one ordered progress update within a turn. Events are append-only
// and never mutated after emission. Seq is strictly increasing within a turn;
// Step is a human-readable key naming the sub-step.
type Event struct {
	Type      EventType   `json:"type"`
	Seq       int         `json:"seq"`
	Step      string      `json:"step"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	Context   interface{} `json:"context,omitempty"`
}

// Publisher delivers progress events in emission order. Implementations must
// tolerate emission after the caller has gone away.
type Publisher interface {
	Emit(ev Event)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ev Event)

// Emit calls f(ev).
func (f PublisherFunc) Emit(ev Event) { f(ev) }

// BufferPublisher collects events for aggregated (non-streaming) delivery.
// Streaming and buffered turns see identical event content; only timing
// differs.
type BufferPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewBufferPublisher creates an empty event buffer.
func NewBufferPublisher() *BufferPublisher {
	return &BufferPublisher{}
}

// Emit appends the event to the buffer.
func (b *BufferPublisher) Emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

// Events returns the buffered events in emission order.
func (b *BufferPublisher) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// emitter stamps events with a monotonic sequence number before handing them
// to the publisher. One emitter lives for exactly one turn.
type emitter struct {
	pub Publisher
	seq int
}

func newEmitter(pub Publisher) *emitter {
	return &emitter{pub: pub}
}

func (e *emitter) emit(t EventType, step string, data interface{}) {
	e.emitCtx(t, step, data, nil)
}

func (e *emitter) emitCtx(t EventType, step string, data, context interface{}) {
	e.seq++
	e.pub.Emit(Event{
		Type:      t,
		Seq:       e.seq,
		Step:      step,
		Data:      data,
		Timestamp: time.Now(),
		Context:   context,
	})
}
