// Package telemetry defines the observability sink the kernel emits
// lifecycle events to: admission and rejection of tool calls, hook
// decisions, and spooler task transitions.
package telemetry

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/agentkernel/logging"
)

// EventType names a kernel lifecycle event.
type EventType string

const (
	// EventDispatchAdmit is emitted when a call passes allow-list and budget checks.
	EventDispatchAdmit EventType = "dispatch.admit"
	// EventDispatchReject is emitted when a call is rejected before reservation.
	EventDispatchReject EventType = "dispatch.reject"
	// EventHookDecision is emitted for every hook handler decision.
	EventHookDecision EventType = "hook.decision"
	// EventTaskStart is emitted when the spooler starts a task.
	EventTaskStart EventType = "spool.task.start"
	// EventTaskSettle is emitted when a task reaches its terminal state.
	EventTaskSettle EventType = "spool.task.settle"
)

// Event is a single lifecycle record. Fields not relevant to the event type
// are left empty.
type Event struct {
	Type      EventType
	SessionID string
	CallID    string
	TaskID    string
	Phase     string
	Decision  string
	Status    string
	Reason    string
	Duration  time.Duration
	Time      time.Time
}

// Sink receives kernel events. Implementations must be safe for concurrent use
// and must not block for long; Emit is called on hot paths.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// NoOpSink drops every event.
type NoOpSink struct{}

// Emit does nothing.
func (NoOpSink) Emit(context.Context, Event) {}

// OrNoOp returns s, or NoOpSink when s is nil.
func OrNoOp(s Sink) Sink {
	if s == nil {
		return NoOpSink{}
	}
	return s
}

// Stamp fills a zero Time with the current time.
func Stamp(e Event) Event {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	return e
}

// LogSink writes every event as a structured debug log line.
type LogSink struct {
	Logger logging.Logger
}

// NewLogSink creates a LogSink; a nil logger discards output.
func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{Logger: logging.OrNoOp(logger)}
}

// Emit logs e.
func (s *LogSink) Emit(_ context.Context, e Event) {
	args := []any{"event", string(e.Type)}
	for _, kv := range [][2]string{
		{"session_id", e.SessionID},
		{"call_id", e.CallID},
		{"task_id", e.TaskID},
		{"phase", e.Phase},
		{"decision", e.Decision},
		{"status", e.Status},
		{"reason", e.Reason},
	} {
		if kv[1] != "" {
			args = append(args, kv[0], kv[1])
		}
	}
	if e.Duration > 0 {
		args = append(args, "duration", e.Duration)
	}
	s.Logger.Debug("kernel event", args...)
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Emit appends e.
func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Stamp(e))
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Multi fans events out to several sinks in order.
type Multi []Sink

// Emit forwards e to every non-nil sink.
func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}
