package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder accepts audit events.
type Recorder interface {
	Record(ctx context.Context, event *Event)
}

// LogRecorder writes events to the structured log only.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a log-only recorder.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger.With("component", "audit")}
}

// Record logs the event.
func (r *LogRecorder) Record(ctx context.Context, event *Event) {
	r.logger.Info("audit event",
		"event_id", event.ID,
		"category", event.Category,
		"kind", event.Kind,
		"agent", event.Agent,
		"action", event.Action,
		"outcome", event.Outcome,
	)
}

// MemoryRecorder keeps events in memory. Intended for tests.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemoryRecorder creates an empty memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends the event.
func (r *MemoryRecorder) Record(ctx context.Context, event *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of all recorded events.
func (r *MemoryRecorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]*Event, len(r.events))
	copy(events, r.events)
	return events
}

// ByKind returns recorded events with the given kind.
func (r *MemoryRecorder) ByKind(kind string) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
