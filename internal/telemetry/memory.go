package telemetry

import (
	"context"
	"sync"
)

// MemorySink buffers events in memory. It serves two purposes: assertions
// in tests, and a local fallback when no sink URL is configured so the
// pipeline keeps working without the telemetry backend.
type MemorySink struct {
	mu          sync.Mutex
	annotations []AnnotationEvent
	evaluations []EvaluationEvent

	// FailWith, when set, is returned from every accept. Tests use it to
	// exercise degradation paths.
	FailWith error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Annotate buffers an annotation event.
func (s *MemorySink) Annotate(_ context.Context, ev AnnotationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.annotations = append(s.annotations, ev)
	return nil
}

// Evaluate buffers an evaluation event.
func (s *MemorySink) Evaluate(_ context.Context, ev EvaluationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.evaluations = append(s.evaluations, ev)
	return nil
}

// Annotations returns a copy of the buffered annotation events.
func (s *MemorySink) Annotations() []AnnotationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AnnotationEvent, len(s.annotations))
	copy(out, s.annotations)
	return out
}

// Evaluations returns a copy of the buffered evaluation events.
func (s *MemorySink) Evaluations() []EvaluationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EvaluationEvent, len(s.evaluations))
	copy(out, s.evaluations)
	return out
}

var _ Sink = (*MemorySink)(nil)
