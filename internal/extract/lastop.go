package extract

import (
	"sync/atomic"

	"github.com/krittin/tallyscan/internal/telemetry"
)

// lastOpSlot is a single-slot cache of the most recent operation's span
// context. Last writer wins; under concurrent extractions the winner is
// arbitrary. Documented best-effort fallback, not a guarantee.
type lastOpSlot struct {
	span atomic.Pointer[telemetry.SpanContext]
}

func (s *lastOpSlot) store(span telemetry.SpanContext) {
	copied := span
	s.span.Store(&copied)
}

func (s *lastOpSlot) load() (telemetry.SpanContext, bool) {
	p := s.span.Load()
	if p == nil {
		return telemetry.SpanContext{}, false
	}
	return *p, true
}
