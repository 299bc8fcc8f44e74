package trace

import "time"

// Span pairs a begin event with its end event. End is idempotent.
type Span struct {
	tr    Tracer
	scope Scope
	name  string
	id    uint64
	begin time.Time
	done  bool
}

// StartSpan emits a begin event and returns the span. With a disabled
// tracer it returns an inert span and emits nothing.
func StartSpan(tr Tracer, scope Scope, name string) *Span {
	s := &Span{tr: tr, scope: scope, name: name}
	if tr == nil || !tr.Enabled() {
		s.done = true
		return s
	}
	s.id = NextSpanID()
	s.begin = time.Now()
	tr.Emit(&Event{
		Time:   s.begin,
		Kind:   KindBegin,
		Scope:  scope,
		SpanID: s.id,
		Name:   name,
	})
	return s
}

// End emits the matching end event with the elapsed time in the detail.
func (s *Span) End() {
	if s.done {
		return
	}
	s.done = true
	now := time.Now()
	s.tr.Emit(&Event{
		Time:   now,
		Kind:   KindEnd,
		Scope:  s.scope,
		SpanID: s.id,
		Name:   s.name,
		Detail: now.Sub(s.begin).String(),
	})
}

// Point emits an instant event if the tracer passes the scope.
func Point(tr Tracer, scope Scope, name, detail string, addr uint64) {
	if tr == nil || !tr.Enabled() {
		return
	}
	tr.Emit(&Event{
		Time:   time.Now(),
		Kind:   KindPoint,
		Scope:  scope,
		Name:   name,
		Detail: detail,
		Addr:   addr,
	})
}
