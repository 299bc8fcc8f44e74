package trace

import (
	"sync/atomic"
	"time"
)

// Kind represents the type of trace event.
type Kind uint8

const (
	// KindBegin marks the start of a logical operation.
	KindBegin Kind = iota + 1
	// KindEnd marks the end of a logical operation.
	KindEnd
	// KindPoint represents an instant event.
	KindPoint
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindBegin:
		return "begin"
	case KindEnd:
		return "end"
	case KindPoint:
		return "point"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity of the event. Lower values are coarser.
type Scope uint8

const (
	// ScopeRuntime covers bridge lifecycle: init, generate, shutdown.
	ScopeRuntime Scope = iota + 1
	// ScopeStub covers one stub's generation and installation.
	ScopeStub
	// ScopeCall covers one helper call or one dispatch decision.
	ScopeCall
	// ScopeStep covers single interpreted trampoline instructions.
	ScopeStep
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeRuntime:
		return "runtime"
	case ScopeStub:
		return "stub"
	case ScopeCall:
		return "call"
	case ScopeStep:
		return "step"
	default:
		return "unknown"
	}
}

// Event is a single trace record.
type Event struct {
	Time   time.Time // wall-clock timestamp
	Seq    uint64    // global sequence number, assigned at emit
	Kind   Kind      // event kind
	Scope  Scope     // granularity
	SpanID uint64    // pairs begin/end events, 0 for points
	Name   string    // e.g. "generate", "stub:new_instance", "dispatch"
	Detail string    // optional free-form detail
	Addr   uint64    // code address the event concerns, 0 if none
}

var globalSeq atomic.Uint64

// NextSeq returns the next global event sequence number.
func NextSeq() uint64 { return globalSeq.Add(1) }

var globalSpan atomic.Uint64

// NextSpanID returns a fresh span identifier.
func NextSpanID() uint64 { return globalSpan.Add(1) }
