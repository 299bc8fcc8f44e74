// Package meta records what the compiler knew about each installed code
// range: exception handler intervals and call-site deopt anchors. Dispatch
// consults it to route exceptions and to rebuild interpreter state when a
// compiled frame is abandoned.
package meta

import (
	"errors"
	"fmt"
)

// CatchAll matches every exception class in a handler entry.
const CatchAll uint32 = 0

// HandlerEntry covers the half-open offset interval [Start, End) of a code
// range: an exception raised at a covered offset whose class matches
// CatchType transfers to Handler. Entries are consulted in order; the first
// match wins.
type HandlerEntry struct {
	Start     uint32
	End       uint32
	Handler   uint32
	CatchType uint32
}

// CallSite anchors one call instruction inside a code range. RetOff is the
// offset of the instruction after the call, the value frame walkers observe
// as a return address. BCI is the source position deoptimization resumes at;
// Reexecute asks the interpreter to rerun that position instead of
// continuing after it.
type CallSite struct {
	RetOff    uint32
	BCI       int32
	Reexecute bool
}

// MethodMeta is the compile-time record for one installed code range.
type MethodMeta struct {
	Name      string
	Size      uint32
	Handlers  []HandlerEntry
	CallSites []CallSite
}

// ErrCorruptMetadata reports tables that contradict the code range they
// describe. Dispatch treats it as fatal: a wrong handler address is worse
// than a crash.
var ErrCorruptMetadata = errors.New("meta: corrupt metadata")

// Validate checks internal consistency against the declared size.
func (m *MethodMeta) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: unnamed method", ErrCorruptMetadata)
	}
	if m.Size == 0 {
		return fmt.Errorf("%w: %s: zero-size code range", ErrCorruptMetadata, m.Name)
	}
	for i, h := range m.Handlers {
		if h.Start >= h.End {
			return fmt.Errorf("%w: %s: handler %d interval [%d,%d) empty", ErrCorruptMetadata, m.Name, i, h.Start, h.End)
		}
		if h.End > m.Size {
			return fmt.Errorf("%w: %s: handler %d interval end %d past size %d", ErrCorruptMetadata, m.Name, i, h.End, m.Size)
		}
		if h.Handler >= m.Size {
			return fmt.Errorf("%w: %s: handler %d target %d past size %d", ErrCorruptMetadata, m.Name, i, h.Handler, m.Size)
		}
	}
	for i, cs := range m.CallSites {
		if cs.RetOff == 0 || cs.RetOff > m.Size {
			return fmt.Errorf("%w: %s: call site %d return offset %d outside (0,%d]", ErrCorruptMetadata, m.Name, i, cs.RetOff, m.Size)
		}
	}
	return nil
}

// callSiteAt returns the call site whose return offset is off.
func (m *MethodMeta) callSiteAt(off uint32) (CallSite, bool) {
	for _, cs := range m.CallSites {
		if cs.RetOff == off {
			return cs, true
		}
	}
	return CallSite{}, false
}
