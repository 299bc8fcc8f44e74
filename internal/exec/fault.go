package exec

import (
	"fmt"
	"strings"

	"kiln/internal/code"
)

// FaultCode identifies the type of execution fault.
type FaultCode int

// Stable fault codes - do not change values.
const (
	FaultBadAddress         FaultCode = 2001 // EX2001: call entry outside the code cache
	FaultUnknownTarget      FaultCode = 2002 // EX2002: call to an unregistered native target
	FaultBadContext         FaultCode = 2003 // EX2003: native call without the context register set
	FaultStackOverflow      FaultCode = 2004 // EX2004: frame limit exceeded
	FaultPCRange            FaultCode = 2005 // EX2005: pc left the blob
	FaultBadInstr           FaultCode = 2006 // EX2006: malformed instruction or operand
	FaultNoDispatcher       FaultCode = 2007 // EX2007: dispatch op with no dispatcher wired
	FaultNoPending          FaultCode = 2008 // EX2008: exception dispatch without a pending exception
	FaultNoDeoptHandler     FaultCode = 2009 // EX2009: deoptimized frame with no deopt entry installed
	FaultRunaway            FaultCode = 2010 // EX2010: step budget exhausted
	FaultHalt               FaultCode = 2011 // EX2011: halt instruction reached
	FaultDispatchFailed     FaultCode = 2012 // EX2012: dispatcher reported corrupt state
)

// String returns the code as "EX2001" format.
func (c FaultCode) String() string {
	return fmt.Sprintf("EX%d", int(c))
}

// BacktraceFrame is one frame in a fault backtrace.
type BacktraceFrame struct {
	Name string
	Addr code.Addr
}

// Fault is a fatal executor error: the machine state can no longer be
// trusted, so faults never unwind into guest exception handling.
type Fault struct {
	Code      FaultCode
	Addr      code.Addr
	Message   string
	Backtrace []BacktraceFrame
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("fault %s: %s at %s", f.Code, f.Message, f.Addr)
}

// Format renders the fault with its backtrace, top frame first.
func (f *Fault) Format() string {
	var sb strings.Builder
	sb.WriteString(f.Error())
	for _, bf := range f.Backtrace {
		sb.WriteString("\n  at ")
		sb.WriteString(bf.Name)
		sb.WriteString(" ")
		sb.WriteString(bf.Addr.String())
	}
	return sb.String()
}

func (ctx *Context) faultf(codeNum FaultCode, addr code.Addr, format string, args ...any) *Fault {
	f := &Fault{
		Code:    codeNum,
		Addr:    addr,
		Message: fmt.Sprintf(format, args...),
	}
	for i := len(ctx.frames) - 1; i >= 0; i-- {
		fr := &ctx.frames[i]
		bf := BacktraceFrame{Name: fr.Name, Addr: fr.Addr}
		if fr.Kind == FrameBlob && fr.Blob != nil {
			bf.Addr = fr.Blob.Base() + code.Addr(fr.PC)
		}
		f.Backtrace = append(f.Backtrace, bf)
	}
	return f
}
