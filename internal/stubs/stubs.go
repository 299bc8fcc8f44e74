// Package stubs owns the identity and generation of every runtime stub: the
// trampolines compiled code calls for slow paths, plus the two special
// blobs exceptional control flow lands in. One descriptor table defines the
// dense id space, the names, and the generation recipe; everything else is
// derived from it.
package stubs

import (
	"fmt"
	"sync"

	"kiln/internal/code"
	"kiln/internal/exec"
	"kiln/internal/sig"
	"kiln/internal/trace"
)

// ID names one stub in the dense id space [0, NumStubIDs).
type ID int

// NoID is the sentinel for "no stub", the value lookups return on a miss.
const NoID ID = -1

const (
	// The two special blobs come first. They are shared landing points, not
	// call targets with a marshalling body, and the rest of generation
	// depends on their addresses.
	UncommonTrapID ID = iota
	ExceptionID

	NewInstanceID
	NewArrayID
	NewArrayNoZeroID
	MultiNewArray2ID
	MultiNewArray3ID
	MultiNewArray4ID
	MultiNewArray5ID
	MultiNewArrayNID
	CompleteMonitorEnterID
	CompleteMonitorExitID
	MonitorNotifyID
	MonitorNotifyAllID
	RethrowID
	SlowArrayCopyID
	RegisterFinalizerID
	AThrowID
	NotifyVThreadID
	OSREndID
)

// NumStubIDs bounds the id space; ids are dense in [0, NumStubIDs).
const NumStubIDs = int(OSREndID) + 1

// Flags select the trampoline variants a descriptor can ask for.
type Flags struct {
	// ExceptionTransfer stubs never return normally: after the call they
	// hand control to the exception blob unconditionally.
	ExceptionTransfer bool
	// PassContext loads the execution-context register before the call.
	PassContext bool
	// SaveRetAddr materializes the caller's return address as the trailing
	// native argument. The signature's last domain slot describes it;
	// compiled code does not pass it.
	SaveRetAddr bool
}

// descriptor is one row of the stub table: the name that identifies the
// stub, the signature describing calls to it, the native target the
// trampoline calls, and the shape flags. Rows without a target are the
// special blobs, generated by dedicated emitters.
type descriptor struct {
	name   string
	kind   code.BlobKind
	sig    func(*sig.Catalog) *sig.Signature
	target string
	flags  Flags
}

func multiNewArraySig(ndim int) func(*sig.Catalog) *sig.Signature {
	return func(c *sig.Catalog) *sig.Signature { return c.MultiNewArray(ndim) }
}

var stubDefs = [NumStubIDs]descriptor{
	UncommonTrapID: {name: "uncommon_trap", kind: code.DeoptBlob, sig: (*sig.Catalog).UncommonTrap},
	ExceptionID:    {name: "exception", kind: code.ExceptionBlob},

	NewInstanceID: {name: "new_instance", kind: code.StubBlob,
		sig: (*sig.Catalog).NewInstance, target: "new_instance",
		flags: Flags{PassContext: true}},
	NewArrayID: {name: "new_array", kind: code.StubBlob,
		sig: (*sig.Catalog).NewArray, target: "new_array",
		flags: Flags{PassContext: true}},
	NewArrayNoZeroID: {name: "new_array_nozero", kind: code.StubBlob,
		sig: (*sig.Catalog).NewArrayNoZero, target: "new_array_nozero",
		flags: Flags{PassContext: true}},
	MultiNewArray2ID: {name: "multianewarray2", kind: code.StubBlob,
		sig: multiNewArraySig(2), target: "multianewarray2",
		flags: Flags{PassContext: true}},
	MultiNewArray3ID: {name: "multianewarray3", kind: code.StubBlob,
		sig: multiNewArraySig(3), target: "multianewarray3",
		flags: Flags{PassContext: true}},
	MultiNewArray4ID: {name: "multianewarray4", kind: code.StubBlob,
		sig: multiNewArraySig(4), target: "multianewarray4",
		flags: Flags{PassContext: true}},
	MultiNewArray5ID: {name: "multianewarray5", kind: code.StubBlob,
		sig: multiNewArraySig(5), target: "multianewarray5",
		flags: Flags{PassContext: true}},
	MultiNewArrayNID: {name: "multianewarrayN", kind: code.StubBlob,
		sig: (*sig.Catalog).MultiNewArrayN, target: "multianewarrayN",
		flags: Flags{PassContext: true}},
	CompleteMonitorEnterID: {name: "complete_monitor_enter", kind: code.StubBlob,
		sig: (*sig.Catalog).CompleteMonitorEnter, target: "complete_monitor_enter",
		flags: Flags{PassContext: true}},
	CompleteMonitorExitID: {name: "complete_monitor_exit", kind: code.StubBlob,
		sig: (*sig.Catalog).CompleteMonitorExit, target: "complete_monitor_exit",
		flags: Flags{PassContext: true}},
	MonitorNotifyID: {name: "monitor_notify", kind: code.StubBlob,
		sig: (*sig.Catalog).MonitorNotify, target: "monitor_notify",
		flags: Flags{PassContext: true}},
	MonitorNotifyAllID: {name: "monitor_notifyAll", kind: code.StubBlob,
		sig: (*sig.Catalog).MonitorNotifyAll, target: "monitor_notifyAll",
		flags: Flags{PassContext: true}},
	RethrowID: {name: "rethrow", kind: code.StubBlob,
		sig: (*sig.Catalog).Rethrow, target: "rethrow",
		flags: Flags{ExceptionTransfer: true, PassContext: true, SaveRetAddr: true}},
	SlowArrayCopyID: {name: "slow_arraycopy", kind: code.StubBlob,
		sig: (*sig.Catalog).SlowArrayCopy, target: "slow_arraycopy",
		flags: Flags{PassContext: true}},
	RegisterFinalizerID: {name: "register_finalizer", kind: code.StubBlob,
		sig: (*sig.Catalog).RegisterFinalizer, target: "register_finalizer",
		flags: Flags{PassContext: true}},
	AThrowID: {name: "athrow", kind: code.StubBlob,
		sig: (*sig.Catalog).Throw, target: "athrow",
		flags: Flags{ExceptionTransfer: true, PassContext: true}},
	NotifyVThreadID: {name: "notify_vthread", kind: code.StubBlob,
		sig: (*sig.Catalog).NotifyVThread, target: "notify_vthread",
		flags: Flags{PassContext: true}},
	OSREndID: {name: "osr_end", kind: code.StubBlob,
		sig: (*sig.Catalog).OSREnd, target: "osr_end",
		flags: Flags{PassContext: true}},
}

var nameToID = func() map[string]ID {
	m := make(map[string]ID, NumStubIDs)
	for id := ID(0); int(id) < NumStubIDs; id++ {
		name := stubDefs[id].name
		if name == "" {
			panic(fmt.Sprintf("stubs: id %d has no descriptor", id))
		}
		if dup, ok := m[name]; ok {
			panic(fmt.Sprintf("stubs: name %q used by ids %d and %d", name, dup, id))
		}
		m[name] = id
	}
	return m
}()

// Name returns the stub's name. Names come from the descriptor table and
// are valid before generation; unknown ids map to "".
func Name(id ID) string {
	if id <= NoID || int(id) >= NumStubIDs {
		return ""
	}
	return stubDefs[id].name
}

// Resolve maps a stub name back to its id, NoID when unknown.
func Resolve(name string) ID {
	if id, ok := nameToID[name]; ok {
		return id
	}
	return NoID
}

// Entry is one generated stub: its identity, the installed blob, and the
// signature describing calls to it. Sig is nil only for the exception
// blob, which is a landing point with no call contract.
type Entry struct {
	ID    ID
	Name  string
	Kind  code.BlobKind
	Entry code.Addr
	Sig   *sig.Signature
	Blob  *code.Blob
}

// InitError reports a stub that failed to generate. Generation is
// all-or-nothing: one failed stub leaves the id space unusable, and startup
// must abort rather than run with partial coverage.
type InitError struct {
	Stub string
	Err  error
}

func (e *InitError) Error() string { return fmt.Sprintf("stubs: generate %s: %v", e.Stub, e.Err) }

func (e *InitError) Unwrap() error { return e.Err }

// Env carries the collaborators generation installs into.
type Env struct {
	Cache   *code.Cache
	Catalog *sig.Catalog
	Targets *exec.TargetTable
	Tracer  trace.Tracer
}

// Registry maps stub ids to their generated entries. Generation runs once,
// single-threaded, before any lookup; afterwards the registry is immutable
// and lookups are read-locked only against a racing Generate call.
type Registry struct {
	mu        sync.RWMutex
	generated bool
	entries   [NumStubIDs]Entry
}

// NewRegistry returns an empty, ungenerated registry.
func NewRegistry() *Registry { return &Registry{} }

// Generated reports whether Generate has completed.
func (r *Registry) Generated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generated
}

// EntryOf returns the generated entry for id. It misses before generation
// and for out-of-range ids.
func (r *Registry) EntryOf(id ID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.generated || id <= NoID || int(id) >= NumStubIDs {
		return Entry{}, false
	}
	return r.entries[id], true
}

// FindByAddress maps any address inside a generated blob to its entry. This
// is the crash-reporting direction: a raw address observed in a frame walk
// comes back as a stub identity.
func (r *Registry) FindByAddress(addr code.Addr) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.generated {
		return Entry{}, false
	}
	for i := range r.entries {
		if b := r.entries[i].Blob; b != nil && b.Contains(addr) {
			return r.entries[i], true
		}
	}
	return Entry{}, false
}

// Entries returns all generated entries in id order, nil before generation.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.generated {
		return nil
	}
	out := make([]Entry, NumStubIDs)
	copy(out, r.entries[:])
	return out
}

// ExceptionBlob returns the shared exception landing blob. Callers that
// need it hold it by type, never by id.
func (r *Registry) ExceptionBlob() *code.Blob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[ExceptionID].Blob
}

// UncommonTrapBlob returns the shared deoptimization landing blob.
func (r *Registry) UncommonTrapBlob() *code.Blob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[UncommonTrapID].Blob
}
