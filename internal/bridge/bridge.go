// Package bridge assembles the runtime layer: one object owning every
// registry the stubs, helpers, and dispatch machinery share. The process
// constructs a single Runtime, runs Generate exactly once at startup, and
// passes the Runtime by reference to everything that needs a table. No
// package-level state exists; initialization order and teardown stay
// explicit and testable.
package bridge

import (
	"fmt"
	"runtime"
	"sync"

	"kiln/internal/code"
	"kiln/internal/counters"
	"kiln/internal/dispatch"
	"kiln/internal/exec"
	"kiln/internal/heap"
	"kiln/internal/helpers"
	"kiln/internal/meta"
	"kiln/internal/safepoint"
	"kiln/internal/sig"
	"kiln/internal/stubs"
	"kiln/internal/trace"
	"kiln/internal/types"
)

// Options bounds the runtime's resources. The zero value selects unbounded
// capacities and executor defaults.
type Options struct {
	// CacheInstrs caps the code cache in instructions. <= 0 is unbounded.
	CacheInstrs int
	// HeapSlots caps live heap slots. <= 0 is unbounded.
	HeapSlots int
	// MaxSteps bounds a single trampoline call. <= 0 selects the executor
	// default.
	MaxSteps int
	// MaxFrames bounds each context's frame stack. <= 0 selects the
	// context default.
	MaxFrames int
	// Prewarm is the worker count for signature prewarming during
	// Generate. <= 0 uses GOMAXPROCS.
	Prewarm int

	Tracer   trace.Tracer
	Uncaught dispatch.UncaughtFunc
}

// Runtime is the root object of the bridge layer. The registries are
// exported because consumers hold them by reference; all of them are
// append-only, so sharing is safe once Generate has completed.
type Runtime struct {
	Interner   *types.Interner
	Catalog    *sig.Catalog
	Classes    *heap.ClassTable
	Heap       *heap.Heap
	Safepoints *safepoint.Coordinator
	Counters   *counters.Registry
	Meta       *meta.Registry
	Cache      *code.Cache
	Targets    *exec.TargetTable
	Helpers    *helpers.Helpers
	Dispatcher *dispatch.Dispatcher
	Stubs      *stubs.Registry

	tr        trace.Tracer
	maxSteps  int
	maxFrames int
	prewarm   int

	genOnce sync.Once
	genErr  error
	// interp is written once inside genOnce and read only by callers that
	// observed Generate's result, so the Once provides the ordering.
	interp *exec.Interp
}

// New constructs the runtime with empty registries. Nothing is generated
// yet; compiled code must not run until Generate succeeds.
func New(opts Options) (*Runtime, error) {
	tr := opts.Tracer
	if tr == nil {
		tr = trace.Nop
	}
	prewarm := opts.Prewarm
	if prewarm <= 0 {
		prewarm = runtime.GOMAXPROCS(0)
	}

	interner := types.NewInterner()
	classes := heap.NewClassTable()
	h := heap.NewHeap(classes, opts.HeapSlots, tr)
	sp := safepoint.NewCoordinator()
	ctrs := counters.NewRegistry()

	hs, err := helpers.New(h, sp, ctrs, tr)
	if err != nil {
		return nil, fmt.Errorf("bridge: construct helpers: %w", err)
	}
	targets := exec.NewTargetTable()
	if err := hs.RegisterAll(targets); err != nil {
		return nil, fmt.Errorf("bridge: register helper targets: %w", err)
	}
	metaReg := meta.NewRegistry()

	return &Runtime{
		Interner:   interner,
		Catalog:    sig.NewCatalog(interner),
		Classes:    classes,
		Heap:       h,
		Safepoints: sp,
		Counters:   ctrs,
		Meta:       metaReg,
		Cache:      code.NewCache(opts.CacheInstrs),
		Targets:    targets,
		Helpers:    hs,
		Dispatcher: dispatch.New(metaReg, h, ctrs, dispatch.Options{Tracer: tr, Uncaught: opts.Uncaught}),
		Stubs:      stubs.NewRegistry(),
		tr:         tr,
		maxSteps:   opts.MaxSteps,
		maxFrames:  opts.MaxFrames,
		prewarm:    prewarm,
	}, nil
}

// Generate runs the startup phase: install every stub, prewarm the
// signature catalog, and wire the executor. It runs its body once; every
// later call returns the first outcome. A stubs.InitError from here means
// the runtime cannot execute compiled code and startup must abort.
func (rt *Runtime) Generate() error {
	rt.genOnce.Do(func() { rt.genErr = rt.generate() })
	return rt.genErr
}

func (rt *Runtime) generate() error {
	span := trace.StartSpan(rt.tr, trace.ScopeRuntime, "bridge:generate")
	defer span.End()

	env := stubs.Env{
		Cache:   rt.Cache,
		Catalog: rt.Catalog,
		Targets: rt.Targets,
		Tracer:  rt.tr,
	}
	if err := rt.Stubs.Generate(env); err != nil {
		return err
	}
	if err := rt.Catalog.Prewarm(rt.prewarm); err != nil {
		return fmt.Errorf("bridge: prewarm signature catalog: %w", err)
	}
	rt.interp = exec.NewInterp(rt.Cache, rt.Targets, exec.Options{
		Dispatcher: rt.Dispatcher,
		Safepoints: rt.Safepoints,
		Tracer:     rt.tr,
		MaxSteps:   rt.maxSteps,
		DeoptEntry: rt.Stubs.UncommonTrapBlob().Base(),
	})
	return nil
}

// Generated reports whether Generate has succeeded.
func (rt *Runtime) Generated() bool { return rt.Stubs.Generated() }

// Exec returns the trampoline executor, nil before Generate succeeds.
func (rt *Runtime) Exec() *exec.Interp { return rt.interp }

// NewContext creates an execution context under the runtime's frame limit.
func (rt *Runtime) NewContext() *exec.Context { return exec.NewContext(rt.maxFrames) }

// CallStub runs the generated stub by id on ctx. Arguments follow the
// compiled convention.
func (rt *Runtime) CallStub(ctx *exec.Context, id stubs.ID, args ...uint64) (exec.Result, error) {
	if rt.interp == nil {
		return exec.Result{}, fmt.Errorf("bridge: stub call before generation")
	}
	e, ok := rt.Stubs.EntryOf(id)
	if !ok {
		return exec.Result{}, fmt.Errorf("bridge: no stub with id %d", id)
	}
	return rt.interp.Call(ctx, e.Entry, args)
}
