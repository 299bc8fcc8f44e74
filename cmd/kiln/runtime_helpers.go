package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/bridge"
	"kiln/internal/config"
	"kiln/internal/stubs"
	"kiln/internal/trace"
)

// loadConfig reads the config file named by the persistent --config flag.
// A missing file yields defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	return config.LoadIfPresent(path)
}

// newRuntime builds a bridge runtime from the loaded config and the tracer
// attached to the command context.
func newRuntime(cmd *cobra.Command, cfg config.Config, prewarm int) (*bridge.Runtime, error) {
	return bridge.New(bridge.Options{
		CacheInstrs: cfg.CodeCache.MaxInstrs,
		HeapSlots:   cfg.Heap.MaxSlots,
		MaxSteps:    cfg.Exec.MaxSteps,
		MaxFrames:   cfg.Exec.MaxFrames,
		Prewarm:     prewarm,
		Tracer:      trace.FromContext(cmd.Context()),
	})
}

// generatedRuntime builds the runtime and generates the stub table. A
// generation failure is fatal for the whole command; nothing runs on a
// partial table.
func generatedRuntime(cmd *cobra.Command, cfg config.Config) (*bridge.Runtime, error) {
	rt, err := newRuntime(cmd, cfg, 0)
	if err != nil {
		return nil, err
	}
	if err := rt.Generate(); err != nil {
		var ie *stubs.InitError
		if errors.As(err, &ie) {
			dumpTraceRing(cmd)
			return nil, fmt.Errorf("startup aborted, stub table unusable: %w", err)
		}
		return nil, err
	}
	return rt, nil
}

// dumpTraceRing writes the ring tracer's buffered events to stderr, if a
// ring is attached. Called on fatal startup errors so the last trace events
// survive the exit.
func dumpTraceRing(cmd *cobra.Command) {
	ring := trace.Ring(trace.FromContext(cmd.Context()))
	if ring == nil {
		return
	}
	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, "trace ring:")
	if err := ring.Dump(out, trace.FormatText); err != nil {
		fmt.Fprintf(out, "trace: ring dump error: %v\n", err)
	}
}
