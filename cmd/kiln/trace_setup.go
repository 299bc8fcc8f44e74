package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/config"
	"kiln/internal/trace"
)

// setupTracing merges trace settings from the config file with the trace
// flags (flags win), builds the tracer, and attaches it to the command
// context. It returns a cleanup function and an error if initialization
// fails.
func setupTracing(cmd *cobra.Command, cfg config.Config) (func(), error) {
	flags := cmd.Root().PersistentFlags()

	tcfg, err := cfg.TracerConfig()
	if err != nil {
		return nil, err
	}

	if flags.Changed("trace-level") {
		s, err := flags.GetString("trace-level")
		if err != nil {
			return nil, fmt.Errorf("failed to get trace-level flag: %w", err)
		}
		if tcfg.Level, err = trace.ParseLevel(s); err != nil {
			return nil, fmt.Errorf("invalid trace level: %w", err)
		}
	}
	if flags.Changed("trace-mode") {
		s, err := flags.GetString("trace-mode")
		if err != nil {
			return nil, fmt.Errorf("failed to get trace-mode flag: %w", err)
		}
		if tcfg.Mode, err = trace.ParseMode(s); err != nil {
			return nil, fmt.Errorf("invalid trace mode: %w", err)
		}
	}
	if flags.Changed("trace-format") {
		s, err := flags.GetString("trace-format")
		if err != nil {
			return nil, fmt.Errorf("failed to get trace-format flag: %w", err)
		}
		if tcfg.Format, err = trace.ParseFormat(s); err != nil {
			return nil, fmt.Errorf("invalid trace format: %w", err)
		}
	}
	if flags.Changed("trace-ring-size") {
		n, err := flags.GetInt("trace-ring-size")
		if err != nil {
			return nil, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
		}
		tcfg.RingSize = n
	}
	if flags.Changed("trace") {
		path, err := flags.GetString("trace")
		if err != nil {
			return nil, fmt.Errorf("failed to get trace flag: %w", err)
		}
		tcfg.OutputPath = path
		// Naming an output implies the trace should reach it.
		if !flags.Changed("trace-mode") && tcfg.Mode == trace.ModeRing {
			tcfg.Mode = trace.ModeStream
		}
		if tcfg.Level == trace.LevelOff {
			tcfg.Level = trace.LevelPhase
		}
	}

	// Tracing stays off unless the config or a flag turned it on.
	if tcfg.Level == trace.LevelOff {
		ctx := trace.WithTracer(cmd.Context(), trace.Nop)
		cmd.SetContext(ctx)
		return func() {}, nil
	}

	tracer, err := trace.New(tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)
	cmd.Root().SetContext(ctx)

	cleanup := func() {
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}

	return cleanup, nil
}
