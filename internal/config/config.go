// Package config loads the runtime configuration from kiln.toml: resource
// budgets for the code cache, heap, and executor, plus tracing and counter
// snapshot settings.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"kiln/internal/trace"
)

// CodeCache bounds the installed instruction budget.
type CodeCache struct {
	// MaxInstrs caps the code cache, in instructions. 0 is unbounded.
	MaxInstrs int `toml:"max_instrs"`
}

// Heap bounds the managed heap.
type Heap struct {
	// MaxSlots caps live object slots. 0 is unbounded.
	MaxSlots int `toml:"max_slots"`
}

// Exec bounds each trampoline call and context.
type Exec struct {
	// MaxSteps caps one trampoline call. 0 selects the executor default.
	MaxSteps int `toml:"max_steps"`
	// MaxFrames caps a context's frame stack. 0 selects the default.
	MaxFrames int `toml:"max_frames"`
}

// Trace configures the runtime tracer.
type Trace struct {
	Level    string `toml:"level"`     // off|error|phase|detail|debug
	Mode     string `toml:"mode"`      // stream|ring|both
	Format   string `toml:"format"`    // auto|text|ndjson
	Output   string `toml:"output"`    // file path, "-" for stderr
	RingSize int    `toml:"ring_size"` // ring capacity in events
}

// Counters configures counter reporting.
type Counters struct {
	// SnapshotPath is where `kiln generate` writes the diagnostic snapshot.
	// Empty disables the write.
	SnapshotPath string `toml:"snapshot_path"`
}

// Config is the full kiln.toml document.
type Config struct {
	CodeCache CodeCache `toml:"codecache"`
	Heap      Heap      `toml:"heap"`
	Exec      Exec      `toml:"exec"`
	Trace     Trace     `toml:"trace"`
	Counters  Counters  `toml:"counters"`
}

// Default returns the configuration used when no kiln.toml exists: unbounded
// budgets and tracing off.
func Default() Config {
	return Config{
		Trace: Trace{
			Level:    "off",
			Mode:     "ring",
			Format:   "auto",
			Output:   "-",
			RingSize: 4096,
		},
	}
}

// Load parses the file at path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	// Stream modes must name their destination; the "-" default is only a
	// placeholder for the ring-only mode.
	if meta.IsDefined("trace", "mode") && cfg.Trace.Mode != "ring" {
		if !meta.IsDefined("trace", "output") {
			return Config{}, fmt.Errorf("%s: trace.output required for trace.mode %q", path, cfg.Trace.Mode)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadIfPresent behaves like Load but returns the defaults when nothing
// exists at path.
func LoadIfPresent(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects budgets and trace settings that no component accepts.
func (c *Config) Validate() error {
	if c.CodeCache.MaxInstrs < 0 {
		return fmt.Errorf("config: codecache.max_instrs is negative: %d", c.CodeCache.MaxInstrs)
	}
	if c.Heap.MaxSlots < 0 {
		return fmt.Errorf("config: heap.max_slots is negative: %d", c.Heap.MaxSlots)
	}
	if c.Exec.MaxSteps < 0 {
		return fmt.Errorf("config: exec.max_steps is negative: %d", c.Exec.MaxSteps)
	}
	if c.Exec.MaxFrames < 0 {
		return fmt.Errorf("config: exec.max_frames is negative: %d", c.Exec.MaxFrames)
	}
	if c.Trace.RingSize < 0 {
		return fmt.Errorf("config: trace.ring_size is negative: %d", c.Trace.RingSize)
	}
	if _, err := trace.ParseLevel(c.Trace.Level); err != nil {
		return fmt.Errorf("config: trace.level: %w", err)
	}
	if _, err := trace.ParseMode(c.Trace.Mode); err != nil {
		return fmt.Errorf("config: trace.mode: %w", err)
	}
	if _, err := trace.ParseFormat(c.Trace.Format); err != nil {
		return fmt.Errorf("config: trace.format: %w", err)
	}
	return nil
}

// TracerConfig converts the trace section into the tracer constructor's
// form. Validate must have passed.
func (c *Config) TracerConfig() (trace.Config, error) {
	level, err := trace.ParseLevel(c.Trace.Level)
	if err != nil {
		return trace.Config{}, err
	}
	mode, err := trace.ParseMode(c.Trace.Mode)
	if err != nil {
		return trace.Config{}, err
	}
	format, err := trace.ParseFormat(c.Trace.Format)
	if err != nil {
		return trace.Config{}, err
	}
	return trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: c.Trace.Output,
		RingSize:   c.Trace.RingSize,
	}, nil
}
