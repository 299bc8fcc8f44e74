// Package trace records what the runtime bridge does: stub generation
// phases, helper calls, exception and deopt dispatch. Events flow through a
// Tracer selected at startup; the zero-cost default is Nop, a ring buffer
// serves post-mortem inspection, and a stream tracer writes text or NDJSON
// for offline tooling.
//
// Verbosity is a single Level. Each event carries a Scope; the level decides
// which scopes pass. LevelPhase keeps only runtime lifecycle and per-stub
// generation events, LevelDetail adds per-call and dispatch events, and
// LevelDebug admits instruction-step events from the trampoline interpreter.
package trace
