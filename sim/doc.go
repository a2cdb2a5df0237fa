// Package sim provides the core engine of the tile-swizzle simulator: how the
// launch order of GEMM output tiles affects reuse of input tiles in a shared
// LRU cache.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - schedule.go: maps program ids to output tiles (row-major or grouped swizzle)
//   - batch.go: splits the schedule into batches, one tile per simulated CTA
//   - access.go: the A/B loads a batch issues at one reduction index
//   - lru_cache.go: the shared LRU that classifies each load as hit or miss
//   - simulator.go: the pure Advance step and the Simulator that owns State
//
// # Architecture
//
// The sim package defines the model and its state machine; surrounding
// concerns live in sub-packages:
//   - sim/trace/: per-access trace recording and summaries
//   - sim/sweep/: YAML-driven parameter sweeps and mode comparisons
//   - sim/playback/: timed auto-advance of a Simulator
//   - sim/monitor/: HTTP API exposing snapshots and controls
//   - sim/record/: SQLite persistence of per-step counters
//
// # Key Interfaces
//
//   - Shuffler: permutes a micro-step's pooled requests (*rand.Rand satisfies it)
//   - Observer: receives access and step events from Advance
package sim
