// Package constants collects the tunables shared across the arena,
// ring, tracker, I/O manager and driver packages.
package constants

// Ring and arena sizing.
const (
	// DefaultRingEntries is the default power-of-two entry count for the
	// SQ/CQ/stdin/stdout/stdin-wait rings.
	DefaultRingEntries = 1024

	// DefaultArenaCapacity is the default node capacity of a fresh arena.
	DefaultArenaCapacity = 1 << 20

	// DefaultWorkerPoolSize is the default number of worker slots (and,
	// correspondingly, the default sliding-window width).
	DefaultWorkerPoolSize = 8

	// StdinByteRingSize is the byte capacity of the stdin/stdout rings.
	StdinByteRingSize = 64 * 1024
)

// BusyWaitThreshold is the number of cooperative-yield attempts a
// producer makes against a full ring before it also calls a
// zero-duration sleep on each attempt.
const BusyWaitThreshold = 512

// StdinWakeBatch is the default wake-credit limit charged per
// WakeStdinWaiters call when the completion loop drains the wait set
// opportunistically; write_stdin charges the number of bytes it
// actually wrote instead.
const StdinWakeBatch = 64

// Step-budget and resubmission defaults.
const (
	// DefaultMaxStepsForest is the per-expression step budget used by
	// gen-forest. Deliberately large: forest runs intend to reach
	// normal form rather than sample a few reductions.
	DefaultMaxStepsForest = 100_000

	// DefaultMaxStepsSVG is the per-expression step budget used by
	// gen-svg. Deliberately smaller than DefaultMaxStepsForest; callers
	// that need both to agree must pass --max-steps explicitly on both
	// commands.
	DefaultMaxStepsSVG = 2_000

	// DefaultMaxResubmits bounds how many times a single request may be
	// resubmitted (on YIELD_BUDGET) before the owning expression is
	// finalized as DIVERGED.
	DefaultMaxResubmits = 10
)

// Cycle detection and path bookkeeping defaults, overridable per
// driver through Params (see params.go).
const (
	// CycleWindowSize is the size of the sliding window of recently
	// seen term-structure fingerprints used to detect reduction cycles
	// per expression.
	CycleWindowSize = 10_000

	// PathLengthCeiling bounds the number of (from, to) steps recorded
	// per expression, regardless of how many reductions actually occur.
	PathLengthCeiling = 10_000
)
