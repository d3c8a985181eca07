// Package driver implements the parallel arena driver: a sliding
// concurrency window over submitted expressions, a worker
// pool draining the shared submission queue and publishing onto the
// completion queue, per-expression step/resubmit-limit policy, cycle
// detection over a bounded history window, and deterministic result
// streaming in submission order regardless of completion order.
//
// Reduction work is dispatched across a fixed pool of goroutines
// routed through a gopool.GoPool; a panic inside the kernel is
// recovered and published as an ERROR completion instead of crashing
// the process.
package driver

import (
	"github.com/nrobinson/arenaski"
	"github.com/nrobinson/arenaski/internal/constants"
	"github.com/nrobinson/arenaski/internal/interfaces"
	"github.com/nrobinson/arenaski/internal/logging"
)

// Params configures a Driver. Every field has a default filled in by
// New if left zero.
type Params struct {
	// WorkerPoolSize is the number of goroutines draining the shared
	// submission queue.
	WorkerPoolSize int

	// WindowSize is the sliding concurrency window width: at most
	// this many expressions are in flight at once. Defaults
	// to WorkerPoolSize.
	WindowSize int

	// MaxStepsPerExpr bounds the total reduction steps a single
	// expression may take across all its resubmissions before it is
	// finalized as diverged (StepBudgetExhausted).
	MaxStepsPerExpr int

	// MaxResubmits bounds how many times a single request may be
	// resubmitted before ResubmissionLimitExceeded finalizes its
	// expression as diverged.
	MaxResubmits int

	// CycleWindowSize is the size of the sliding history window used
	// for per-expression cycle detection.
	CycleWindowSize int

	// PathLengthCeiling bounds how many (from, to) steps are recorded
	// per expression regardless of how many reductions actually occur.
	PathLengthCeiling int

	// WakeBatch is the wake-credit limit the completion loop charges
	// per opportunistic WakeStdinWaiters call. Unspent credits carry
	// over between calls inside the I/O manager.
	WakeBatch int

	// RingEntries, ArenaCapacity and StdinRingSize size the
	// SharedRegion backing this driver's arena and rings.
	RingEntries   uint32
	ArenaCapacity uint32
	StdinRingSize uint32

	// Logger and Observer default to logging.Default() and a
	// Metrics-backed observer if left nil.
	Logger   *logging.Logger
	Observer interfaces.Observer
	Metrics  *arenaski.Metrics
}

// DefaultParams returns a Params populated with this package's
// defaults.
func DefaultParams() Params {
	return Params{
		WorkerPoolSize:    constants.DefaultWorkerPoolSize,
		WindowSize:        constants.DefaultWorkerPoolSize,
		MaxStepsPerExpr:   constants.DefaultMaxStepsForest,
		MaxResubmits:      constants.DefaultMaxResubmits,
		CycleWindowSize:   constants.CycleWindowSize,
		PathLengthCeiling: constants.PathLengthCeiling,
		WakeBatch:         constants.StdinWakeBatch,
		RingEntries:       constants.DefaultRingEntries,
		ArenaCapacity:     constants.DefaultArenaCapacity,
		StdinRingSize:     constants.StdinByteRingSize,
	}
}

func (p *Params) fillDefaults() {
	d := DefaultParams()
	if p.WorkerPoolSize <= 0 {
		p.WorkerPoolSize = d.WorkerPoolSize
	}
	if p.WindowSize <= 0 {
		p.WindowSize = p.WorkerPoolSize
	}
	if p.MaxStepsPerExpr <= 0 {
		p.MaxStepsPerExpr = d.MaxStepsPerExpr
	}
	if p.MaxResubmits <= 0 {
		p.MaxResubmits = d.MaxResubmits
	}
	if p.CycleWindowSize <= 0 {
		p.CycleWindowSize = d.CycleWindowSize
	}
	if p.PathLengthCeiling <= 0 {
		p.PathLengthCeiling = d.PathLengthCeiling
	}
	if p.WakeBatch <= 0 {
		p.WakeBatch = d.WakeBatch
	}
	if p.RingEntries == 0 {
		p.RingEntries = d.RingEntries
	}
	if p.ArenaCapacity == 0 {
		p.ArenaCapacity = d.ArenaCapacity
	}
	if p.StdinRingSize == 0 {
		p.StdinRingSize = d.StdinRingSize
	}
	if p.Logger == nil {
		p.Logger = logging.Default()
	}
}
