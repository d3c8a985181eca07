package arenaski

import "github.com/nrobinson/arenaski/internal/constants"

// Re-exported for the public API, so callers configuring a driver
// never need to import the internal constants package directly.
const (
	DefaultRingEntries    = constants.DefaultRingEntries
	DefaultArenaCapacity  = constants.DefaultArenaCapacity
	DefaultWorkerPoolSize = constants.DefaultWorkerPoolSize
	StdinByteRingSize     = constants.StdinByteRingSize

	BusyWaitThreshold = constants.BusyWaitThreshold
	StdinWakeBatch    = constants.StdinWakeBatch

	DefaultMaxStepsForest = constants.DefaultMaxStepsForest
	DefaultMaxStepsSVG    = constants.DefaultMaxStepsSVG
	DefaultMaxResubmits   = constants.DefaultMaxResubmits

	CycleWindowSize   = constants.CycleWindowSize
	PathLengthCeiling = constants.PathLengthCeiling
)
