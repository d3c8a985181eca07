package driver

import "github.com/nrobinson/arenaski"

// Expression is one pre-lowered forest entry ready for submission: a
// root node already allocated in the arena, tagged with its
// submission-order index so results can be streamed back in that same
// order regardless of completion order. Node ids are assigned
// deterministically by pre-lowering all expressions sequentially
// before any concurrent work starts.
type Expression struct {
	Index      int
	RootNodeID uint32
}

// Step is one recorded (from, to) rewrite in an expression's
// evaluation path. Because the underlying kernel rewrites a node's
// content in place rather than copying to a fresh id (internal/worker
// Kernel.Reduce), From and To are always the same arena id here; what
// changes between them is the content at that id, not its address.
// Emitted in this shape regardless, so a reader never needs to know
// which reduction strategy produced the path.
type Step struct {
	From uint32
	To   uint32
}

// Path is the finalized outcome of one expression's evaluation: the
// root it started from, the id it finished at, the steps taken to get
// there (subject to PathLengthCeiling truncation), and whether it
// reached a normal form or was cut short by divergence or error.
type Path struct {
	ExprIndex         int
	SourceNodeID      uint32
	ResultNodeID      uint32
	Status            arenaski.CompletionStatus
	Steps             []Step
	ReachedNormalForm bool
	StepsTaken        uint64
	Err               error
}
