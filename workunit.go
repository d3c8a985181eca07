package arenaski

// WorkUnit is the fixed tuple enqueued on the submission queue:
// (node_id, req_id, max_steps). MaxSteps == 0 is reserved: it marks
// the wakeup of a suspended node, which runs with its inherited step
// budget rather than a respecified one.
type WorkUnit struct {
	NodeID   uint32
	ReqID    uint64
	MaxSteps uint32
}

// CompletionStatus tags the outcome a worker publishes on the
// completion queue for a work unit.
type CompletionStatus uint32

const (
	// StatusDone means the worker reduced NodeID to a normal form;
	// ResultNodeID is that normal form's arena id.
	StatusDone CompletionStatus = iota

	// StatusYieldIO means the worker suspended awaiting a byte on
	// stdin; ResultNodeID is the node to resubmit, Aux carries the
	// steps taken in that call (no yield-reason tag is sent).
	StatusYieldIO

	// StatusYieldBudget means the worker exhausted its per-call step
	// budget before reaching a normal form; ResultNodeID is the node
	// to resubmit.
	StatusYieldBudget

	// StatusError means the worker detected a violated invariant
	// (malformed node, arena exhaustion mid-step); fatal.
	StatusError

	// StatusDiverged is not published by workers directly; the
	// driver assigns it to a path when a request's resubmit count or
	// cumulative step budget is exceeded.
	StatusDiverged
)

func (s CompletionStatus) String() string {
	switch s {
	case StatusDone:
		return "DONE"
	case StatusYieldIO:
		return "YIELD_IO"
	case StatusYieldBudget:
		return "YIELD_BUDGET"
	case StatusError:
		return "ERROR"
	case StatusDiverged:
		return "DIVERGED"
	default:
		return "UNKNOWN"
	}
}

// Completion is the fixed tuple dequeued from the completion queue,
// mirroring WorkUnit's (req_id, result_node_id) shape plus a status
// and an auxiliary status-specific payload.
type Completion struct {
	ReqID        uint64
	ResultNodeID uint32
	Status       CompletionStatus
	Aux          uint32
}

// Encode packs w into the 4-word wire representation used by the SQ
// ring: node_id, req_id_hi, req_id_lo, max_steps.
func (w WorkUnit) Encode() []uint32 {
	return []uint32{w.NodeID, uint32(w.ReqID >> 32), uint32(w.ReqID), w.MaxSteps}
}

// DecodeWorkUnit unpacks a 4-word SQ entry into a WorkUnit.
func DecodeWorkUnit(words []uint32) WorkUnit {
	return WorkUnit{
		NodeID:   words[0],
		ReqID:    uint64(words[1])<<32 | uint64(words[2]),
		MaxSteps: words[3],
	}
}

// Encode packs c into the 5-word wire representation used by the CQ
// ring: req_id_hi, req_id_lo, result_node_id, status, aux.
func (c Completion) Encode() []uint32 {
	return []uint32{uint32(c.ReqID >> 32), uint32(c.ReqID), c.ResultNodeID, uint32(c.Status), c.Aux}
}

// DecodeCompletion unpacks a 5-word CQ entry into a Completion.
func DecodeCompletion(words []uint32) Completion {
	return Completion{
		ReqID:        uint64(words[0])<<32 | uint64(words[1]),
		ResultNodeID: words[2],
		Status:       CompletionStatus(words[3]),
		Aux:          words[4],
	}
}
