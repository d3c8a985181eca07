// Package worker implements the reduction kernel: leftmost-outermost
// normal-order reduction of SKI/combinator terms held in the arena,
// plus the suspending read_one/write_one primitives.
//
// The kernel itself is step-budgeted and has no side effects outside
// the arena other than read_one/write_one's use of the IOPort it is
// given; the dispatch layer above it recovers panics and publishes
// them as ERROR completions rather than letting one bad term take
// down the whole driver.
package worker

import (
	"github.com/nrobinson/arenaski/internal/arena"
	"github.com/nrobinson/arenaski/internal/interfaces"
)

// Outcome is the local mirror of the completion-queue status codes,
// kept separate from the root package's CompletionStatus so this
// package never imports the root module (avoiding an import cycle with
// driver.go, which imports worker).
type Outcome uint32

const (
	OutcomeDone Outcome = iota
	OutcomeYieldIO
	OutcomeYieldBudget
	OutcomeError
)

// Result is what a single Reduce call produces.
type Result struct {
	ResultNodeID uint32
	Outcome      Outcome
	StepsTaken   uint32
	Err          error
}

// Kernel owns a view of the shared arena and performs bounded
// reduction steps against it. A Kernel has no mutable state of its own
// beyond the arena pointer; it is safe to share across worker
// goroutines the way the arena itself is (append-only, atomic
// fetch_add growth).
type Kernel struct {
	arena *arena.Arena
}

// NewKernel builds a Kernel operating over a.
func NewKernel(a *arena.Arena) *Kernel {
	return &Kernel{arena: a}
}

// outcomeStep is the result of attempting exactly one rewrite
// somewhere in the subtree rooted at id.
type outcomeStep int

const (
	stepNone outcomeStep = iota // subtree already in normal form
	stepDone                    // one rewrite happened, arena mutated in place
	stepYieldIO
)

// frame is one link in the application spine walked from the
// expression root down to its head.
type frame struct {
	appID uint32
	argID uint32
}

// Reduce runs up to maxSteps reduction steps against the term rooted
// at nodeID, returning as soon as it reaches a normal form, suspends
// on I/O, or exhausts its step budget. The arena's node at nodeID is
// updated in place as reduction proceeds (the id stays stable; its
// content is overwritten), so ResultNodeID always
// equals nodeID; it is carried in Result only for symmetry with the
// completion-queue wire shape.
func (k *Kernel) Reduce(nodeID uint32, maxSteps uint32, io interfaces.IOPort) Result {
	var steps uint32
	for steps < maxSteps {
		outcome, err := k.stepOnce(nodeID, io)
		if err != nil {
			return Result{ResultNodeID: nodeID, Outcome: OutcomeError, StepsTaken: steps, Err: err}
		}
		switch outcome {
		case stepNone:
			return Result{ResultNodeID: nodeID, Outcome: OutcomeDone, StepsTaken: steps}
		case stepYieldIO:
			return Result{ResultNodeID: nodeID, Outcome: OutcomeYieldIO, StepsTaken: steps}
		case stepDone:
			steps++
		}
	}
	return Result{ResultNodeID: nodeID, Outcome: OutcomeYieldBudget, StepsTaken: steps}
}

// stepOnce performs exactly one leftmost-outermost rewrite in the
// subtree rooted at id, or reports that none is available (id is
// already a normal form) or that the leftmost redex is blocked on I/O.
func (k *Kernel) stepOnce(id uint32, io interfaces.IOPort) (outcomeStep, error) {
	frames, head, err := k.unwindSpine(id)
	if err != nil {
		return stepNone, err
	}
	nargs := len(frames)

	headNode, ok := k.arena.Get(head)
	if !ok {
		return stepNone, arena.ErrExhausted{Capacity: k.arena.Capacity()}
	}

	arg := func(i int) uint32 { return frames[nargs-1-i].argID }
	appAfter := func(n int) uint32 { return frames[nargs-n].appID }

	switch headNode.Kind {
	case arena.KindI:
		if nargs >= 1 {
			return k.replaceWith(appAfter(1), arg(0))
		}
	case arena.KindK:
		if nargs >= 2 {
			return k.replaceWith(appAfter(2), arg(0))
		}
	case arena.KindS:
		if nargs >= 3 {
			f, g, x := arg(0), arg(1), arg(2)
			fx, err := k.arena.AllocApplication(f, x)
			if err != nil {
				return stepNone, err
			}
			gx, err := k.arena.AllocApplication(g, x)
			if err != nil {
				return stepNone, err
			}
			if !k.arena.Rewrite(appAfter(3), arena.Node{Kind: arena.KindApp, Left: fx, Right: gx}) {
				return stepNone, arena.ErrExhausted{Capacity: k.arena.Capacity()}
			}
			return stepDone, nil
		}
	case arena.KindReadOne:
		if nargs >= 1 {
			b, available := io.TryReadByte()
			if !available {
				return stepYieldIO, nil
			}
			litID, err := k.arena.AllocTerminal(arena.KindLitChar, uint32(b), 0, 0)
			if err != nil {
				return stepNone, err
			}
			continuation := arg(0)
			appID, err := k.arena.AllocApplication(continuation, litID)
			if err != nil {
				return stepNone, err
			}
			return k.replaceWith(appAfter(1), appID)
		}
	case arena.KindWriteOne:
		if nargs >= 2 {
			byteNode, ok := k.arena.Get(arg(0))
			if ok && byteNode.Kind == arena.KindLitChar {
				if !io.TryWriteByte(byte(byteNode.Aux)) {
					return stepYieldIO, nil
				}
				return k.replaceWith(appAfter(2), arg(1))
			}
			// The byte argument isn't a literal yet (e.g. still a
			// pending readOne application): fall through and reduce
			// it first instead of getting stuck.
		}

	case arena.KindMatch:
		required := 1 + int(headNode.Aux)
		if nargs >= required {
			scrutineeID := arg(0)
			ctorFrames, ctorHeadID, err := k.unwindSpine(scrutineeID)
			if err != nil {
				return stepNone, err
			}
			ctorHead, ok := k.arena.Get(ctorHeadID)
			if ok && ctorHead.Kind == arena.KindConstructor {
				return k.applyMatch(ctorHead, ctorFrames, headNode.Aux, arg, appAfter(required))
			}
			// Scrutinee isn't a constructor in whnf yet: fall through
			// to the generic search below, which reduces arg(0) first
			// since it is leftmost.
		}
	}

	// Head is stuck (a constructor, a literal, an under-applied
	// combinator, or an IO primitive short of its minimum arity):
	// search the arguments left to right for the leftmost inner redex.
	for i := 0; i < nargs; i++ {
		outcome, err := k.stepOnce(arg(i), io)
		if err != nil {
			return stepNone, err
		}
		if outcome != stepNone {
			return outcome, nil
		}
	}
	return stepNone, nil
}

// applyMatch implements the selection step once a match's scrutinee
// has been unwound down to a constructor head in whnf: pick the
// branch at the scrutinee's tag, apply it to the scrutinee's fields
// left to right, and rewrite redexID (the whole match application) to
// the result. arg(1+tag) is the chosen branch; arg is the match's own
// argument accessor, reused here for branch lookup only. ctorFrames is
// the scrutinee's own application spine, outermost first (from
// unwindSpine), giving access to its fields.
func (k *Kernel) applyMatch(ctorHead arena.Node, ctorFrames []frame, nbranches uint32, arg func(int) uint32, redexID uint32) (outcomeStep, error) {
	tag := ctorHead.Aux
	if tag >= nbranches {
		return stepNone, arena.ErrMatchFailure{Tag: tag, Branches: nbranches}
	}
	fieldCount := int(ctorHead.Left)
	if len(ctorFrames) < fieldCount {
		return stepNone, arena.ErrMatchFailure{Tag: tag, Branches: nbranches}
	}
	field := func(i int) uint32 { return ctorFrames[len(ctorFrames)-1-i].argID }

	result := arg(1 + int(tag))
	for i := 0; i < fieldCount; i++ {
		appID, err := k.arena.AllocApplication(result, field(i))
		if err != nil {
			return stepNone, err
		}
		result = appID
	}
	return k.replaceWith(redexID, result)
}

// replaceWith overwrites target's content with a copy of source's,
// keeping target's id stable while it now represents whatever source
// represented.
func (k *Kernel) replaceWith(target, source uint32) (outcomeStep, error) {
	node, ok := k.arena.Get(source)
	if !ok {
		return stepNone, arena.ErrExhausted{Capacity: k.arena.Capacity()}
	}
	if !k.arena.Rewrite(target, node) {
		return stepNone, arena.ErrExhausted{Capacity: k.arena.Capacity()}
	}
	return stepDone, nil
}

// unwindSpine walks Left pointers from id down to the first
// non-application node (the head), collecting one frame per
// application layer. frames[0] is outermost (closest to id),
// frames[len-1] is innermost (directly applies to the head).
func (k *Kernel) unwindSpine(id uint32) ([]frame, uint32, error) {
	var frames []frame
	cur := id
	for {
		node, ok := k.arena.Get(cur)
		if !ok {
			return nil, 0, arena.ErrExhausted{Capacity: k.arena.Capacity()}
		}
		if !node.IsApplication() {
			return frames, cur, nil
		}
		frames = append(frames, frame{appID: cur, argID: node.Right})
		cur = node.Left
	}
}
