// Package tracker implements the request tracker: the promise/future
// bookkeeping between work units submitted to the worker pool and the
// driver that is waiting on their outcome.
//
// Each in-flight entry carries just enough state to know whether a
// completion or a waiter arrived first, with an explicit
// Pending/Stashed tri-state in place of sentinel nulls.
package tracker

import (
	"errors"
	"sync"

	"github.com/nrobinson/arenaski/internal/interfaces"
)

// ErrEvaluatorTerminated is returned by CreateRequest, and passed to
// the reject callback by MarkPending, once AbortAll has run: no
// further submissions are accepted.
var ErrEvaluatorTerminated = errors.New("tracker: evaluator terminated")

// ErrResubmissionLimitExceeded is returned by IncrementResubmit once a
// request's resubmit count exceeds its configured maximum.
var ErrResubmissionLimitExceeded = errors.New("tracker: resubmission limit exceeded")

// state is the tri-state an entry can be in before it is resolved and
// removed from the table.
type state int

const (
	stateUnregistered state = iota // reserved id/slot, no resolver and no result yet
	statePending                   // resolver registered, awaiting a result
	stateStashed                   // result arrived, awaiting a resolver
)

type entry struct {
	state state

	resolve func(uint32)
	reject  func(error)

	stashedValue uint32
	stashedErr   error

	resubmitCount int
	workerSlot    int
}

// Tracker assigns request ids and worker slots, and bridges worker
// completions to whichever caller ends up registering interest in
// them, in either order.
type Tracker struct {
	mu sync.Mutex

	nextID       uint64
	numWorkers   int
	nextSlot     int
	maxResubmits int
	aborted      bool

	entries  map[uint64]*entry
	observer interfaces.Observer
}

// New builds a Tracker that round-robins across numWorkers worker
// slots and allows at most maxResubmits resubmissions per request.
// observer may be nil, in which case hooks are no-ops.
func New(numWorkers, maxResubmits int, observer interfaces.Observer) *Tracker {
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}
	return &Tracker{
		numWorkers:   numWorkers,
		maxResubmits: maxResubmits,
		entries:      make(map[uint64]*entry),
		observer:     observer,
	}
}

// CreateRequest reserves the next strictly-increasing request id and
// assigns it the next worker slot in round-robin order.
func (t *Tracker) CreateRequest() (reqID uint64, workerSlot int, err error) {
	t.mu.Lock()
	if t.aborted {
		t.mu.Unlock()
		return 0, 0, ErrEvaluatorTerminated
	}
	t.nextID++
	reqID = t.nextID
	workerSlot = t.nextSlot
	t.nextSlot = (t.nextSlot + 1) % t.numWorkers
	t.entries[reqID] = &entry{workerSlot: workerSlot}
	t.mu.Unlock()

	t.observer.ObserveRequestCreated(reqID, workerSlot)
	return reqID, workerSlot, nil
}

// MarkPending registers resolve/reject for reqID. If a result already
// arrived (the entry is Stashed), the matching callback fires
// immediately and the entry is removed; otherwise the entry
// transitions to Pending and waits.
func (t *Tracker) MarkPending(reqID uint64, resolve func(uint32), reject func(error)) {
	t.mu.Lock()
	e, ok := t.entries[reqID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if t.aborted {
		delete(t.entries, reqID)
		t.mu.Unlock()
		reject(ErrEvaluatorTerminated)
		return
	}
	if e.state == stateStashed {
		value, err := e.stashedValue, e.stashedErr
		delete(t.entries, reqID)
		t.mu.Unlock()
		if err != nil {
			reject(err)
		} else {
			resolve(value)
		}
		return
	}
	e.state = statePending
	e.resolve = resolve
	e.reject = reject
	t.mu.Unlock()
}

// MarkCompleted resolves reqID successfully with value. If a resolver
// is already registered it fires immediately; otherwise the result is
// stashed until MarkPending arrives. Idempotent: a second completion
// for a request that already resolved or already stashed a result is
// dropped without overwriting the first.
func (t *Tracker) MarkCompleted(reqID uint64, value uint32) {
	t.mu.Lock()
	e, ok := t.entries[reqID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if e.state == statePending {
		resolve := e.resolve
		delete(t.entries, reqID)
		t.mu.Unlock()
		resolve(value)
	} else {
		if e.state == stateStashed {
			t.mu.Unlock()
			return
		}
		e.state = stateStashed
		e.stashedValue = value
		t.mu.Unlock()
	}
	t.observer.ObserveCompleted(reqID, value)
}

// MarkError resolves reqID with a failure. Same stash/resolve ordering
// and idempotency as MarkCompleted: whichever outcome lands first
// wins, later ones are dropped.
func (t *Tracker) MarkError(reqID uint64, err error) {
	t.mu.Lock()
	e, ok := t.entries[reqID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if e.state == statePending {
		reject := e.reject
		delete(t.entries, reqID)
		t.mu.Unlock()
		reject(err)
	} else {
		if e.state == stateStashed {
			t.mu.Unlock()
			return
		}
		e.state = stateStashed
		e.stashedErr = err
		t.mu.Unlock()
	}
	t.observer.ObserveError(reqID, err)
}

// IncrementResubmit bumps reqID's resubmit counter and returns
// ErrResubmissionLimitExceeded the moment it exceeds the configured
// maximum: the limit-th resubmission succeeds, the next one fails.
func (t *Tracker) IncrementResubmit(reqID uint64) error {
	t.mu.Lock()
	e, ok := t.entries[reqID]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	e.resubmitCount++
	count := e.resubmitCount
	t.mu.Unlock()

	if count > t.maxResubmits {
		return ErrResubmissionLimitExceeded
	}
	t.observer.ObserveResubmit(reqID, count)
	return nil
}

// RecordYield reports a worker suspension for reqID without resolving
// it (the request stays outstanding pending resubmission).
func (t *Tracker) RecordYield(reqID uint64, reason interfaces.YieldReason, stepCount uint32) {
	t.observer.ObserveYield(reqID, reason, stepCount)
}

// AbortAll marks the tracker terminated, rejecting every currently
// pending resolver exactly once with err and refusing all further
// CreateRequest/MarkPending calls.
func (t *Tracker) AbortAll(err error) {
	t.mu.Lock()
	t.aborted = true
	rejected := make(map[uint64]func(error), len(t.entries))
	for id, e := range t.entries {
		if e.state == statePending {
			rejected[id] = e.reject
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for id, reject := range rejected {
		reject(err)
		t.observer.ObserveError(id, err)
	}
}

// PendingCount reports how many requests are currently outstanding
// (Pending, Stashed, or merely reserved), for tests and diagnostics.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
