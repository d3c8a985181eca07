package driver

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nrobinson/arenaski"
	"github.com/nrobinson/arenaski/internal/interfaces"
)

// completionLoop is the single background goroutine that drains CQ and
// drives every request's resubmission/finalization policy. It never
// touches the worker pool's SQ side except to resubmit, and it is the
// only writer of reqState after submission, so no additional locking
// is needed around a request's bookkeeping once Stream hands it off.
func (d *Driver) completionLoop() {
	defer d.wg.Done()
	attempts := 0
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		words, ok := d.popCQ()
		if !ok {
			woke := d.io.WakeStdinWaiters(uint32(d.params.WakeBatch))
			for _, reqID := range woke {
				d.resubmitWake(reqID)
			}
			if len(woke) == 0 {
				attempts++
				backoff(attempts)
			} else {
				attempts = 0
			}
			continue
		}
		attempts = 0
		d.handleCompletion(arenaski.DecodeCompletion(words))
	}
}

// resubmit re-enqueues a budget-yielded request with the driver's
// per-call step budget.
func (d *Driver) resubmit(reqID uint64) {
	d.submitWorkUnit(reqID, stepsPerCall)
}

// resubmitWake re-enqueues a request woken from an I/O suspension. The
// wire value 0 means "wake; budget inherited"; the worker side maps it
// back to the per-call budget at dispatch (see runWorkUnit).
func (d *Driver) resubmitWake(reqID uint64) {
	d.submitWorkUnit(reqID, 0)
}

func (d *Driver) submitWorkUnit(reqID uint64, maxSteps uint32) {
	st := d.reqs.get(reqID)
	if st == nil {
		return
	}
	wu := arenaski.WorkUnit{NodeID: st.nodeID, ReqID: reqID, MaxSteps: maxSteps}
	if err := d.pushSQ(wu.Encode()); err != nil {
		// Driver terminating: let AbortAll's reject handle the request.
		return
	}
}

func (d *Driver) handleCompletion(c arenaski.Completion) {
	st := d.reqs.get(c.ReqID)
	if st == nil {
		return
	}

	switch c.Status {
	case arenaski.StatusDone:
		d.tracker.MarkCompleted(c.ReqID, c.ResultNodeID)

	case arenaski.StatusYieldIO:
		d.tracker.RecordYield(c.ReqID, interfaces.YieldIO, c.Aux)
		if d.io.SubmitSuspension(c.ReqID) {
			d.resubmitWake(c.ReqID)
		}
		// else: parked until completionLoop's WakeStdinWaiters drain
		// finds a byte for it.

	case arenaski.StatusYieldBudget:
		d.tracker.RecordYield(c.ReqID, interfaces.YieldBudget, c.Aux)
		d.handleYieldBudget(st, c)

	case arenaski.StatusError:
		err := d.takeWorkerError(c.ReqID)
		if err == nil {
			err = arenaski.NewRequestError("driver.completion", c.ReqID, arenaski.CodeWorkerInvariantViolation, "worker published ERROR")
		} else if _, ok := err.(*arenaski.Error); !ok {
			err = &arenaski.Error{Op: "kernel.reduce", ReqID: c.ReqID, ExprIndex: -1,
				Code: arenaski.CodeWorkerInvariantViolation, Msg: err.Error(), Inner: err}
		}
		d.tracker.MarkError(c.ReqID, err)
		d.abort(err)
	}
}

// handleYieldBudget applies the YIELD_BUDGET policy: record the step,
// bump the cumulative counter, and either resubmit or finalize as
// diverged by step-budget exhaustion, cycle detection, or
// resubmit-limit exceeded, whichever trips first.
func (d *Driver) handleYieldBudget(st *reqState, c arenaski.Completion) {
	if len(st.path) < d.params.PathLengthCeiling {
		st.path = append(st.path, Step{From: st.nodeID, To: c.ResultNodeID})
	}
	st.nodeID = c.ResultNodeID
	st.stepsSoFar += uint64(c.Aux)

	if d.observeCycle(st) {
		err := arenaski.NewRequestError("driver.cycle_detect", c.ReqID, arenaski.CodeStepBudgetExhausted,
			"revisited a previously-seen term within the cycle window")
		d.tracker.MarkError(c.ReqID, err)
		return
	}

	if st.stepsSoFar >= uint64(d.params.MaxStepsPerExpr) {
		err := arenaski.NewRequestError("driver.step_budget", c.ReqID, arenaski.CodeStepBudgetExhausted,
			"per-expression step budget exhausted")
		d.tracker.MarkError(c.ReqID, err)
		return
	}

	if err := d.tracker.IncrementResubmit(c.ReqID); err != nil {
		d.tracker.MarkError(c.ReqID, &arenaski.Error{Op: "driver.resubmit", ReqID: c.ReqID, ExprIndex: -1,
			Code: arenaski.CodeResubmissionLimitExceeded, Msg: err.Error(), Inner: err})
		return
	}

	d.resubmit(c.ReqID)
}

// observeCycle hashes the current term reachable from st.nodeID and
// checks it against st.cycle's sliding window (see cycle.go).
func (d *Driver) observeCycle(st *reqState) bool {
	return st.cycle.observe(fingerprintOf(d.region.Arena, st.nodeID))
}

// Stream submits exprs (already lowered into arena node ids, in
// enumeration order) with bounded concurrency, and invokes emit for
// each one's finalized Path strictly in submission order, regardless
// of the order in which they actually complete.
//
// Stream returns once every expression has been finalized and emitted,
// or immediately with the driver's abort error if termination or a
// fatal condition interrupts submission.
func (d *Driver) Stream(ctx context.Context, exprs []Expression, emit func(Path)) error {
	n := len(exprs)
	if n == 0 {
		return nil
	}
	if d.isAborted() {
		return d.abortErrValue()
	}

	sem := semaphore.NewWeighted(int64(d.params.WindowSize))

	ready := make([]bool, n)
	paths := make([]Path, n)
	var mu sync.Mutex
	nextEmit := 0

	flush := func() {
		mu.Lock()
		defer mu.Unlock()
		for nextEmit < n && ready[nextEmit] {
			emit(paths[nextEmit])
			nextEmit++
		}
	}
	store := func(p Path) {
		mu.Lock()
		paths[p.ExprIndex] = p
		ready[p.ExprIndex] = true
		mu.Unlock()
		flush()
	}

	for i, expr := range exprs {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		if d.isAborted() {
			sem.Release(1)
			return d.abortErrValue()
		}

		reqID, _, err := d.tracker.CreateRequest()
		if err != nil {
			sem.Release(1)
			return err
		}

		index := i
		src := expr.RootNodeID
		st := &reqState{
			exprIndex: index,
			sourceID:  src,
			nodeID:    src,
			cycle:     newCycleWindow(d.params.CycleWindowSize),
		}
		d.reqs.put(reqID, st)

		d.tracker.MarkPending(reqID,
			func(resultID uint32) {
				store(Path{
					ExprIndex: index, SourceNodeID: src, ResultNodeID: resultID,
					Status: arenaski.StatusDone, Steps: st.path,
					ReachedNormalForm: true, StepsTaken: st.stepsSoFar,
				})
				d.reqs.drop(reqID)
				sem.Release(1)
			},
			func(err error) {
				status := arenaski.StatusDiverged
				if arenaski.IsCode(err, arenaski.CodeWorkerInvariantViolation) {
					status = arenaski.StatusError
				}
				store(Path{
					ExprIndex: index, SourceNodeID: src, ResultNodeID: st.nodeID,
					Status: status, Steps: st.path,
					ReachedNormalForm: false, StepsTaken: st.stepsSoFar, Err: err,
				})
				d.reqs.drop(reqID)
				sem.Release(1)
			})

		wu := arenaski.WorkUnit{NodeID: src, ReqID: reqID, MaxSteps: stepsPerCall}
		if err := d.pushSQ(wu.Encode()); err != nil {
			return err
		}
		d.logger.WithFields("req_id", reqID, "expr_index", index).Debugf("submitted node %d", src)
	}

	if err := sem.Acquire(ctx, int64(d.params.WindowSize)); err != nil {
		return err
	}
	sem.Release(int64(d.params.WindowSize))
	flush()

	return d.abortErrValue()
}

// Evaluate is a convenience wrapper around Stream for a single
// expression, for callers (and tests) that don't need forest-scale
// batching.
func (d *Driver) Evaluate(ctx context.Context, sourceID uint32) (Path, error) {
	var result Path
	err := d.Stream(ctx, []Expression{{Index: 0, RootNodeID: sourceID}}, func(p Path) {
		result = p
	})
	return result, err
}
