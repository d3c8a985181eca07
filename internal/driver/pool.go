package driver

import (
	"context"
	"runtime"
	"time"

	"github.com/cloudwego/gopkg/concurrency/gopool"

	"github.com/nrobinson/arenaski"
	"github.com/nrobinson/arenaski/internal/ring"
	"github.com/nrobinson/arenaski/internal/worker"
)

// The submission/completion rings are SPSC by construction
// (internal/ring), but a pool of worker goroutines draining one SQ and
// publishing onto one CQ is genuinely multi-consumer/multi-producer.
// Rather than reach for a different ring design, each worker takes a
// short-lived mutex around the single TryDequeue/TryEnqueue call and
// releases it before doing any reduction work, so only the cheap index
// bookkeeping is serialized. The actual reduction steps, which are
// where the real cost lives, still run fully in parallel.
func backoff(attempts int) {
	if attempts <= ring.BusyWaitThreshold {
		runtime.Gosched()
	} else {
		runtime.Gosched()
		time.Sleep(0)
	}
}

func (d *Driver) popSQ() ([]uint32, bool) {
	d.sqMu.Lock()
	defer d.sqMu.Unlock()
	return d.region.SQ.TryDequeue()
}

func (d *Driver) pushSQ(words []uint32) error {
	attempts := 0
	for {
		if d.isAborted() {
			return ring.ErrAborted{}
		}
		d.sqMu.Lock()
		ok := d.region.SQ.TryEnqueue(words)
		d.sqMu.Unlock()
		if ok {
			return nil
		}
		attempts++
		backoff(attempts)
	}
}

func (d *Driver) popCQ() ([]uint32, bool) {
	d.cqMu.Lock()
	defer d.cqMu.Unlock()
	return d.region.CQ.TryDequeue()
}

func (d *Driver) pushCQ(words []uint32) error {
	attempts := 0
	for {
		if d.isAborted() {
			return ring.ErrAborted{}
		}
		d.cqMu.Lock()
		ok := d.region.CQ.TryEnqueue(words)
		d.cqMu.Unlock()
		if ok {
			return nil
		}
		attempts++
		backoff(attempts)
	}
}

// startWorkers launches params.WorkerPoolSize goroutines, each
// draining the shared SQ and publishing completions onto the shared
// CQ, routed through a gopool.GoPool whose panic handler logs any
// panic that escapes a worker loop. A panic inside Reduce itself is
// turned into a WorkerInvariantViolation completion by safeReduce.
func (d *Driver) startWorkers() {
	opt := gopool.DefaultOption()
	opt.TaskChanBuffer = d.params.WorkerPoolSize * 4
	pool := gopool.NewGoPool("arenaski-worker-pool", opt)
	pool.SetPanicHandler(func(_ context.Context, r interface{}) {
		d.logger.Errorf("worker panic recovered: %v", r)
	})

	for slot := 0; slot < d.params.WorkerPoolSize; slot++ {
		slot := slot
		d.wg.Add(1)
		pool.Go(func() {
			defer d.wg.Done()
			d.workerLoop(slot)
		})
	}
}

func (d *Driver) workerLoop(slot int) {
	attempts := 0
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		words, ok := d.popSQ()
		if !ok {
			attempts++
			backoff(attempts)
			continue
		}
		attempts = 0
		d.runWorkUnit(slot, arenaski.DecodeWorkUnit(words))
	}
}

// stepsPerCall is the one-reduction-per-call budget every work unit
// runs with: the driver observes each rewrite individually, so paths
// and cycle checks see every intermediate term.
const stepsPerCall = 1

func (d *Driver) runWorkUnit(_ int, wu arenaski.WorkUnit) {
	// The wire value MaxSteps == 0 marks a wakeup of a suspended node
	// with its budget inherited rather than respecified; the inherited
	// budget here is the driver's per-call step budget.
	steps := wu.MaxSteps
	if steps == 0 {
		steps = stepsPerCall
	}
	result := d.safeReduce(wu, steps)

	var status arenaski.CompletionStatus
	switch result.Outcome {
	case worker.OutcomeDone:
		status = arenaski.StatusDone
	case worker.OutcomeYieldIO:
		status = arenaski.StatusYieldIO
	case worker.OutcomeYieldBudget:
		status = arenaski.StatusYieldBudget
	default:
		status = arenaski.StatusError
	}

	if status == arenaski.StatusError && result.Err != nil {
		d.recordWorkerError(wu.ReqID, result.Err)
	}

	completion := arenaski.Completion{
		ReqID:        wu.ReqID,
		ResultNodeID: result.ResultNodeID,
		Status:       status,
		Aux:          result.StepsTaken,
	}
	d.metrics.RecordSteps(uint64(result.StepsTaken))

	if err := d.pushCQ(completion.Encode()); err != nil {
		// Driver is terminating; the completion is simply dropped.
		return
	}
}

// safeReduce recovers a panic inside the kernel (an arena invariant
// violation such as indexing a corrupted node) and reports it as an
// ordinary OutcomeError result. The gopool panic handler one layer up
// only logs whatever escapes this recover.
func (d *Driver) safeReduce(wu arenaski.WorkUnit, maxSteps uint32) (result worker.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = worker.Result{
				ResultNodeID: wu.NodeID,
				Outcome:      worker.OutcomeError,
				Err:          arenaski.NewRequestError("kernel.reduce", wu.ReqID, arenaski.CodeWorkerInvariantViolation, "panic during reduction"),
			}
		}
	}()
	return d.kernel.Reduce(wu.NodeID, maxSteps, d.io.Port())
}

func (d *Driver) recordWorkerError(reqID uint64, err error) {
	d.workerErrMu.Lock()
	d.workerErrs[reqID] = err
	d.workerErrMu.Unlock()
}

func (d *Driver) takeWorkerError(reqID uint64) error {
	d.workerErrMu.Lock()
	defer d.workerErrMu.Unlock()
	err := d.workerErrs[reqID]
	delete(d.workerErrs, reqID)
	return err
}
